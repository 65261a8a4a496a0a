// v1
// internal/config/config.go
package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/breaker"
)

// ErrUsage is returned when fewer than two positional arguments are given.
var ErrUsage = errors.New("missing required arguments")

// Usage is printed when ErrUsage is returned.
const Usage = "A minimum of two arguments is required. Server Hostname and Application Key. " +
	"Optionally, if the third argument is 'simulated' then simulated reading will be used instead of real hardware.\n" +
	"usage: edge-agent <ws[s]://host:port/path> <appKey> [simulated]"

// SimulatedArg is the literal third argument enabling simulated readings.
const SimulatedArg = "simulated"

// Config captures all runtime settings of the edge agent. Values are
// layered: defaults, .env, properties file, EDGE_* environment variables and
// finally the positional arguments.
type Config struct {
	// Address is the platform URI (ws:// or wss://).
	Address string
	// AppKey authenticates the agent against the platform.
	AppKey string
	// Simulated replaces the sensor command with synthetic readings.
	Simulated bool

	ClientID    string
	TopicPrefix string
	InsecureTLS bool

	PollInterval    time.Duration
	AckTimeout      time.Duration
	SensorTimeout   time.Duration
	ShutdownTimeout time.Duration

	SensorCommand    string
	ThingName        string
	ThingDescription string
	DevicesFile      string
	// Devices is resolved from DevicesFile or the single thing_* settings.
	Devices []Device

	ListenAddress string
	CORSOrigins   []string

	LogFilePath string
	LogLevel    slog.Level

	PropertiesPath string
	EnvFile        string

	KafkaBrokers []string
	KafkaTopic   string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	BreakerEnabled bool
	Breaker        breaker.Config
}

const (
	defaultPollInterval     = 5000 * time.Millisecond
	defaultAckTimeout       = 2000 * time.Millisecond
	defaultSensorTimeout    = 10 * time.Second
	defaultShutdownTimeout  = 5 * time.Second
	defaultSensorCommand    = "sudo /home/pi/projects/Adafruit_Python_DHT/examples/AdafruitDHT.py 2302 4"
	defaultThingName        = "Am2302Thing"
	defaultThingDescription = "Sensor 2302"
	defaultTopicPrefix      = "things"
	defaultListenAddress    = ":8090"
	defaultLogFile          = "logs/edge-agent.log"
	defaultPropsPath        = "edge-agent.properties"
	defaultEnvFile          = ".env"
	defaultKafkaTopic       = "edge.readings"
)

func defaults() Config {
	return Config{
		TopicPrefix:      defaultTopicPrefix,
		PollInterval:     defaultPollInterval,
		AckTimeout:       defaultAckTimeout,
		SensorTimeout:    defaultSensorTimeout,
		ShutdownTimeout:  defaultShutdownTimeout,
		SensorCommand:    defaultSensorCommand,
		ThingName:        defaultThingName,
		ThingDescription: defaultThingDescription,
		ListenAddress:    defaultListenAddress,
		LogFilePath:      filepath.Clean(defaultLogFile),
		LogLevel:         slog.LevelInfo,
		KafkaTopic:       defaultKafkaTopic,
		Breaker:          breaker.DefaultConfig(),
	}
}

// Load resolves the configuration for the given positional arguments
// (os.Args[1:]). It returns ErrUsage when fewer than two are present.
func Load(args []string) (Config, error) {
	if len(args) < 2 {
		return Config{}, ErrUsage
	}
	cfg := defaults()

	cfg.EnvFile = defaultEnvFile
	if v, ok := lookupEnvTrimmed("EDGE_ENV_FILE"); ok && v != "" {
		cfg.EnvFile = v
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(cfg.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", cfg.EnvFile, err)
	}

	propsPath := defaultPropsPath
	if v, ok := lookupEnvTrimmed("EDGE_PROPERTIES_PATH"); ok && v != "" {
		propsPath = v
	}
	cfg.PropertiesPath = propsPath
	if err := applyProperties(&cfg, propsPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	cfg.Address = strings.TrimSpace(args[0])
	cfg.AppKey = strings.TrimSpace(args[1])
	if len(args) > 2 && args[2] == SimulatedArg {
		cfg.Simulated = true
	}
	if cfg.Address == "" || cfg.AppKey == "" {
		return Config{}, ErrUsage
	}

	devices, err := resolveDevices(cfg)
	if err != nil {
		return Config{}, err
	}
	cfg.Devices = devices
	return cfg, nil
}

func applyProperties(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, ";") || strings.HasPrefix(raw, "//") {
			continue
		}
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid properties entry on line %d", line)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		set, ok := settings[key]
		if !ok {
			// Unknown keys are ignored.
			continue
		}
		if err := set(cfg, value); err != nil {
			return fmt.Errorf("property %s: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read properties: %w", err)
	}
	return nil
}

// envAliases maps shared NRG-CHAMP variable names onto property keys. They
// apply only when the EDGE_* variable is absent.
var envAliases = map[string]string{
	"kafka_brokers":      "KAFKA_BROKERS",
	"influx_url":         "INFLUXDB_URL",
	"influx_token":       "INFLUXDB_TOKEN",
	"influx_org":         "INFLUXDB_ORG",
	"influx_bucket":      "INFLUXDB_BUCKET",
	"breaker_enabled":    "CB_ENABLED",
	"breaker_failures":   "CB_FAILURE_THRESHOLD",
	"breaker_successes":  "CB_SUCCESS_THRESHOLD",
	"breaker_open_secs":  "CB_OPEN_SECONDS",
	"breaker_timeout_ms": "CB_TIMEOUT_MS",
}

func applyEnv(cfg *Config) error {
	for _, key := range settingKeys() {
		envKey := "EDGE_" + strings.ToUpper(key)
		v, ok := lookupEnvTrimmed(envKey)
		if !ok {
			alias, hasAlias := envAliases[key]
			if !hasAlias {
				continue
			}
			if v, ok = lookupEnvTrimmed(alias); !ok {
				continue
			}
			envKey = alias
		}
		if err := settings[key](cfg, v); err != nil {
			return fmt.Errorf("%s: %w", envKey, err)
		}
	}
	return nil
}

func lookupEnvTrimmed(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitAndTrim(raw string) []string {
	fields := strings.Split(raw, ",")
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parsePositiveMillis(v string) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return 0, errors.New("value cannot be empty")
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if ms <= 0 {
		return 0, errors.New("value must be greater than zero")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", v)
	}
}
