// v1
// internal/config/settings.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

type setter func(cfg *Config, value string) error

// settings lists every key accepted in the properties file. The matching
// environment variable is EDGE_ followed by the upper-cased key.
var settings = map[string]setter{
	"poll_interval_ms":    millis(func(c *Config, d time.Duration) { c.PollInterval = d }),
	"ack_timeout_ms":      millis(func(c *Config, d time.Duration) { c.AckTimeout = d }),
	"sensor_timeout_ms":   millis(func(c *Config, d time.Duration) { c.SensorTimeout = d }),
	"shutdown_timeout_ms": millis(func(c *Config, d time.Duration) { c.ShutdownTimeout = d }),
	"sensor_command":      nonEmpty(func(c *Config, v string) { c.SensorCommand = v }),
	"thing_name":          nonEmpty(func(c *Config, v string) { c.ThingName = v }),
	"thing_description":   text(func(c *Config, v string) { c.ThingDescription = v }),
	"devices_file":        text(func(c *Config, v string) { c.DevicesFile = v }),
	"topic_prefix":        nonEmpty(func(c *Config, v string) { c.TopicPrefix = strings.Trim(v, "/") }),
	"client_id":           text(func(c *Config, v string) { c.ClientID = v }),
	"insecure_tls":        flag(func(c *Config, b bool) { c.InsecureTLS = b }),
	"listen_address":      text(func(c *Config, v string) { c.ListenAddress = v }),
	"cors_origins":        text(func(c *Config, v string) { c.CORSOrigins = splitAndTrim(v) }),
	"log_path":            nonEmpty(func(c *Config, v string) { c.LogFilePath = filepath.Clean(v) }),
	"log_level":           logLevel,
	"kafka_brokers":       text(func(c *Config, v string) { c.KafkaBrokers = splitAndTrim(v) }),
	"kafka_topic":         nonEmpty(func(c *Config, v string) { c.KafkaTopic = v }),
	"influx_url":          text(func(c *Config, v string) { c.InfluxURL = v }),
	"influx_token":        text(func(c *Config, v string) { c.InfluxToken = v }),
	"influx_org":          text(func(c *Config, v string) { c.InfluxOrg = v }),
	"influx_bucket":       text(func(c *Config, v string) { c.InfluxBucket = v }),

	"breaker_enabled":    flag(func(c *Config, b bool) { c.BreakerEnabled = b }),
	"breaker_failures":   positiveInt(func(c *Config, n int) { c.Breaker.MaxFailures = n }),
	"breaker_successes":  positiveInt(func(c *Config, n int) { c.Breaker.SuccessesToClose = n }),
	"breaker_open_secs":  positiveInt(func(c *Config, n int) { c.Breaker.ResetTimeout = time.Duration(n) * time.Second }),
	"breaker_timeout_ms": millis(func(c *Config, d time.Duration) { c.Breaker.AttemptTimeout = d }),
}

func settingKeys() []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func millis(apply func(*Config, time.Duration)) setter {
	return func(c *Config, v string) error {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return err
		}
		apply(c, d)
		return nil
	}
}

func positiveInt(apply func(*Config, int)) setter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		if n <= 0 {
			return errors.New("value must be greater than zero")
		}
		apply(c, n)
		return nil
	}
}

func nonEmpty(apply func(*Config, string)) setter {
	return func(c *Config, v string) error {
		if strings.TrimSpace(v) == "" {
			return errors.New("value cannot be empty")
		}
		apply(c, strings.TrimSpace(v))
		return nil
	}
}

func text(apply func(*Config, string)) setter {
	return func(c *Config, v string) error {
		apply(c, strings.TrimSpace(v))
		return nil
	}
}

func flag(apply func(*Config, bool)) setter {
	return func(c *Config, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return err
		}
		apply(c, b)
		return nil
	}
}

func logLevel(c *Config, v string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
		return fmt.Errorf("invalid log level %q", v)
	}
	c.LogLevel = lvl
	return nil
}
