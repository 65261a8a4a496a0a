// v1
// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"

	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/breaker"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/config"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/connector"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/device"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/httpapi"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/metrics"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/poller"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/sensor"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/shutdown"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/sink"
)

// session is the platform connection as the agent uses it.
type session interface {
	poller.Source
	connector.Submitter
	Bind(t connector.Thing) error
	Start() error
	Address() string
	Shutdown(ctx context.Context) error
}

// Agent wires the platform session, device proxies, poll loop and status API.
type Agent struct {
	cfg     config.Config
	id      string
	logger  *slog.Logger
	metrics *metrics.Metrics
	session session
	proxies []*device.Proxy
	loop    *poller.Loop
	server  *http.Server
	guard   *shutdown.Guard
}

// New builds every component from cfg. Nothing touches the network until
// Run.
func New(cfg config.Config, logger *slog.Logger) (*Agent, error) {
	id := uuid.NewString()
	m := metrics.New()

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "edge-agent-" + id[:8]
	}
	mirrors := buildMirrors(cfg, logger, m)
	platform, err := connector.NewPlatform(connector.Config{
		Address:     cfg.Address,
		AppKey:      cfg.AppKey,
		ClientID:    clientID,
		TopicPrefix: cfg.TopicPrefix,
		InsecureTLS: cfg.InsecureTLS,
	}, logger.With(slog.String("component", "platform")), m, mirrors...)
	if err != nil {
		for _, mr := range mirrors {
			_ = mr.Close()
		}
		return nil, fmt.Errorf("platform init: %w", err)
	}
	return newAgent(cfg, id, logger, m, platform)
}

func newAgent(cfg config.Config, id string, logger *slog.Logger, m *metrics.Metrics, s session) (*Agent, error) {
	a := &Agent{
		cfg:     cfg,
		id:      id,
		logger:  logger,
		metrics: m,
		session: s,
		guard:   shutdown.NewGuard(s, cfg.ShutdownTimeout, logger.With(slog.String("component", "shutdown"))),
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for _, d := range cfg.Devices {
		var src sensor.Source
		if d.Simulated {
			src = sensor.NewSimulatedSource(rand.New(rand.NewSource(rng.Int63())))
		} else {
			src = sensor.NewCommandSource(d.Command, cfg.SensorTimeout, logger.With(slog.String("device", d.Name)))
		}
		proxy := device.NewProxy(d.Name, d.Description, sensor.NewReader(src), s, cfg.AckTimeout,
			logger.With(slog.String("component", "device"), slog.String("device", d.Name)))
		if err := s.Bind(proxy); err != nil {
			return nil, fmt.Errorf("bind %s: %w", d.Name, err)
		}
		a.proxies = append(a.proxies, proxy)
		logger.Info("device_bound",
			slog.String("device", d.Name),
			slog.Bool("simulated", d.Simulated),
		)
	}

	a.loop = poller.New(s, cfg.PollInterval, logger.With(slog.String("component", "poller")), m)

	if cfg.ListenAddress != "" {
		router := httpapi.NewRouter(a, m, logger)
		a.server = &http.Server{
			Addr:              cfg.ListenAddress,
			Handler:           httpapi.Wrap(router, cfg.CORSOrigins, logger.With(slog.String("component", "http"))),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

func buildMirrors(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) []connector.Mirror {
	var mirrors []connector.Mirror
	if len(cfg.KafkaBrokers) > 0 {
		b := newBreaker("kafka", cfg, logger, m)
		mirrors = append(mirrors, sink.NewKafka(sink.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, b,
			logger.With(slog.String("component", "kafka_mirror"))))
	}
	if cfg.InfluxURL != "" {
		b := newBreaker("influx", cfg, logger, m)
		mirrors = append(mirrors, sink.NewInflux(sink.InfluxConfig{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, b, logger.With(slog.String("component", "influx_mirror"))))
	}
	return mirrors
}

func newBreaker(target string, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) *breaker.Breaker {
	if !cfg.BreakerEnabled {
		return nil
	}
	m.BreakerState(target, int(breaker.Closed))
	return breaker.New(target, cfg.Breaker, logger, func(s breaker.State) {
		m.BreakerState(target, int(s))
	})
}

// ID is the random identifier of this agent process.
func (a *Agent) ID() string { return a.id }

// Guard is the single owner of the platform disconnect.
func (a *Agent) Guard() *shutdown.Guard { return a.guard }

// Snapshot implements httpapi.Reporter.
func (a *Agent) Snapshot() httpapi.Snapshot {
	snap := httpapi.Snapshot{
		AgentID:   a.id,
		Address:   a.session.Address(),
		Connected: a.session.Connected(),
		Simulated: a.cfg.Simulated,
		Devices:   make([]device.Status, 0, len(a.proxies)),
	}
	for _, p := range a.proxies {
		snap.Devices = append(snap.Devices, p.Status())
	}
	if last, ok := a.loop.Last(); ok {
		snap.LastCycle = &last
	}
	return snap
}

// Run starts the session and blocks in the poll loop until ctx is
// cancelled. The platform disconnect is left to the guard.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.session.Start(); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	// The status server is auxiliary: a bind or serve failure is logged and
	// the poll loop keeps running.
	httpDone := make(chan struct{})
	if a.server != nil {
		go func() {
			defer close(httpDone)
			a.logger.Info("http_server_listen", slog.String("address", a.server.Addr))
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http_server_error", slog.String("address", a.server.Addr), slog.Any("err", err))
			}
		}()
	} else {
		close(httpDone)
	}

	runErr := a.loop.Run(ctx)

	if a.server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http_shutdown_failed", slog.Any("err", err))
		}
		shutdownCancel()
	}
	<-httpDone
	return runErr
}
