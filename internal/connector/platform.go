// v1
// internal/connector/platform.go
package connector

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/metrics"
)

var (
	// ErrClosed is returned by calls made after Shutdown.
	ErrClosed = errors.New("platform session closed")
	// ErrAckTimeout is returned when the broker does not acknowledge in time.
	ErrAckTimeout = errors.New("acknowledgement timed out")
)

const (
	DefaultAckTimeout  = 2 * time.Second
	DefaultTopicPrefix = "things"
	defaultQuiesceMs   = 250
)

// Config describes the remote platform session.
type Config struct {
	// Address is a ws://, wss://, tcp:// or ssl:// broker URI.
	Address string
	// AppKey authenticates the agent; it is sent as the MQTT username.
	AppKey      string
	ClientID    string
	TopicPrefix string
	// InsecureTLS skips certificate verification on secure schemes.
	InsecureTLS    bool
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
}

// mqttClient is the subset of mqtt.Client used by the platform session.
type mqttClient interface {
	IsConnectionOpen() bool
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Platform is the managed MQTT session to the IoT platform. It owns the
// registry of bound things and fans every pushed update out to mirrors.
type Platform struct {
	*Registry

	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
	client  mqttClient
	mirrors []Mirror

	// runCtx is cancelled first thing in Shutdown; it bounds in-flight
	// publishes and mirror writes.
	runCtx    context.Context
	cancelRun context.CancelFunc
	fanout    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	errDn  error
}

// NewPlatform validates cfg and prepares a paho client. Nothing is dialled
// until Start.
func NewPlatform(cfg Config, log *slog.Logger, m *metrics.Metrics, mirrors ...Mirror) (*Platform, error) {
	if err := validateAddress(cfg.Address); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AppKey) == "" {
		return nil, errors.New("app key cannot be empty")
	}
	p := newPlatformWithClient(cfg, log, m, nil, mirrors...)
	p.client = mqtt.NewClient(p.clientOptions())
	return p, nil
}

func newPlatformWithClient(cfg Config, log *slog.Logger, m *metrics.Metrics, client mqttClient, mirrors ...Mirror) *Platform {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Platform{
		Registry:  NewRegistry(),
		cfg:       cfg,
		log:       log,
		metrics:   m,
		client:    client,
		mirrors:   mirrors,
		runCtx:    runCtx,
		cancelRun: cancel,
	}
}

func validateAddress(addr string) error {
	u, err := url.Parse(strings.TrimSpace(addr))
	if err != nil {
		return fmt.Errorf("invalid platform address: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "tcp", "ssl", "tls", "mqtt", "mqtts":
	default:
		return fmt.Errorf("invalid platform address %q: unsupported scheme %q", addr, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid platform address %q: missing host", addr)
	}
	return nil
}

func (p *Platform) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.Address).
		SetClientID(p.cfg.ClientID).
		SetUsername(p.cfg.AppKey).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(p.cfg.RetryInterval).
		SetConnectTimeout(p.cfg.ConnectTimeout).
		SetOrderMatters(false)

	if u, err := url.Parse(p.cfg.Address); err == nil {
		switch u.Scheme {
		case "wss", "ssl", "tls", "mqtts":
			opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: p.cfg.InsecureTLS, MinVersion: tls.VersionTLS12})
		}
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.log.Info("platform_connected", "address", p.cfg.Address)
		p.metrics.SetConnected(true)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.log.Warn("platform_connection_lost", "address", p.cfg.Address, "err", err)
		p.metrics.SetConnected(false)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		p.log.Info("platform_reconnecting", "address", p.cfg.Address)
	})
	return opts
}

// Start begins connecting in the background. With connect-retry enabled the
// session keeps dialling until it succeeds or Shutdown is called.
func (p *Platform) Start() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	p.log.Info("platform_connect_started", "address", p.cfg.Address, "client_id", p.cfg.ClientID)
	tok := p.client.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("connect %s: %w", p.cfg.Address, err)
		}
	default:
	}
	return nil
}

// Connected reports whether the session is currently usable.
func (p *Platform) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	return p.client.IsConnectionOpen()
}

// Address returns the configured broker URI.
func (p *Platform) Address() string { return p.cfg.Address }

func (p *Platform) topicFor(thing string) string {
	return p.cfg.TopicPrefix + "/" + thing + "/properties"
}

// UpdateSubscribed publishes u (QoS 1) and waits up to wait for the broker
// acknowledgement, then copies u to every mirror. Shutdown aborts both
// phases.
func (p *Platform) UpdateSubscribed(ctx context.Context, u Update, wait time.Duration) error {
	if err := p.publish(ctx, u, wait); err != nil {
		return err
	}
	defer p.fanout.Done()

	mctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.runCtx, cancel)
	defer stop()

	for _, m := range p.mirrors {
		if mctx.Err() != nil {
			break
		}
		if merr := m.Mirror(mctx, u); merr != nil {
			p.log.Warn("mirror_failed", "mirror", m.Name(), "thing", u.Thing, "err", merr)
			p.metrics.MirrorError(m.Name())
		}
	}
	return nil
}

// publish holds the read lock only for the broker round trip. On success it
// registers the caller's mirror fan-out, which must call p.fanout.Done.
func (p *Platform) publish(ctx context.Context, u Update, wait time.Duration) (err error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publish %s: client panic: %v", u.Thing, r)
		}
	}()

	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	if wait <= 0 {
		wait = DefaultAckTimeout
	}

	topic := p.topicFor(u.Thing)
	tok := p.client.Publish(topic, 1, false, payload)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-p.runCtx.Done():
		return fmt.Errorf("publish %s: %w", topic, ErrClosed)
	case <-timer.C:
		return fmt.Errorf("publish %s: %w after %s", topic, ErrAckTimeout, wait)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.log.Debug("properties_pushed", "thing", u.Thing, "topic", topic, "id", u.ID)
	p.fanout.Add(1)
	return nil
}

// Shutdown aborts in-flight pushes, disconnects the session and closes the
// mirrors once their pending writes return. If ctx ends first the teardown
// finishes in the background and ctx's error is returned. Only the first call
// does any work; later calls return nil.
func (p *Platform) Shutdown(ctx context.Context) error {
	var first bool
	p.once.Do(func() {
		first = true
		p.cancelRun()

		done := make(chan error, 1)
		go func() {
			done <- p.teardown()
		}()
		select {
		case err := <-done:
			p.errDn = err
		case <-ctx.Done():
			p.errDn = fmt.Errorf("shutdown: %w", ctx.Err())
		}
	})
	if !first {
		return nil
	}
	return p.errDn
}

func (p *Platform) teardown() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	var errs []error
	func() {
		defer func() {
			if r := recover(); r != nil {
				errs = append(errs, fmt.Errorf("disconnect: client panic: %v", r))
			}
		}()
		p.client.Disconnect(defaultQuiesceMs)
	}()
	p.metrics.SetConnected(false)

	p.fanout.Wait()
	for _, m := range p.mirrors {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close mirror %s: %w", m.Name(), err))
		}
	}
	return errors.Join(errs...)
}
