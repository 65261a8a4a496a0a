// v1
// internal/device/proxy.go
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/connector"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/sensor"
)

// Property names pushed to the platform.
const (
	PropTemperature = "Prop_Temperature"
	PropHumidity    = "Prop_Humidity"
)

// Reader yields one fresh sensor reading per call.
type Reader interface {
	Read(ctx context.Context) (sensor.Reading, error)
}

// Proxy is the local representative of one remote-visible device. It keeps
// the last known property values and pushes them on every scan.
type Proxy struct {
	name        string
	description string
	reader      Reader
	submitter   connector.Submitter
	ackTimeout  time.Duration
	log         *slog.Logger

	mu        sync.RWMutex
	props     map[string]float64
	scannedAt time.Time
	lastErr   error
}

// NewProxy starts both properties at their default value of 0.
func NewProxy(name, description string, r Reader, s connector.Submitter, ackTimeout time.Duration, log *slog.Logger) *Proxy {
	if ackTimeout <= 0 {
		ackTimeout = connector.DefaultAckTimeout
	}
	return &Proxy{
		name:        name,
		description: description,
		reader:      r,
		submitter:   s,
		ackTimeout:  ackTimeout,
		log:         log.With(slog.String("device", name)),
		props:       map[string]float64{PropTemperature: 0, PropHumidity: 0},
	}
}

func (p *Proxy) Name() string        { return p.name }
func (p *Proxy) Description() string { return p.description }

// Scan reads the sensor, stores the new values and submits them. A failed
// read leaves the previous values in place.
func (p *Proxy) Scan(ctx context.Context) error {
	rd, err := p.reader.Read(ctx)
	if err != nil {
		p.recordErr(err)
		return fmt.Errorf("scan %s: %w", p.name, err)
	}

	p.mu.Lock()
	p.props[PropTemperature] = rd.Temperature
	p.props[PropHumidity] = rd.Humidity
	p.scannedAt = rd.CapturedAt
	snapshot := p.copyProps()
	p.mu.Unlock()

	p.log.Debug("properties_read", PropTemperature, rd.Temperature, PropHumidity, rd.Humidity)

	ts := rd.CapturedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	if err := p.submitter.UpdateSubscribed(ctx, connector.NewUpdate(p.name, snapshot, ts), p.ackTimeout); err != nil {
		p.recordErr(err)
		return fmt.Errorf("submit %s: %w", p.name, err)
	}
	p.recordErr(nil)
	return nil
}

func (p *Proxy) recordErr(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

// copyProps must be called with mu held.
func (p *Proxy) copyProps() map[string]float64 {
	out := make(map[string]float64, len(p.props))
	for k, v := range p.props {
		out[k] = v
	}
	return out
}

// Properties returns a copy of the current property values.
func (p *Proxy) Properties() map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.copyProps()
}

// Status is a point-in-time view of a proxy for the status API.
type Status struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Properties  map[string]float64 `json:"properties"`
	ScannedAt   *time.Time         `json:"scannedAt,omitempty"`
	LastError   string             `json:"lastError,omitempty"`
}

func (p *Proxy) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := Status{Name: p.name, Description: p.description, Properties: p.copyProps()}
	if !p.scannedAt.IsZero() {
		ts := p.scannedAt
		st.ScannedAt = &ts
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}
