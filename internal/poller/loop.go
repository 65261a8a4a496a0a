// v1
// internal/poller/loop.go
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/connector"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/metrics"
)

// DefaultInterval is the pause between iterations.
const DefaultInterval = 5000 * time.Millisecond

// Source is the session the loop polls: its connectivity flag and the things
// bound to it.
type Source interface {
	Connected() bool
	Things() []connector.Thing
}

// State of one iteration.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

// CycleReport summarises one iteration.
type CycleReport struct {
	State   State     `json:"state"`
	At      time.Time `json:"at"`
	Scanned int       `json:"scanned"`
	Failed  []string  `json:"failed,omitempty"`
}

// Loop scans every bound thing at a fixed interval while the source is
// connected.
type Loop struct {
	src      Source
	interval time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
	after    func(time.Duration) <-chan time.Time
	last     atomic.Pointer[CycleReport]
}

func New(src Source, interval time.Duration, log *slog.Logger, m *metrics.Metrics) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{src: src, interval: interval, log: log, metrics: m, after: time.After}
}

// Run blocks until ctx is cancelled. Every iteration, idle or active, is
// followed by a full interval wait.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("poll_loop_started", "interval", l.interval.String())
	for {
		if ctx.Err() != nil {
			l.log.Info("poll_loop_stopped")
			return nil
		}
		l.Cycle(ctx)
		select {
		case <-ctx.Done():
			l.log.Info("poll_loop_stopped")
			return nil
		case <-l.after(l.interval):
		}
	}
}

// Last returns the report of the most recent iteration.
func (l *Loop) Last() (CycleReport, bool) {
	rep := l.last.Load()
	if rep == nil {
		return CycleReport{}, false
	}
	return *rep, true
}

// Cycle runs a single iteration.
func (l *Loop) Cycle(ctx context.Context) CycleReport {
	rep := l.cycle(ctx)
	l.last.Store(&rep)
	return rep
}

func (l *Loop) cycle(ctx context.Context) CycleReport {
	if !l.src.Connected() {
		l.metrics.PollCycle(string(StateIdle))
		l.log.Debug("poll_idle")
		return CycleReport{State: StateIdle, At: time.Now()}
	}
	l.metrics.PollCycle(string(StateActive))

	rep := CycleReport{State: StateActive, At: time.Now()}
	for _, t := range l.src.Things() {
		if ctx.Err() != nil {
			break
		}
		rep.Scanned++
		if err := scanIsolated(ctx, t); err != nil {
			rep.Failed = append(rep.Failed, t.Name())
			l.metrics.Scan(t.Name(), "error")
			l.log.Error("scan_failed", "device", t.Name(), "err", err)
			continue
		}
		l.metrics.Scan(t.Name(), "ok")
	}
	return rep
}

// scanIsolated turns a panic in one thing into an error so the rest of the
// iteration still runs.
func scanIsolated(ctx context.Context, t connector.Thing) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during scan: %v", r)
		}
	}()
	return t.Scan(ctx)
}
