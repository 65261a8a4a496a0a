// v0
// internal/poller/loop_test.go
package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/connector"
)

type fakeThing struct {
	name  string
	err   error
	panic bool
	scans atomic.Int32
}

func (f *fakeThing) Name() string { return f.name }

func (f *fakeThing) Scan(context.Context) error {
	f.scans.Add(1)
	if f.panic {
		panic("sensor driver exploded")
	}
	return f.err
}

type fakeSource struct {
	mu        sync.Mutex
	connected bool
	things    []connector.Thing
	checks    int
}

func (s *fakeSource) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	return s.connected
}

func (s *fakeSource) Things() []connector.Thing { return s.things }

func (s *fakeSource) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// manualTimer hands the loop a channel the test fires explicitly and records
// the requested durations.
type manualTimer struct {
	mu    sync.Mutex
	waits []time.Duration
	ch    chan chan time.Time
}

func newManualTimer() *manualTimer { return &manualTimer{ch: make(chan chan time.Time, 16)} }

func (m *manualTimer) after(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	m.waits = append(m.waits, d)
	m.mu.Unlock()
	c := make(chan time.Time, 1)
	m.ch <- c
	return c
}

// next blocks until the loop is waiting and returns the channel that
// releases it.
func (m *manualTimer) next(t *testing.T) chan time.Time {
	t.Helper()
	select {
	case c := <-m.ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("loop never started waiting")
		return nil
	}
}

func TestCycleIsolatesFailingDevice(t *testing.T) {
	bad := &fakeThing{name: "broken", err: errors.New("parse temperature: missing field")}
	panicky := &fakeThing{name: "panicky", panic: true}
	good := &fakeThing{name: "good"}
	src := &fakeSource{connected: true, things: []connector.Thing{bad, panicky, good}}
	l := New(src, time.Second, discard(), nil)

	for i := 0; i < 3; i++ {
		rep := l.Cycle(context.Background())
		if rep.State != StateActive || rep.Scanned != 3 {
			t.Fatalf("cycle %d: unexpected report %+v", i, rep)
		}
		if len(rep.Failed) != 2 || rep.Failed[0] != "broken" || rep.Failed[1] != "panicky" {
			t.Fatalf("cycle %d: unexpected failures %v", i, rep.Failed)
		}
	}
	if got := good.scans.Load(); got != 3 {
		t.Fatalf("healthy device scanned %d times, want 3", got)
	}
}

func TestCycleIdleSkipsScans(t *testing.T) {
	thing := &fakeThing{name: "dev"}
	src := &fakeSource{connected: false, things: []connector.Thing{thing}}
	l := New(src, time.Second, discard(), nil)

	rep := l.Cycle(context.Background())
	if rep.State != StateIdle || rep.Scanned != 0 {
		t.Fatalf("unexpected idle report %+v", rep)
	}
	if thing.scans.Load() != 0 {
		t.Fatalf("idle cycle must not scan")
	}
}

func TestLastRecordsMostRecentCycle(t *testing.T) {
	src := &fakeSource{connected: false, things: []connector.Thing{&fakeThing{name: "dev"}}}
	l := New(src, time.Second, discard(), nil)
	if _, ok := l.Last(); ok {
		t.Fatalf("no cycle has run yet")
	}

	l.Cycle(context.Background())
	src.setConnected(true)
	l.Cycle(context.Background())

	last, ok := l.Last()
	if !ok || last.State != StateActive || last.Scanned != 1 || last.At.IsZero() {
		t.Fatalf("unexpected last report %+v", last)
	}
}

func TestRunWaitsIntervalInBothStates(t *testing.T) {
	thing := &fakeThing{name: "dev"}
	src := &fakeSource{connected: false, things: []connector.Thing{thing}}
	timer := newManualTimer()
	l := New(src, 5*time.Second, discard(), nil)
	l.after = timer.after

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	// first idle iteration is followed by a wait
	c := timer.next(t)
	c <- time.Now()

	// second idle iteration: still no scans, still a wait
	c = timer.next(t)
	if thing.scans.Load() != 0 {
		t.Fatalf("scanned while disconnected")
	}
	src.setConnected(true)
	c <- time.Now()

	// active iteration completes before the third wait is requested
	timer.next(t)
	if got := thing.scans.Load(); got != 1 {
		t.Fatalf("expected one scan after reconnect, got %d", got)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}

	timer.mu.Lock()
	defer timer.mu.Unlock()
	if len(timer.waits) != 3 {
		t.Fatalf("expected 3 waits, got %d", len(timer.waits))
	}
	for _, w := range timer.waits {
		if w != 5*time.Second {
			t.Fatalf("wait %s want 5s", w)
		}
	}
}

func TestRunStopsImmediatelyWhenCancelled(t *testing.T) {
	src := &fakeSource{connected: true}
	l := New(src, time.Hour, discard(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if src.checks != 0 {
		t.Fatalf("cancelled loop should not poll, checks=%d", src.checks)
	}
}

func TestNewDefaultsInterval(t *testing.T) {
	if l := New(&fakeSource{}, 0, discard(), nil); l.interval != DefaultInterval {
		t.Fatalf("interval = %s", l.interval)
	}
}
