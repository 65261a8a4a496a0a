// v0
// internal/shutdown/shutdown.go
package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"
)

// Disconnector is anything that tears down a client session.
type Disconnector interface {
	Shutdown(ctx context.Context) error
}

// Guard runs the disconnect exactly once, no matter how many paths ask for
// it (signal task, deferred exit hook, fatal error).
type Guard struct {
	target  Disconnector
	timeout time.Duration
	log     *slog.Logger

	once sync.Once
	err  error
}

func NewGuard(target Disconnector, timeout time.Duration, log *slog.Logger) *Guard {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Guard{target: target, timeout: timeout, log: log}
}

// Disconnect shuts the client down on the first call and returns that
// result on every later call.
func (g *Guard) Disconnect() error {
	g.once.Do(func() {
		g.log.Info("client_shutdown_start")
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()
		g.err = g.run(ctx)
		if g.err != nil {
			g.log.Error("client_shutdown_failed", "err", g.err)
			return
		}
		g.log.Info("client_shutdown_complete")
	})
	return g.err
}

func (g *Guard) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("shutdown panic: %v", r)
		}
	}()
	return g.target.Shutdown(ctx)
}

// Watch starts the single owned shutdown task. The returned context is
// cancelled once the first of sigs arrives (or parent ends), and by then the
// guard has already disconnected the client. stop releases the signal
// registration.
func Watch(parent context.Context, g *Guard, sigs ...os.Signal) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case s := <-ch:
			g.log.Info("shutdown_signal", "signal", s.String())
		case <-ctx.Done():
		}
		_ = g.Disconnect()
		cancel()
	}()

	return ctx, func() {
		signal.Stop(ch)
		cancel()
		<-done
	}
}
