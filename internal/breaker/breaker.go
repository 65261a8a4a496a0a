// v1
// internal/breaker/breaker.go
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling the operation while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open; fast-fail")

// Config holds the breaker tunables.
type Config struct {
	MaxFailures      int           // consecutive failures before opening
	ResetTimeout     time.Duration // how long to stay open before probing
	SuccessesToClose int           // successes required in HalfOpen before closing
	AttemptTimeout   time.Duration // per-call deadline, 0 disables
}

// DefaultConfig mirrors the CB_* defaults.
func DefaultConfig() Config {
	return Config{MaxFailures: 5, ResetTimeout: 30 * time.Second, SuccessesToClose: 2, AttemptTimeout: 3 * time.Second}
}

// Breaker guards calls to a flaky dependency.
type Breaker struct {
	name    string
	cfg     Config
	logger  *slog.Logger
	onState func(State)
	now     func() time.Time

	mu          sync.Mutex
	state       State
	recentFails int
	halfOpenOK  int
	openedAt    time.Time
}

// New builds a closed breaker. onState, when set, is called on every
// transition with the new state.
func New(name string, cfg Config, logger *slog.Logger, onState func(State)) *Breaker {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 1
	}
	if cfg.SuccessesToClose < 1 {
		cfg.SuccessesToClose = 1
	}
	b := &Breaker{
		name:    name,
		cfg:     cfg,
		logger:  logger,
		onState: onState,
		now:     time.Now,
		state:   Closed,
	}
	b.logger.Info("breaker_created", "name", name, "maxFailures", cfg.MaxFailures, "resetTimeout", cfg.ResetTimeout.String())
	return b
}

// Execute runs op unless the breaker is open.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if !b.allow() {
		b.logger.Warn("breaker_fast_fail", "name", b.name)
		return ErrOpen
	}

	attemptCtx := ctx
	if b.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, b.cfg.AttemptTimeout)
		defer cancel()
	}

	if err := op(attemptCtx); err != nil {
		b.onFailure(err)
		return err
	}
	b.onSuccess()
	return nil
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return true
	}
	if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
		return false
	}
	b.setState(HalfOpen)
	b.halfOpenOK = 0
	b.logger.Info("breaker_probe_start", "name", b.name, "previous_failures", b.recentFails)
	return true
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recentFails = 0
	if b.state != HalfOpen {
		return
	}
	b.halfOpenOK++
	if b.halfOpenOK >= b.cfg.SuccessesToClose {
		b.setState(Closed)
		b.logger.Info("breaker_closed_after_probe", "name", b.name)
	}
}

func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recentFails++
	b.logger.Warn("operation_failure", "name", b.name, "failures", b.recentFails, "error", err.Error())
	if b.state == HalfOpen || b.recentFails >= b.cfg.MaxFailures {
		b.openedAt = b.now()
		if b.state != Open {
			b.setState(Open)
			b.logger.Error("breaker_opened", "name", b.name, "maxFailures", b.cfg.MaxFailures)
		}
	}
}

// setState must be called with mu held.
func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	b.state = s
	if b.onState != nil {
		b.onState(s)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Name() string { return b.name }
