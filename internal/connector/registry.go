// v0
// internal/connector/registry.go
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateThing is returned when a thing with the same name is bound twice.
var ErrDuplicateThing = errors.New("thing already bound")

// Thing is a remotely visible device the connector keeps in sync.
type Thing interface {
	Name() string
	Scan(ctx context.Context) error
}

// Registry holds the things bound to a session, in bind order.
type Registry struct {
	mu     sync.RWMutex
	order  []Thing
	byName map[string]Thing
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Thing)}
}

// Bind registers t. Names are unique per registry.
func (r *Registry) Bind(t Thing) error {
	if t == nil {
		return errors.New("nil thing")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[t.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateThing, t.Name())
	}
	r.byName[t.Name()] = t
	r.order = append(r.order, t)
	return nil
}

// Things returns a copy of the bound things.
func (r *Registry) Things() []Thing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Thing, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup finds a bound thing by name.
func (r *Registry) Lookup(name string) (Thing, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}
