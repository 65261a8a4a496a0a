// v0
// internal/connector/update.go
package connector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Update carries the latest property values of one thing.
type Update struct {
	ID         string
	Thing      string
	Properties map[string]float64
	Timestamp  time.Time
}

// NewUpdate stamps a fresh id on the property set.
func NewUpdate(thing string, props map[string]float64, ts time.Time) Update {
	cp := make(map[string]float64, len(props))
	for k, v := range props {
		cp[k] = v
	}
	return Update{ID: uuid.NewString(), Thing: thing, Properties: cp, Timestamp: ts}
}

type wireUpdate struct {
	ID     string             `json:"id"`
	Thing  string             `json:"thing"`
	TS     int64              `json:"ts"`
	Values map[string]float64 `json:"values"`
}

// MarshalJSON renders the telemetry shape `{"id","thing","ts","values"}` with
// ts in Unix milliseconds.
func (u Update) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireUpdate{ID: u.ID, Thing: u.Thing, TS: u.Timestamp.UnixMilli(), Values: u.Properties})
}

// Submitter pushes updates outward, waiting at most wait for acknowledgement.
type Submitter interface {
	UpdateSubscribed(ctx context.Context, u Update, wait time.Duration) error
}

// Mirror receives a copy of every pushed update.
type Mirror interface {
	Name() string
	Mirror(ctx context.Context, u Update) error
	Close() error
}
