// v0
// internal/sensor/reading.go
package sensor

import (
	"context"
	"fmt"
	"time"
)

// Reading is a single temperature/humidity pair parsed from the sensor
// output line. It is produced fresh on every scan and not retained.
type Reading struct {
	Temperature float64   `json:"temperatureC"`
	Humidity    float64   `json:"humidityPct"`
	CapturedAt  time.Time `json:"capturedAt"`
}

// Source produces the raw text emitted by a sensor.
type Source interface {
	Capture(ctx context.Context) (string, error)
}

// Reader turns captured sensor text into a Reading.
type Reader struct {
	src Source
	now func() time.Time
}

// NewReader builds a Reader over the given source.
func NewReader(src Source) *Reader {
	return &Reader{src: src, now: time.Now}
}

// Read captures one line from the source and parses it.
func (r *Reader) Read(ctx context.Context) (Reading, error) {
	line, err := r.src.Capture(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("capture: %w", err)
	}
	rd, err := Parse(line)
	if err != nil {
		return Reading{}, err
	}
	rd.CapturedAt = r.now()
	return rd, nil
}
