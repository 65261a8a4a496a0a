// v0
// internal/sink/sink_test.go
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/segmentio/kafka-go"

	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/breaker"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/connector"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func (r *recordingWriter) Close() error {
	r.closed = true
	return nil
}

func sampleUpdate() connector.Update {
	return connector.Update{
		ID:         "8d7a2c1e-0000-4000-8000-000000000001",
		Thing:      "Am2302Thing",
		Properties: map[string]float64{"Prop_Temperature": 22.1, "Prop_Humidity": 48.5},
		Timestamp:  time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC),
	}
}

func TestKafkaMirrorKeysByDevice(t *testing.T) {
	w := &recordingWriter{}
	k := newKafkaWithWriter(DefaultKafkaTopic, w, discard())

	if err := k.Mirror(context.Background(), sampleUpdate()); err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "Am2302Thing" {
		t.Fatalf("key = %q", msg.Key)
	}
	var rec Record
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		t.Fatalf("value not json: %v", err)
	}
	if rec.DeviceID != "Am2302Thing" || rec.Properties["Prop_Humidity"] != 48.5 || !rec.Timestamp.Equal(sampleUpdate().Timestamp) {
		t.Fatalf("unexpected record %+v", rec)
	}
	if err := k.Close(); err != nil || !w.closed {
		t.Fatalf("close: err=%v closed=%v", err, w.closed)
	}
}

func TestKafkaMirrorPropagatesWriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	k := newKafkaWithWriter(DefaultKafkaTopic, w, discard())
	if err := k.Mirror(context.Background(), sampleUpdate()); err == nil {
		t.Fatalf("expected write error")
	}
}

type recordingPoints struct {
	points []*write.Point
	err    error
}

func (r *recordingPoints) WritePoint(_ context.Context, pts ...*write.Point) error {
	if r.err != nil {
		return r.err
	}
	r.points = append(r.points, pts...)
	return nil
}

func TestInfluxMirrorWritesPoint(t *testing.T) {
	pw := &recordingPoints{}
	in := newInfluxWithWriter("edge", pw, nil, discard())

	if err := in.Mirror(context.Background(), sampleUpdate()); err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if len(pw.points) != 1 {
		t.Fatalf("expected one point, got %d", len(pw.points))
	}
	p := pw.points[0]
	if p.Name() != measurement {
		t.Fatalf("measurement = %q", p.Name())
	}
	if len(p.FieldList()) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(p.FieldList()))
	}
	if tags := p.TagList(); len(tags) != 1 || tags[0].Key != "device_id" || tags[0].Value != "Am2302Thing" {
		t.Fatalf("unexpected tags %+v", tags)
	}
	if !p.Time().Equal(sampleUpdate().Timestamp) {
		t.Fatalf("time = %v", p.Time())
	}
	if err := in.Close(); err != nil {
		t.Fatalf("close without client: %v", err)
	}
}

func TestInfluxMirrorBreakerFastFails(t *testing.T) {
	pw := &recordingPoints{err: errors.New("503")}
	b := breaker.New("influx", breaker.Config{MaxFailures: 1, ResetTimeout: time.Minute, SuccessesToClose: 1}, discard(), nil)
	in := newInfluxWithWriter("edge", pw, b, discard())

	if err := in.Mirror(context.Background(), sampleUpdate()); err == nil {
		t.Fatalf("expected first write to fail")
	}
	if err := in.Mirror(context.Background(), sampleUpdate()); !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("expected breaker.ErrOpen, got %v", err)
	}
}
