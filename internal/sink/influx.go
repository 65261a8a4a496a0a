// v0
// internal/sink/influx.go
package sink

import (
	"context"
	"fmt"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/breaker"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/connector"
)

const measurement = "sensor_data"

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx mirrors pushed updates as points in an InfluxDB bucket, one field per
// property and the device name as the device_id tag.
type Influx struct {
	log     *slog.Logger
	bucket  string
	client  influxdb2.Client
	writer  pointWriter
	breaker *breaker.Breaker
}

func NewInflux(cfg InfluxConfig, b *breaker.Breaker, log *slog.Logger) *Influx {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	in := newInfluxWithWriter(cfg.Bucket, client.WriteAPIBlocking(cfg.Org, cfg.Bucket), b, log)
	in.client = client
	log.Info("influx writer ready", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return in
}

func newInfluxWithWriter(bucket string, w pointWriter, b *breaker.Breaker, log *slog.Logger) *Influx {
	return &Influx{log: log, bucket: bucket, writer: w, breaker: b}
}

func (i *Influx) Name() string { return "influx" }

func (i *Influx) Mirror(ctx context.Context, u connector.Update) error {
	fields := make(map[string]interface{}, len(u.Properties))
	for k, v := range u.Properties {
		fields[k] = v
	}
	p := influxdb2.NewPoint(measurement, map[string]string{"device_id": u.Thing}, fields, u.Timestamp)

	op := func(ctx context.Context) error { return i.writer.WritePoint(ctx, p) }
	var err error
	if i.breaker != nil {
		err = i.breaker.Execute(ctx, op)
	} else {
		err = op(ctx)
	}
	if err != nil {
		return fmt.Errorf("error writing to InfluxDB: %w", err)
	}
	i.log.Debug("point written", "bucket", i.bucket, "device_id", u.Thing)
	return nil
}

func (i *Influx) Close() error {
	if i.client != nil {
		i.client.Close()
	}
	return nil
}
