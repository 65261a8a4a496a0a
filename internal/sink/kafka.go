// v2
// internal/sink/kafka.go
package sink

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/breaker"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/connector"
)

const DefaultKafkaTopic = "edge.readings"

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Record is the JSON value written for every mirrored update. The message
// key is the device name so one device always lands on the same partition.
type Record struct {
	ID         string             `json:"id"`
	DeviceID   string             `json:"deviceId"`
	Timestamp  time.Time          `json:"timestamp"`
	Properties map[string]float64 `json:"properties"`
}

// Kafka mirrors pushed updates onto a Kafka topic.
type Kafka struct {
	log    *slog.Logger
	topic  string
	writer messageWriter
}

// NewKafka builds a hash-balanced writer guarded by b (which may be nil).
func NewKafka(cfg KafkaConfig, b *breaker.Breaker, log *slog.Logger) *Kafka {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	log.Info("kafka writer ready", "topic", topic, "brokers", cfg.Brokers)
	return newKafkaWithWriter(topic, breaker.NewKafkaWriter(w, b), log)
}

func newKafkaWithWriter(topic string, w messageWriter, log *slog.Logger) *Kafka {
	return &Kafka{log: log, topic: topic, writer: w}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Mirror(ctx context.Context, u connector.Update) error {
	b, err := json.Marshal(Record{ID: u.ID, DeviceID: u.Thing, Timestamp: u.Timestamp, Properties: u.Properties})
	if err != nil {
		k.log.Error("marshal failed", "err", err)
		return err
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(u.Thing), Value: b, Time: u.Timestamp}); err != nil {
		k.log.Error("kafka write failed", "err", err, "deviceId", u.Thing, "topic", k.topic)
		return err
	}
	k.log.Debug("published", "deviceId", u.Thing, "topic", k.topic, "ts", u.Timestamp)
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
