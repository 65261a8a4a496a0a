// v2
// internal/breaker/kafka.go
package breaker

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
)

// kafkaMessageWriter mirrors the subset of kafka.Writer used by the wrapper.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter wraps a kafka writer with breaker protection. A nil breaker
// passes every call straight through.
type KafkaWriter struct {
	breaker *Breaker
	writer  kafkaMessageWriter
}

func NewKafkaWriter(writer kafkaMessageWriter, b *Breaker) *KafkaWriter {
	return &KafkaWriter{writer: writer, breaker: b}
}

// WriteMessages publishes msgs, fast-failing with ErrOpen while the breaker
// is open.
func (w *KafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w == nil || w.writer == nil {
		return errors.New("nil kafka writer")
	}
	if w.breaker == nil {
		return w.writer.WriteMessages(ctx, msgs...)
	}
	return w.breaker.Execute(ctx, func(execCtx context.Context) error {
		return w.writer.WriteMessages(execCtx, msgs...)
	})
}

func (w *KafkaWriter) Close() error {
	if w == nil || w.writer == nil {
		return nil
	}
	return w.writer.Close()
}
