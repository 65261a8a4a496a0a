// v1
// internal/breaker/kafka_test.go
package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type stubKafkaWriter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubKafkaWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.calls++
	return s.err
}

func (s *stubKafkaWriter) Close() error { return nil }

func TestKafkaWriterFastFailsWhenOpen(t *testing.T) {
	b, _, _ := newTestBreaker(Config{MaxFailures: 2, ResetTimeout: time.Minute, SuccessesToClose: 1})
	stub := &stubKafkaWriter{err: errors.New("broker unreachable")}
	w := NewKafkaWriter(stub, b)

	for i := 0; i < 2; i++ {
		if err := w.WriteMessages(context.Background(), kafka.Message{Value: []byte("v")}); err == nil {
			t.Fatalf("write %d should fail", i)
		}
	}
	if err := w.WriteMessages(context.Background(), kafka.Message{Value: []byte("v")}); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if stub.calls != 2 {
		t.Fatalf("writer should not be called while open, calls=%d", stub.calls)
	}
}

func TestKafkaWriterWithoutBreaker(t *testing.T) {
	stub := &stubKafkaWriter{}
	w := NewKafkaWriter(stub, nil)
	if err := w.WriteMessages(context.Background(), kafka.Message{Value: []byte("v")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("expected single pass-through call, got %d", stub.calls)
	}
	var nilWriter *KafkaWriter
	if err := nilWriter.WriteMessages(context.Background()); err == nil {
		t.Fatalf("nil writer must error")
	}
}
