// Package redpanda publishes chat error events to Redpanda/Kafka.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/lawbot/internal/adapter/observability"
)

// DefaultErrorTopic receives one record per error event.
const DefaultErrorTopic = "lawbot-chat-errors"

// syncProducer is the producing subset of *kgo.Client.
type syncProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// ErrorSink is an observability.ErrorSink that writes events as JSON records
// keyed by error kind.
type ErrorSink struct {
	client syncProducer
	topic  string
}

var _ observability.ErrorSink = (*ErrorSink)(nil)

// NewErrorSink connects to brokers and makes sure the topic exists. A topic
// creation failure is logged, not returned, since the topic may be managed
// elsewhere.
func NewErrorSink(ctx context.Context, brokers []string, topic string) (*ErrorSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewErrorSink: no seed brokers provided")
	}
	if topic == "" {
		topic = DefaultErrorTopic
	}
	k := kotel.NewKotel(kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))))
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(5),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.DialTimeout(10*time.Second),
		kgo.WithHooks(k.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewErrorSink: %w", err)
	}
	if err := createTopicIfNotExists(ctx, client, topic, 1, 1); err != nil {
		slog.Warn("error topic not created", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("redpanda error sink ready", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &ErrorSink{client: client, topic: topic}, nil
}

// HandleError implements observability.ErrorSink.
func (s *ErrorSink) HandleError(ctx context.Context, ev observability.ErrorEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("op=redpanda.HandleError: %w", err)
	}
	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(ev.Kind),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(ev.ID)},
			{Key: "error_type", Value: []byte(ev.Kind)},
			{Key: "request_id", Value: []byte(ev.RequestID)},
		},
		Timestamp: ev.OccurredAt,
	}
	if err := s.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("op=redpanda.HandleError: %w", err)
	}
	return nil
}

// Close flushes and closes the client.
func (s *ErrorSink) Close() {
	if s != nil && s.client != nil {
		s.client.Close()
	}
}
