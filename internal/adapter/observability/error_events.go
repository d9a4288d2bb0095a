package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/lawbot/internal/domain"
)

// ErrorEvent is one classified chat failure travelling through the pipeline.
type ErrorEvent struct {
	ID         string           `json:"id"`
	Kind       domain.ErrorKind `json:"kind"`
	Message    string           `json:"message"`
	RequestID  string           `json:"request_id,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// ErrorSink consumes error events. Sinks run on the pipeline goroutine, one
// event at a time.
type ErrorSink interface {
	HandleError(ctx context.Context, ev ErrorEvent) error
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(ctx context.Context, ev ErrorEvent) error

// HandleError implements ErrorSink.
func (f ErrorSinkFunc) HandleError(ctx context.Context, ev ErrorEvent) error { return f(ctx, ev) }

// ErrorEvents is a bounded, non-blocking domain.ErrorNotifier. Notify never
// waits: when the buffer is full the event is dropped and counted.
type ErrorEvents struct {
	ch          chan ErrorEvent
	sinks       []ErrorSink
	sinkTimeout time.Duration
	done        chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ domain.ErrorNotifier = (*ErrorEvents)(nil)

// NewErrorEvents starts the delivery goroutine. buffer <= 0 uses 256.
func NewErrorEvents(buffer int, sinks ...ErrorSink) *ErrorEvents {
	if buffer <= 0 {
		buffer = 256
	}
	e := &ErrorEvents{
		ch:          make(chan ErrorEvent, buffer),
		sinks:       sinks,
		sinkTimeout: 5 * time.Second,
		done:        make(chan struct{}),
	}
	go e.run()
	return e
}

// Notify enqueues an event without blocking.
func (e *ErrorEvents) Notify(ctx context.Context, kind domain.ErrorKind, message string) {
	ev := ErrorEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		Message:    message,
		RequestID:  RequestIDFromContext(ctx),
		OccurredAt: time.Now().UTC(),
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		ErrorEventsDroppedTotal.Inc()
		return
	}
	select {
	case e.ch <- ev:
	default:
		ErrorEventsDroppedTotal.Inc()
		LoggerFromContext(ctx).Warn("error event dropped", slog.String("kind", string(kind)))
	}
}

func (e *ErrorEvents) run() {
	defer close(e.done)
	for ev := range e.ch {
		for _, s := range e.sinks {
			e.deliver(s, ev)
		}
	}
}

func (e *ErrorEvents) deliver(s ErrorSink, ev ErrorEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), e.sinkTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("error sink panicked", slog.String("event_id", ev.ID), slog.Any("panic", r))
		}
	}()
	if err := s.HandleError(ctx, ev); err != nil {
		slog.Warn("error sink failed", slog.String("event_id", ev.ID), slog.String("sink", fmt.Sprintf("%T", s)), slog.Any("error", err))
	}
}

// Close stops accepting events and waits until queued ones are delivered or
// ctx expires.
func (e *ErrorEvents) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
	e.mu.Unlock()
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("op=observability.ErrorEvents.Close: %w", ctx.Err())
	}
}

// LogSink writes every event as an error log line.
func LogSink(lg *slog.Logger) ErrorSink {
	if lg == nil {
		lg = slog.Default()
	}
	return ErrorSinkFunc(func(_ context.Context, ev ErrorEvent) error {
		lg.Error("chat error",
			slog.String("event_id", ev.ID),
			slog.String("error_type", string(ev.Kind)),
			slog.String("error_message", ev.Message),
			slog.String("request_id", ev.RequestID))
		return nil
	})
}

// MetricsSink counts events by kind.
func MetricsSink() ErrorSink {
	return ErrorSinkFunc(func(_ context.Context, ev ErrorEvent) error {
		ChatErrorsTotal.WithLabelValues(string(ev.Kind)).Inc()
		return nil
	})
}
