// Package events fans domain events out to in-process subscribers (audit
// log, metrics, the WebSocket hub) and optionally relays them over Redis
// pub/sub to other instances.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/observability/metrics"
)

// Handler consumes one event. Returned errors are logged, never propagated
// to the publisher.
type Handler func(ctx context.Context, e domain.Event) error

type subscription struct {
	sink    string
	handler Handler
}

// Bus is a synchronous in-process event bus. It implements
// domain.EventPublisher.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

// NewBus creates an empty bus
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers h under a sink name used in logs and metrics.
func (b *Bus) Subscribe(sink string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{sink: sink, handler: h})
}

// Publish delivers e to every subscriber in registration order. A failing
// or panicking subscriber does not stop delivery to the others.
func (b *Bus) Publish(ctx context.Context, e domain.Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		err := b.deliver(ctx, s, e)
		result := "ok"
		if err != nil {
			result = "error"
			b.logger.Error("event delivery failed",
				slog.String("event", e.EventName()),
				slog.String("sink", s.sink),
				slog.String("tenant_id", e.Tenant()),
				slog.String("error", err.Error()),
			)
		}
		metrics.ObserveEvent(e.EventName(), s.sink, result)
	}
}

func (b *Bus) deliver(ctx context.Context, s subscription, e domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return s.handler(ctx, e)
}

// Envelope is the wire form of an event on Redis and the WebSocket stream.
type Envelope struct {
	Name       string          `json:"name"`
	TenantID   string          `json:"tenantId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEnvelope serializes e.
func NewEnvelope(e domain.Event) (Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s: %w", e.EventName(), err)
	}
	return Envelope{
		Name:       e.EventName(),
		TenantID:   e.Tenant(),
		OccurredAt: e.OccurredAt(),
		Payload:    payload,
	}, nil
}

// LogHandler writes every event at info level; wired as the "log" sink.
func LogHandler(logger *slog.Logger) Handler {
	return func(_ context.Context, e domain.Event) error {
		logger.Info("domain event",
			slog.String("event", e.EventName()),
			slog.String("tenant_id", e.Tenant()),
			slog.Time("occurred_at", e.OccurredAt()),
		)
		return nil
	}
}
