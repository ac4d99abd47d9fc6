package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/observability/metrics"
	"github.com/aryan0dhankhar/grccore/internal/observability/tracing"
)

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event) {}

func publisherOrNop(p domain.EventPublisher) domain.EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// startOp opens a span and returns a closer that records the outcome.
// Call as: ctx, done := startOp(ctx, "x", tenant); defer func() { done(err) }()
func startOp(ctx context.Context, operation, tenantID string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, operation, tenantID)
	return ctx, func(err error) {
		tracing.End(span, err)
		metrics.ObserveServiceOperation(operation, err, time.Since(start))
	}
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return domain.NewValidationError("tenantId", "is required")
	}
	return nil
}
