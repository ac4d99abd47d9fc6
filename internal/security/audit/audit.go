package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/infrastructure/logger"
)

// Logger writes audit records to a dedicated slog logger. Records come from
// two places: the HTTP middleware (who called what) and the event bus (what
// changed).
type Logger struct {
	logger *slog.Logger
	clock  func() time.Time
}

func NewLogger(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{logger: l.With(slog.String("log_type", "audit")), clock: time.Now}
}

// WithClock replaces the time source; used by tests.
func (al *Logger) WithClock(clock func() time.Time) *Logger {
	al.clock = clock
	return al
}

func (al *Logger) LogAction(ctx context.Context, tenantID, userID, action, resource, resourceID, status, details string) {
	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("tenant_id", tenantID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", logger.RequestID(ctx)),
		slog.Time("timestamp", al.clock().UTC()),
	)
}

func (al *Logger) LogDenied(ctx context.Context, tenantID, userID, reason string) {
	al.LogAction(ctx, tenantID, userID, "access_denied", "api", "", "denied", reason)
}

// Handle records a domain event. It is registered as an event bus subscriber.
func (al *Logger) Handle(ctx context.Context, e domain.Event) error {
	resource, id, details := describe(e)
	userID := ""
	if h, ok := headerOf(e); ok {
		userID = h.UserID
	}
	al.LogAction(ctx, e.Tenant(), userID, e.EventName(), resource, id, "committed", details)
	return nil
}

func headerOf(e domain.Event) (domain.EventHeader, bool) {
	switch ev := e.(type) {
	case domain.SubscriptionEvent:
		return ev.EventHeader, true
	case domain.QuotaExceeded:
		return ev.EventHeader, true
	case domain.QuotaCheckDenied:
		return ev.EventHeader, true
	case domain.QuotaReset:
		return ev.EventHeader, true
	case domain.RiskEvent:
		return ev.EventHeader, true
	case domain.TaskEvent:
		return ev.EventHeader, true
	}
	return domain.EventHeader{}, false
}

func describe(e domain.Event) (resource, id, details string) {
	switch ev := e.(type) {
	case domain.SubscriptionEvent:
		return "subscription", ev.SubscriptionID, ev.Reason
	case domain.QuotaExceeded:
		return "quota", string(ev.QuotaType), ""
	case domain.QuotaCheckDenied:
		return "quota", string(ev.QuotaType), ""
	case domain.QuotaReset:
		return "quota", string(ev.QuotaType), ""
	case domain.RiskEvent:
		return "risk", ev.RiskID, string(ev.Status)
	case domain.TaskEvent:
		return "workflow_task", ev.TaskID, ev.Comments
	}
	return "unknown", "", ""
}
