package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/observability/metrics"
	"github.com/aryan0dhankhar/grccore/internal/reliability/retry"
)

// QuotaResetter is the part of the quota service the worker drives
type QuotaResetter interface {
	DueForReset(ctx context.Context) ([]*domain.QuotaUsage, error)
	ResetDue(ctx context.Context, u *domain.QuotaUsage) error
}

// QuotaResetWorker periodically zeroes quota counters whose monthly window
// has ended and schedules their next window
type QuotaResetWorker struct {
	quotas   QuotaResetter
	logger   *slog.Logger
	interval time.Duration
	retry    *retry.Config
}

// NewQuotaResetWorker creates a new quota reset worker
func NewQuotaResetWorker(quotas QuotaResetter, logger *slog.Logger, interval time.Duration) *QuotaResetWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaResetWorker{
		quotas:   quotas,
		logger:   logger.With(slog.String("worker", "quota_reset")),
		interval: interval,
		retry:    retry.DefaultConfig(),
	}
}

// WithRetry replaces the per-counter retry policy
func (w *QuotaResetWorker) WithRetry(cfg *retry.Config) *QuotaResetWorker {
	w.retry = cfg
	return w
}

// Start runs a sweep immediately and then on every tick until ctx is done
func (w *QuotaResetWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("quota reset worker started", slog.Duration("interval", w.interval))
	w.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("quota reset worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep resets every due counter and returns how many were reset. A counter
// that keeps failing is left for the next sweep.
func (w *QuotaResetWorker) Sweep(ctx context.Context) int {
	due, err := w.quotas.DueForReset(ctx)
	if err != nil {
		w.logger.Error("failed to list due quota counters", slog.String("error", err.Error()))
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	reset := 0
	for _, u := range due {
		logger := w.logger.With(
			slog.String("tenant_id", u.TenantID),
			slog.String("quota_type", string(u.QuotaType)),
		)
		err := retry.Run(ctx, w.retry, logger, "quota_reset", func(ctx context.Context) error {
			return w.quotas.ResetDue(ctx, u)
		})
		if err != nil {
			logger.Error("quota reset failed after retries", slog.String("error", err.Error()))
			metrics.ObserveQuotaReset("worker", "error")
			continue
		}
		metrics.ObserveQuotaReset("worker", "success")
		reset++
	}
	w.logger.Info("quota reset sweep finished", slog.Int("due", len(due)), slog.Int("reset", reset))
	return reset
}
