package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/observability/metrics"
)

// QuotaService answers quota checks against the tenant's active product and
// maintains the usage counters.
type QuotaService struct {
	subs   *SubscriptionService
	usage  domain.QuotaUsageRepository
	events domain.EventPublisher
	logger *slog.Logger
	clock  Clock
}

// NewQuotaService creates a quota service
func NewQuotaService(subs *SubscriptionService, usage domain.QuotaUsageRepository, events domain.EventPublisher, logger *slog.Logger) *QuotaService {
	return &QuotaService{
		subs:   subs,
		usage:  usage,
		events: publisherOrNop(events),
		logger: loggerOrDefault(logger),
		clock:  systemClock,
	}
}

// WithClock replaces the time source
func (s *QuotaService) WithClock(clock Clock) *QuotaService {
	s.clock = clock
	return s
}

// definition returns the quota definition of the tenant's active product.
// ok is false when the product does not define quotaType.
func (s *QuotaService) definition(ctx context.Context, tenantID string, quotaType domain.QuotaType) (domain.ProductQuota, bool, error) {
	_, product, err := s.subs.CurrentProduct(ctx, tenantID)
	if err != nil {
		return domain.ProductQuota{}, false, err
	}
	q, ok := product.Quota(quotaType)
	return q, ok, nil
}

// CheckQuota reports whether the tenant may consume requested more units.
// Quotas that are undefined, unlimited or not enforced always allow.
func (s *QuotaService) CheckQuota(ctx context.Context, tenantID string, quotaType domain.QuotaType, requested float64) (res *domain.QuotaCheckResult, err error) {
	ctx, done := startOp(ctx, "quota.check", tenantID)
	defer func() { done(err) }()

	if err := validateQuotaArgs(tenantID, quotaType); err != nil {
		return nil, err
	}
	if requested < 0 || math.IsNaN(requested) {
		return nil, domain.NewValidationError("requested", "must be >= 0")
	}
	def, ok, err := s.definition(ctx, tenantID, quotaType)
	if err != nil {
		return nil, err
	}
	usage, err := s.usage.Get(ctx, tenantID, quotaType)
	if err != nil {
		return nil, err
	}

	res = &domain.QuotaCheckResult{Allowed: true, QuotaType: quotaType, CurrentUsage: usage.CurrentUsage}
	if ok && def.IsEnforced && def.Bounded() {
		limit := *def.Limit
		remaining := math.Max(0, limit-usage.CurrentUsage)
		res.Limit = &limit
		res.Remaining = &remaining
		res.Allowed = usage.CurrentUsage+requested <= limit
	}
	metrics.ObserveQuotaCheck(string(quotaType), res.Allowed)

	if !res.Allowed {
		s.logger.Info("quota check denied",
			slog.String("tenant_id", tenantID),
			slog.String("quota_type", string(quotaType)),
			slog.Float64("usage", usage.CurrentUsage),
			slog.Float64("requested", requested),
			slog.Float64("limit", *res.Limit),
		)
		s.events.Publish(ctx, domain.QuotaCheckDenied{
			EventHeader: domain.NewEventHeader(domain.EventQuotaCheckDenied, tenantID, "", s.clock()),
			QuotaType:   quotaType,
			Usage:       usage.CurrentUsage,
			Requested:   requested,
			Limit:       *res.Limit,
		})
	}
	return res, nil
}

// IncrementUsage adds amount to the counter. It does not consult the limit;
// callers check first. QuotaExceeded is published when the increment moves
// usage from below an enforced limit to at or above it.
func (s *QuotaService) IncrementUsage(ctx context.Context, tenantID, userID string, quotaType domain.QuotaType, amount float64) (u *domain.QuotaUsage, err error) {
	ctx, done := startOp(ctx, "quota.increment", tenantID)
	defer func() { done(err) }()

	if err := validateQuotaArgs(tenantID, quotaType); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	before, after, err := s.usage.Add(ctx, tenantID, quotaType, amount, s.clock())
	if err != nil {
		return nil, err
	}
	metrics.ObserveQuotaChange(string(quotaType), "increment")

	def, ok, err := s.definition(ctx, tenantID, quotaType)
	switch {
	case errors.Is(err, domain.ErrNoActiveSubscription):
	case err != nil:
		s.logger.Warn("quota definition lookup failed after increment",
			slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
	case ok && def.IsEnforced && def.Bounded() && before < *def.Limit && after >= *def.Limit:
		s.logger.Warn("quota limit reached",
			slog.String("tenant_id", tenantID),
			slog.String("quota_type", string(quotaType)),
			slog.Float64("usage", after),
			slog.Float64("limit", *def.Limit),
		)
		s.events.Publish(ctx, domain.QuotaExceeded{
			EventHeader: domain.NewEventHeader(domain.EventQuotaExceeded, tenantID, userID, s.clock()),
			QuotaType:   quotaType,
			Usage:       after,
			Limit:       *def.Limit,
		})
	}
	return s.usage.Get(ctx, tenantID, quotaType)
}

// DecrementUsage subtracts amount, never going below zero.
func (s *QuotaService) DecrementUsage(ctx context.Context, tenantID string, quotaType domain.QuotaType, amount float64) (u *domain.QuotaUsage, err error) {
	ctx, done := startOp(ctx, "quota.decrement", tenantID)
	defer func() { done(err) }()

	if err := validateQuotaArgs(tenantID, quotaType); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if _, _, err := s.usage.Add(ctx, tenantID, quotaType, -amount, s.clock()); err != nil {
		return nil, err
	}
	metrics.ObserveQuotaChange(string(quotaType), "decrement")
	return s.usage.Get(ctx, tenantID, quotaType)
}

// Consume checks and, when allowed, increments in one call. A denied check
// returns the result with Allowed false and leaves the counter untouched.
func (s *QuotaService) Consume(ctx context.Context, tenantID, userID string, quotaType domain.QuotaType, amount float64) (*domain.QuotaCheckResult, error) {
	res, err := s.CheckQuota(ctx, tenantID, quotaType, amount)
	if err != nil || !res.Allowed {
		return res, err
	}
	u, err := s.IncrementUsage(ctx, tenantID, userID, quotaType, amount)
	if err != nil {
		return nil, err
	}
	res.CurrentUsage = u.CurrentUsage
	if res.Limit != nil {
		remaining := math.Max(0, *res.Limit-u.CurrentUsage)
		res.Remaining = &remaining
	}
	return res, nil
}

// Require is Consume for callers that must fail on denial.
func (s *QuotaService) Require(ctx context.Context, tenantID, userID string, quotaType domain.QuotaType, amount float64) error {
	res, err := s.CheckQuota(ctx, tenantID, quotaType, amount)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return &domain.QuotaExceededError{QuotaType: quotaType, Usage: res.CurrentUsage, Requested: amount, Limit: *res.Limit}
	}
	return nil
}

// ResetUsage zeroes a counter. Monthly quotas get their next window date.
func (s *QuotaService) ResetUsage(ctx context.Context, tenantID, userID string, quotaType domain.QuotaType) (err error) {
	ctx, done := startOp(ctx, "quota.reset", tenantID)
	defer func() { done(err) }()

	if err := validateQuotaArgs(tenantID, quotaType); err != nil {
		return err
	}
	var next *time.Time
	now := s.clock()
	if sub, product, err := s.subs.CurrentProduct(ctx, tenantID); err == nil {
		if q, ok := product.Quota(quotaType); ok && q.ResetMonthly {
			n := NextMonthlyReset(sub.StartDate, now)
			next = &n
		}
	}
	err = s.reset(ctx, tenantID, userID, quotaType, next, now)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ObserveQuotaReset("api", result)
	return err
}

// ResetDue zeroes a counter found due by the reset worker and schedules the
// following window one month after the one that just ended.
func (s *QuotaService) ResetDue(ctx context.Context, u *domain.QuotaUsage) error {
	now := s.clock()
	var next *time.Time
	if u.ResetDate != nil {
		n := NextMonthlyReset(*u.ResetDate, now)
		next = &n
	}
	return s.reset(ctx, u.TenantID, "", u.QuotaType, next, now)
}

// DueForReset lists counters whose window has ended.
func (s *QuotaService) DueForReset(ctx context.Context) ([]*domain.QuotaUsage, error) {
	return s.usage.DueForReset(ctx, s.clock())
}

func (s *QuotaService) reset(ctx context.Context, tenantID, userID string, quotaType domain.QuotaType, next *time.Time, now time.Time) error {
	prev, err := s.usage.Get(ctx, tenantID, quotaType)
	if err != nil {
		return err
	}
	if err := s.usage.Reset(ctx, tenantID, quotaType, next, now); err != nil {
		return err
	}
	metrics.ObserveQuotaChange(string(quotaType), "reset")
	s.events.Publish(ctx, domain.QuotaReset{
		EventHeader:   domain.NewEventHeader(domain.EventQuotaReset, tenantID, userID, now),
		QuotaType:     quotaType,
		PreviousUsage: prev.CurrentUsage,
		NextResetDate: next,
	})
	return nil
}

// GetQuotaStatus reports one counter against the active product's definition.
func (s *QuotaService) GetQuotaStatus(ctx context.Context, tenantID string, quotaType domain.QuotaType) (*domain.QuotaStatus, error) {
	if err := validateQuotaArgs(tenantID, quotaType); err != nil {
		return nil, err
	}
	def, ok, err := s.definition(ctx, tenantID, quotaType)
	if err != nil {
		return nil, err
	}
	usage, err := s.usage.Get(ctx, tenantID, quotaType)
	if err != nil {
		return nil, err
	}
	if !ok {
		def = domain.ProductQuota{QuotaType: quotaType, IsUnlimited: true}
	}
	return BuildQuotaStatus(def, usage), nil
}

// ListQuotaStatus reports every quota the product defines plus any counter
// the tenant has accumulated outside those definitions.
func (s *QuotaService) ListQuotaStatus(ctx context.Context, tenantID string) ([]*domain.QuotaStatus, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	_, product, err := s.subs.CurrentProduct(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	counters, err := s.usage.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	byType := make(map[domain.QuotaType]*domain.QuotaUsage, len(counters))
	for _, c := range counters {
		byType[c.QuotaType] = c
	}

	out := make([]*domain.QuotaStatus, 0, len(product.Quotas))
	for _, q := range product.Quotas {
		u, ok := byType[q.QuotaType]
		if !ok {
			u = &domain.QuotaUsage{TenantID: tenantID, QuotaType: q.QuotaType}
		}
		delete(byType, q.QuotaType)
		out = append(out, BuildQuotaStatus(q, u))
	}
	for t, u := range byType {
		out = append(out, BuildQuotaStatus(domain.ProductQuota{QuotaType: t, IsUnlimited: true}, u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuotaType < out[j].QuotaType })
	return out, nil
}

// BuildQuotaStatus derives the percentage and exceeded flag of a counter.
// A zero limit reads as 100% once anything is used.
func BuildQuotaStatus(def domain.ProductQuota, u *domain.QuotaUsage) *domain.QuotaStatus {
	st := &domain.QuotaStatus{
		QuotaType:    def.QuotaType,
		CurrentUsage: u.CurrentUsage,
		Limit:        def.Limit,
		Unit:         def.Unit,
		IsEnforced:   def.IsEnforced,
		IsUnlimited:  def.IsUnlimited,
		ResetDate:    u.ResetDate,
	}
	if def.IsUnlimited || def.Limit == nil {
		st.Limit = nil
		return st
	}
	limit := *def.Limit
	switch {
	case limit > 0:
		st.Percentage = u.CurrentUsage / limit * 100
	case u.CurrentUsage > 0:
		st.Percentage = 100
	}
	st.IsExceeded = u.CurrentUsage > limit
	return st
}

func validateQuotaArgs(tenantID string, quotaType domain.QuotaType) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	_, err := domain.ParseQuotaType(string(quotaType))
	return err
}

func validateAmount(amount float64) error {
	if !(amount > 0) || math.IsInf(amount, 1) {
		return domain.NewValidationError("amount", "must be > 0")
	}
	return nil
}
