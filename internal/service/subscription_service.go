package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/observability/metrics"
)

// SubscriptionService drives the tenant subscription lifecycle. A tenant has
// at most one Trial or Active subscription; the repository enforces that
// atomically, this service enforces the transition table.
type SubscriptionService struct {
	subs    domain.SubscriptionRepository
	catalog *CatalogService
	usage   domain.QuotaUsageRepository
	events  domain.EventPublisher
	logger  *slog.Logger
	clock   Clock
}

// NewSubscriptionService creates a subscription service
func NewSubscriptionService(
	subs domain.SubscriptionRepository,
	catalog *CatalogService,
	usage domain.QuotaUsageRepository,
	events domain.EventPublisher,
	logger *slog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subs:    subs,
		catalog: catalog,
		usage:   usage,
		events:  publisherOrNop(events),
		logger:  loggerOrDefault(logger),
		clock:   systemClock,
	}
}

// WithClock replaces the time source
func (s *SubscriptionService) WithClock(clock Clock) *SubscriptionService {
	s.clock = clock
	return s
}

// SubscribeRequest describes a new subscription.
type SubscribeRequest struct {
	TenantID      string
	UserID        string
	ProductID     string // id or code
	PricingPlanID string
	StartDate     *time.Time
	EndDate       *time.Time
	AutoRenew     bool
}

// UpgradeRequest moves a tenant to another product.
type UpgradeRequest struct {
	TenantID string
	UserID   string
	// SubscriptionID, when set, must name the tenant's current subscription.
	SubscriptionID string
	ProductID      string
	PricingPlanID  string
	EffectiveDate  *time.Time
	// CarryOverUsage keeps the current counters instead of starting fresh
	// quota windows.
	CarryOverUsage bool
}

// Subscribe creates a subscription. When the plan has trial days the
// subscription starts in Trial and ends when the trial does.
func (s *SubscriptionService) Subscribe(ctx context.Context, req SubscribeRequest) (sub *domain.TenantSubscription, err error) {
	ctx, done := startOp(ctx, "subscription.subscribe", req.TenantID)
	defer func() { done(err) }()

	if err := requireTenant(req.TenantID); err != nil {
		return nil, err
	}
	product, plan, err := s.resolvePlan(ctx, req.ProductID, req.PricingPlanID)
	if err != nil {
		return nil, err
	}
	if err := s.expireStale(ctx, req.TenantID, req.UserID); err != nil {
		return nil, err
	}
	sub, err = s.create(ctx, req, product, plan)
	if err != nil {
		return nil, err
	}
	if err := s.openQuotaWindows(ctx, req.TenantID, product, sub.StartDate); err != nil {
		s.logger.Warn("failed to open quota windows",
			slog.String("tenant_id", req.TenantID), slog.String("error", err.Error()))
	}
	return sub, nil
}

func (s *SubscriptionService) resolvePlan(ctx context.Context, productRef, planID string) (*domain.Product, *domain.PricingPlan, error) {
	if strings.TrimSpace(productRef) == "" {
		return nil, nil, domain.NewValidationError("productId", "is required")
	}
	product, err := s.catalog.ResolveProduct(ctx, productRef)
	if err != nil {
		return nil, nil, err
	}
	if !product.IsActive {
		return nil, nil, domain.NewValidationError("productId", "product %s is not available", product.Code)
	}
	if planID == "" {
		return product, nil, nil
	}
	plan, ok := product.Plan(planID)
	if !ok {
		return nil, nil, domain.NewNotFoundError("pricing plan", planID)
	}
	if !plan.IsActive {
		return nil, nil, domain.NewValidationError("pricingPlanId", "plan %s is not available", planID)
	}
	return product, &plan, nil
}

func (s *SubscriptionService) create(ctx context.Context, req SubscribeRequest, product *domain.Product, plan *domain.PricingPlan) (*domain.TenantSubscription, error) {
	sub, err := s.build(req, product, plan)
	if err != nil {
		return nil, err
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		metrics.ObserveSubscriptionTransition(string(sub.Status), "rejected")
		return nil, err
	}
	s.announce(ctx, req.UserID, sub, product)
	return sub, nil
}

// build assembles a new subscription without persisting it
func (s *SubscriptionService) build(req SubscribeRequest, product *domain.Product, plan *domain.PricingPlan) (*domain.TenantSubscription, error) {
	now := s.clock()
	start := now
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}
	if req.EndDate != nil && req.EndDate.Before(start) {
		return nil, domain.NewValidationError("endDate", "must not be before startDate")
	}

	sub := &domain.TenantSubscription{
		ID:        uuid.NewString(),
		TenantID:  req.TenantID,
		ProductID: product.ID,
		Status:    domain.SubscriptionActive,
		StartDate: start,
		EndDate:   req.EndDate,
		AutoRenew: req.AutoRenew,
	}
	if plan != nil {
		sub.PricingPlanID = plan.ID
		if plan.TrialDays > 0 {
			trialEnd := start.AddDate(0, 0, plan.TrialDays)
			sub.Status = domain.SubscriptionTrial
			sub.TrialEndDate = &trialEnd
			if sub.EndDate == nil {
				sub.EndDate = &trialEnd
			}
		}
	}
	sub.Stamp(req.UserID, now)
	return sub, nil
}

// announce records a stored subscription in metrics, logs and events
func (s *SubscriptionService) announce(ctx context.Context, userID string, sub *domain.TenantSubscription, product *domain.Product) {
	metrics.ObserveSubscriptionTransition(string(sub.Status), "ok")
	s.logger.Info("subscription created",
		slog.String("tenant_id", sub.TenantID),
		slog.String("subscription_id", sub.ID),
		slog.String("product", product.Code),
		slog.String("status", string(sub.Status)),
	)
	s.publish(ctx, domain.EventSubscriptionCreated, userID, sub, "")
	if sub.Status == domain.SubscriptionActive {
		s.publish(ctx, domain.EventSubscriptionActivated, userID, sub, "")
	}
}

// openQuotaWindows starts a fresh monthly window for every quota of the
// product that resets monthly.
func (s *SubscriptionService) openQuotaWindows(ctx context.Context, tenantID string, product *domain.Product, start time.Time) error {
	if s.usage == nil {
		return nil
	}
	now := s.clock()
	var errs []error
	for _, q := range product.Quotas {
		if !q.ResetMonthly {
			continue
		}
		next := NextMonthlyReset(start, now)
		if err := s.usage.Reset(ctx, tenantID, q.QuotaType, &next, now); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", q.QuotaType, err))
		}
	}
	return errors.Join(errs...)
}

// NextMonthlyReset returns the first monthly anniversary of anchor that is
// after now.
func NextMonthlyReset(anchor, now time.Time) time.Time {
	next := anchor.AddDate(0, 1, 0)
	for !next.After(now) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}

// expireStale moves a Trial/Active row whose end date has passed to Expired
// so it stops holding the tenant's active slot.
func (s *SubscriptionService) expireStale(ctx context.Context, tenantID, userID string) error {
	current, err := s.subs.FindActive(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	now := s.clock()
	if !current.IsExpired(now) {
		return nil
	}
	current.Status = domain.SubscriptionExpired
	current.Touch(userID, now)
	if err := s.subs.Update(ctx, current); err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			return nil
		}
		return fmt.Errorf("expire subscription %s: %w", current.ID, err)
	}
	metrics.ObserveSubscriptionTransition(string(domain.SubscriptionExpired), "ok")
	s.logger.Info("subscription expired",
		slog.String("tenant_id", tenantID), slog.String("subscription_id", current.ID))
	s.publish(ctx, domain.EventSubscriptionExpired, userID, current, "end date passed")
	return nil
}

// Current returns the tenant's subscription if it is active now. Stale rows
// are expired on read.
func (s *SubscriptionService) Current(ctx context.Context, tenantID string) (*domain.TenantSubscription, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if err := s.expireStale(ctx, tenantID, ""); err != nil {
		return nil, err
	}
	sub, err := s.subs.FindActive(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	if !sub.IsActive(s.clock()) {
		return nil, domain.ErrNoActiveSubscription
	}
	return sub, nil
}

// CurrentProduct returns the active subscription together with its product
func (s *SubscriptionService) CurrentProduct(ctx context.Context, tenantID string) (*domain.TenantSubscription, *domain.Product, error) {
	sub, err := s.Current(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	product, err := s.catalog.GetProduct(ctx, sub.ProductID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve product of subscription %s: %w", sub.ID, err)
	}
	return sub, product, nil
}

// Get returns a tenant's subscription by id
func (s *SubscriptionService) Get(ctx context.Context, tenantID, id string) (*domain.TenantSubscription, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.TenantID != tenantID {
		return nil, domain.NewNotFoundError("subscription", id)
	}
	return sub, nil
}

// List returns the tenant's subscription history
func (s *SubscriptionService) List(ctx context.Context, tenantID string) ([]*domain.TenantSubscription, error) {
	return s.subs.ListByTenant(ctx, tenantID)
}

// Activate converts a trial into a paid subscription.
func (s *SubscriptionService) Activate(ctx context.Context, tenantID, userID, id string) (sub *domain.TenantSubscription, err error) {
	ctx, done := startOp(ctx, "subscription.activate", tenantID)
	defer func() { done(err) }()

	return s.transition(ctx, tenantID, userID, id, domain.SubscriptionActive, domain.EventSubscriptionActivated, "",
		func(sub *domain.TenantSubscription, _ time.Time) error {
			if sub.Status != domain.SubscriptionTrial {
				return &domain.TransitionError{
					Machine:  "subscription",
					From:     string(sub.Status),
					To:       string(domain.SubscriptionActive),
					Terminal: domain.SubscriptionLifecycle.IsTerminal(sub.Status),
				}
			}
			sub.EndDate = nil
			sub.TrialEndDate = nil
			return nil
		})
}

// Cancel ends a subscription. A nil effective time cancels immediately.
func (s *SubscriptionService) Cancel(ctx context.Context, tenantID, userID, id, reason string, effective *time.Time) (sub *domain.TenantSubscription, err error) {
	ctx, done := startOp(ctx, "subscription.cancel", tenantID)
	defer func() { done(err) }()

	return s.transition(ctx, tenantID, userID, id, domain.SubscriptionCancelled, domain.EventSubscriptionCancelled, reason,
		func(sub *domain.TenantSubscription, now time.Time) error {
			end := now
			if effective != nil {
				end = effective.UTC()
			}
			markCancelled(sub, reason, end, now)
			return nil
		})
}

func markCancelled(sub *domain.TenantSubscription, reason string, end, now time.Time) {
	sub.EndDate = &end
	sub.CancelledAt = &now
	sub.CancellationReason = reason
	sub.AutoRenew = false
}

// MarkPastDue flags a failed payment. The subscription leaves the active slot
// until renewed.
func (s *SubscriptionService) MarkPastDue(ctx context.Context, tenantID, userID, id string) (sub *domain.TenantSubscription, err error) {
	ctx, done := startOp(ctx, "subscription.past_due", tenantID)
	defer func() { done(err) }()

	return s.transition(ctx, tenantID, userID, id, domain.SubscriptionPastDue, domain.EventSubscriptionPastDue, "", nil)
}

// Renew extends an Active or PastDue subscription. A nil end date makes it
// open-ended.
func (s *SubscriptionService) Renew(ctx context.Context, tenantID, userID, id string, endDate *time.Time) (sub *domain.TenantSubscription, err error) {
	ctx, done := startOp(ctx, "subscription.renew", tenantID)
	defer func() { done(err) }()

	return s.transition(ctx, tenantID, userID, id, domain.SubscriptionActive, domain.EventSubscriptionRenewed, "",
		func(sub *domain.TenantSubscription, now time.Time) error {
			if sub.Status == domain.SubscriptionTrial {
				return &domain.TransitionError{Machine: "subscription", From: string(sub.Status), To: "Renewed"}
			}
			if endDate != nil && !endDate.After(now) {
				return domain.NewValidationError("endDate", "must be in the future")
			}
			sub.EndDate = endDate
			return nil
		})
}

// Upgrade cancels the current subscription and subscribes to another product
// in one atomic swap. The effective date may be backdated to the current
// subscription's start but not lie in the future; the tenant holds exactly
// one plan at any time.
func (s *SubscriptionService) Upgrade(ctx context.Context, req UpgradeRequest) (sub *domain.TenantSubscription, err error) {
	ctx, done := startOp(ctx, "subscription.upgrade", req.TenantID)
	defer func() { done(err) }()

	product, plan, err := s.resolvePlan(ctx, req.ProductID, req.PricingPlanID)
	if err != nil {
		return nil, err
	}
	current, err := s.Current(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if req.SubscriptionID != "" && req.SubscriptionID != current.ID {
		return nil, domain.NewValidationError("subscriptionId", "%s is not the current subscription", req.SubscriptionID)
	}
	if current.ProductID == product.ID && (plan == nil || plan.ID == current.PricingPlanID) {
		return nil, domain.NewValidationError("productId", "tenant is already subscribed to %s", product.Code)
	}

	now := s.clock()
	effective := now
	if req.EffectiveDate != nil {
		effective = req.EffectiveDate.UTC()
		if effective.After(now) {
			return nil, domain.NewValidationError("effectiveDate", "must not be in the future")
		}
		if effective.Before(current.StartDate) {
			return nil, domain.NewValidationError("effectiveDate", "must not be before the current subscription started")
		}
	}
	if err := domain.SubscriptionLifecycle.Transition(current.Status, domain.SubscriptionCancelled); err != nil {
		return nil, err
	}

	next, err := s.build(SubscribeRequest{
		TenantID:      req.TenantID,
		UserID:        req.UserID,
		ProductID:     product.ID,
		PricingPlanID: req.PricingPlanID,
		StartDate:     &effective,
		AutoRenew:     current.AutoRenew,
	}, product, plan)
	if err != nil {
		return nil, err
	}

	reason := "upgraded to " + product.Code
	previous := current.Status
	markCancelled(current, reason, effective, now)
	current.Status = domain.SubscriptionCancelled
	current.Touch(req.UserID, now)

	if err := s.subs.Replace(ctx, current, next); err != nil {
		metrics.ObserveSubscriptionTransition(string(domain.SubscriptionCancelled), "error")
		return nil, fmt.Errorf("upgrade subscription %s: %w", current.ID, err)
	}
	metrics.ObserveSubscriptionTransition(string(domain.SubscriptionCancelled), "ok")
	s.logger.Info("subscription transitioned",
		slog.String("tenant_id", req.TenantID),
		slog.String("subscription_id", current.ID),
		slog.String("from", string(previous)),
		slog.String("to", string(domain.SubscriptionCancelled)),
	)
	s.publish(ctx, domain.EventSubscriptionCancelled, req.UserID, current, reason)
	s.announce(ctx, req.UserID, next, product)

	if !req.CarryOverUsage {
		if err := s.resetUsage(ctx, req.TenantID, product, next.StartDate); err != nil {
			s.logger.Warn("failed to reset usage after upgrade",
				slog.String("tenant_id", req.TenantID), slog.String("error", err.Error()))
		}
	}
	return next, nil
}

func (s *SubscriptionService) resetUsage(ctx context.Context, tenantID string, product *domain.Product, start time.Time) error {
	if s.usage == nil {
		return nil
	}
	counters, err := s.usage.List(ctx, tenantID)
	if err != nil {
		return err
	}
	now := s.clock()
	seen := map[domain.QuotaType]bool{}
	var errs []error
	for _, c := range counters {
		seen[c.QuotaType] = true
		var next *time.Time
		if q, ok := product.Quota(c.QuotaType); ok && q.ResetMonthly {
			n := NextMonthlyReset(start, now)
			next = &n
		}
		if err := s.usage.Reset(ctx, tenantID, c.QuotaType, next, now); err != nil {
			errs = append(errs, err)
		}
	}
	for _, q := range product.Quotas {
		if q.ResetMonthly && !seen[q.QuotaType] {
			n := NextMonthlyReset(start, now)
			if err := s.usage.Reset(ctx, tenantID, q.QuotaType, &n, now); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// HasFeature reports whether the tenant's active product enables feature.
func (s *SubscriptionService) HasFeature(ctx context.Context, tenantID, featureCode string) (bool, error) {
	_, product, err := s.CurrentProduct(ctx, tenantID)
	if errors.Is(err, domain.ErrNoActiveSubscription) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	f, ok := product.Feature(featureCode)
	return ok && f.Enabled(), nil
}

func (s *SubscriptionService) transition(
	ctx context.Context,
	tenantID, userID, id string,
	to domain.SubscriptionStatus,
	event, reason string,
	mutate func(*domain.TenantSubscription, time.Time) error,
) (*domain.TenantSubscription, error) {
	sub, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	if sub.HoldsActiveSlot() && sub.IsExpired(now) {
		if err := s.expireStale(ctx, tenantID, userID); err != nil {
			return nil, err
		}
		if sub, err = s.Get(ctx, tenantID, id); err != nil {
			return nil, err
		}
	}
	if err := domain.SubscriptionLifecycle.Transition(sub.Status, to); err != nil {
		metrics.ObserveSubscriptionTransition(string(to), "rejected")
		return nil, err
	}
	if mutate != nil {
		if err := mutate(sub, now); err != nil {
			metrics.ObserveSubscriptionTransition(string(to), "rejected")
			return nil, err
		}
	}
	from := sub.Status
	sub.Status = to
	sub.Touch(userID, now)
	if err := s.subs.Update(ctx, sub); err != nil {
		metrics.ObserveSubscriptionTransition(string(to), "error")
		return nil, err
	}
	metrics.ObserveSubscriptionTransition(string(to), "ok")
	s.logger.Info("subscription transitioned",
		slog.String("tenant_id", tenantID),
		slog.String("subscription_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	s.publish(ctx, event, userID, sub, reason)
	return sub, nil
}

func (s *SubscriptionService) publish(ctx context.Context, name, userID string, sub *domain.TenantSubscription, reason string) {
	s.events.Publish(ctx, domain.SubscriptionEvent{
		EventHeader:    domain.NewEventHeader(name, sub.TenantID, userID, s.clock()),
		SubscriptionID: sub.ID,
		ProductID:      sub.ProductID,
		Status:         sub.Status,
		Reason:         reason,
	})
}
