package domain

import (
	"context"
	"time"
)

// SubscriptionStatus is the lifecycle state of a tenant subscription.
type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "Trial"
	SubscriptionActive    SubscriptionStatus = "Active"
	SubscriptionCancelled SubscriptionStatus = "Cancelled"
	SubscriptionExpired   SubscriptionStatus = "Expired"
	SubscriptionPastDue   SubscriptionStatus = "PastDue"
)

// SubscriptionLifecycle holds the allowed subscription status moves.
// Active -> Active is a renewal.
var SubscriptionLifecycle = NewStateMachine("subscription", map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionTrial:   {SubscriptionActive, SubscriptionCancelled, SubscriptionExpired},
	SubscriptionActive:  {SubscriptionActive, SubscriptionCancelled, SubscriptionExpired, SubscriptionPastDue},
	SubscriptionPastDue: {SubscriptionActive, SubscriptionCancelled, SubscriptionExpired},
}, SubscriptionCancelled, SubscriptionExpired)

// TenantSubscription binds a tenant to a product.
type TenantSubscription struct {
	ID                 string             `json:"id"`
	TenantID           string             `json:"tenantId"`
	ProductID          string             `json:"productId"`
	PricingPlanID      string             `json:"pricingPlanId,omitempty"`
	Status             SubscriptionStatus `json:"status"`
	StartDate          time.Time          `json:"startDate"`
	EndDate            *time.Time         `json:"endDate,omitempty"`
	TrialEndDate       *time.Time         `json:"trialEndDate,omitempty"`
	AutoRenew          bool               `json:"autoRenew"`
	CancellationReason string             `json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time         `json:"cancelledAt,omitempty"`
	Version            int64              `json:"version"`
	AuditMetadata
}

// HoldsActiveSlot reports whether the row occupies the tenant's single
// Trial/Active slot.
func (s *TenantSubscription) HoldsActiveSlot() bool {
	return s.Status == SubscriptionTrial || s.Status == SubscriptionActive
}

// IsActive reports whether the subscription grants access at now.
func (s *TenantSubscription) IsActive(now time.Time) bool {
	if !s.HoldsActiveSlot() {
		return false
	}
	return s.EndDate == nil || !s.EndDate.Before(now)
}

// IsExpired reports whether the end date has passed.
func (s *TenantSubscription) IsExpired(now time.Time) bool {
	return s.EndDate != nil && s.EndDate.Before(now)
}

// SubscriptionRepository persists subscriptions.
type SubscriptionRepository interface {
	// Create inserts s. It fails with ErrDuplicateActiveSubscription when s
	// holds the active slot and another Trial/Active row exists for the tenant.
	Create(ctx context.Context, s *TenantSubscription) error
	GetByID(ctx context.Context, id string) (*TenantSubscription, error)
	// FindActive returns the tenant's Trial/Active row, or ErrNotFound.
	FindActive(ctx context.Context, tenantID string) (*TenantSubscription, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*TenantSubscription, error)
	// Update performs a compare-and-swap on Version and increments it.
	Update(ctx context.Context, s *TenantSubscription) error
	// Replace updates old (compare-and-swap) and inserts next atomically.
	// Either both writes land or neither does.
	Replace(ctx context.Context, old, next *TenantSubscription) error
}
