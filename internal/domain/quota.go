package domain

import (
	"context"
	"time"
)

// QuotaUsage is the running counter for one (tenant, quota type) pair.
type QuotaUsage struct {
	TenantID     string     `json:"tenantId"`
	QuotaType    QuotaType  `json:"quotaType"`
	CurrentUsage float64    `json:"currentUsage"`
	LastUpdated  time.Time  `json:"lastUpdated"`
	ResetDate    *time.Time `json:"resetDate,omitempty"`
}

// QuotaCheckResult is the answer to "may the tenant consume N more?".
// Limit and Remaining are nil when the quota is unbounded or not enforced.
type QuotaCheckResult struct {
	Allowed      bool      `json:"allowed"`
	QuotaType    QuotaType `json:"quotaType"`
	CurrentUsage float64   `json:"currentUsage"`
	Limit        *float64  `json:"limit"`
	Remaining    *float64  `json:"remaining"`
}

// QuotaStatus is a read-only view of a counter against its definition.
type QuotaStatus struct {
	QuotaType    QuotaType  `json:"quotaType"`
	CurrentUsage float64    `json:"currentUsage"`
	Limit        *float64   `json:"limit"`
	Unit         string     `json:"unit,omitempty"`
	IsEnforced   bool       `json:"isEnforced"`
	IsUnlimited  bool       `json:"isUnlimited"`
	Percentage   float64    `json:"percentage"`
	IsExceeded   bool       `json:"isExceeded"`
	ResetDate    *time.Time `json:"resetDate,omitempty"`
}

// QuotaUsageRepository stores counters. Add must be atomic per
// (tenant, quota type) and must never leave usage below zero.
type QuotaUsageRepository interface {
	Get(ctx context.Context, tenantID string, quotaType QuotaType) (*QuotaUsage, error)
	List(ctx context.Context, tenantID string) ([]*QuotaUsage, error)
	// Add applies delta, clamping at zero, and returns the usage before and
	// after the change.
	Add(ctx context.Context, tenantID string, quotaType QuotaType, delta float64, now time.Time) (before, after float64, err error)
	// Reset sets usage to zero and records the next reset date.
	Reset(ctx context.Context, tenantID string, quotaType QuotaType, next *time.Time, now time.Time) error
	// DueForReset returns counters whose reset date is at or before now.
	DueForReset(ctx context.Context, now time.Time) ([]*QuotaUsage, error)
}
