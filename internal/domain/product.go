package domain

import (
	"context"
	"regexp"
)

// QuotaType identifies a metered resource.
type QuotaType string

const (
	QuotaAssessments       QuotaType = "Assessments"
	QuotaUsers             QuotaType = "Users"
	QuotaEvidenceStorageMB QuotaType = "EvidenceStorageMB"
	QuotaRisks             QuotaType = "Risks"
	QuotaPolicies          QuotaType = "Policies"
	QuotaFrameworks        QuotaType = "Frameworks"
	QuotaAPICallsPerMonth  QuotaType = "APICallsPerMonth"
)

// QuotaTypes lists every known quota type.
var QuotaTypes = []QuotaType{
	QuotaAssessments, QuotaUsers, QuotaEvidenceStorageMB, QuotaRisks,
	QuotaPolicies, QuotaFrameworks, QuotaAPICallsPerMonth,
}

// ParseQuotaType validates s against the known quota types.
func ParseQuotaType(s string) (QuotaType, error) {
	for _, q := range QuotaTypes {
		if string(q) == s {
			return q, nil
		}
	}
	return "", NewValidationError("quotaType", "unknown quota type %q", s)
}

// FeatureType describes how a feature value is interpreted.
type FeatureType string

const (
	FeatureBoolean   FeatureType = "Boolean"
	FeatureLimit     FeatureType = "Limit"
	FeatureUnlimited FeatureType = "Unlimited"
)

// BillingPeriod of a pricing plan.
type BillingPeriod string

const (
	BillingMonthly BillingPeriod = "Monthly"
	BillingYearly  BillingPeriod = "Yearly"
)

// Product is a sellable subscription tier.
type Product struct {
	ID           string           `json:"id"`
	Code         string           `json:"code"`
	Name         LocalizedString  `json:"name"`
	Description  LocalizedString  `json:"description"`
	Category     string           `json:"category,omitempty"`
	IsActive     bool             `json:"isActive"`
	DisplayOrder int              `json:"displayOrder"`
	Features     []ProductFeature `json:"features"`
	Quotas       []ProductQuota   `json:"quotas"`
	Plans        []PricingPlan    `json:"plans"`
	Version      int64            `json:"version"`
	AuditMetadata
}

// ProductFeature is a named capability of a product.
type ProductFeature struct {
	Code  string          `json:"code"`
	Name  LocalizedString `json:"name"`
	Type  FeatureType     `json:"type"`
	Value string          `json:"value,omitempty"`
}

// Enabled reports whether the feature grants access.
func (f ProductFeature) Enabled() bool {
	switch f.Type {
	case FeatureBoolean:
		return f.Value == "true"
	case FeatureUnlimited:
		return true
	default:
		return f.Value != "" && f.Value != "0"
	}
}

// ProductQuota is a quota definition. A nil Limit means unbounded;
// IsUnlimited overrides Limit. ResetMonthly counters are zeroed at the start
// of every monthly window.
type ProductQuota struct {
	QuotaType    QuotaType `json:"quotaType"`
	Limit        *float64  `json:"limit,omitempty"`
	Unit         string    `json:"unit,omitempty"`
	IsEnforced   bool      `json:"isEnforced"`
	IsUnlimited  bool      `json:"isUnlimited"`
	ResetMonthly bool      `json:"resetMonthly,omitempty"`
}

// Bounded reports whether the definition imposes a limit.
func (q ProductQuota) Bounded() bool {
	return !q.IsUnlimited && q.Limit != nil
}

// PricingPlan is a price point of a product.
type PricingPlan struct {
	ID            string        `json:"id"`
	ProductID     string        `json:"productId"`
	BillingPeriod BillingPeriod `json:"billingPeriod"`
	Price         int64         `json:"price"`
	Currency      string        `json:"currency"`
	TrialDays     int           `json:"trialDays"`
	IsActive      bool          `json:"isActive"`
}

// Quota returns the definition for quotaType, if any.
func (p *Product) Quota(quotaType QuotaType) (ProductQuota, bool) {
	for _, q := range p.Quotas {
		if q.QuotaType == quotaType {
			return q, true
		}
	}
	return ProductQuota{}, false
}

// Plan returns the pricing plan with id.
func (p *Product) Plan(id string) (PricingPlan, bool) {
	for _, pl := range p.Plans {
		if pl.ID == id {
			return pl, true
		}
	}
	return PricingPlan{}, false
}

// Feature returns the feature with code.
func (p *Product) Feature(code string) (ProductFeature, bool) {
	for _, f := range p.Features {
		if f.Code == code {
			return f, true
		}
	}
	return ProductFeature{}, false
}

var productCodePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,49}$`)

// Validate checks the product's own fields and its nested definitions.
func (p *Product) Validate() error {
	if !productCodePattern.MatchString(p.Code) {
		return NewValidationError("code", "must be upper snake case, 2-50 chars")
	}
	if err := p.Name.Validate("name"); err != nil {
		return err
	}
	seen := make(map[QuotaType]bool, len(p.Quotas))
	for _, q := range p.Quotas {
		if _, err := ParseQuotaType(string(q.QuotaType)); err != nil {
			return err
		}
		if seen[q.QuotaType] {
			return NewValidationError("quotas", "duplicate quota type %s", q.QuotaType)
		}
		seen[q.QuotaType] = true
		if q.Limit != nil && *q.Limit < 0 {
			return NewValidationError("quotas", "%s limit must be >= 0", q.QuotaType)
		}
	}
	for _, pl := range p.Plans {
		if pl.Price < 0 {
			return NewValidationError("plans", "price must be >= 0")
		}
		if pl.TrialDays < 0 {
			return NewValidationError("plans", "trialDays must be >= 0")
		}
		if pl.BillingPeriod != BillingMonthly && pl.BillingPeriod != BillingYearly {
			return NewValidationError("plans", "unknown billing period %q", pl.BillingPeriod)
		}
	}
	return nil
}

// ProductRepository persists products with their features, quotas and plans.
type ProductRepository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByCode(ctx context.Context, code string) (*Product, error)
	List(ctx context.Context, activeOnly bool) ([]*Product, error)
	// Update performs a compare-and-swap on Version and increments it.
	Update(ctx context.Context, p *Product) error
}
