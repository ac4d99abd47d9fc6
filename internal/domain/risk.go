package domain

import (
	"context"
	"strings"
	"time"
)

// RiskLevel is the qualitative band of a probability x impact score.
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "VeryLow"
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// RiskLevels in ascending severity.
var RiskLevels = []RiskLevel{RiskVeryLow, RiskLow, RiskMedium, RiskHigh, RiskCritical}

var riskLevelNames = map[RiskLevel]LocalizedString{
	RiskVeryLow:  {En: "Very Low", Ar: "منخفض جداً"},
	RiskLow:      {En: "Low", Ar: "منخفض"},
	RiskMedium:   {En: "Medium", Ar: "متوسط"},
	RiskHigh:     {En: "High", Ar: "مرتفع"},
	RiskCritical: {En: "Critical", Ar: "حرج"},
}

// DisplayName returns the bilingual label of the level.
func (l RiskLevel) DisplayName() LocalizedString {
	return riskLevelNames[l]
}

const (
	MinRiskRating = 1
	MaxRiskRating = 5
)

// AssessRiskLevel maps probability and impact in [1,5] to a level.
func AssessRiskLevel(probability, impact int) (RiskLevel, error) {
	if probability < MinRiskRating || probability > MaxRiskRating {
		return "", &OutOfRangeError{Field: "probability", Value: probability, Min: MinRiskRating, Max: MaxRiskRating}
	}
	if impact < MinRiskRating || impact > MaxRiskRating {
		return "", &OutOfRangeError{Field: "impact", Value: impact, Min: MinRiskRating, Max: MaxRiskRating}
	}
	score := probability * impact
	switch {
	case score >= 20:
		return RiskCritical, nil
	case score >= 12:
		return RiskHigh, nil
	case score >= 6:
		return RiskMedium, nil
	case score >= 3:
		return RiskLow, nil
	default:
		return RiskVeryLow, nil
	}
}

// RiskCategory groups risks in the register.
type RiskCategory string

const (
	CategoryCybersecurity RiskCategory = "Cybersecurity"
	CategoryDataPrivacy   RiskCategory = "DataPrivacy"
	CategoryOperational   RiskCategory = "Operational"
	CategoryCompliance    RiskCategory = "Compliance"
	CategoryFinancial     RiskCategory = "Financial"
	CategoryReputational  RiskCategory = "Reputational"
	CategoryStrategic     RiskCategory = "Strategic"
	CategoryThirdParty    RiskCategory = "ThirdParty"
)

var riskCategories = map[RiskCategory]bool{
	CategoryCybersecurity: true, CategoryDataPrivacy: true, CategoryOperational: true,
	CategoryCompliance: true, CategoryFinancial: true, CategoryReputational: true,
	CategoryStrategic: true, CategoryThirdParty: true,
}

// TreatmentStrategy is how a risk is handled.
type TreatmentStrategy string

const (
	TreatmentAccept   TreatmentStrategy = "Accept"
	TreatmentMitigate TreatmentStrategy = "Mitigate"
	TreatmentTransfer TreatmentStrategy = "Transfer"
	TreatmentAvoid    TreatmentStrategy = "Avoid"
)

// RiskStatus is the lifecycle state of a risk.
type RiskStatus string

const (
	RiskIdentified  RiskStatus = "Identified"
	RiskAssessed    RiskStatus = "Assessed"
	RiskTreated     RiskStatus = "Treated"
	RiskAccepted    RiskStatus = "Accepted"
	RiskClosed      RiskStatus = "Closed"
	RiskTransferred RiskStatus = "Transferred"
	RiskAvoided     RiskStatus = "Avoided"
)

// RiskLifecycle allows re-assessment from Assessed and Treated; treatment
// requires a prior assessment.
var RiskLifecycle = NewStateMachine("risk", map[RiskStatus][]RiskStatus{
	RiskIdentified: {RiskAssessed},
	RiskAssessed:   {RiskAssessed, RiskTreated, RiskTransferred, RiskAvoided, RiskAccepted, RiskClosed},
	RiskTreated:    {RiskAssessed, RiskTreated, RiskTransferred, RiskAvoided, RiskAccepted, RiskClosed},
}, RiskAccepted, RiskClosed, RiskTransferred, RiskAvoided)

// TreatmentTarget returns the status a treatment strategy leads to.
func TreatmentTarget(s TreatmentStrategy) (RiskStatus, error) {
	switch s {
	case TreatmentMitigate:
		return RiskTreated, nil
	case TreatmentTransfer:
		return RiskTransferred, nil
	case TreatmentAvoid:
		return RiskAvoided, nil
	case TreatmentAccept:
		return RiskAccepted, nil
	default:
		return "", NewValidationError("strategy", "unknown treatment strategy %q", s)
	}
}

// Risk is an entry in a tenant's risk register.
type Risk struct {
	ID                  string            `json:"id"`
	TenantID            string            `json:"tenantId"`
	Code                string            `json:"code"`
	Title               LocalizedString   `json:"title"`
	Description         LocalizedString   `json:"description"`
	Category            RiskCategory      `json:"category"`
	OwnerUserID         string            `json:"ownerUserId,omitempty"`
	Status              RiskStatus        `json:"status"`
	InherentProbability int               `json:"inherentProbability,omitempty"`
	InherentImpact      int               `json:"inherentImpact,omitempty"`
	InherentLevel       RiskLevel         `json:"inherentLevel,omitempty"`
	ResidualProbability *int              `json:"residualProbability,omitempty"`
	ResidualImpact      *int              `json:"residualImpact,omitempty"`
	ResidualLevel       *RiskLevel        `json:"residualLevel,omitempty"`
	Treatment           TreatmentStrategy `json:"treatment,omitempty"`
	LastAssessedAt      *time.Time        `json:"lastAssessedAt,omitempty"`
	Version             int64             `json:"version"`
	AuditMetadata
}

// EffectiveLevel is the residual level when treated, else the inherent level.
func (r *Risk) EffectiveLevel() RiskLevel {
	if r.ResidualLevel != nil {
		return *r.ResidualLevel
	}
	return r.InherentLevel
}

// Validate checks the identifying fields of a new risk.
func (r *Risk) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return NewValidationError("code", "is required")
	}
	if err := r.Title.Validate("title"); err != nil {
		return err
	}
	if r.Category != "" && !riskCategories[r.Category] {
		return NewValidationError("category", "unknown category %q", r.Category)
	}
	return nil
}

// RiskFilter narrows List. Zero values match everything.
type RiskFilter struct {
	Status RiskStatus
	Level  RiskLevel
}

// Matches reports whether r passes the filter.
func (f RiskFilter) Matches(r *Risk) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Level != "" && r.EffectiveLevel() != f.Level {
		return false
	}
	return true
}

// RiskSummary counts a tenant's open and closed risks by level.
type RiskSummary struct {
	Total      int                `json:"total"`
	ByLevel    map[RiskLevel]int  `json:"byLevel"`
	ByStatus   map[RiskStatus]int `json:"byStatus"`
	Unassessed int                `json:"unassessed"` // still Identified
}

// RiskRepository persists risks. Code is unique per tenant.
type RiskRepository interface {
	Create(ctx context.Context, r *Risk) error
	GetByID(ctx context.Context, tenantID, id string) (*Risk, error)
	List(ctx context.Context, tenantID string, filter RiskFilter) ([]*Risk, error)
	// Update performs a compare-and-swap on Version and increments it.
	Update(ctx context.Context, r *Risk) error
}
