package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/observability/metrics"
)

// RiskService maintains a tenant's risk register.
type RiskService struct {
	risks  domain.RiskRepository
	quotas *QuotaService
	events domain.EventPublisher
	logger *slog.Logger
	clock  Clock
}

// NewRiskService creates a risk service. When quotas is nil the Risks quota
// is not consulted on create.
func NewRiskService(risks domain.RiskRepository, quotas *QuotaService, events domain.EventPublisher, logger *slog.Logger) *RiskService {
	return &RiskService{
		risks:  risks,
		quotas: quotas,
		events: publisherOrNop(events),
		logger: loggerOrDefault(logger),
		clock:  systemClock,
	}
}

// WithClock replaces the time source
func (s *RiskService) WithClock(clock Clock) *RiskService {
	s.clock = clock
	return s
}

// CreateRiskRequest holds the fields of a new risk.
type CreateRiskRequest struct {
	Code        string                 `json:"code"`
	Title       domain.LocalizedString `json:"title"`
	Description domain.LocalizedString `json:"description"`
	Category    domain.RiskCategory    `json:"category"`
	OwnerUserID string                 `json:"ownerUserId"`
}

// CreateRisk registers a risk in Identified status. It counts against the
// Risks quota of the tenant's product.
func (s *RiskService) CreateRisk(ctx context.Context, tenantID, userID string, req CreateRiskRequest) (risk *domain.Risk, err error) {
	ctx, done := startOp(ctx, "risk.create", tenantID)
	defer func() { done(err) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	risk = &domain.Risk{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Code:        strings.TrimSpace(req.Code),
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		OwnerUserID: req.OwnerUserID,
		Status:      domain.RiskIdentified,
	}
	if err := risk.Validate(); err != nil {
		return nil, err
	}
	if s.quotas != nil {
		if err := s.quotas.Require(ctx, tenantID, userID, domain.QuotaRisks, 1); err != nil {
			return nil, err
		}
	}
	risk.Stamp(userID, s.clock())
	if err := s.risks.Create(ctx, risk); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, fmt.Errorf("risk code %s: %w", risk.Code, err)
		}
		return nil, err
	}
	if s.quotas != nil {
		if _, err := s.quotas.IncrementUsage(ctx, tenantID, userID, domain.QuotaRisks, 1); err != nil {
			s.logger.Warn("failed to count risk against quota",
				slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
		}
	}
	s.logger.Info("risk created", slog.String("tenant_id", tenantID), slog.String("risk_id", risk.ID), slog.String("code", risk.Code))
	s.publish(ctx, domain.EventRiskCreated, userID, risk)
	return risk, nil
}

// AssessRisk scores the inherent probability and impact. Re-assessment of an
// assessed or treated risk is allowed and clears any residual rating.
func (s *RiskService) AssessRisk(ctx context.Context, tenantID, userID, id string, probability, impact int) (risk *domain.Risk, err error) {
	ctx, done := startOp(ctx, "risk.assess", tenantID)
	defer func() { done(err) }()

	level, err := domain.AssessRiskLevel(probability, impact)
	if err != nil {
		return nil, err
	}
	risk, err = s.transition(ctx, tenantID, userID, id, domain.RiskAssessed, func(r *domain.Risk) {
		now := s.clock()
		r.InherentProbability = probability
		r.InherentImpact = impact
		r.InherentLevel = level
		r.ResidualProbability = nil
		r.ResidualImpact = nil
		r.ResidualLevel = nil
		r.LastAssessedAt = &now
	})
	if err != nil {
		return nil, err
	}
	metrics.ObserveRiskAssessment("inherent", string(level))
	s.publish(ctx, domain.EventRiskAssessed, userID, risk)
	return risk, nil
}

// ApplyTreatment records a treatment strategy and the residual rating after
// it. The strategy decides the resulting status.
func (s *RiskService) ApplyTreatment(ctx context.Context, tenantID, userID, id string, strategy domain.TreatmentStrategy, probability, impact int) (risk *domain.Risk, err error) {
	ctx, done := startOp(ctx, "risk.treat", tenantID)
	defer func() { done(err) }()

	target, err := domain.TreatmentTarget(strategy)
	if err != nil {
		return nil, err
	}
	level, err := domain.AssessRiskLevel(probability, impact)
	if err != nil {
		return nil, err
	}
	risk, err = s.transition(ctx, tenantID, userID, id, target, func(r *domain.Risk) {
		now := s.clock()
		p, i := probability, impact
		r.ResidualProbability = &p
		r.ResidualImpact = &i
		r.ResidualLevel = &level
		r.Treatment = strategy
		r.LastAssessedAt = &now
	})
	if err != nil {
		return nil, err
	}
	metrics.ObserveRiskAssessment("residual", string(level))
	s.publish(ctx, domain.EventRiskTreated, userID, risk)
	return risk, nil
}

// AcceptRisk closes an assessed risk as accepted without treatment.
func (s *RiskService) AcceptRisk(ctx context.Context, tenantID, userID, id string) (risk *domain.Risk, err error) {
	ctx, done := startOp(ctx, "risk.accept", tenantID)
	defer func() { done(err) }()

	risk, err = s.transition(ctx, tenantID, userID, id, domain.RiskAccepted, func(r *domain.Risk) {
		r.Treatment = domain.TreatmentAccept
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventRiskAccepted, userID, risk)
	return risk, nil
}

// CloseRisk closes an assessed or treated risk.
func (s *RiskService) CloseRisk(ctx context.Context, tenantID, userID, id string) (risk *domain.Risk, err error) {
	ctx, done := startOp(ctx, "risk.close", tenantID)
	defer func() { done(err) }()

	risk, err = s.transition(ctx, tenantID, userID, id, domain.RiskClosed, nil)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventRiskClosed, userID, risk)
	return risk, nil
}

// GetRisk returns a risk of the tenant
func (s *RiskService) GetRisk(ctx context.Context, tenantID, id string) (*domain.Risk, error) {
	return s.risks.GetByID(ctx, tenantID, id)
}

// ListRisks returns the tenant's risks matching filter
func (s *RiskService) ListRisks(ctx context.Context, tenantID string, filter domain.RiskFilter) ([]*domain.Risk, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	return s.risks.List(ctx, tenantID, filter)
}

// Summary counts the tenant's risks by effective level and status.
func (s *RiskService) Summary(ctx context.Context, tenantID string) (*domain.RiskSummary, error) {
	risks, err := s.ListRisks(ctx, tenantID, domain.RiskFilter{})
	if err != nil {
		return nil, err
	}
	sum := &domain.RiskSummary{
		Total:    len(risks),
		ByLevel:  make(map[domain.RiskLevel]int, len(domain.RiskLevels)),
		ByStatus: make(map[domain.RiskStatus]int),
	}
	for _, l := range domain.RiskLevels {
		sum.ByLevel[l] = 0
	}
	for _, r := range risks {
		sum.ByStatus[r.Status]++
		if r.Status == domain.RiskIdentified {
			sum.Unassessed++
			continue
		}
		sum.ByLevel[r.EffectiveLevel()]++
	}
	return sum, nil
}

func (s *RiskService) transition(ctx context.Context, tenantID, userID, id string, to domain.RiskStatus, mutate func(*domain.Risk)) (*domain.Risk, error) {
	risk, err := s.risks.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := domain.RiskLifecycle.Transition(risk.Status, to); err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(risk)
	}
	from := risk.Status
	risk.Status = to
	risk.Touch(userID, s.clock())
	if err := s.risks.Update(ctx, risk); err != nil {
		return nil, err
	}
	s.logger.Info("risk transitioned",
		slog.String("tenant_id", tenantID),
		slog.String("risk_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	return risk, nil
}

func (s *RiskService) publish(ctx context.Context, name, userID string, r *domain.Risk) {
	s.events.Publish(ctx, domain.RiskEvent{
		EventHeader: domain.NewEventHeader(name, r.TenantID, userID, s.clock()),
		RiskID:      r.ID,
		Code:        r.Code,
		Status:      r.Status,
		Level:       r.EffectiveLevel(),
	})
}
