package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/repository"
)

func newRisk(code string) CreateRiskRequest {
	return CreateRiskRequest{
		Code:     code,
		Title:    domain.LocalizedString{En: "Phishing campaign", Ar: "حملة تصيد"},
		Category: domain.CategoryCybersecurity,
	}
}

func TestRiskLifecycle_AssessTreatClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, "tenant-a", standardID, planMonthly)

	risk, err := f.risks.CreateRisk(ctx, "tenant-a", "owner", newRisk("R-001"))
	require.NoError(t, err)
	assert.Equal(t, domain.RiskIdentified, risk.Status)

	_, err = f.risks.ApplyTreatment(ctx, "tenant-a", "owner", risk.ID, domain.TreatmentMitigate, 2, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	risk, err = f.risks.AssessRisk(ctx, "tenant-a", "owner", risk.ID, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskAssessed, risk.Status)
	assert.Equal(t, domain.RiskCritical, risk.InherentLevel)
	assert.NotNil(t, risk.LastAssessedAt)

	risk, err = f.risks.ApplyTreatment(ctx, "tenant-a", "owner", risk.ID, domain.TreatmentMitigate, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskTreated, risk.Status)
	require.NotNil(t, risk.ResidualLevel)
	assert.Equal(t, domain.RiskVeryLow, *risk.ResidualLevel)
	assert.Equal(t, domain.RiskVeryLow, risk.EffectiveLevel())

	risk, err = f.risks.CloseRisk(ctx, "tenant-a", "owner", risk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskClosed, risk.Status)

	_, err = f.risks.AssessRisk(ctx, "tenant-a", "owner", risk.ID, 1, 1)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	for _, name := range []string{domain.EventRiskCreated, domain.EventRiskAssessed, domain.EventRiskTreated, domain.EventRiskClosed} {
		assert.Len(t, f.events.named(name), 1, name)
	}
}

func TestRiskAcceptAndClose_RecordOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, "tenant-a", enterpriseID, "")

	acceptOK := operationCount(t, "risk.accept", "ok")
	closeOK := operationCount(t, "risk.close", "ok")
	closeFailed := operationCount(t, "risk.close", "error")

	accepted, err := f.risks.CreateRisk(ctx, "tenant-a", "owner", newRisk("R-101"))
	require.NoError(t, err)
	_, err = f.risks.AssessRisk(ctx, "tenant-a", "owner", accepted.ID, 2, 2)
	require.NoError(t, err)
	_, err = f.risks.AcceptRisk(ctx, "tenant-a", "owner", accepted.ID)
	require.NoError(t, err)

	closed, err := f.risks.CreateRisk(ctx, "tenant-a", "owner", newRisk("R-102"))
	require.NoError(t, err)
	_, err = f.risks.AssessRisk(ctx, "tenant-a", "owner", closed.ID, 3, 3)
	require.NoError(t, err)
	_, err = f.risks.CloseRisk(ctx, "tenant-a", "owner", closed.ID)
	require.NoError(t, err)
	_, err = f.risks.CloseRisk(ctx, "tenant-a", "owner", closed.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	assert.Equal(t, acceptOK+1, operationCount(t, "risk.accept", "ok"))
	assert.Equal(t, closeOK+1, operationCount(t, "risk.close", "ok"))
	assert.Equal(t, closeFailed+1, operationCount(t, "risk.close", "error"))
}

func TestRiskAssess_OutOfRangeLeavesRiskUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, "tenant-a", standardID, planMonthly)
	risk, err := f.risks.CreateRisk(ctx, "tenant-a", "owner", newRisk("R-001"))
	require.NoError(t, err)

	_, err = f.risks.AssessRisk(ctx, "tenant-a", "owner", risk.ID, 6, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	stored, err := f.risks.GetRisk(ctx, "tenant-a", risk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskIdentified, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
}

func TestRiskTreatment_StrategyDecidesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, "tenant-a", enterpriseID, "")

	cases := map[domain.TreatmentStrategy]domain.RiskStatus{
		domain.TreatmentTransfer: domain.RiskTransferred,
		domain.TreatmentAvoid:    domain.RiskAvoided,
		domain.TreatmentAccept:   domain.RiskAccepted,
	}
	for strategy, want := range cases {
		risk, err := f.risks.CreateRisk(ctx, "tenant-a", "owner", newRisk("R-"+string(strategy)))
		require.NoError(t, err)
		_, err = f.risks.AssessRisk(ctx, "tenant-a", "owner", risk.ID, 3, 3)
		require.NoError(t, err)
		risk, err = f.risks.ApplyTreatment(ctx, "tenant-a", "owner", risk.ID, strategy, 1, 3)
		require.NoError(t, err)
		assert.Equal(t, want, risk.Status, strategy)
		assert.Equal(t, strategy, risk.Treatment)
	}

	risk, err := f.risks.CreateRisk(ctx, "tenant-a", "owner", newRisk("R-X"))
	require.NoError(t, err)
	_, err = f.risks.ApplyTreatment(ctx, "tenant-a", "owner", risk.ID, "Ignore", 1, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateRisk_EnforcesRiskQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, "tenant-a", standardID, planMonthly)

	for _, code := range []string{"R-1", "R-2"} {
		_, err := f.risks.CreateRisk(ctx, "tenant-a", "owner", newRisk(code))
		require.NoError(t, err)
	}
	_, err := f.risks.CreateRisk(ctx, "tenant-a", "owner", newRisk("R-3"))
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	u, err := f.usage.Get(ctx, "tenant-a", domain.QuotaRisks)
	require.NoError(t, err)
	assert.Equal(t, 2.0, u.CurrentUsage)
}

func TestCreateRisk_DuplicateCodeDoesNotConsumeQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, "tenant-a", standardID, planMonthly)

	_, err := f.risks.CreateRisk(ctx, "tenant-a", "owner", newRisk("R-1"))
	require.NoError(t, err)
	_, err = f.risks.CreateRisk(ctx, "tenant-a", "owner", newRisk("R-1"))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	u, err := f.usage.Get(ctx, "tenant-a", domain.QuotaRisks)
	require.NoError(t, err)
	assert.Equal(t, 1.0, u.CurrentUsage)
}

func TestRiskSummary(t *testing.T) {
	svc := NewRiskService(repository.NewMemoryRiskRepository(), nil, nil, nil)
	ctx := context.Background()

	a, err := svc.CreateRisk(ctx, "t", "u", newRisk("A"))
	require.NoError(t, err)
	b, err := svc.CreateRisk(ctx, "t", "u", newRisk("B"))
	require.NoError(t, err)
	_, err = svc.CreateRisk(ctx, "t", "u", newRisk("C"))
	require.NoError(t, err)

	_, err = svc.AssessRisk(ctx, "t", "u", a.ID, 5, 5)
	require.NoError(t, err)
	_, err = svc.AssessRisk(ctx, "t", "u", b.ID, 3, 4)
	require.NoError(t, err)
	_, err = svc.ApplyTreatment(ctx, "t", "u", b.ID, domain.TreatmentMitigate, 1, 2)
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Unassessed)
	assert.Equal(t, 1, sum.ByLevel[domain.RiskCritical])
	assert.Equal(t, 1, sum.ByLevel[domain.RiskVeryLow])
	assert.Equal(t, 0, sum.ByLevel[domain.RiskHigh])
	assert.Equal(t, 1, sum.ByStatus[domain.RiskTreated])

	critical, err := svc.ListRisks(ctx, "t", domain.RiskFilter{Level: domain.RiskCritical})
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, a.ID, critical[0].ID)

	_, err = svc.GetRisk(ctx, "other-tenant", a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
