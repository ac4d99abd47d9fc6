package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

func TestLoadDefaultCatalog(t *testing.T) {
	products, err := Load("../../config/catalog.yaml")
	require.NoError(t, err)
	require.Len(t, products, 4)

	trial := products[0]
	assert.Equal(t, "TRIAL", trial.Code)
	assert.Equal(t, "تجريبي", trial.Name.Ar)
	q, ok := trial.Quota(domain.QuotaAssessments)
	require.True(t, ok)
	require.NotNil(t, q.Limit)
	assert.Equal(t, 1.0, *q.Limit)
	assert.True(t, q.IsEnforced)
	assert.False(t, q.IsUnlimited)
	require.Len(t, trial.Plans, 1)
	assert.Equal(t, 14, trial.Plans[0].TrialDays)

	standard := products[1]
	q, ok = standard.Quota(domain.QuotaAssessments)
	require.True(t, ok)
	assert.True(t, q.IsUnlimited)
	api, ok := standard.Quota(domain.QuotaAPICallsPerMonth)
	require.True(t, ok)
	assert.True(t, api.ResetMonthly)

	pro := products[2]
	f, ok := pro.Feature("AI_FEATURES")
	require.True(t, ok)
	assert.True(t, f.Enabled())
}

func TestParseRejectsInvalidProduct(t *testing.T) {
	_, err := Parse([]byte(`
products:
  - id: x
    code: lower
    name: {en: X, ar: س}
`))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = Parse([]byte(`
products:
  - id: x
    code: OK
    name: {en: X, ar: س}
    quotas:
      - {type: Bananas, limit: 1}
`))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestParseEnforcedFlag(t *testing.T) {
	products, err := Parse([]byte(`
products:
  - id: x
    code: SOFT
    name: {en: Soft, ar: مرن}
    quotas:
      - {type: Users, limit: 5, enforced: false}
`))
	require.NoError(t, err)
	q, _ := products[0].Quota(domain.QuotaUsers)
	assert.False(t, q.IsEnforced)
}
