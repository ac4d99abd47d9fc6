package domain

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssessRiskLevel_Boundaries(t *testing.T) {
	cases := []struct {
		p, i int
		want RiskLevel
	}{
		{1, 1, RiskVeryLow},
		{1, 2, RiskVeryLow},
		{1, 3, RiskLow},
		{1, 5, RiskLow},
		{2, 3, RiskMedium},
		{3, 3, RiskMedium},
		{3, 4, RiskHigh},
		{4, 4, RiskHigh},
		{4, 5, RiskCritical},
		{5, 5, RiskCritical},
	}
	for _, tc := range cases {
		got, err := AssessRiskLevel(tc.p, tc.i)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "p=%d i=%d", tc.p, tc.i)
	}
}

func TestAssessRiskLevel_RejectsOutOfRange(t *testing.T) {
	for _, in := range [][2]int{{0, 3}, {3, 6}, {-1, 1}, {6, 6}} {
		_, err := AssessRiskLevel(in[0], in[1])
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation), "input %v", in)

		var rangeErr *OutOfRangeError
		assert.True(t, errors.As(err, &rangeErr))
	}
}

func TestAssessRiskLevel_TotalAndDeterministic(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	valid := map[RiskLevel]bool{}
	for _, l := range RiskLevels {
		valid[l] = true
	}

	properties.Property("every in-range pair maps to one known level", prop.ForAll(
		func(p, i int) bool {
			a, errA := AssessRiskLevel(p, i)
			b, errB := AssessRiskLevel(p, i)
			return errA == nil && errB == nil && a == b && valid[a]
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 5),
	))

	properties.Property("level is monotonic in score", prop.ForAll(
		func(p, i int) bool {
			lower, _ := AssessRiskLevel(p, i)
			if p == 5 {
				return true
			}
			higher, _ := AssessRiskLevel(p+1, i)
			return severity(higher) >= severity(lower)
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

func severity(l RiskLevel) int {
	for i, v := range RiskLevels {
		if v == l {
			return i
		}
	}
	return -1
}

func TestRiskLifecycle(t *testing.T) {
	assert.NoError(t, RiskLifecycle.Transition(RiskIdentified, RiskAssessed))
	assert.NoError(t, RiskLifecycle.Transition(RiskAssessed, RiskAssessed))
	assert.NoError(t, RiskLifecycle.Transition(RiskTreated, RiskAssessed))

	err := RiskLifecycle.Transition(RiskIdentified, RiskTreated)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = RiskLifecycle.Transition(RiskClosed, RiskAssessed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestRiskValidate(t *testing.T) {
	r := &Risk{Code: "R-1", Title: LocalizedString{En: "Phishing"}}
	err := r.Validate()
	assert.ErrorIs(t, err, ErrValidation)

	r.Title.Ar = "تصيد"
	assert.NoError(t, r.Validate())

	r.Code = " "
	assert.ErrorIs(t, r.Validate(), ErrValidation)
}

func TestRiskLevelDisplayName(t *testing.T) {
	assert.Equal(t, "حرج", RiskCritical.DisplayName().Get("ar-SA"))
	assert.Equal(t, "Critical", RiskCritical.DisplayName().Get("en"))
}
