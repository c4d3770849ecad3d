package service

import (
	"testing"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCatalog_Counterpart(t *testing.T) {
	catalog := NewPlanCatalog(testPrices)

	tests := []struct {
		from string
		beta bool
		want string
	}{
		{domain.PlanBetaMonthly, false, domain.PlanRegularMonthly},
		{domain.PlanBetaYearly, false, domain.PlanRegularYearly},
		{domain.PlanRegularMonthly, true, domain.PlanBetaMonthly},
		{domain.PlanRegularYearly, true, domain.PlanBetaYearly},
		{domain.PlanBetaMonthly, true, domain.PlanBetaMonthly},
		{domain.PlanRegularYearly, false, domain.PlanRegularYearly},
	}

	for _, tt := range tests {
		plan, err := catalog.Get(tt.from)
		require.NoError(t, err)
		assert.Equal(t, tt.want, catalog.Counterpart(plan, tt.beta).ID, "%s beta=%v", tt.from, tt.beta)
	}
}

func TestPlanCatalog_GetUnknown(t *testing.T) {
	_, err := NewPlanCatalog(testPrices).Get("platinum")
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)
}

func TestPlanCatalog_All(t *testing.T) {
	plans := NewPlanCatalog(testPrices).All()
	require.Len(t, plans, 4)

	for _, p := range plans {
		if p.IsBeta {
			assert.Equal(t, domain.MaxBetaUsers, p.MaxUsers)
		} else {
			assert.Zero(t, p.MaxUsers)
		}
		assert.NotEmpty(t, p.StripePriceID)
	}
	assert.InDelta(t, 4.99, plans[0].Price, 0.001)
}

func TestPlanCatalog_ByPriceID(t *testing.T) {
	plan, ok := NewPlanCatalog(testPrices).ByPriceID("price_regular_yearly")
	require.True(t, ok)
	assert.Equal(t, domain.PlanRegularYearly, plan.ID)

	_, ok = NewPlanCatalog(testPrices).ByPriceID("price_unknown")
	assert.False(t, ok)
}
