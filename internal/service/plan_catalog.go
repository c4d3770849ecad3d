package service

import (
	"github.com/Dhoini/glucose-gateway/internal/config"
	"github.com/Dhoini/glucose-gateway/internal/domain"
)

var (
	regularFeatures = []string{
		"Unlimited glucose logging",
		"CGM sync",
		"Food photo analysis",
		"Personalized meal plans",
		"Trend reports",
	}
	betaFeatures = append([]string{"Beta pricing locked for life"}, regularFeatures...)
)

// PlanCatalog - статический каталог из четырех планов.
type PlanCatalog struct {
	plans map[string]domain.SubscriptionPlan
	order []string
}

// NewPlanCatalog собирает каталог с идентификаторами цен из конфигурации
func NewPlanCatalog(prices config.StripePrices) *PlanCatalog {
	plans := []domain.SubscriptionPlan{
		{
			ID:            domain.PlanBetaMonthly,
			Name:          "Beta Monthly",
			Price:         4.99,
			Currency:      "usd",
			Interval:      domain.BillingIntervalMonth,
			StripePriceID: prices.BetaMonthly,
			Features:      betaFeatures,
			IsBeta:        true,
			MaxUsers:      domain.MaxBetaUsers,
		},
		{
			ID:            domain.PlanBetaYearly,
			Name:          "Beta Yearly",
			Price:         49.99,
			Currency:      "usd",
			Interval:      domain.BillingIntervalYear,
			StripePriceID: prices.BetaYearly,
			Features:      betaFeatures,
			IsBeta:        true,
			MaxUsers:      domain.MaxBetaUsers,
		},
		{
			ID:            domain.PlanRegularMonthly,
			Name:          "Monthly",
			Price:         9.99,
			Currency:      "usd",
			Interval:      domain.BillingIntervalMonth,
			StripePriceID: prices.RegularMonthly,
			Features:      regularFeatures,
		},
		{
			ID:            domain.PlanRegularYearly,
			Name:          "Yearly",
			Price:         99.99,
			Currency:      "usd",
			Interval:      domain.BillingIntervalYear,
			StripePriceID: prices.RegularYearly,
			Features:      regularFeatures,
		},
	}

	catalog := &PlanCatalog{plans: make(map[string]domain.SubscriptionPlan, len(plans))}
	for _, p := range plans {
		catalog.plans[p.ID] = p
		catalog.order = append(catalog.order, p.ID)
	}
	return catalog
}

// Get возвращает план по ID или domain.ErrInvalidPlan
func (c *PlanCatalog) Get(id string) (domain.SubscriptionPlan, error) {
	plan, ok := c.plans[id]
	if !ok {
		return domain.SubscriptionPlan{}, domain.ErrInvalidPlan
	}
	return plan, nil
}

// All возвращает планы в порядке каталога
func (c *PlanCatalog) All() []domain.SubscriptionPlan {
	plans := make([]domain.SubscriptionPlan, 0, len(c.order))
	for _, id := range c.order {
		plans = append(plans, c.plans[id])
	}
	return plans
}

// Counterpart возвращает план того же интервала в нужном тарифе.
func (c *PlanCatalog) Counterpart(plan domain.SubscriptionPlan, beta bool) domain.SubscriptionPlan {
	if plan.IsBeta == beta {
		return plan
	}
	for _, id := range c.order {
		candidate := c.plans[id]
		if candidate.IsBeta == beta && candidate.Interval == plan.Interval {
			return candidate
		}
	}
	return plan
}

// ByPriceID ищет план по идентификатору цены Stripe
func (c *PlanCatalog) ByPriceID(priceID string) (domain.SubscriptionPlan, bool) {
	for _, id := range c.order {
		if c.plans[id].StripePriceID == priceID {
			return c.plans[id], true
		}
	}
	return domain.SubscriptionPlan{}, false
}
