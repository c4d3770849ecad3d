package domain

// BillingInterval период оплаты
type BillingInterval string

const (
	BillingIntervalMonth BillingInterval = "month"
	BillingIntervalYear  BillingInterval = "year"
)

// Plan ID каталога.
const (
	PlanBetaMonthly    = "beta-monthly"
	PlanBetaYearly     = "beta-yearly"
	PlanRegularMonthly = "regular-monthly"
	PlanRegularYearly  = "regular-yearly"
)

// SubscriptionPlan - план из статического каталога. Price в долларах.
type SubscriptionPlan struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         float64         `json:"price"`
	Currency      string          `json:"currency"`
	Interval      BillingInterval `json:"interval"`
	StripePriceID string          `json:"stripePriceId"`
	Features      []string        `json:"features"`
	IsBeta        bool            `json:"isBeta"`
	MaxUsers      int             `json:"maxUsers,omitempty"`
}
