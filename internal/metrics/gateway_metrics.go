package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GatewayMetrics интерфейс для доменных метрик шлюза
type GatewayMetrics interface {
	IncTrialCreated(beta bool)
	AddTrialsExpired(n int)
	IncSubscriptionCreated(planID string)
	IncSubscriptionCanceled()
	IncPlanCorrection(from, to string)
	IncWebhookEvent(eventType, result string)
}

type gatewayMetrics struct {
	trialsCreated         *prometheus.CounterVec
	trialsExpired         prometheus.Counter
	subscriptionsCreated  *prometheus.CounterVec
	subscriptionsCanceled prometheus.Counter
	planCorrections       *prometheus.CounterVec
	webhookEvents         *prometheus.CounterVec
}

// NewGatewayMetrics регистрирует метрики в переданном реестре
func NewGatewayMetrics(registry prometheus.Registerer) GatewayMetrics {
	factory := promauto.With(registry)

	return &gatewayMetrics{
		trialsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trials_created_total",
				Help: "The total number of created trials",
			},
			[]string{"beta"},
		),
		trialsExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "trials_expired_total",
				Help: "The total number of trials deactivated by expiry cleanup",
			},
		),
		subscriptionsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscriptions_created_total",
				Help: "The total number of created subscriptions",
			},
			[]string{"plan"},
		),
		subscriptionsCanceled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "subscriptions_canceled_total",
				Help: "The total number of canceled subscriptions",
			},
		),
		planCorrections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_corrections_total",
				Help: "Requested plans replaced according to beta eligibility",
			},
			[]string{"from", "to"},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_events_total",
				Help: "Webhook events by type and handling result",
			},
			[]string{"type", "result"},
		),
	}
}

func (m *gatewayMetrics) IncTrialCreated(beta bool) {
	m.trialsCreated.WithLabelValues(strconv.FormatBool(beta)).Inc()
}

func (m *gatewayMetrics) AddTrialsExpired(n int) {
	if n > 0 {
		m.trialsExpired.Add(float64(n))
	}
}

func (m *gatewayMetrics) IncSubscriptionCreated(planID string) {
	m.subscriptionsCreated.WithLabelValues(planID).Inc()
}

func (m *gatewayMetrics) IncSubscriptionCanceled() {
	m.subscriptionsCanceled.Inc()
}

func (m *gatewayMetrics) IncPlanCorrection(from, to string) {
	m.planCorrections.WithLabelValues(from, to).Inc()
}

func (m *gatewayMetrics) IncWebhookEvent(eventType, result string) {
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}
