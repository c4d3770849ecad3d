package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/config"
	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/internal/kafka"
	"github.com/Dhoini/glucose-gateway/internal/metrics"
	"github.com/Dhoini/glucose-gateway/internal/repository"
	"github.com/Dhoini/glucose-gateway/internal/stripe"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
)

type mockStripeClient struct {
	mock.Mock
}

func (m *mockStripeClient) GetOrCreateCustomer(ctx context.Context, userID, email string) (string, error) {
	args := m.Called(ctx, userID, email)
	return args.String(0), args.Error(1)
}

func (m *mockStripeClient) FindCustomerByUserID(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *mockStripeClient) CreateSubscription(ctx context.Context, input stripe.CreateSubscriptionInput) (*domain.ExternalSubscription, error) {
	args := m.Called(ctx, input)
	return extArg(args, 0), args.Error(1)
}

func (m *mockStripeClient) LatestSubscription(ctx context.Context, customerID string) (*domain.ExternalSubscription, error) {
	args := m.Called(ctx, customerID)
	return extArg(args, 0), args.Error(1)
}

func (m *mockStripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*domain.ExternalSubscription, error) {
	args := m.Called(ctx, subscriptionID)
	return extArg(args, 0), args.Error(1)
}

func (m *mockStripeClient) UpdateSubscription(ctx context.Context, subscriptionID string, input stripe.UpdateSubscriptionInput) (*domain.ExternalSubscription, error) {
	args := m.Called(ctx, subscriptionID, input)
	return extArg(args, 0), args.Error(1)
}

func (m *mockStripeClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

func (m *mockStripeClient) CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string) (*domain.PaymentIntent, error) {
	args := m.Called(ctx, amountMinor, currency)
	intent, _ := args.Get(0).(*domain.PaymentIntent)
	return intent, args.Error(1)
}

func extArg(args mock.Arguments, i int) *domain.ExternalSubscription {
	ext, _ := args.Get(i).(*domain.ExternalSubscription)
	return ext
}

// recordingProducer запоминает события. Публикация асинхронная, поэтому
// тесты ждут через assert.Eventually.
type recordingProducer struct {
	mu     sync.Mutex
	events map[string][]kafka.Event
}

func newRecordingProducer() *recordingProducer {
	return &recordingProducer{events: make(map[string][]kafka.Event)}
}

func (p *recordingProducer) Publish(_ context.Context, topic string, event kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[topic] = append(p.events[topic], event)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events[topic])
}

var testPrices = config.StripePrices{
	BetaMonthly:    "price_beta_monthly",
	BetaYearly:     "price_beta_yearly",
	RegularMonthly: "price_regular_monthly",
	RegularYearly:  "price_regular_yearly",
}

type testEnv struct {
	trials   *TrialService
	payments *PaymentService
	webhooks *WebhookService
	trialDB  *repository.InMemoryTrialRepository
	subDB    *repository.InMemorySubscriptionRepository
	stripe   *mockStripeClient
	producer *recordingProducer
	clock    *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logger.NewNop()
	gatewayMetrics := metrics.NewGatewayMetrics(prometheus.NewRegistry())
	producer := newRecordingProducer()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}

	trialDB := repository.NewInMemoryTrialRepository(log)
	subDB := repository.NewInMemorySubscriptionRepository(log)
	stripeClient := &mockStripeClient{}

	trials := NewTrialService(trialDB, producer, gatewayMetrics, log)
	trials.now = clock.Now

	payments := NewPaymentService(NewPlanCatalog(testPrices), trials, subDB, stripeClient, producer, gatewayMetrics, log)
	payments.now = clock.Now

	webhooks := NewWebhookService(subDB, gatewayMetrics, log)
	webhooks.now = clock.Now

	t.Cleanup(func() { stripeClient.AssertExpectations(t) })

	return &testEnv{
		trials:   trials,
		payments: payments,
		webhooks: webhooks,
		trialDB:  trialDB,
		subDB:    subDB,
		stripe:   stripeClient,
		producer: producer,
		clock:    clock,
	}
}
