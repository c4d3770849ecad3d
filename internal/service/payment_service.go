package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/internal/kafka"
	"github.com/Dhoini/glucose-gateway/internal/metrics"
	"github.com/Dhoini/glucose-gateway/internal/repository"
	"github.com/Dhoini/glucose-gateway/internal/stripe"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/google/uuid"
)

const defaultCurrency = "usd"

// BetaGate - часть TrialService, нужная для подписок.
type BetaGate interface {
	CanGetBetaPricing(ctx context.Context, userID string) (bool, error)
	EndTrial(ctx context.Context, userID string) error
	BetaUserCount(ctx context.Context) (int, error)
	MaxBetaUsers() int
}

// CreateSubscriptionInput запрос на оформление подписки
type CreateSubscriptionInput struct {
	UserID          string
	Email           string
	PlanID          string
	PaymentMethodID string
}

// UpdateSubscriptionInput изменение подписки. nil - поле не меняется.
type UpdateSubscriptionInput struct {
	PlanID            *string `json:"planId"`
	CancelAtPeriodEnd *bool   `json:"cancelAtPeriodEnd"`
}

// PlansOverview - ответ GET /api/payment/plans
type PlansOverview struct {
	Plans         []domain.SubscriptionPlan `json:"plans"`
	BetaUserCount int                       `json:"betaUserCount"`
	MaxBetaUsers  int                       `json:"maxBetaUsers"`
}

// PaymentService сверяет подписки пользователя со Stripe и хранит проекцию.
type PaymentService struct {
	plans    *PlanCatalog
	trials   BetaGate
	store    repository.SubscriptionRepository
	stripe   stripe.Client
	producer kafka.Producer
	metrics  metrics.GatewayMetrics
	now      func() time.Time
	log      *logger.Logger
}

// NewPaymentService создает новый сервис подписок
func NewPaymentService(
	plans *PlanCatalog,
	trials BetaGate,
	store repository.SubscriptionRepository,
	stripeClient stripe.Client,
	producer kafka.Producer,
	gatewayMetrics metrics.GatewayMetrics,
	log *logger.Logger,
) *PaymentService {
	return &PaymentService{
		plans:    plans,
		trials:   trials,
		store:    store,
		stripe:   stripeClient,
		producer: producer,
		metrics:  gatewayMetrics,
		now:      time.Now,
		log:      log.Named("payment"),
	}
}

// Plans возвращает каталог и состояние бета-квоты
func (s *PaymentService) Plans(ctx context.Context) (PlansOverview, error) {
	count, err := s.trials.BetaUserCount(ctx)
	if err != nil {
		return PlansOverview{}, err
	}
	return PlansOverview{
		Plans:         s.plans.All(),
		BetaUserCount: count,
		MaxBetaUsers:  s.trials.MaxBetaUsers(),
	}, nil
}

// CreateSubscription оформляет подписку. Запрошенный план только пожелание:
// тариф (бета или обычный) выбирается по праву пользователя на бета-цену.
func (s *PaymentService) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*domain.Subscription, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, domain.NewValidationError("userId", "is required")
	}

	requested, err := s.plans.Get(input.PlanID)
	if err != nil {
		return nil, err
	}

	eligible, err := s.trials.CanGetBetaPricing(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	plan := s.plans.Counterpart(requested, eligible)
	if plan.ID != requested.ID {
		s.metrics.IncPlanCorrection(requested.ID, plan.ID)
		s.log.Infow("Plan corrected by beta eligibility",
			"userID", input.UserID,
			"requestedPlan", requested.ID,
			"appliedPlan", plan.ID,
		)
	}

	// Повтор или двойная отправка не должны заводить вторую подписку в Stripe
	existing, err := s.GetUserSubscription(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status != domain.SubscriptionStatusCanceled {
		s.log.Warnw("Subscription already exists",
			"userID", input.UserID,
			"subscriptionID", existing.ID,
			"status", existing.Status,
		)
		return nil, domain.ErrSubscriptionExists
	}

	customerID, err := s.stripe.GetOrCreateCustomer(ctx, input.UserID, input.Email)
	if err != nil {
		return nil, err
	}

	ext, err := s.stripe.CreateSubscription(ctx, stripe.CreateSubscriptionInput{
		CustomerID:      customerID,
		PriceID:         plan.StripePriceID,
		PaymentMethodID: input.PaymentMethodID,
		Metadata: map[string]string{
			domain.MetadataUserID:     input.UserID,
			domain.MetadataPlanID:     plan.ID,
			domain.MetadataIsBetaUser: strconv.FormatBool(plan.IsBeta),
		},
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}

	// Триал закрывается только после того, как подписка появилась в Stripe.
	if err := s.trials.EndTrial(ctx, input.UserID); err != nil {
		s.log.Warnw("Failed to end trial after subscription", "userID", input.UserID, "error", err)
	}

	sub := &domain.Subscription{
		ID:                 ext.ID,
		UserID:             input.UserID,
		CustomerID:         customerID,
		PlanID:             plan.ID,
		Status:             domain.SubscriptionStatusActive,
		CurrentPeriodStart: ext.CurrentPeriodStart,
		CurrentPeriodEnd:   ext.CurrentPeriodEnd,
		TrialEnd:           ext.TrialEnd,
		CancelAtPeriodEnd:  ext.CancelAtPeriodEnd,
		UpdatedAt:          s.now().UTC(),
	}
	if err := s.store.Save(ctx, sub); err != nil {
		// Stripe - источник истины, следующий GetUserSubscription пересинхронизирует.
		s.log.Errorw("Failed to save subscription projection", "userID", input.UserID, "subscriptionID", sub.ID, "error", err)
	}

	s.metrics.IncSubscriptionCreated(plan.ID)
	s.log.Infow("Subscription created", "userID", input.UserID, "subscriptionID", sub.ID, "plan", plan.ID)
	publishAsync(ctx, s.producer, s.log, kafka.TopicSubscriptionCreated, kafka.Event{UserID: input.UserID, Data: *sub})

	created := *sub
	created.ClientSecret = ext.ClientSecret
	return &created, nil
}

// GetUserSubscription читает проекцию, при промахе синхронизирует ее из Stripe.
// Пользователь без подписки - nil, nil.
func (s *PaymentService) GetUserSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.store.GetByUserID(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NewPersistenceError("get subscription", err)
	}

	customerID, err := s.stripe.FindCustomerByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return nil, nil
	}

	ext, err := s.stripe.LatestSubscription(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return nil, nil
	}

	sub = &domain.Subscription{
		ID:         ext.ID,
		UserID:     userID,
		CustomerID: customerID,
		PlanID:     s.planIDFor(ext),
		UpdatedAt:  s.now().UTC(),
	}
	sub.ApplyExternal(ext)

	if err := s.store.Save(ctx, sub); err != nil {
		s.log.Errorw("Failed to save synced subscription", "userID", userID, "error", err)
	}

	s.log.Infow("Subscription synced from Stripe", "userID", userID, "subscriptionID", sub.ID, "status", sub.Status)
	return sub, nil
}

// UpdateSubscription меняет план и/или флаг отмены и перечитывает подписку из Stripe.
func (s *PaymentService) UpdateSubscription(ctx context.Context, userID string, input UpdateSubscriptionInput) (*domain.Subscription, error) {
	current, err := s.GetUserSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrSubscriptionNotFound
	}

	params := stripe.UpdateSubscriptionInput{CancelAtPeriodEnd: input.CancelAtPeriodEnd}
	planID := current.PlanID

	if input.PlanID != nil && *input.PlanID != current.PlanID {
		plan, err := s.plans.Get(*input.PlanID)
		if err != nil {
			return nil, err
		}
		ext, err := s.stripe.GetSubscription(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		params.ItemID = ext.ItemID
		params.PriceID = plan.StripePriceID
		params.Metadata = map[string]string{
			domain.MetadataPlanID:     plan.ID,
			domain.MetadataIsBetaUser: strconv.FormatBool(plan.IsBeta),
		}
		planID = plan.ID
	}

	if params.CancelAtPeriodEnd != nil || params.PriceID != "" {
		if _, err := s.stripe.UpdateSubscription(ctx, current.ID, params); err != nil {
			return nil, err
		}
	}

	ext, err := s.stripe.GetSubscription(ctx, current.ID)
	if err != nil {
		return nil, err
	}

	current.ApplyExternal(ext)
	current.PlanID = planID
	current.UpdatedAt = s.now().UTC()

	if err := s.store.Save(ctx, current); err != nil {
		s.log.Errorw("Failed to save updated subscription", "userID", userID, "error", err)
	}

	s.log.Infow("Subscription updated", "userID", userID, "subscriptionID", current.ID, "plan", planID)
	return current, nil
}

// CancelSubscription немедленно отменяет подписку и удаляет проекцию.
func (s *PaymentService) CancelSubscription(ctx context.Context, userID string) error {
	current, err := s.GetUserSubscription(ctx, userID)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrSubscriptionNotFound
	}

	if err := s.stripe.CancelSubscription(ctx, current.ID); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, userID); err != nil {
		s.log.Errorw("Failed to delete subscription projection", "userID", userID, "error", err)
	}

	s.metrics.IncSubscriptionCanceled()
	s.log.Infow("Subscription canceled", "userID", userID, "subscriptionID", current.ID)
	publishAsync(ctx, s.producer, s.log, kafka.TopicSubscriptionCancelled, kafka.Event{
		UserID: userID,
		Data:   map[string]string{"subscriptionId": current.ID},
	})
	return nil
}

// CreatePaymentIntent создает разовый платеж. amount в основных единицах валюты.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, amount float64, currency string) (*domain.PaymentIntent, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, domain.NewValidationError("amount", "must be greater than 0")
	}

	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if len(currency) != 3 {
		return nil, domain.NewValidationError("currency", "must be a 3-letter ISO code")
	}

	minor := int64(math.Round(amount * 100))
	if minor <= 0 {
		return nil, domain.NewValidationError("amount", "must be at least 0.01")
	}

	return s.stripe.CreatePaymentIntent(ctx, minor, currency)
}

// planIDFor определяет план внешней подписки: сначала по цене, метаданные только
// для неизвестной цены. После смены плана цена актуальнее метаданных.
func (s *PaymentService) planIDFor(ext *domain.ExternalSubscription) string {
	if plan, ok := s.plans.ByPriceID(ext.PriceID); ok {
		return plan.ID
	}
	return ext.Metadata[domain.MetadataPlanID]
}
