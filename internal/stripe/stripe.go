package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/cenkalti/backoff/v4"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const defaultRetryWindow = 10 * time.Second

// Client определяет методы для взаимодействия со Stripe API.
// Наружу отдаются только доменные типы.
type Client interface {
	// GetOrCreateCustomer ищет клиента по email и привязывает его к userId, если не находит - создает нового.
	GetOrCreateCustomer(ctx context.Context, userID, email string) (string, error)

	// FindCustomerByUserID ищет клиента по метаданным userId. Пустая строка - клиента нет.
	FindCustomerByUserID(ctx context.Context, userID string) (string, error)

	// CreateSubscription создает подписку в режиме default_incomplete.
	CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*domain.ExternalSubscription, error)

	// LatestSubscription возвращает самую свежую подписку клиента в любом статусе или nil.
	LatestSubscription(ctx context.Context, customerID string) (*domain.ExternalSubscription, error)

	// GetSubscription получает подписку по ID.
	GetSubscription(ctx context.Context, subscriptionID string) (*domain.ExternalSubscription, error)

	// UpdateSubscription меняет флаг отмены и/или цену первой позиции.
	UpdateSubscription(ctx context.Context, subscriptionID string, input UpdateSubscriptionInput) (*domain.ExternalSubscription, error)

	// CancelSubscription отменяет подписку немедленно. Уже удаленная подписка - не ошибка.
	CancelSubscription(ctx context.Context, subscriptionID string) error

	// CreatePaymentIntent создает платежное намерение на сумму в минимальных единицах валюты.
	CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string) (*domain.PaymentIntent, error)
}

// CreateSubscriptionInput параметры создания подписки
type CreateSubscriptionInput struct {
	CustomerID      string
	PriceID         string
	PaymentMethodID string
	Metadata        map[string]string
	IdempotencyKey  string
}

// UpdateSubscriptionInput параметры изменения подписки. nil/пустые поля не трогаются.
type UpdateSubscriptionInput struct {
	CancelAtPeriodEnd *bool
	ItemID            string
	PriceID           string
	Metadata          map[string]string
}

// stripeClient реализует интерфейс Client.
type stripeClient struct {
	client      *client.API
	retryWindow time.Duration
	log         *logger.Logger
}

// NewStripeClient создает новый экземпляр клиента Stripe.
func NewStripeClient(apiKey string, log *logger.Logger) Client {
	return NewStripeClientWithBackends(apiKey, nil, log)
}

// NewStripeClientWithBackends позволяет подменить HTTP backend SDK (тесты, прокси).
func NewStripeClientWithBackends(apiKey string, backends *stripe.Backends, log *logger.Logger) Client {
	sc := &client.API{}
	sc.Init(apiKey, backends)
	return &stripeClient{
		client:      sc,
		retryWindow: defaultRetryWindow,
		log:         log.Named("stripe"),
	}
}

// GetOrCreateCustomer ищет клиента по email, иначе создает нового.
func (sc *stripeClient) GetOrCreateCustomer(ctx context.Context, userID, email string) (string, error) {
	if email != "" {
		params := &stripe.CustomerListParams{Email: stripe.String(email)}
		params.Context = ctx
		params.Limit = stripe.Int64(1)

		customers := sc.client.Customers.List(params)
		for customers.Next() {
			customer := customers.Customer()
			if customer.Deleted {
				continue
			}
			sc.log.Debugw("Found existing Stripe customer by email", "stripeCustomerID", customer.ID, "userID", userID)
			if err := sc.stampCustomerUserID(ctx, customer, userID); err != nil {
				return "", err
			}
			return customer.ID, nil
		}
		if err := customers.Err(); err != nil {
			logStripeError(sc.log, "ListCustomers", err)
			return "", translateError("list customers", err)
		}
	}

	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			domain.MetadataUserID: userID,
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx

	var customer *stripe.Customer
	err := sc.withRetry(ctx, "CreateCustomer", func() error {
		var err error
		customer, err = sc.client.Customers.New(params)
		return err
	})
	if err != nil {
		logStripeError(sc.log, "CreateCustomer", err)
		return "", translateError("create customer", err)
	}

	sc.log.Infow("Stripe customer created", "stripeCustomerID", customer.ID, "userID", userID)
	return customer.ID, nil
}

// stampCustomerUserID дописывает userId в метаданные найденного по email клиента,
// иначе FindCustomerByUserID его не увидит. Чужой userId не перезаписывается.
func (sc *stripeClient) stampCustomerUserID(ctx context.Context, customer *stripe.Customer, userID string) error {
	owner := customer.Metadata[domain.MetadataUserID]
	if owner == userID {
		return nil
	}
	if owner != "" {
		sc.log.Warnw("Stripe customer belongs to another user, metadata left unchanged",
			"stripeCustomerID", customer.ID,
			"userID", userID,
			"ownerUserID", owner,
		)
		return nil
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx
	params.AddMetadata(domain.MetadataUserID, userID)

	err := sc.withRetry(ctx, "UpdateCustomer", func() error {
		_, err := sc.client.Customers.Update(customer.ID, params)
		return err
	})
	if err != nil {
		logStripeError(sc.log, "UpdateCustomer", err)
		return translateError("update customer", err)
	}

	sc.log.Infow("Stripe customer linked to user", "stripeCustomerID", customer.ID, "userID", userID)
	return nil
}

// FindCustomerByUserID ищет клиента через Search API по метаданным.
func (sc *stripeClient) FindCustomerByUserID(ctx context.Context, userID string) (string, error) {
	searchParams := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   customerSearchQuery(userID),
			Limit:   stripe.Int64(1),
			Context: ctx,
		},
	}

	customers := sc.client.Customers.Search(searchParams)
	if customers.Next() {
		return customers.Customer().ID, nil
	}
	if err := customers.Err(); err != nil {
		logStripeError(sc.log, "SearchCustomers", err)
		return "", translateError("search customers", err)
	}
	return "", nil
}

// CreateSubscription создает подписку в Stripe для указанного клиента и цены.
func (sc *stripeClient) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*domain.ExternalSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(input.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price: stripe.String(input.PriceID),
			},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		Metadata:        input.Metadata,
		Params: stripe.Params{
			Context: ctx,
		},
	}
	if input.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(input.IdempotencyKey)
	}
	if input.PaymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(input.PaymentMethodID)
	}
	params.AddExpand("latest_invoice.payment_intent")

	var subscription *stripe.Subscription
	err := sc.withRetry(ctx, "CreateSubscription", func() error {
		var err error
		subscription, err = sc.client.Subscriptions.New(params)
		return err
	})
	if err != nil {
		logStripeError(sc.log, "CreateSubscription", err)
		return nil, translateError("create subscription", err)
	}

	sc.log.Infow("Stripe subscription created",
		"stripeSubscriptionID", subscription.ID,
		"status", string(subscription.Status),
	)
	return ToExternalSubscription(subscription)
}

// LatestSubscription возвращает самую свежую подписку клиента.
func (sc *stripeClient) LatestSubscription(ctx context.Context, customerID string) (*domain.ExternalSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	subscriptions := sc.client.Subscriptions.List(params)
	if subscriptions.Next() {
		return ToExternalSubscription(subscriptions.Subscription())
	}
	if err := subscriptions.Err(); err != nil {
		logStripeError(sc.log, "ListSubscriptions", err)
		return nil, translateError("list subscriptions", err)
	}
	return nil, nil
}

// GetSubscription получает подписку по ID.
func (sc *stripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*domain.ExternalSubscription, error) {
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}

	var subscription *stripe.Subscription
	err := sc.withRetry(ctx, "GetSubscription", func() error {
		var err error
		subscription, err = sc.client.Subscriptions.Get(subscriptionID, params)
		return err
	})
	if err != nil {
		logStripeError(sc.log, "GetSubscription", err)
		return nil, translateError("get subscription", err)
	}
	return ToExternalSubscription(subscription)
}

// UpdateSubscription применяет изменения к подписке.
func (sc *stripeClient) UpdateSubscription(ctx context.Context, subscriptionID string, input UpdateSubscriptionInput) (*domain.ExternalSubscription, error) {
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}
	if input.CancelAtPeriodEnd != nil {
		params.CancelAtPeriodEnd = stripe.Bool(*input.CancelAtPeriodEnd)
	}
	if input.PriceID != "" {
		item := &stripe.SubscriptionItemsParams{Price: stripe.String(input.PriceID)}
		if input.ItemID != "" {
			item.ID = stripe.String(input.ItemID)
		}
		params.Items = []*stripe.SubscriptionItemsParams{item}
	}
	for key, value := range input.Metadata {
		params.AddMetadata(key, value)
	}

	subscription, err := sc.client.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		logStripeError(sc.log, "UpdateSubscription", err)
		return nil, translateError("update subscription", err)
	}

	sc.log.Infow("Stripe subscription updated", "stripeSubscriptionID", subscription.ID)
	return ToExternalSubscription(subscription)
}

// CancelSubscription отменяет подписку в Stripe немедленно.
func (sc *stripeClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}

	_, err := sc.client.Subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			sc.log.Warnw("Attempted to cancel already canceled/missing Stripe subscription", "stripeSubscriptionID", subscriptionID)
			return nil
		}
		logStripeError(sc.log, "CancelSubscription", err)
		return translateError("cancel subscription", err)
	}

	sc.log.Infow("Stripe subscription canceled", "stripeSubscriptionID", subscriptionID)
	return nil
}

// CreatePaymentIntent создает PaymentIntent с автоматическим выбором способов оплаты.
func (sc *stripeClient) CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx

	intent, err := sc.client.PaymentIntents.New(params)
	if err != nil {
		logStripeError(sc.log, "CreatePaymentIntent", err)
		return nil, translateError("create payment intent", err)
	}

	return &domain.PaymentIntent{
		ID:           intent.ID,
		Amount:       float64(intent.Amount) / 100,
		Currency:     string(intent.Currency),
		Status:       string(intent.Status),
		ClientSecret: intent.ClientSecret,
	}, nil
}

// withRetry повторяет операцию с экспоненциальной задержкой, пока ошибка временная.
func (sc *stripeClient) withRetry(ctx context.Context, operation string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = sc.retryWindow
	bo.Reset()

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if isRetryableStripeError(err) {
			sc.log.Warnw("Retryable Stripe error occurred, retrying", "operation", operation, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

// searchValueEscaper экранирует строку для значения в кавычках языка Stripe Search
var searchValueEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func customerSearchQuery(userID string) string {
	return fmt.Sprintf("metadata['%s']:'%s'", domain.MetadataUserID, searchValueEscaper.Replace(userID))
}

// logStripeError - вспомогательная функция для логирования деталей ошибки Stripe.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
