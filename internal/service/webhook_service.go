package service

import (
	"context"
	"errors"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/internal/metrics"
	"github.com/Dhoini/glucose-gateway/internal/repository"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
)

// Результаты обработки для метрики webhook_events_total
const (
	webhookResultOK      = "ok"
	webhookResultIgnored = "ignored"
	webhookResultError   = "error"
)

// WebhookService применяет события Stripe к проекции подписок.
// Событие никогда не создает проекцию, только обновляет или удаляет.
type WebhookService struct {
	store   repository.SubscriptionRepository
	metrics metrics.GatewayMetrics
	now     func() time.Time
	log     *logger.Logger
}

// NewWebhookService создает новый сервис вебхуков
func NewWebhookService(store repository.SubscriptionRepository, gatewayMetrics metrics.GatewayMetrics, log *logger.Logger) *WebhookService {
	return &WebhookService{
		store:   store,
		metrics: gatewayMetrics,
		now:     time.Now,
		log:     log.Named("webhook"),
	}
}

// HandleEvent обрабатывает проверенное событие. Ошибка означает, что Stripe должен повторить доставку.
func (s *WebhookService) HandleEvent(ctx context.Context, event *domain.WebhookEvent) error {
	result, err := s.dispatch(ctx, event)
	if err != nil {
		result = webhookResultError
	}
	s.metrics.IncWebhookEvent(string(event.Type), result)
	return err
}

func (s *WebhookService) dispatch(ctx context.Context, event *domain.WebhookEvent) (string, error) {
	switch event.Type {
	case domain.WebhookSubscriptionCreated:
		// Проекцию пишет синхронный путь создания, событие только подтверждается
		s.log.Infow("Subscription created event acknowledged",
			"eventID", event.ID,
			"subscriptionID", event.ObjectID,
			"userID", subscriptionOwner(event),
		)
		return webhookResultIgnored, nil

	case domain.WebhookSubscriptionUpdated:
		return s.applySubscription(ctx, event)

	case domain.WebhookSubscriptionDeleted:
		return s.removeSubscription(ctx, event)

	case domain.WebhookInvoicePaymentSucceeded:
		s.log.Infow("Invoice payment succeeded", "eventID", event.ID, "invoiceID", event.ObjectID)
		return webhookResultOK, nil

	case domain.WebhookInvoicePaymentFailed:
		s.log.Warnw("Invoice payment failed", "eventID", event.ID, "invoiceID", event.ObjectID)
		return webhookResultOK, nil

	default:
		s.log.Debugw("Unhandled webhook event", "eventID", event.ID, "type", event.Type)
		return webhookResultIgnored, nil
	}
}

func (s *WebhookService) applySubscription(ctx context.Context, event *domain.WebhookEvent) (string, error) {
	userID := subscriptionOwner(event)
	if userID == "" {
		s.log.Warnw("Subscription event without userId metadata", "eventID", event.ID, "type", event.Type)
		return webhookResultIgnored, nil
	}

	ext := event.Subscription
	stale := false
	updated, err := s.store.UpdateIfExists(ctx, userID, func(sub *domain.Subscription) {
		// Событие по старой подписке не должно перетирать текущую
		if sub.ID != "" && sub.ID != ext.ID {
			stale = true
			return
		}
		sub.ApplyExternal(ext)
		sub.UpdatedAt = s.now().UTC()
	})
	if err != nil {
		return "", domain.NewPersistenceError("apply subscription event", err)
	}
	if !updated || stale {
		s.log.Debugw("Subscription event ignored, no matching projection",
			"userID", userID,
			"subscriptionID", ext.ID,
			"stale", stale,
		)
		return webhookResultIgnored, nil
	}

	s.log.Infow("Subscription projection updated by webhook",
		"userID", userID,
		"subscriptionID", ext.ID,
		"status", ext.Status,
	)
	return webhookResultOK, nil
}

func (s *WebhookService) removeSubscription(ctx context.Context, event *domain.WebhookEvent) (string, error) {
	userID := subscriptionOwner(event)
	if userID == "" {
		s.log.Warnw("Subscription event without userId metadata", "eventID", event.ID, "type", event.Type)
		return webhookResultIgnored, nil
	}

	stored, err := s.store.GetByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return webhookResultIgnored, nil
	}
	if err != nil {
		return "", domain.NewPersistenceError("get subscription", err)
	}
	// Удаление старой подписки не должно стирать текущую
	if stored.ID != "" && stored.ID != event.Subscription.ID {
		s.log.Debugw("Subscription delete ignored, stale subscription",
			"userID", userID,
			"subscriptionID", event.Subscription.ID,
			"currentSubscriptionID", stored.ID,
		)
		return webhookResultIgnored, nil
	}

	if err := s.store.Delete(ctx, userID); err != nil {
		return "", domain.NewPersistenceError("delete subscription", err)
	}
	s.log.Infow("Subscription deleted by webhook", "userID", userID, "subscriptionID", event.Subscription.ID)
	return webhookResultOK, nil
}

func subscriptionOwner(event *domain.WebhookEvent) string {
	if event.Subscription == nil {
		return ""
	}
	return event.Subscription.UserID()
}
