package service

import (
	"context"
	"testing"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscriptionEvent(eventType domain.WebhookEventType, ext *domain.ExternalSubscription) *domain.WebhookEvent {
	return &domain.WebhookEvent{
		ID:           "evt_1",
		Type:         eventType,
		ObjectID:     ext.ID,
		Subscription: ext,
	}
}

func TestWebhookService_UpdateAppliesToExistingProjection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.subDB.Save(ctx, &domain.Subscription{
		ID:     "sub_1",
		UserID: "user-1",
		PlanID: domain.PlanBetaMonthly,
		Status: domain.SubscriptionStatusActive,
	}))

	ext := externalSubscription("sub_1", "user-1", domain.SubscriptionStatusPastDue)
	ext.CancelAtPeriodEnd = true
	require.NoError(t, env.webhooks.HandleEvent(ctx, subscriptionEvent(domain.WebhookSubscriptionUpdated, ext)))

	sub, err := env.subDB.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPastDue, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, ext.CurrentPeriodEnd, sub.CurrentPeriodEnd)
	assert.Equal(t, domain.PlanBetaMonthly, sub.PlanID, "plan is not touched by webhooks")
}

func TestWebhookService_NeverCreatesProjection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ext := externalSubscription("sub_1", "user-1", domain.SubscriptionStatusActive)
	require.NoError(t, env.webhooks.HandleEvent(ctx, subscriptionEvent(domain.WebhookSubscriptionCreated, ext)))

	_, err := env.subDB.GetByUserID(ctx, "user-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWebhookService_IgnoresEventsWithoutUser(t *testing.T) {
	env := newTestEnv(t)

	ext := externalSubscription("sub_1", "", domain.SubscriptionStatusActive)
	assert.NoError(t, env.webhooks.HandleEvent(context.Background(), subscriptionEvent(domain.WebhookSubscriptionUpdated, ext)))
}

func TestWebhookService_StaleSubscriptionDoesNotOverwrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.subDB.Save(ctx, &domain.Subscription{
		ID:     "sub_new",
		UserID: "user-1",
		Status: domain.SubscriptionStatusActive,
	}))

	old := externalSubscription("sub_old", "user-1", domain.SubscriptionStatusCanceled)
	require.NoError(t, env.webhooks.HandleEvent(ctx, subscriptionEvent(domain.WebhookSubscriptionUpdated, old)))

	sub, err := env.subDB.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
}

func TestWebhookService_DeleteRemovesProjection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.subDB.Save(ctx, &domain.Subscription{ID: "sub_1", UserID: "user-1"}))

	ext := externalSubscription("sub_1", "user-1", domain.SubscriptionStatusCanceled)
	require.NoError(t, env.webhooks.HandleEvent(ctx, subscriptionEvent(domain.WebhookSubscriptionDeleted, ext)))

	_, err := env.subDB.GetByUserID(ctx, "user-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWebhookService_StaleDeleteKeepsCurrentProjection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.subDB.Save(ctx, &domain.Subscription{
		ID:     "sub_new",
		UserID: "user-1",
		Status: domain.SubscriptionStatusActive,
	}))

	old := externalSubscription("sub_old", "user-1", domain.SubscriptionStatusCanceled)
	require.NoError(t, env.webhooks.HandleEvent(ctx, subscriptionEvent(domain.WebhookSubscriptionDeleted, old)))

	sub, err := env.subDB.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "sub_new", sub.ID)
}

func TestWebhookService_DeleteWithoutProjectionIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	ext := externalSubscription("sub_1", "user-1", domain.SubscriptionStatusCanceled)
	assert.NoError(t, env.webhooks.HandleEvent(context.Background(), subscriptionEvent(domain.WebhookSubscriptionDeleted, ext)))
}

func TestWebhookService_CreatedEventKeepsSyncProjection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.subDB.Save(ctx, &domain.Subscription{
		ID:     "sub_1",
		UserID: "user-1",
		PlanID: domain.PlanBetaMonthly,
		Status: domain.SubscriptionStatusActive,
	}))

	// default_incomplete: created приходит со статусом incomplete
	ext := externalSubscription("sub_1", "user-1", domain.SubscriptionStatusUnpaid)
	require.NoError(t, env.webhooks.HandleEvent(ctx, subscriptionEvent(domain.WebhookSubscriptionCreated, ext)))

	sub, err := env.subDB.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
}

func TestWebhookService_InvoiceAndUnknownEventsAreAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, eventType := range []domain.WebhookEventType{
		domain.WebhookInvoicePaymentSucceeded,
		domain.WebhookInvoicePaymentFailed,
		"charge.refunded",
	} {
		err := env.webhooks.HandleEvent(ctx, &domain.WebhookEvent{ID: "evt", Type: eventType, ObjectID: "in_1"})
		assert.NoError(t, err, string(eventType))
	}
}
