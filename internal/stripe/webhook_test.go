package stripe

import (
	"testing"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stripe/stripe-go/v78/webhook"
)

const testWebhookSecret = "whsec_test"

func signPayload(t *testing.T, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestWebhookVerifier_SubscriptionEvent(t *testing.T) {
	payload := `{
		"id": "evt_1",
		"object": "event",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_1",
			"object": "subscription",
			"status": "past_due",
			"customer": "cus_1",
			"cancel_at_period_end": true,
			"current_period_start": 1700000000,
			"current_period_end": 1702592000,
			"metadata": {"userId": "user-1"}
		}}
	}`

	event, err := NewWebhookVerifier(testWebhookSecret).Verify([]byte(payload), signPayload(t, payload))
	require.NoError(t, err)

	assert.Equal(t, domain.WebhookSubscriptionUpdated, event.Type)
	require.NotNil(t, event.Subscription)
	assert.Equal(t, "sub_1", event.ObjectID)
	assert.Equal(t, "user-1", event.Subscription.UserID())
	assert.Equal(t, domain.SubscriptionStatusPastDue, event.Subscription.Status)
	assert.True(t, event.Subscription.CancelAtPeriodEnd)
}

func TestWebhookVerifier_InvoiceEvent(t *testing.T) {
	payload := `{"id":"evt_2","object":"event","type":"invoice.payment_failed","data":{"object":{"id":"in_1","object":"invoice"}}}`

	event, err := NewWebhookVerifier(testWebhookSecret).Verify([]byte(payload), signPayload(t, payload))
	require.NoError(t, err)

	assert.Equal(t, domain.WebhookInvoicePaymentFailed, event.Type)
	assert.Equal(t, "in_1", event.ObjectID)
	assert.Nil(t, event.Subscription)
}

func TestWebhookVerifier_BadSignature(t *testing.T) {
	payload := `{"id":"evt_3","object":"event","type":"invoice.payment_succeeded","data":{"object":{"id":"in_1"}}}`

	_, err := NewWebhookVerifier("whsec_other").Verify([]byte(payload), signPayload(t, payload))
	assert.ErrorIs(t, err, domain.ErrWebhookValidationFailed)

	_, err = NewWebhookVerifier(testWebhookSecret).Verify([]byte(payload), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, domain.ErrWebhookValidationFailed)
}
