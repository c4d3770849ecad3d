package stripe

import (
	"encoding/json"
	"fmt"

	"github.com/Dhoini/glucose-gateway/internal/domain"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// WebhookVerifier проверяет подпись Stripe-Signature и разбирает событие.
type WebhookVerifier struct {
	secret string
}

// NewWebhookVerifier создает верификатор с секретом эндпоинта
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Verify возвращает событие в доменных типах.
// Любая ошибка подписи или формата оборачивает domain.ErrWebhookValidationFailed.
func (v *WebhookVerifier) Verify(payload []byte, signature string) (*domain.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrWebhookValidationFailed, err)
	}

	result := &domain.WebhookEvent{
		ID:   event.ID,
		Type: domain.WebhookEventType(event.Type),
	}
	if event.Data == nil {
		return result, nil
	}

	if result.IsSubscriptionEvent() {
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: decode subscription: %v", domain.ErrWebhookValidationFailed, err)
		}
		ext, err := ToExternalSubscription(&sub)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrWebhookValidationFailed, err)
		}
		result.ObjectID = ext.ID
		result.Subscription = ext
		return result, nil
	}

	var object struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err == nil {
		result.ObjectID = object.ID
	}
	return result, nil
}
