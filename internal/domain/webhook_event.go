package domain

// WebhookEventType тип события платежной платформы
type WebhookEventType string

const (
	WebhookSubscriptionCreated     WebhookEventType = "customer.subscription.created"
	WebhookSubscriptionUpdated     WebhookEventType = "customer.subscription.updated"
	WebhookSubscriptionDeleted     WebhookEventType = "customer.subscription.deleted"
	WebhookInvoicePaymentSucceeded WebhookEventType = "invoice.payment_succeeded"
	WebhookInvoicePaymentFailed    WebhookEventType = "invoice.payment_failed"
)

// WebhookEvent - проверенное событие вебхука.
// Subscription заполнен только для событий customer.subscription.*.
type WebhookEvent struct {
	ID           string
	Type         WebhookEventType
	ObjectID     string
	Subscription *ExternalSubscription
}

// IsSubscriptionEvent проверяет, относится ли событие к подписке
func (e WebhookEvent) IsSubscriptionEvent() bool {
	switch e.Type {
	case WebhookSubscriptionCreated, WebhookSubscriptionUpdated, WebhookSubscriptionDeleted:
		return true
	}
	return false
}
