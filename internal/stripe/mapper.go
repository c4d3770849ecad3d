package stripe

import (
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"

	"github.com/stripe/stripe-go/v78"
)

// ErrMapping - объект Stripe не удалось перевести в доменный тип.
var ErrMapping = errors.New("stripe: unexpected subscription payload")

// ToExternalSubscription - единственное место, где читаются поля stripe.Subscription.
func ToExternalSubscription(sub *stripe.Subscription) (*domain.ExternalSubscription, error) {
	if sub == nil || sub.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMapping)
	}

	status, err := mapStatus(sub.Status)
	if err != nil {
		return nil, err
	}

	ext := &domain.ExternalSubscription{
		ID:                 sub.ID,
		Status:             status,
		CurrentPeriodStart: unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		Metadata:           sub.Metadata,
	}
	if ext.Metadata == nil {
		ext.Metadata = map[string]string{}
	}
	if sub.Customer != nil {
		ext.CustomerID = sub.Customer.ID
	}
	if sub.TrialEnd > 0 {
		trialEnd := unixTime(sub.TrialEnd)
		ext.TrialEnd = &trialEnd
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		item := sub.Items.Data[0]
		ext.ItemID = item.ID
		if item.Price != nil {
			ext.PriceID = item.Price.ID
		}
	}
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		ext.ClientSecret = sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	return ext, nil
}

func mapStatus(status stripe.SubscriptionStatus) (domain.SubscriptionStatus, error) {
	switch status {
	case stripe.SubscriptionStatusTrialing:
		return domain.SubscriptionStatusTrial, nil
	case stripe.SubscriptionStatusActive:
		return domain.SubscriptionStatusActive, nil
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return domain.SubscriptionStatusCanceled, nil
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusPaused:
		return domain.SubscriptionStatusPastDue, nil
	case stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncomplete:
		return domain.SubscriptionStatusUnpaid, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrMapping, status)
	}
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
