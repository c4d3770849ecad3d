package stripe

import (
	"testing"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stripe/stripe-go/v78"
)

func TestToExternalSubscription_StatusMapping(t *testing.T) {
	tests := []struct {
		stripeStatus stripe.SubscriptionStatus
		want         domain.SubscriptionStatus
	}{
		{stripe.SubscriptionStatusTrialing, domain.SubscriptionStatusTrial},
		{stripe.SubscriptionStatusActive, domain.SubscriptionStatusActive},
		{stripe.SubscriptionStatusCanceled, domain.SubscriptionStatusCanceled},
		{stripe.SubscriptionStatusIncompleteExpired, domain.SubscriptionStatusCanceled},
		{stripe.SubscriptionStatusPastDue, domain.SubscriptionStatusPastDue},
		{stripe.SubscriptionStatusPaused, domain.SubscriptionStatusPastDue},
		{stripe.SubscriptionStatusUnpaid, domain.SubscriptionStatusUnpaid},
		{stripe.SubscriptionStatusIncomplete, domain.SubscriptionStatusUnpaid},
	}

	for _, tt := range tests {
		t.Run(string(tt.stripeStatus), func(t *testing.T) {
			ext, err := ToExternalSubscription(&stripe.Subscription{ID: "sub_1", Status: tt.stripeStatus})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ext.Status)
		})
	}
}

func TestToExternalSubscription_UnknownStatus(t *testing.T) {
	_, err := ToExternalSubscription(&stripe.Subscription{ID: "sub_1", Status: "mystery"})
	assert.ErrorIs(t, err, ErrMapping)
}

func TestToExternalSubscription_MissingID(t *testing.T) {
	_, err := ToExternalSubscription(&stripe.Subscription{Status: stripe.SubscriptionStatusActive})
	assert.ErrorIs(t, err, ErrMapping)

	_, err = ToExternalSubscription(nil)
	assert.ErrorIs(t, err, ErrMapping)
}

func TestToExternalSubscription_Fields(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	sub := &stripe.Subscription{
		ID:                 "sub_42",
		Status:             stripe.SubscriptionStatusTrialing,
		Customer:           &stripe.Customer{ID: "cus_42"},
		CurrentPeriodStart: start.Unix(),
		CurrentPeriodEnd:   end.Unix(),
		TrialEnd:           end.Unix(),
		CancelAtPeriodEnd:  true,
		Metadata:           map[string]string{domain.MetadataUserID: "user-42"},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{ID: "si_1", Price: &stripe.Price{ID: "price_beta_monthly"}},
			},
		},
	}

	ext, err := ToExternalSubscription(sub)
	require.NoError(t, err)

	assert.Equal(t, "sub_42", ext.ID)
	assert.Equal(t, "cus_42", ext.CustomerID)
	assert.Equal(t, "user-42", ext.UserID())
	assert.Equal(t, start, ext.CurrentPeriodStart)
	assert.Equal(t, end, ext.CurrentPeriodEnd)
	require.NotNil(t, ext.TrialEnd)
	assert.Equal(t, end, *ext.TrialEnd)
	assert.True(t, ext.CancelAtPeriodEnd)
	assert.Equal(t, "si_1", ext.ItemID)
	assert.Equal(t, "price_beta_monthly", ext.PriceID)
}

func TestToExternalSubscription_NoTrialNoMetadata(t *testing.T) {
	ext, err := ToExternalSubscription(&stripe.Subscription{ID: "sub_1", Status: stripe.SubscriptionStatusActive})
	require.NoError(t, err)

	assert.Nil(t, ext.TrialEnd)
	assert.NotNil(t, ext.Metadata)
	assert.Empty(t, ext.UserID())
	assert.True(t, ext.CurrentPeriodStart.IsZero())
}
