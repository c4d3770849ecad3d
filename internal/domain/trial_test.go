package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrial_StatusAt(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	trial := NewTrial("user-1", "", start)

	tests := []struct {
		name        string
		at          time.Time
		active      bool
		inTrial     bool
		daysLeft    int
		showPayment bool
	}{
		{"first day", start, true, true, 14, false},
		{"day 13", start.Add(13 * 24 * time.Hour), true, true, 1, false},
		{"partial day rounds up", start.Add(13*24*time.Hour + time.Hour), true, true, 1, false},
		{"day 15", start.Add(15 * 24 * time.Hour), true, false, 0, true},
		{"ended early", start.Add(24 * time.Hour), false, false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := trial
			tr.IsActive = tt.active

			status := tr.StatusAt(tt.at)
			assert.Equal(t, tt.inTrial, status.IsInTrial)
			assert.Equal(t, tt.daysLeft, status.TrialDaysRemaining)
			assert.Equal(t, tt.showPayment, status.ShouldShowPayment)
		})
	}
}

func TestTrial_IsExpiredAt(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trial := NewTrial("user-1", "", start)

	assert.False(t, trial.IsExpiredAt(start.Add(TrialDuration)))
	assert.True(t, trial.IsExpiredAt(start.Add(TrialDuration+time.Second)))

	trial.IsActive = false
	assert.False(t, trial.IsExpiredAt(start.Add(30*24*time.Hour)))
}

func TestNotFoundError_IsErrNotFound(t *testing.T) {
	assert.ErrorIs(t, ErrTrialNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrSubscriptionNotFound, ErrNotFound)
	assert.Equal(t, "trial not found", ErrTrialNotFound.Error())
}

func TestExternalServiceError_HTTPStatus(t *testing.T) {
	assert.Equal(t, 504, NewExternalServiceError("cgm", UpstreamTimeout, "", "", 0, nil).HTTPStatus())
	assert.Equal(t, 503, NewExternalServiceError("cgm", UpstreamUnavailable, "", "", 0, nil).HTTPStatus())
	assert.Equal(t, 502, NewExternalServiceError("cgm", UpstreamResponse, "", "", 401, nil).HTTPStatus())
}
