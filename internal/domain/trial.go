package domain

import (
	"math"
	"time"
)

const (
	// TrialDuration длительность бесплатного периода
	TrialDuration = 14 * 24 * time.Hour

	// MaxBetaUsers потолок бета-квоты
	MaxBetaUsers = 100
)

// Trial - запись о пробном периоде пользователя (таблица user_trials).
// IsBetaUser фиксируется при создании и больше не меняется.
type Trial struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Email          string    `json:"email"`
	TrialStartDate time.Time `json:"trialStartDate"`
	TrialEndDate   time.Time `json:"trialEndDate"`
	IsActive       bool      `json:"isActive"`
	IsBetaUser     bool      `json:"isBetaUser"`
	BetaUserNumber *int      `json:"betaUserNumber,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewTrial готовит запись триала, начинающегося в момент now.
// Бета-статус и номер назначает хранилище при вставке.
func NewTrial(userID, email string, now time.Time) Trial {
	return Trial{
		UserID:         userID,
		Email:          email,
		TrialStartDate: now,
		TrialEndDate:   now.Add(TrialDuration),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TrialStatus - триал плюс вычисленное на момент запроса состояние.
type TrialStatus struct {
	Trial
	IsInTrial          bool `json:"isInTrial"`
	TrialDaysRemaining int  `json:"trialDaysRemaining"`
	ShouldShowPayment  bool `json:"shouldShowPayment"`
}

// StatusAt вычисляет статус триала относительно момента now.
func (t Trial) StatusAt(now time.Time) TrialStatus {
	inTrial := t.IsActive && now.Before(t.TrialEndDate)

	days := 0
	if inTrial {
		days = int(math.Ceil(t.TrialEndDate.Sub(now).Hours() / 24))
	}

	return TrialStatus{
		Trial:              t,
		IsInTrial:          inTrial,
		TrialDaysRemaining: days,
		ShouldShowPayment:  !inTrial,
	}
}

// IsExpiredAt - активный триал, срок которого прошел.
func (t Trial) IsExpiredAt(now time.Time) bool {
	return t.IsActive && t.TrialEndDate.Before(now)
}
