package domain

import (
	"time"
)

// SubscriptionStatus статус подписки, как его видит клиент
type SubscriptionStatus string

const (
	SubscriptionStatusTrial    SubscriptionStatus = "trial"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid   SubscriptionStatus = "unpaid"
)

// Subscription - проекция подписки пользователя.
// Источник истины - Stripe; проекция хранится в user_subscriptions по userId.
type Subscription struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"userId"`
	CustomerID         string             `json:"customerId"`
	PlanID             string             `json:"planId"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time          `json:"currentPeriodEnd"`
	TrialEnd           *time.Time         `json:"trialEnd,omitempty"`
	CancelAtPeriodEnd  bool               `json:"cancelAtPeriodEnd"`
	UpdatedAt          time.Time          `json:"updatedAt"`

	// ClientSecret платежа первого счета. Отдается только в ответе на создание, не хранится.
	ClientSecret string `json:"clientSecret,omitempty"`
}

// ApplyExternal переносит изменяемые платформой поля в проекцию.
// Идентификаторы и план не трогаются.
func (s *Subscription) ApplyExternal(ext *ExternalSubscription) {
	s.Status = ext.Status
	s.CurrentPeriodStart = ext.CurrentPeriodStart
	s.CurrentPeriodEnd = ext.CurrentPeriodEnd
	s.TrialEnd = ext.TrialEnd
	s.CancelAtPeriodEnd = ext.CancelAtPeriodEnd
}

// ExternalSubscription - подписка в платежной платформе, уже переведенная
// в наши типы. Поля SDK дальше адаптера не уходят.
type ExternalSubscription struct {
	ID                 string
	CustomerID         string
	Status             SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
	ItemID             string // Первая позиция подписки, нужна для смены цены
	PriceID            string
	ClientSecret       string // client_secret платежа первого счета, если он раскрыт
	Metadata           map[string]string
}

// Ключи метаданных, которые мы пишем в объекты платежной платформы.
const (
	MetadataUserID     = "userId"
	MetadataPlanID     = "planId"
	MetadataIsBetaUser = "isBetaUser"
)

// UserID возвращает владельца подписки из метаданных.
func (e *ExternalSubscription) UserID() string {
	return e.Metadata[MetadataUserID]
}

// PaymentIntent - результат создания платежного намерения.
// Amount в основных единицах валюты.
type PaymentIntent struct {
	ID           string  `json:"id"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
	ClientSecret string  `json:"clientSecret"`
}
