package handlers

import (
	"context"
	"net/http"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/internal/middleware"
	"github.com/Dhoini/glucose-gateway/internal/service"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/Dhoini/glucose-gateway/pkg/req"
	"github.com/Dhoini/glucose-gateway/pkg/res"

	"github.com/gin-gonic/gin"
)

// SubscriptionManager - операции над подписками, нужные HTTP слою.
type SubscriptionManager interface {
	Plans(ctx context.Context) (service.PlansOverview, error)
	CreateSubscription(ctx context.Context, input service.CreateSubscriptionInput) (*domain.Subscription, error)
	GetUserSubscription(ctx context.Context, userID string) (*domain.Subscription, error)
	UpdateSubscription(ctx context.Context, userID string, input service.UpdateSubscriptionInput) (*domain.Subscription, error)
	CancelSubscription(ctx context.Context, userID string) error
	CreatePaymentIntent(ctx context.Context, amount float64, currency string) (*domain.PaymentIntent, error)
}

// BetaChecker отвечает, получал ли пользователь бета-статус.
type BetaChecker interface {
	IsBetaUser(ctx context.Context, userID string) (bool, error)
}

// --- DTO ---

// CreateSubscriptionRequest тело POST /api/payment/subscription
type CreateSubscriptionRequest struct {
	PlanID          string `json:"planId" validate:"required"`
	PaymentMethodID string `json:"paymentMethodId"`
}

// UpdateSubscriptionRequest тело PUT /api/payment/subscription
type UpdateSubscriptionRequest struct {
	PlanID            *string `json:"planId" validate:"omitempty,min=1"`
	CancelAtPeriodEnd *bool   `json:"cancelAtPeriodEnd"`
}

// CreatePaymentIntentRequest тело POST /api/payment/payment-intent
type CreatePaymentIntentRequest struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency" validate:"omitempty,len=3"`
}

// UserSubscriptionResponse - подписка (может быть null) и бета-статус
type UserSubscriptionResponse struct {
	Subscription *domain.Subscription `json:"subscription"`
	IsBetaUser   bool                 `json:"isBetaUser"`
}

// PaymentHandler обрабатывает /api/payment/*.
type PaymentHandler struct {
	errorResponder
	service SubscriptionManager
	betas   BetaChecker
}

// NewPaymentHandler создает новый экземпляр PaymentHandler.
func NewPaymentHandler(service SubscriptionManager, betas BetaChecker, log *logger.Logger, debug bool) *PaymentHandler {
	return &PaymentHandler{
		errorResponder: errorResponder{log: log.Named("payment_handler"), debug: debug},
		service:        service,
		betas:          betas,
	}
}

// GetPlans обрабатывает публичный GET /api/payment/plans
func (h *PaymentHandler) GetPlans(c *gin.Context) {
	overview, err := h.service.Plans(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	res.Success(c, http.StatusOK, overview)
}

// GetSubscription обрабатывает GET /api/payment/subscription.
// Отсутствие подписки - не ошибка: subscription = null.
func (h *PaymentHandler) GetSubscription(c *gin.Context) {
	userID, err := requireUserID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	sub, err := h.service.GetUserSubscription(ctx, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	isBeta, err := h.betas.IsBetaUser(ctx, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	res.Success(c, http.StatusOK, UserSubscriptionResponse{Subscription: sub, IsBetaUser: isBeta})
}

// CreateSubscription обрабатывает POST /api/payment/subscription
func (h *PaymentHandler) CreateSubscription(c *gin.Context) {
	userID, err := requireUserID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	body, err := req.HandleBody[CreateSubscriptionRequest](c.Request.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}

	sub, err := h.service.CreateSubscription(c.Request.Context(), service.CreateSubscriptionInput{
		UserID:          userID,
		Email:           middleware.UserEmail(c),
		PlanID:          body.PlanID,
		PaymentMethodID: body.PaymentMethodID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.log.Infow("Subscription created", "userID", userID, "subscriptionID", sub.ID, "planID", sub.PlanID)
	res.Success(c, http.StatusCreated, sub)
}

// UpdateSubscription обрабатывает PUT /api/payment/subscription
func (h *PaymentHandler) UpdateSubscription(c *gin.Context) {
	userID, err := requireUserID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	body, err := req.HandleBody[UpdateSubscriptionRequest](c.Request.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}

	sub, err := h.service.UpdateSubscription(c.Request.Context(), userID, service.UpdateSubscriptionInput{
		PlanID:            body.PlanID,
		CancelAtPeriodEnd: body.CancelAtPeriodEnd,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	res.Success(c, http.StatusOK, sub)
}

// CancelSubscription обрабатывает DELETE /api/payment/subscription
func (h *PaymentHandler) CancelSubscription(c *gin.Context) {
	userID, err := requireUserID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.service.CancelSubscription(c.Request.Context(), userID); err != nil {
		h.respondError(c, err)
		return
	}
	res.Message(c, http.StatusOK, "Subscription canceled successfully")
}

// CreatePaymentIntent обрабатывает POST /api/payment/payment-intent
func (h *PaymentHandler) CreatePaymentIntent(c *gin.Context) {
	if _, err := requireUserID(c); err != nil {
		h.respondError(c, err)
		return
	}

	body, err := req.HandleBody[CreatePaymentIntentRequest](c.Request.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}

	intent, err := h.service.CreatePaymentIntent(c.Request.Context(), body.Amount, body.Currency)
	if err != nil {
		h.respondError(c, err)
		return
	}
	res.Success(c, http.StatusOK, intent)
}
