package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/Dhoini/glucose-gateway/pkg/res"

	"github.com/gin-gonic/gin"
)

const (
	// Ограничение на размер тела запроса вебхука (Stripe рекомендует ~65kb)
	maxRequestBodySize = int64(65536)

	signatureHeader = "Stripe-Signature"
)

// EventVerifier проверяет подпись и разбирает событие платежной платформы.
type EventVerifier interface {
	Verify(payload []byte, signature string) (*domain.WebhookEvent, error)
}

// EventSink применяет проверенное событие.
type EventSink interface {
	HandleEvent(ctx context.Context, event *domain.WebhookEvent) error
}

// WebhookHandler обрабатывает входящие вебхуки от Stripe.
type WebhookHandler struct {
	verifier EventVerifier
	sink     EventSink
	log      *logger.Logger
}

// NewWebhookHandler создает новый экземпляр WebhookHandler.
func NewWebhookHandler(verifier EventVerifier, sink EventSink, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		sink:     sink,
		log:      log.Named("webhook_handler"),
	}
}

// HandleStripeWebhook обрабатывает POST /api/payment/webhook.
// Ошибка обработки отвечает 500, чтобы Stripe повторил доставку.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// Тело читается один раз: подпись считается по сырым байтам
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize)
	payload, err := io.ReadAll(c.Request.Body)
	//goland:noinspection GoUnhandledErrorResult
	defer c.Request.Body.Close()

	if err != nil {
		h.log.Errorw("Failed to read webhook request body", "error", err)
		res.Fail(c, http.StatusBadRequest, res.Envelope{Error: "Cannot read request body"})
		return
	}

	sigHeader := c.GetHeader(signatureHeader)
	if sigHeader == "" {
		h.log.Warnw("Missing Stripe-Signature header")
		res.Fail(c, http.StatusBadRequest, res.Envelope{Error: "Missing Stripe-Signature header"})
		return
	}

	event, err := h.verifier.Verify(payload, sigHeader)
	if err != nil {
		h.log.Warnw("Webhook signature verification failed", "error", err)
		res.Fail(c, http.StatusBadRequest, res.Envelope{Error: "Webhook signature verification failed"})
		return
	}

	h.log.Infow("Received verified Stripe event", "eventID", event.ID, "eventType", event.Type)

	if err := h.sink.HandleEvent(c.Request.Context(), event); err != nil {
		h.log.Errorw("Error processing webhook event", "error", err, "eventID", event.ID, "eventType", event.Type)
		res.Fail(c, http.StatusInternalServerError, res.Envelope{Error: "Webhook processing failed"})
		return
	}

	res.Message(c, http.StatusOK, "Webhook received")
}
