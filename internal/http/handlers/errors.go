package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/internal/middleware"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/Dhoini/glucose-gateway/pkg/res"

	"github.com/gin-gonic/gin"
)

// errorResponder переводит ошибки сервисов в HTTP-ответы.
// debug включает debugInfo с текстом ошибки (только development).
type errorResponder struct {
	log   *logger.Logger
	debug bool
}

func (r errorResponder) respondError(c *gin.Context, err error) {
	status, body := r.classify(err)
	if r.debug {
		body.DebugInfo = err.Error()
	}

	if status >= http.StatusInternalServerError {
		r.log.Errorw("Request failed", "path", c.Request.URL.Path, "status", status, "error", err)
	} else {
		r.log.Warnw("Request rejected", "path", c.Request.URL.Path, "status", status, "error", err)
	}
	res.Fail(c, status, body)
}

func (r errorResponder) classify(err error) (int, res.Envelope) {
	var (
		validationErrs domain.ValidationErrors
		externalErr    *domain.ExternalServiceError
	)

	switch {
	case errors.As(err, &validationErrs):
		return http.StatusBadRequest, res.Envelope{Error: validationErrs.Error(), Details: []domain.ValidationError(validationErrs)}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, res.Envelope{Error: err.Error()}
	case errors.Is(err, domain.ErrInvalidPlan):
		return http.StatusBadRequest, res.Envelope{Error: "Invalid plan ID"}
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, res.Envelope{Error: "User not authenticated"}
	case errors.Is(err, domain.ErrTrialNotFound):
		return http.StatusNotFound, res.Envelope{Error: "No trial found"}
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		return http.StatusNotFound, res.Envelope{Error: "No subscription found"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, res.Envelope{Error: "Not found"}
	case errors.Is(err, domain.ErrTrialExists):
		return http.StatusConflict, res.Envelope{Error: "Trial already exists for this user"}
	case errors.Is(err, domain.ErrSubscriptionExists):
		return http.StatusConflict, res.Envelope{Error: "Subscription already exists for this user"}
	case errors.As(err, &externalErr):
		msg := externalErr.Message
		if msg == "" {
			msg = externalErr.Service + " request failed"
		}
		body := res.Envelope{Error: msg}
		if len(externalErr.Body) > 0 && json.Valid(externalErr.Body) {
			body.Details = json.RawMessage(externalErr.Body)
		}
		return externalErr.HTTPStatus(), body
	default:
		return http.StatusInternalServerError, res.Envelope{Error: "Internal server error"}
	}
}

// requireUserID достает пользователя, положенного auth middleware.
func requireUserID(c *gin.Context) (string, error) {
	userID, ok := middleware.UserID(c)
	if !ok {
		return "", domain.ErrUnauthenticated
	}
	return userID, nil
}
