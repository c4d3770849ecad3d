package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/cgm"
	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/Dhoini/glucose-gateway/pkg/req"
	"github.com/Dhoini/glucose-gateway/pkg/res"

	"github.com/gin-gonic/gin"
)

// CGMTokenHeader - заголовок с access token вендора CGM
const CGMTokenHeader = "X-CGM-Token"

// CGMProvider - OAuth и чтение показаний у вендора CGM.
type CGMProvider interface {
	Exchange(ctx context.Context, code string) (*cgm.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*cgm.Token, error)
	Readings(ctx context.Context, accessToken string, start, end time.Time) (json.RawMessage, error)
}

// ExchangeCodeRequest тело POST /api/cgm/token
type ExchangeCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

// RefreshTokenRequest тело POST /api/cgm/refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// CGMHandler обрабатывает /api/cgm/*.
type CGMHandler struct {
	errorResponder
	provider CGMProvider
}

// NewCGMHandler создает новый экземпляр CGMHandler.
func NewCGMHandler(provider CGMProvider, log *logger.Logger, debug bool) *CGMHandler {
	return &CGMHandler{
		errorResponder: errorResponder{log: log.Named("cgm_handler"), debug: debug},
		provider:       provider,
	}
}

// ExchangeCode обрабатывает POST /api/cgm/token
func (h *CGMHandler) ExchangeCode(c *gin.Context) {
	body, err := req.HandleBody[ExchangeCodeRequest](c.Request.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, err := h.provider.Exchange(c.Request.Context(), body.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	res.Success(c, http.StatusOK, token)
}

// RefreshToken обрабатывает POST /api/cgm/refresh
func (h *CGMHandler) RefreshToken(c *gin.Context) {
	body, err := req.HandleBody[RefreshTokenRequest](c.Request.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, err := h.provider.Refresh(c.Request.Context(), body.RefreshToken)
	if err != nil {
		h.respondError(c, err)
		return
	}
	res.Success(c, http.StatusOK, token)
}

// GetReadings обрабатывает GET /api/cgm/readings?startDate&endDate (RFC3339)
func (h *CGMHandler) GetReadings(c *gin.Context) {
	var errs domain.ValidationErrors

	accessToken := c.GetHeader(CGMTokenHeader)
	if accessToken == "" {
		errs.Add(CGMTokenHeader, "is required")
	}
	start, startErr := time.Parse(time.RFC3339, c.Query("startDate"))
	if startErr != nil {
		errs.Add("startDate", "must be an RFC3339 timestamp")
	}
	end, endErr := time.Parse(time.RFC3339, c.Query("endDate"))
	if endErr != nil {
		errs.Add("endDate", "must be an RFC3339 timestamp")
	}
	if startErr == nil && endErr == nil && !start.Before(end) {
		errs.Add("endDate", "must be after startDate")
	}
	if errs.HasErrors() {
		h.respondError(c, errs)
		return
	}

	readings, err := h.provider.Readings(c.Request.Context(), accessToken, start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	res.Success(c, http.StatusOK, readings)
}
