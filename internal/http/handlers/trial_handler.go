package handlers

import (
	"context"
	"net/http"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/internal/middleware"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/Dhoini/glucose-gateway/pkg/res"

	"github.com/gin-gonic/gin"
)

// TrialManager - операции над триалами, нужные HTTP слою.
type TrialManager interface {
	CreateTrial(ctx context.Context, userID, email string) (domain.Trial, error)
	GetTrialStatus(ctx context.Context, userID string) (domain.TrialStatus, error)
	EndTrial(ctx context.Context, userID string) error
	CleanupExpiredTrials(ctx context.Context) (int, error)
	CanGetBetaPricing(ctx context.Context, userID string) (bool, error)
	BetaUserCount(ctx context.Context) (int, error)
	MaxBetaUsers() int
	ListActiveTrials(ctx context.Context) ([]domain.Trial, error)
}

// BetaCountResponse - состояние бета-квоты
type BetaCountResponse struct {
	BetaUserCount int `json:"betaUserCount"`
	MaxBetaUsers  int `json:"maxBetaUsers"`
}

// BetaEligibilityResponse - доступность бета-цен для пользователя
type BetaEligibilityResponse struct {
	CanGetBetaPricing bool `json:"canGetBetaPricing"`
	BetaUserCount     int  `json:"betaUserCount"`
	MaxBetaUsers      int  `json:"maxBetaUsers"`
}

// CleanupResponse - результат чистки просроченных триалов
type CleanupResponse struct {
	CleanedCount int `json:"cleanedCount"`
}

// TrialHandler обрабатывает /api/trial/*.
type TrialHandler struct {
	errorResponder
	service TrialManager
}

// NewTrialHandler создает новый экземпляр TrialHandler.
func NewTrialHandler(service TrialManager, log *logger.Logger, debug bool) *TrialHandler {
	return &TrialHandler{
		errorResponder: errorResponder{log: log.Named("trial_handler"), debug: debug},
		service:        service,
	}
}

// CreateTrial обрабатывает POST /api/trial/create. Email берется из токена.
func (h *TrialHandler) CreateTrial(c *gin.Context) {
	userID, err := requireUserID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	trial, err := h.service.CreateTrial(c.Request.Context(), userID, middleware.UserEmail(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	res.Success(c, http.StatusCreated, trial)
}

// GetStatus обрабатывает GET /api/trial/status
func (h *TrialHandler) GetStatus(c *gin.Context) {
	userID, err := requireUserID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status, err := h.service.GetTrialStatus(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	res.Success(c, http.StatusOK, status)
}

// EndTrial обрабатывает POST /api/trial/end
func (h *TrialHandler) EndTrial(c *gin.Context) {
	userID, err := requireUserID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.service.EndTrial(c.Request.Context(), userID); err != nil {
		h.respondError(c, err)
		return
	}
	res.Message(c, http.StatusOK, "Trial ended successfully")
}

// BetaCount обрабатывает публичный GET /api/trial/beta-count
func (h *TrialHandler) BetaCount(c *gin.Context) {
	count, err := h.service.BetaUserCount(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	res.Success(c, http.StatusOK, BetaCountResponse{
		BetaUserCount: count,
		MaxBetaUsers:  h.service.MaxBetaUsers(),
	})
}

// BetaEligibility обрабатывает GET /api/trial/beta-eligibility
func (h *TrialHandler) BetaEligibility(c *gin.Context) {
	userID, err := requireUserID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	eligible, err := h.service.CanGetBetaPricing(ctx, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	count, err := h.service.BetaUserCount(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}

	res.Success(c, http.StatusOK, BetaEligibilityResponse{
		CanGetBetaPricing: eligible,
		BetaUserCount:     count,
		MaxBetaUsers:      h.service.MaxBetaUsers(),
	})
}

// ListActive обрабатывает GET /api/trial/active
func (h *TrialHandler) ListActive(c *gin.Context) {
	trials, err := h.service.ListActiveTrials(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if trials == nil {
		trials = []domain.Trial{}
	}
	res.Success(c, http.StatusOK, trials)
}

// Cleanup обрабатывает POST /api/trial/cleanup
func (h *TrialHandler) Cleanup(c *gin.Context) {
	count, err := h.service.CleanupExpiredTrials(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	res.Success(c, http.StatusOK, CleanupResponse{CleanedCount: count})
}
