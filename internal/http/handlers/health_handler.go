package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/Dhoini/glucose-gateway/pkg/res"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck проверяет одну внешнюю зависимость (БД, кеш).
type HealthCheck func(ctx context.Context) error

// HealthResponse - состояние сервиса и его зависимостей
type HealthResponse struct {
	Status string            `json:"status"`
	Time   string            `json:"time"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler обработчик для проверки работоспособности сервиса
type HealthHandler struct {
	checks map[string]HealthCheck
}

// NewHealthHandler создает обработчик. Без проверок сервис всегда "ok".
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HealthCheck обрабатывает GET /health. Сбой любой зависимости дает 503.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	response := HealthResponse{Status: "ok", Time: time.Now().UTC().Format(time.RFC3339)}
	for _, name := range names {
		if response.Checks == nil {
			response.Checks = make(map[string]string, len(names))
		}
		if err := h.checks[name](ctx); err != nil {
			response.Checks[name] = err.Error()
			response.Status = "degraded"
			continue
		}
		response.Checks[name] = "ok"
	}

	if response.Status != "ok" {
		res.JsonResponse(c.Writer, res.Envelope{Success: false, Data: response, Error: "Dependency check failed"}, http.StatusServiceUnavailable)
		return
	}
	res.Success(c, http.StatusOK, response)
}
