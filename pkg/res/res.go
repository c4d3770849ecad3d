package res

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope - единый формат всех ответов API: {success, data?, error?}.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Details   any    `json:"details,omitempty"`   // Детали ошибки (например, ошибки валидации)
	DebugInfo string `json:"debugInfo,omitempty"` // Отладочная информация (ТОЛЬКО в development среде!)
}

// JsonResponse отправляет JSON-ответ с заданным статусом.
func JsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Success отправляет успешный ответ с данными.
func Success(c *gin.Context, status int, data any) {
	JsonResponse(c.Writer, Envelope{Success: true, Data: data}, status)
}

// Message отправляет успешный ответ только с сообщением.
func Message(c *gin.Context, status int, msg string) {
	JsonResponse(c.Writer, Envelope{Success: true, Message: msg}, status)
}

// Fail отправляет ответ об ошибке и прерывает цепочку обработчиков gin.
func Fail(c *gin.Context, status int, errResponse Envelope) {
	errResponse.Success = false
	JsonResponse(c.Writer, errResponse, status)
	c.Abort()
}
