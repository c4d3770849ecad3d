package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Dhoini/glucose-gateway/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const (
	testUserID = "3f8e7c1a-0000-4000-8000-000000000001"
	testEmail  = "user@example.com"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details"`
	DebugInfo string          `json:"debugInfo"`
}

// newRouter эмулирует auth middleware: пустой userID - запрос без пользователя.
func newRouter(userID string) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set(string(middleware.ContextUserIDKey), userID)
			c.Set(string(middleware.ContextUserEmailKey), testEmail)
		}
		c.Next()
	})
	return router
}

func perform(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeData(t *testing.T, env envelope, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, target))
}

func assertStatus(t *testing.T, want int, w *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, want, w.Code, w.Body.String())
	require.Equal(t, want < http.StatusBadRequest, decode(t, w).Success)
}
