package middleware

import (
	"time"

	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RequestLogger - Gin middleware для логирования запросов.
// Тела запросов и токены в лог не попадают.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []any{
			"status_code", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if userID, ok := UserID(c); ok {
			fields = append(fields, "userID", userID)
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Errorw("Request handled", fields...)
		case status >= 400:
			log.Warnw("Request handled", fields...)
		default:
			log.Infow("Request handled", fields...)
		}
	}
}
