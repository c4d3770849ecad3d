package app

import (
	"errors"
	"net/http"

	"github.com/Dhoini/glucose-gateway/internal/config"
	"github.com/Dhoini/glucose-gateway/internal/http/handlers"
	"github.com/Dhoini/glucose-gateway/internal/metrics"
	"github.com/Dhoini/glucose-gateway/internal/middleware"
	"github.com/Dhoini/glucose-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Services - собранный сервисный слой, от которого зависят HTTP обработчики.
type Services struct {
	Trials   handlers.TrialManager
	Betas    handlers.BetaChecker
	Payments handlers.SubscriptionManager
	Verifier handlers.EventVerifier
	Webhooks handlers.EventSink
	CGM      handlers.CGMProvider

	// HealthChecks - проверки зависимостей для /health
	HealthChecks map[string]handlers.HealthCheck
}

// App представляет собой контейнер для всех компонентов HTTP слоя
type App struct {
	Config            *config.Config
	TrialHandler      *handlers.TrialHandler
	PaymentHandler    *handlers.PaymentHandler
	WebhookHandler    *handlers.WebhookHandler
	CGMHandler        *handlers.CGMHandler
	HealthHandler     *handlers.HealthHandler
	AuthMiddleware    *middleware.JWTMiddleware
	LoggerMiddleware  gin.HandlerFunc
	MetricsMiddleware gin.HandlerFunc
	MetricsHandler    http.Handler
	Logger            *logger.Logger
}

// NewApp создает обработчики и middleware поверх готовых сервисов
func NewApp(
	cfg *config.Config,
	services Services,
	validator middleware.TokenValidator,
	registry *prometheus.Registry,
	log *logger.Logger,
) *App {
	debug := cfg.IsDevelopment()

	return &App{
		Config:            cfg,
		TrialHandler:      handlers.NewTrialHandler(services.Trials, log, debug),
		PaymentHandler:    handlers.NewPaymentHandler(services.Payments, services.Betas, log, debug),
		WebhookHandler:    handlers.NewWebhookHandler(services.Verifier, services.Webhooks, log),
		CGMHandler:        handlers.NewCGMHandler(services.CGM, log, debug),
		HealthHandler:     handlers.NewHealthHandler(services.HealthChecks),
		AuthMiddleware:    middleware.NewJWTMiddleware(validator, log),
		LoggerMiddleware:  middleware.RequestLogger(log.Named("http")),
		MetricsMiddleware: metrics.NewHTTPMetrics(registry).Middleware(),
		MetricsHandler:    metrics.Handler(registry),
		Logger:            log,
	}
}

// NewTokenValidator выбирает проверку токенов: JWKS, если задан URL, иначе общий секрет.
func NewTokenValidator(cfg *config.Config, log *logger.Logger) (middleware.TokenValidator, error) {
	switch {
	case cfg.Auth.JWKSURL != "":
		log.Infow("Using JWKS token validation", "jwksURL", cfg.Auth.JWKSURL, "issuer", cfg.Auth.Issuer)
		return middleware.NewJWKSTokenValidator(cfg.Auth.JWKSURL, cfg.Auth.Issuer, cfg.Auth.Audience)
	case cfg.Auth.JWTSecret != "":
		log.Infow("Using shared secret token validation")
		return middleware.NewHMACTokenValidator(cfg.Auth.JWTSecret, cfg.Auth.Audience), nil
	default:
		return nil, errors.New("no token validation configured")
	}
}
