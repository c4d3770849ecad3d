package routes

import (
	"github.com/Dhoini/glucose-gateway/internal/app"
	"github.com/Dhoini/glucose-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SetupRoutes настраивает все маршруты API для Gin роутера
func SetupRoutes(router *gin.Engine, app *app.App, log *logger.Logger) {
	// Промежуточное ПО для всех запросов
	router.Use(app.LoggerMiddleware)
	router.Use(app.MetricsMiddleware)
	router.Use(gin.Recovery())

	router.GET("/health", app.HealthHandler.HealthCheck)
	router.GET("/metrics", gin.WrapH(app.MetricsHandler))

	api := router.Group("/api")
	requireAuth := app.AuthMiddleware.RequireAuth()

	trial := api.Group("/trial")
	{
		// Публичный счетчик бета-квоты
		trial.GET("/beta-count", app.TrialHandler.BetaCount)

		protected := trial.Group("", requireAuth)
		protected.GET("/status", app.TrialHandler.GetStatus)
		protected.POST("/create", app.TrialHandler.CreateTrial)
		protected.POST("/end", app.TrialHandler.EndTrial)
		protected.GET("/beta-eligibility", app.TrialHandler.BetaEligibility)
		protected.GET("/active", app.TrialHandler.ListActive)
		protected.POST("/cleanup", app.TrialHandler.Cleanup)
	}

	payment := api.Group("/payment")
	{
		payment.GET("/plans", app.PaymentHandler.GetPlans)
		// Вебхук проверяется подписью Stripe, а не токеном
		payment.POST("/webhook", app.WebhookHandler.HandleStripeWebhook)

		protected := payment.Group("", requireAuth)
		protected.GET("/subscription", app.PaymentHandler.GetSubscription)
		protected.POST("/subscription", app.PaymentHandler.CreateSubscription)
		protected.PUT("/subscription", app.PaymentHandler.UpdateSubscription)
		protected.DELETE("/subscription", app.PaymentHandler.CancelSubscription)
		protected.POST("/payment-intent", app.PaymentHandler.CreatePaymentIntent)
	}

	cgm := api.Group("/cgm", requireAuth)
	{
		cgm.POST("/token", app.CGMHandler.ExchangeCode)
		cgm.POST("/refresh", app.CGMHandler.RefreshToken)
		cgm.GET("/readings", app.CGMHandler.GetReadings)
	}

	log.Infow("API routes successfully configured")
}
