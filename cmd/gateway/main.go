package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/app"
	"github.com/Dhoini/glucose-gateway/internal/cgm"
	"github.com/Dhoini/glucose-gateway/internal/config"
	"github.com/Dhoini/glucose-gateway/internal/grpcserver"
	"github.com/Dhoini/glucose-gateway/internal/http/handlers"
	"github.com/Dhoini/glucose-gateway/internal/http/routes"
	"github.com/Dhoini/glucose-gateway/internal/kafka"
	"github.com/Dhoini/glucose-gateway/internal/metrics"
	"github.com/Dhoini/glucose-gateway/internal/repository"
	"github.com/Dhoini/glucose-gateway/internal/repository/postgres"
	"github.com/Dhoini/glucose-gateway/internal/service"
	"github.com/Dhoini/glucose-gateway/internal/stripe"
	"github.com/Dhoini/glucose-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Контекст отменяется сигналом и останавливает фоновые задачи
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(".env")
	if err != nil {
		logger.New(logger.INFO).Fatalw("Failed to load configuration", "error", err)
	}

	log := initLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Infow("Glucose gateway starting up...", "env", cfg.App.Env)

	if err := cfg.Validate(); err != nil {
		log.Fatalw("Invalid configuration", "error", err)
	}
	if cfg.Stripe.APIKey == "" || cfg.Stripe.APIKey == "sk_test_YourSecretKeyHere" {
		log.Warnw("Stripe API Key is not set or is using the default placeholder!")
	}
	if cfg.Stripe.WebhookSecret == "" {
		log.Warnw("Stripe webhook secret is not set, webhook deliveries will be rejected")
	}

	// Устанавливаем режим Gin в зависимости от окружения
	if cfg.App.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := metrics.NewRegistry()
	gatewayMetrics := metrics.NewGatewayMetrics(registry)

	storage := initStores(ctx, cfg, log)
	defer storage.close()

	producer := initProducer(ctx, cfg, log)
	defer func() {
		if err := producer.Close(); err != nil {
			log.Errorw("Error closing Kafka producer", "error", err)
		}
	}()

	// Инициализируем service layer
	trialService := service.NewTrialService(storage.trials, producer, gatewayMetrics, log)
	paymentService := service.NewPaymentService(
		service.NewPlanCatalog(cfg.Stripe.Prices),
		trialService,
		storage.subscriptions,
		stripe.NewStripeClient(cfg.Stripe.APIKey, log),
		producer,
		gatewayMetrics,
		log,
	)
	webhookService := service.NewWebhookService(storage.subscriptions, gatewayMetrics, log)
	cgmClient := cgm.NewClient(cgm.Config{
		BaseURL:      cfg.CGM.BaseURL,
		ClientID:     cfg.CGM.ClientID,
		ClientSecret: cfg.CGM.ClientSecret,
		RedirectURL:  cfg.CGM.RedirectURL,
		Timeout:      cfg.CGM.Timeout,
	}, log)

	validator, err := app.NewTokenValidator(cfg, log)
	if err != nil {
		log.Fatalw("Failed to initialize token validator", "error", err)
	}

	application := app.NewApp(cfg, app.Services{
		Trials:   trialService,
		Betas:    trialService,
		Payments: paymentService,
		Verifier: stripe.NewWebhookVerifier(cfg.Stripe.WebhookSecret),
		Webhooks: webhookService,
		CGM:      cgmClient,

		HealthChecks: storage.checks,
	}, validator, registry, log)

	router := gin.New()
	routes.SetupRoutes(router, application, log)

	httpServer := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Запускаем HTTP сервер в горутине
	go func() {
		log.Infow("Starting HTTP server", "port", cfg.App.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	var grpcServer *grpcserver.Server
	if cfg.GRPC.Port != "" {
		grpcServer = startGRPC(cfg.GRPC.Port, log)
	}

	if cfg.Trial.SweepInterval > 0 {
		go trialService.RunExpirySweep(ctx, cfg.Trial.SweepInterval)
	}

	// --- Graceful Shutdown ---
	<-ctx.Done()
	log.Infow("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	log.Infow("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	} else {
		log.Infow("HTTP server gracefully stopped")
	}

	log.Infow("Cleanup finished. Goodbye!")
}

func initLogger(cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.App.LogLevel)
	if cfg.IsDevelopment() {
		return logger.NewDevelopment(level)
	}
	return logger.New(level)
}

type stores struct {
	trials        repository.TrialRepository
	subscriptions repository.SubscriptionRepository
	checks        map[string]handlers.HealthCheck
	closers       []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// initStores выбирает хранилища: Postgres, если задан DSN, иначе память процесса.
// Redis, если доступен, кеширует проекции подписок.
func initStores(ctx context.Context, cfg *config.Config, log *logger.Logger) *stores {
	s := &stores{checks: make(map[string]handlers.HealthCheck)}

	if cfg.Database.DSN != "" {
		pool, err := postgres.NewConnection(ctx, cfg.Database.DSN, cfg.Database.MaxConns, log)
		if err != nil {
			log.Fatalw("Failed to connect to database", "error", err)
		}
		s.closers = append(s.closers, pool.Close)
		s.checks["postgres"] = pool.Ping

		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, pool, log); err != nil {
				log.Fatalw("Failed to apply migrations", "error", err)
			}
		}

		s.trials = postgres.NewTrialRepository(pool, log)
		s.subscriptions = postgres.NewSubscriptionRepository(pool, log)
		log.Infow("Using Postgres storage")
	} else {
		s.trials = repository.NewInMemoryTrialRepository(log)
		s.subscriptions = repository.NewInMemorySubscriptionRepository(log)
		log.Warnw("Database DSN is not set, using in-memory storage")
	}

	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			// Не фатально, но предупреждаем
			log.Warnw("Failed to initialize Redis cache, continuing without caching", "error", err)
		} else {
			cache := repository.NewRedisCacheRepository(redisClient, log)
			s.closers = append(s.closers, func() {
				if err := cache.Close(); err != nil {
					log.Errorw("Error closing Redis connection", "error", err)
				}
			})
			s.checks["redis"] = func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}
			s.subscriptions = repository.NewCachedSubscriptionRepository(s.subscriptions, cache, log)
			log.Infow("Using cached subscription repository")
		}
	}

	return s
}

// initProducer подключает Kafka, если заданы брокеры. Без Kafka события только логируются.
func initProducer(ctx context.Context, cfg *config.Config, log *logger.Logger) kafka.Producer {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Infow("Kafka brokers are not set, event publishing disabled")
		return kafka.NewNopProducer(log)
	}

	if err := kafka.EnsureKafkaTopics(ctx, cfg.Kafka.Brokers, log); err != nil {
		log.Warnw("Failed to ensure Kafka topics", "error", err)
	}

	producer, err := kafka.NewKafkaProducer(cfg.Kafka.Brokers, log)
	if err != nil {
		log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		return kafka.NewNopProducer(log)
	}
	log.Infow("Kafka producer initialized", "brokers", cfg.Kafka.Brokers)
	return producer
}

func startGRPC(port string, log *logger.Logger) *grpcserver.Server {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		log.Fatalw("Failed to listen for gRPC", "error", err)
	}

	server := grpcserver.New(log)
	go func() {
		if err := server.Serve(listener); err != nil {
			log.Errorw("gRPC server stopped with error", "error", err)
		}
	}()
	server.SetServing(true)
	return server
}
