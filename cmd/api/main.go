// Package main is the entrypoint for the Courier API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/courierchat/courier/internal/audit"
	"github.com/courierchat/courier/internal/auth"
	"github.com/courierchat/courier/internal/cache"
	"github.com/courierchat/courier/internal/config"
	"github.com/courierchat/courier/internal/handler"
	"github.com/courierchat/courier/internal/metrics"
	"github.com/courierchat/courier/internal/middleware"
	"github.com/courierchat/courier/internal/repository"
	"github.com/courierchat/courier/internal/server"
	"github.com/courierchat/courier/internal/service"
	"github.com/courierchat/courier/internal/token"
	"github.com/courierchat/courier/internal/webhook"
)

func main() {
	// Initialize context
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Run database migrations
	migrator, err := repository.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to create migrator",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	if err := migrator.Up(); err != nil {
		logger.Error(
			"failed to run migrations",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("failed to close migrator", "error", err)
	}
	logger.Info("database migrations applied")

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Webhook storage uses database/sql on top of the same database.
	webhookDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to open webhook database handle",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer webhookDB.Close()

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Initialize auth primitives
	tokenService := token.New([]byte(cfg.TokenSecret), cfg.TokenTTL)
	gate := auth.NewGate(tokenService)
	hasher := auth.NewArgon2Hasher()

	// Initialize metrics and background publishers
	recorder := metrics.NewInMemory()
	auditPublisher := audit.NewPublisher(cacheClient.Client(), logger, recorder)
	webhookRepo := webhook.NewRepository(webhookDB)
	webhookPublisher := webhook.NewPublisher(webhookRepo, logger)

	// Initialize services
	accountService := service.NewAccountService(
		repo,
		hasher,
		tokenService,
		gate,
		cacheClient,
		recorder,
		auditPublisher,
		webhookPublisher,
		logger,
	)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	metricsHandler := handler.NewMetricsHandler(recorder)
	accountHandler := handler.NewAccountHandler(accountService, logger)
	webhookHandler := handler.NewWebhookHandler(webhookRepo, logger, cfg.WebhookAllowInsecure)

	// Setup router
	r := setupRouter(
		healthHandler,
		metricsHandler,
		accountHandler,
		webhookHandler,
		gate,
		repo,
		cacheClient,
		cfg,
		logger,
	)

	// Create server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Start background workers
	workerCtx, stopWorkers := context.WithCancel(ctx)

	auditWorker := audit.NewWorker(
		cacheClient.Client(),
		repository.NewAuthEventRepository(repo),
		logger,
		audit.NewConsumerID(),
		recorder,
	)
	go func() {
		if err := auditWorker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("audit worker stopped", "error", err)
		}
	}()

	deliveryWorker := webhook.NewWorker(webhookRepo, logger, recorder)
	deliveryDone := make(chan struct{})
	go func() {
		defer close(deliveryDone)
		if err := deliveryWorker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("webhook worker stopped", "error", err)
		}
	}()

	// Hooks run LIFO: the audit worker drains its in-flight batch before the
	// shared worker context is cancelled.
	srv.OnShutdown("webhook worker", func(shutdownCtx context.Context) error {
		stopWorkers()
		select {
		case <-deliveryDone:
			return nil
		case <-shutdownCtx.Done():
			return shutdownCtx.Err()
		}
	})
	srv.OnShutdown("audit worker", auditWorker.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	healthHandler *handler.HealthHandler,
	metricsHandler *handler.MetricsHandler,
	accountHandler *handler.AccountHandler,
	webhookHandler *handler.WebhookHandler,
	gate *auth.Gate,
	repo *repository.Repository,
	cacheClient *cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.DefaultSecurityConfig()))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	// Account endpoints. Mutations carry the session token in the path.
	r.Post("/create/user", accountHandler.Create)
	r.Post("/login/{email}", accountHandler.Login)
	r.Delete("/user/delete/{email}/{token}", accountHandler.Delete)
	r.Put("/update/user/{email}/{token}", accountHandler.Update)
	r.Get("/user/{email}", accountHandler.Get)
	r.Get("/list/users", accountHandler.List)

	// Session auth middleware configuration
	sessionCfg := middleware.SessionAuthConfig{
		Logger:     logger,
		Gate:       gate,
		Repository: repo,
		Cache:      cacheClient,
	}

	// API v1 routes (require a bearer session token)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SessionAuth(sessionCfg))

		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", webhookHandler.List)
			r.Post("/", webhookHandler.Create)
			r.Get("/{id}", webhookHandler.Get)
			r.Patch("/{id}", webhookHandler.Update)
			r.Delete("/{id}", webhookHandler.Delete)
			r.Post("/{id}/rotate-secret", webhookHandler.RotateSecret)
			r.Get("/{id}/deliveries", webhookHandler.ListDeliveries)
			r.Post("/{id}/deliveries/{delivery_id}/retry", webhookHandler.RetryDelivery)
		})
	})

	// 404 and 405 handlers
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
