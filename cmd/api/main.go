// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/assignly/internal/admin"
	"github.com/carterperez-dev/assignly/internal/auth"
	"github.com/carterperez-dev/assignly/internal/billing"
	"github.com/carterperez-dev/assignly/internal/config"
	"github.com/carterperez-dev/assignly/internal/core"
	"github.com/carterperez-dev/assignly/internal/events"
	"github.com/carterperez-dev/assignly/internal/health"
	"github.com/carterperez-dev/assignly/internal/middleware"
	"github.com/carterperez-dev/assignly/internal/paypal"
	"github.com/carterperez-dev/assignly/internal/server"
	"github.com/carterperez-dev/assignly/internal/subscription"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, logger); err != nil {
			return err
		}
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	logger.Info("token verifier initialized", "mode", verifier.Mode())

	hub := events.NewHub(cfg.Events.BufferSize)
	bus := events.NewRedisBus(redis.Client, cfg.Events.Channel, hub, logger)

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	go func() {
		if err := bus.Relay(relayCtx, nil); err != nil {
			logger.Error("subscription event relay stopped", "error", err)
		}
	}()

	manager := subscription.NewManager(
		subscription.NewRepository(db.DB),
		subscription.ManagerConfig{
			FreeAssignmentLimit: cfg.Subscription.FreeAssignmentLimit,
			TrialWindow:         cfg.Subscription.TrialWindow,
			Publisher:           bus,
			Logger:              logger,
		},
	)
	subscriptionHandler := subscription.NewHandler(manager, hub)

	healthHandler := health.NewHandler(
		health.Check{Name: "database", Checker: db},
		health.Check{Name: "redis", Checker: redis},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:       db.Stats,
		RedisStats:    redis.PoolStats,
		DBPing:        db.Ping,
		RedisPing:     redis.Ping,
		Subscriptions: manager,
	})

	var billingHandler *billing.Handler
	if cfg.PayPal.Enabled() {
		billingHandler = billing.NewHandler(billing.HandlerConfig{
			Provider: paypal.NewClient(cfg.PayPal),
			Upgrader: manager,
			Events:   billing.NewRedisEventLog(redis.Client),
			Plans:    cfg.PayPal.Plans,
			Logger:   logger,
		})
		logger.Info("paypal billing enabled", "base_url", cfg.PayPal.BaseURL)
	} else {
		logger.Warn("paypal billing disabled, upgrades only via admin grant")
	}

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})
	srv.OnShutdown(hub.Close)

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Tracing)
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			FailOpen: true,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	authenticator := chainAuth(
		middleware.Authenticator(verifier),
		middleware.TieredRateLimiter(
			redis.Client,
			tierConfigs(cfg.RateLimit.Tiers),
			planResolver(manager),
		),
	)
	adminOnly := middleware.RequireAdmin

	router.Route("/v1", func(r chi.Router) {
		subscriptionHandler.RegisterRoutes(r, authenticator)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)
		if billingHandler != nil {
			billingHandler.RegisterRoutes(r, authenticator)
		}
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	stopRelay()
	hub.Close()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func chainAuth(
	mws ...func(http.Handler) http.Handler,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

func tierConfigs(
	tiers map[string]config.TierConfig,
) map[string]middleware.TierConfig {
	out := make(map[string]middleware.TierConfig, len(tiers))
	for name, t := range tiers {
		out[name] = middleware.TierConfig{
			RequestsPerMinute: t.RequestsPerMinute,
			BurstSize:         t.BurstSize,
		}
	}
	return out
}

// planResolver picks the rate limit tier from the caller's plan. Lookups
// that fail fall back to the free tier.
func planResolver(manager *subscription.Manager) middleware.PlanResolver {
	return func(ctx context.Context, userID string) string {
		sub, err := manager.GetOrCreate(ctx, userID)
		if err != nil {
			return ""
		}
		return string(sub.PlanID)
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
