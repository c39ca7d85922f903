// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/assignly/internal/core"
	"github.com/carterperez-dev/assignly/internal/middleware"
	"github.com/carterperez-dev/assignly/internal/subscription"
)

// Subscriptions is the slice of the subscription manager operators use.
type Subscriptions interface {
	GetOrCreate(
		ctx context.Context,
		userID string,
	) (*subscription.Subscription, error)
	ResetUsage(
		ctx context.Context,
		userID string,
	) (*subscription.Subscription, error)
	ApplyPlanUpgrade(
		ctx context.Context,
		userID string,
		plan subscription.Plan,
		providerSubscriptionID string,
	) (*subscription.Subscription, error)
}

type Handler struct {
	dbStats       func() sql.DBStats
	redisStats    func() *redis.PoolStats
	redisPing     func(ctx context.Context) error
	dbPing        func(ctx context.Context) error
	subscriptions Subscriptions
	validate      *validator.Validate
}

type HandlerConfig struct {
	DBStats       func() sql.DBStats
	RedisStats    func() *redis.PoolStats
	RedisPing     func(ctx context.Context) error
	DBPing        func(ctx context.Context) error
	Subscriptions Subscriptions
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		dbStats:       cfg.DBStats,
		redisStats:    cfg.RedisStats,
		redisPing:     cfg.RedisPing,
		dbPing:        cfg.DBPing,
		subscriptions: cfg.Subscriptions,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/stats", h.GetSystemStats)

		r.Route("/subscriptions/{userID}", func(r chi.Router) {
			r.Get("/", h.GetSubscription)
			r.Post("/reset-usage", h.ResetUsage)
			r.Post("/grant", h.GrantPlan)
		})
	})
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbHealthy := true
	if h.dbPing != nil {
		if err := h.dbPing(ctx); err != nil {
			dbHealthy = false
		}
	}

	redisHealthy := true
	if h.redisPing != nil {
		if err := h.redisPing(ctx); err != nil {
			redisHealthy = false
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	core.OK(w, SystemStatsResponse{
		Database: DatabaseStatus{
			Healthy: dbHealthy,
			Stats:   h.getDBStats(),
		},
		Redis: RedisStatus{
			Healthy: redisHealthy,
			Stats:   h.getRedisStats(),
		},
		Runtime: RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     memStats.Alloc,
			MemSys:       memStats.Sys,
			NumGC:        memStats.NumGC,
		},
	})
}

func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscriptions.GetOrCreate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeSubscriptionError(w, err)
		return
	}

	core.OK(w, subscription.ToSubscriptionResponse(sub))
}

func (h *Handler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	sub, err := h.subscriptions.ResetUsage(r.Context(), userID)
	if err != nil {
		writeSubscriptionError(w, err)
		return
	}

	middleware.LogAudit(r, "subscription usage reset", "target_user_id", userID)
	core.OK(w, subscription.ToSubscriptionResponse(sub))
}

// GrantPlan applies a paid plan by hand, e.g. after a payment was settled
// outside the provider's subscription flow.
func (h *Handler) GrantPlan(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req GrantPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	sub, err := h.subscriptions.ApplyPlanUpgrade(
		r.Context(),
		userID,
		subscription.Plan(req.Plan),
		req.ProviderSubscriptionID,
	)
	if err != nil {
		writeSubscriptionError(w, err)
		return
	}

	middleware.LogAudit(r, "subscription plan granted",
		"target_user_id", userID,
		"plan", req.Plan,
	)
	core.OK(w, subscription.ToSubscriptionResponse(sub))
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
	}
}

func writeSubscriptionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, err.Error())
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "subscription")
	case errors.Is(err, subscription.ErrStoreUnavailable):
		core.Unavailable(w, "subscription store unavailable")
	default:
		core.InternalServerError(w, err)
	}
}

type GrantPlanRequest struct {
	Plan                   string `json:"plan"                     validate:"required,oneof=basic pro"`
	ProviderSubscriptionID string `json:"provider_subscription_id" validate:"required,max=128"`
}

type SystemStatsResponse struct {
	Database DatabaseStatus `json:"database"`
	Redis    RedisStatus    `json:"redis"`
	Runtime  RuntimeStats   `json:"runtime"`
}

type DatabaseStatus struct {
	Healthy bool         `json:"healthy"`
	Stats   *DBPoolStats `json:"stats,omitempty"`
}

type RedisStatus struct {
	Healthy bool            `json:"healthy"`
	Stats   *RedisPoolStats `json:"stats,omitempty"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}
