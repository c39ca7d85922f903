// AngelaMos | 2026
// handler_test.go

package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/assignly/internal/core"
	"github.com/carterperez-dev/assignly/internal/middleware"
	"github.com/carterperez-dev/assignly/internal/subscription"
)

type fakeSubscriptions struct {
	err      error
	granted  []subscription.Plan
	resets   []string
	lookups  []string
	provider string
}

func (f *fakeSubscriptions) row(userID string) *subscription.Subscription {
	return &subscription.Subscription{
		UserID:          userID,
		PlanID:          subscription.PlanFree,
		Status:          subscription.StatusFree,
		AssignmentLimit: subscription.DefaultFreeAssignmentLimit,
		TrialEndDate:    time.Date(2026, 10, 25, 9, 30, 0, 0, time.UTC),
		CreatedAt:       time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
	}
}

func (f *fakeSubscriptions) GetOrCreate(
	_ context.Context,
	userID string,
) (*subscription.Subscription, error) {
	f.lookups = append(f.lookups, userID)
	if f.err != nil {
		return nil, f.err
	}
	return f.row(userID), nil
}

func (f *fakeSubscriptions) ResetUsage(
	_ context.Context,
	userID string,
) (*subscription.Subscription, error) {
	f.resets = append(f.resets, userID)
	if f.err != nil {
		return nil, f.err
	}
	return f.row(userID), nil
}

func (f *fakeSubscriptions) ApplyPlanUpgrade(
	_ context.Context,
	userID string,
	plan subscription.Plan,
	providerSubscriptionID string,
) (*subscription.Subscription, error) {
	f.granted = append(f.granted, plan)
	f.provider = providerSubscriptionID
	if f.err != nil {
		return nil, f.err
	}
	sub := f.row(userID)
	sub.PlanID = plan
	sub.Status = subscription.StatusActive
	sub.AssignmentLimit = subscription.Unlimited
	sub.HasCalendarAccess = true
	sub.ProviderSubscriptionID = &providerSubscriptionID
	return sub, nil
}

func newAdminRouter(cfg HandlerConfig, role string) http.Handler {
	authenticate := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.WithClaims(r.Context(), &middleware.AccessTokenClaims{
				UserID: "operator-1",
				Role:   role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}

	r := chi.NewRouter()
	NewHandler(cfg).RegisterRoutes(r, authenticate, middleware.RequireAdmin)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	subs := &fakeSubscriptions{}
	router := newAdminRouter(HandlerConfig{Subscriptions: subs}, "authenticated")

	code, env := do(t, router, http.MethodPost, "/admin/subscriptions/user-1/reset-usage", "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
	assert.Empty(t, subs.resets)
}

func TestAdmin_GetSubscription(t *testing.T) {
	subs := &fakeSubscriptions{}
	router := newAdminRouter(HandlerConfig{Subscriptions: subs}, middleware.RoleAdmin)

	code, env := do(t, router, http.MethodGet, "/admin/subscriptions/user-9/", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"user-9"}, subs.lookups)

	var got subscription.SubscriptionResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, subscription.PlanFree, got.PlanID)
}

func TestAdmin_ResetUsage(t *testing.T) {
	subs := &fakeSubscriptions{}
	router := newAdminRouter(HandlerConfig{Subscriptions: subs}, middleware.RoleAdmin)

	code, _ := do(t, router, http.MethodPost, "/admin/subscriptions/user-1/reset-usage", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"user-1"}, subs.resets)
}

func TestAdmin_GrantPlan(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		status  int
		code    string
		granted bool
	}{
		{
			name:    "pro",
			body:    `{"plan":"pro","provider_subscription_id":"I-MANUAL1"}`,
			status:  http.StatusOK,
			granted: true,
		},
		{
			name:   "free is not grantable",
			body:   `{"plan":"free","provider_subscription_id":"I-MANUAL1"}`,
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name:   "missing provider id",
			body:   `{"plan":"basic"}`,
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name:   "malformed body",
			body:   `{"plan":`,
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name:    "store down",
			body:    `{"plan":"basic","provider_subscription_id":"I-MANUAL1"}`,
			err:     fmt.Errorf("apply upgrade: %w", subscription.ErrStoreUnavailable),
			status:  http.StatusServiceUnavailable,
			code:    "SERVICE_UNAVAILABLE",
			granted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := &fakeSubscriptions{err: tt.err}
			router := newAdminRouter(HandlerConfig{Subscriptions: subs}, middleware.RoleAdmin)

			code, env := do(t, router, http.MethodPost, "/admin/subscriptions/user-1/grant", tt.body)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.granted, len(subs.granted) == 1)
			if tt.code != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.code, env.Error.Code)
				return
			}

			var got subscription.SubscriptionResponse
			require.NoError(t, json.Unmarshal(env.Data, &got))
			assert.Equal(t, subscription.PlanPro, got.PlanID)
			assert.Equal(t, "I-MANUAL1", subs.provider)
		})
	}
}

func TestAdmin_SystemStats(t *testing.T) {
	router := newAdminRouter(HandlerConfig{
		DBStats: func() sql.DBStats {
			return sql.DBStats{MaxOpenConnections: 25, OpenConnections: 3, InUse: 1, Idle: 2}
		},
		RedisStats: func() *redis.PoolStats {
			return &redis.PoolStats{TotalConns: 4, IdleConns: 3}
		},
		DBPing:        func(context.Context) error { return nil },
		RedisPing:     func(context.Context) error { return errors.New("dial tcp: refused") },
		Subscriptions: &fakeSubscriptions{},
	}, middleware.RoleAdmin)

	code, env := do(t, router, http.MethodGet, "/admin/stats", "")
	require.Equal(t, http.StatusOK, code)

	var stats SystemStatsResponse
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.True(t, stats.Database.Healthy)
	require.NotNil(t, stats.Database.Stats)
	assert.Equal(t, 25, stats.Database.Stats.MaxOpenConnections)
	assert.False(t, stats.Redis.Healthy)
	assert.Equal(t, uint32(4), stats.Redis.Stats.TotalConns)
	assert.NotEmpty(t, stats.Runtime.GoVersion)
}

func TestWriteSubscriptionError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("get: %w", core.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("get: %w", core.ErrNotFound), http.StatusNotFound},
		{subscription.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeSubscriptionError(rec, tt.err)
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
	}
}
