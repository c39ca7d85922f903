// AngelaMos | 2026
// handler.go

package subscription

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/carterperez-dev/assignly/internal/core"
	"github.com/carterperez-dev/assignly/internal/middleware"
)

const streamHeartbeat = 25 * time.Second

// ChangeSource delivers a user's change events until ctx is done, then
// closes the channel.
type ChangeSource interface {
	Subscribe(ctx context.Context, userID string) <-chan Change
}

type Handler struct {
	manager *Manager
	changes ChangeSource
}

func NewHandler(manager *Manager, changes ChangeSource) *Handler {
	return &Handler{
		manager: manager,
		changes: changes,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/subscription", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/", h.GetStatus)
		r.Get("/usage", h.GetUsage)
		r.Post("/usage", h.RecordUsage)
		r.Get("/features/{feature}", h.CheckFeature)
		r.Get("/events", h.StreamEvents)
	})
}

// GetStatus is display-only and fails open: a store outage renders as
// status "unknown" instead of an error page.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	sub, err := h.manager.GetOrCreate(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			slog.WarnContext(r.Context(), "subscription status unknown",
				"user_id", userID,
				"error", err,
			)
			core.OK(w, StatusResponse{Known: false, Status: "unknown"})
			return
		}
		writeError(w, err)
		return
	}

	resp := ToSubscriptionResponse(sub)
	badge := h.manager.Badge(sub)
	core.OK(w, StatusResponse{
		Known:        true,
		Status:       string(badge.Status),
		Subscription: &resp,
		Badge:        &badge,
	})
}

func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	sub, err := h.manager.GetOrCreate(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ToUsageResponse(sub))
}

// RecordUsage is called by the generator once an assignment is saved.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.manager.RecordAssignmentCreated(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	feature := Feature(chi.URLParam(r, "feature"))

	access := h.manager.CheckFeatureAccess(r.Context(), userID, feature)

	core.OK(w, FeatureAccessResponse{
		Feature: feature,
		Access:  access,
		Granted: access.Granted(),
	})
}

// StreamEvents pushes the current record and every later change as
// Datastar signal patches.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	//nolint:errcheck // not every ResponseWriter supports deadlines
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	changes := h.changes.Subscribe(ctx, userID)
	sse := datastar.NewSSE(w, r)

	if sub, err := h.manager.GetOrCreate(ctx, userID); err == nil {
		if err := sse.MarshalAndPatchSignals(signalsFor(sub)); err != nil {
			return
		}
	}

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			heartbeat := map[string]any{"subscriptionHeartbeat": time.Now().Unix()}
			if err := sse.MarshalAndPatchSignals(heartbeat); err != nil {
				return
			}
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := sse.MarshalAndPatchSignals(map[string]any{
				"subscription":       change.Subscription,
				"subscriptionChange": change.Kind,
			}); err != nil {
				return
			}
		}
	}
}

func signalsFor(sub *Subscription) map[string]any {
	return map[string]any{
		"subscription": ToSubscriptionResponse(sub),
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, err.Error())
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "subscription")
	case errors.Is(err, ErrStoreUnavailable):
		slog.Error("subscription store unavailable", "error", err)
		core.Unavailable(w, "subscription status is temporarily unavailable")
	default:
		core.InternalServerError(w, err)
	}
}
