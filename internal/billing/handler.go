// AngelaMos | 2026
// handler.go

package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/assignly/internal/config"
	"github.com/carterperez-dev/assignly/internal/core"
	"github.com/carterperez-dev/assignly/internal/middleware"
	"github.com/carterperez-dev/assignly/internal/paypal"
	"github.com/carterperez-dev/assignly/internal/subscription"
)

const maxWebhookBytes = 64 << 10

type Provider interface {
	GetSubscription(ctx context.Context, id string) (*paypal.Subscription, error)
	VerifyWebhookSignature(ctx context.Context, header http.Header, body []byte) error
}

type Upgrader interface {
	ApplyPlanUpgrade(
		ctx context.Context,
		userID string,
		plan subscription.Plan,
		providerSubscriptionID string,
	) (*subscription.Subscription, error)
}

// EventLog remembers webhook deliveries that were fully handled.
type EventLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Handler struct {
	provider Provider
	upgrader Upgrader
	events   EventLog
	plans    map[string]subscription.Plan
	logger   *slog.Logger
	validate *validator.Validate
}

type HandlerConfig struct {
	Provider Provider
	Upgrader Upgrader
	Events   EventLog
	Plans    config.PayPalPlans
	Logger   *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	plans := make(map[string]subscription.Plan, 2)
	if cfg.Plans.Basic != "" {
		plans[cfg.Plans.Basic] = subscription.PlanBasic
	}
	if cfg.Plans.Pro != "" {
		plans[cfg.Plans.Pro] = subscription.PlanPro
	}

	return &Handler{
		provider: cfg.Provider,
		upgrader: cfg.Upgrader,
		events:   cfg.Events,
		plans:    plans,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.With(authenticator).Post("/billing/paypal/confirm", h.Confirm)
	r.Post("/webhooks/paypal", h.Webhook)
}

// Confirm is called by the checkout page once the buyer approved the
// subscription. The provider is asked directly; nothing in the request
// body is trusted beyond the subscription id.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	remote, err := h.provider.GetSubscription(ctx, req.SubscriptionID)
	if err != nil {
		if errors.Is(err, paypal.ErrSubscriptionNotFound) {
			core.NotFound(w, "paypal subscription")
			return
		}
		h.logger.ErrorContext(ctx, "paypal lookup failed",
			"subscription_id", req.SubscriptionID,
			"error", err,
		)
		core.Unavailable(w, "payment provider unavailable")
		return
	}

	// custom_id is optional at checkout. When it is set it names the owner.
	if remote.CustomID != "" && remote.CustomID != userID {
		h.logger.WarnContext(ctx, "paypal subscription owner mismatch",
			"user_id", userID,
			"subscription_id", remote.ID,
		)
		core.Forbidden(w, "subscription belongs to another account")
		return
	}

	if !remote.Paid() {
		core.JSONError(w, core.PaymentRequiredError(
			"subscription is not active yet"))
		return
	}

	plan, ok := h.plans[remote.PlanID]
	if !ok {
		h.logger.WarnContext(ctx, "unknown paypal plan",
			"plan_id", remote.PlanID,
			"subscription_id", remote.ID,
		)
		core.BadRequest(w, "unknown billing plan")
		return
	}

	sub, err := h.upgrader.ApplyPlanUpgrade(ctx, userID, plan, remote.ID)
	if err != nil {
		writeUpgradeError(w, err)
		return
	}

	core.OK(w, subscription.ToSubscriptionResponse(sub))
}

// Webhook receives PayPal notifications. A non-2xx answer makes PayPal
// retry, so only transient failures return one.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		core.BadRequest(w, "unreadable body")
		return
	}

	if err := h.provider.VerifyWebhookSignature(ctx, r.Header, body); err != nil {
		if errors.Is(err, paypal.ErrInvalidSignature) {
			h.logger.WarnContext(ctx, "rejected paypal webhook", "error", err)
			core.BadRequest(w, "invalid webhook signature")
			return
		}
		h.logger.ErrorContext(ctx, "paypal webhook verification failed",
			"error", err,
		)
		core.Unavailable(w, "payment provider unavailable")
		return
	}

	var event paypal.Event
	if err := json.Unmarshal(body, &event); err != nil {
		core.BadRequest(w, "invalid webhook payload")
		return
	}

	if h.alreadyHandled(ctx, event.ID) {
		core.OK(w, WebhookResponse{Received: true, Duplicate: true})
		return
	}

	if err := h.handleEvent(ctx, &event); err != nil {
		core.Unavailable(w, "subscription store unavailable")
		return
	}

	h.markHandled(ctx, event.ID)
	core.OK(w, WebhookResponse{Received: true})
}

// handleEvent returns an error only when the delivery should be retried.
func (h *Handler) handleEvent(ctx context.Context, event *paypal.Event) error {
	logger := h.logger.With(
		"event_id", event.ID,
		"event_type", event.EventType,
	)

	switch event.EventType {
	case paypal.EventSubscriptionActivated, paypal.EventSubscriptionUpdated:
		remote, err := event.SubscriptionResource()
		if err != nil {
			logger.WarnContext(ctx, "undecodable subscription resource",
				"error", err)
			return nil
		}
		return h.activate(ctx, logger, remote)

	case paypal.EventSubscriptionCancelled,
		paypal.EventSubscriptionSuspended,
		paypal.EventSubscriptionExpired:
		// Paid access runs until a downgrade policy exists; record only.
		remote, err := event.SubscriptionResource()
		if err == nil {
			logger = logger.With(
				"subscription_id", remote.ID,
				"user_id", remote.CustomID,
			)
		}
		logger.InfoContext(ctx, "paypal subscription ended, plan unchanged")
		return nil

	default:
		logger.DebugContext(ctx, "ignored paypal event")
		return nil
	}
}

func (h *Handler) activate(
	ctx context.Context,
	logger *slog.Logger,
	remote *paypal.Subscription,
) error {
	logger = logger.With(
		"subscription_id", remote.ID,
		"user_id", remote.CustomID,
	)

	if remote.Status != paypal.StatusActive {
		logger.InfoContext(ctx, "paypal subscription not active",
			"status", remote.Status)
		return nil
	}
	if remote.CustomID == "" {
		logger.WarnContext(ctx, "paypal subscription without custom_id")
		return nil
	}

	plan, ok := h.plans[remote.PlanID]
	if !ok {
		logger.WarnContext(ctx, "unknown paypal plan", "plan_id", remote.PlanID)
		return nil
	}

	_, err := h.upgrader.ApplyPlanUpgrade(ctx, remote.CustomID, plan, remote.ID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, subscription.ErrStoreUnavailable):
		logger.ErrorContext(ctx, "upgrade from webhook failed", "error", err)
		return err
	default:
		logger.WarnContext(ctx, "upgrade from webhook rejected", "error", err)
		return nil
	}
}

func (h *Handler) alreadyHandled(ctx context.Context, eventID string) bool {
	if h.events == nil || eventID == "" {
		return false
	}

	seen, err := h.events.Seen(ctx, eventID)
	if err != nil {
		h.logger.WarnContext(ctx, "webhook event log unavailable",
			"event_id", eventID,
			"error", err,
		)
		return false
	}
	return seen
}

func (h *Handler) markHandled(ctx context.Context, eventID string) {
	if h.events == nil || eventID == "" {
		return
	}

	if err := h.events.Mark(ctx, eventID); err != nil {
		h.logger.WarnContext(ctx, "record webhook event",
			"event_id", eventID,
			"error", err,
		)
	}
}

func writeUpgradeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, err.Error())
	case errors.Is(err, subscription.ErrStoreUnavailable):
		core.Unavailable(w, "subscription store unavailable")
	default:
		core.InternalServerError(w, err)
	}
}

type ConfirmRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required,max=64"`
}

type WebhookResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}
