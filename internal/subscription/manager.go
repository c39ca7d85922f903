// AngelaMos | 2026
// manager.go

package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carterperez-dev/assignly/internal/core"
)

const tracerName = "github.com/carterperez-dev/assignly/internal/subscription"

var (
	// ErrStoreUnavailable marks any failure to reach the account store.
	// Gating decisions treat it as "no access".
	ErrStoreUnavailable = errors.New("subscription store unavailable")
	ErrInvalidUpgrade   = errors.New("invalid plan upgrade")
)

type ManagerConfig struct {
	FreeAssignmentLimit int
	TrialWindow         time.Duration
	Publisher           Publisher
	Logger              *slog.Logger
	Now                 func() time.Time
}

// Manager owns every write to subscription records. It is built once in
// main and handed to its consumers.
type Manager struct {
	store       Store
	publisher   Publisher
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
	freeLimit   int
	trialWindow time.Duration
}

func NewManager(store Store, cfg ManagerConfig) *Manager {
	m := &Manager{
		store:       store,
		publisher:   cfg.Publisher,
		logger:      cfg.Logger,
		tracer:      otel.Tracer(tracerName),
		now:         cfg.Now,
		freeLimit:   cfg.FreeAssignmentLimit,
		trialWindow: cfg.TrialWindow,
	}

	if m.publisher == nil {
		m.publisher = nopPublisher{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.freeLimit < 0 {
		m.freeLimit = DefaultFreeAssignmentLimit
	}
	if m.trialWindow <= 0 {
		m.trialWindow = DefaultTrialWindow
	}

	return m
}

// GetOrCreate returns the user's record, inserting the free-tier default
// the first time a user is seen.
func (m *Manager) GetOrCreate(
	ctx context.Context,
	userID string,
) (sub *Subscription, err error) {
	ctx, span := m.startSpan(ctx, "subscription.GetOrCreate", userID)
	defer func() { endSpan(span, err) }()

	return m.getOrCreate(ctx, userID)
}

func (m *Manager) getOrCreate(
	ctx context.Context,
	userID string,
) (*Subscription, error) {
	if userID == "" {
		return nil, fmt.Errorf("get subscription: empty user id: %w",
			core.ErrInvalidInput)
	}

	sub, err := m.store.Get(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, storeError(err)
	}

	fresh := newFreeSubscription(userID, m.freeLimit, m.trialWindow, m.timestamp())

	inserted, err := m.store.InsertIfAbsent(ctx, fresh)
	if err != nil {
		return nil, storeError(err)
	}

	// Re-read so that concurrent creators all return the row that won.
	sub, err = m.store.Get(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}

	if inserted {
		m.logger.InfoContext(ctx, "subscription created",
			"user_id", userID,
			"assignment_limit", sub.AssignmentLimit,
		)
		m.publish(ctx, ChangeCreated, sub)
	}

	return sub, nil
}

// CanCreateAssignment fails closed: any error yields false.
func (m *Manager) CanCreateAssignment(
	ctx context.Context,
	userID string,
) (allowed bool, err error) {
	ctx, span := m.startSpan(ctx, "subscription.CanCreateAssignment", userID)
	defer func() { endSpan(span, err) }()

	sub, err := m.getOrCreate(ctx, userID)
	if err != nil {
		return false, err
	}

	return sub.CanCreateAssignment(), nil
}

// RecordAssignmentCreated counts one durably saved assignment. The
// increment runs in the store, so concurrent calls never lose updates.
func (m *Manager) RecordAssignmentCreated(
	ctx context.Context,
	userID string,
) (err error) {
	ctx, span := m.startSpan(ctx, "subscription.RecordAssignmentCreated", userID)
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return fmt.Errorf("record assignment: empty user id: %w",
			core.ErrInvalidInput)
	}

	sub, err := m.store.IncrementAssignmentsUsed(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		if _, err = m.getOrCreate(ctx, userID); err != nil {
			return err
		}
		sub, err = m.store.IncrementAssignmentsUsed(ctx, userID)
	}
	if err != nil {
		return storeError(err)
	}

	m.publish(ctx, ChangeUsageRecorded, sub)
	return nil
}

// ApplyPlanUpgrade moves the user onto a paid plan after the payment
// provider confirmed providerSubscriptionID. Replays of the same callback,
// and callbacks for a lower plan than the current one, leave the record
// untouched.
func (m *Manager) ApplyPlanUpgrade(
	ctx context.Context,
	userID string,
	plan Plan,
	providerSubscriptionID string,
) (sub *Subscription, err error) {
	ctx, span := m.startSpan(ctx, "subscription.ApplyPlanUpgrade", userID)
	span.SetAttributes(
		attribute.String("subscription.plan", string(plan)),
		attribute.String("subscription.provider_id", providerSubscriptionID),
	)
	defer func() { endSpan(span, err) }()

	target, ok := stateForPlan(plan)
	if !ok {
		return nil, fmt.Errorf("%w: plan %q is not a paid plan: %w",
			ErrInvalidUpgrade, plan, core.ErrInvalidInput)
	}
	if providerSubscriptionID == "" {
		return nil, fmt.Errorf("%w: missing provider subscription id: %w",
			ErrInvalidUpgrade, core.ErrInvalidInput)
	}

	current, err := m.getOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if current.hasUpgrade(plan, providerSubscriptionID) {
		m.logger.DebugContext(ctx, "duplicate upgrade ignored",
			"user_id", userID,
			"provider_subscription_id", providerSubscriptionID,
		)
		return current, nil
	}

	if isDowngrade(current.State(), target) {
		m.logger.InfoContext(ctx, "stale upgrade ignored",
			"user_id", userID,
			"current_plan", current.PlanID,
			"requested_plan", plan,
			"provider_subscription_id", providerSubscriptionID,
		)
		return current, nil
	}

	if !canTransition(current.State(), target) {
		return nil, fmt.Errorf("%w: %s to %s: %w",
			ErrInvalidUpgrade, current.State(), target, core.ErrInvalidInput)
	}

	sub, err = m.store.ApplyUpgrade(ctx, userID, Upgrade{
		Plan:                   plan,
		ProviderSubscriptionID: providerSubscriptionID,
		At:                     m.timestamp(),
	})
	if err != nil {
		return nil, storeError(err)
	}

	m.logger.InfoContext(ctx, "subscription upgraded",
		"user_id", userID,
		"from", current.PlanID,
		"to", sub.PlanID,
		"provider_subscription_id", providerSubscriptionID,
	)
	m.publish(ctx, ChangeUpgraded, sub)

	return sub, nil
}

// CheckFeatureAccess never errors. Unknown features are denied; a store
// failure yields AccessUnknown, which callers must not treat as granted.
func (m *Manager) CheckFeatureAccess(
	ctx context.Context,
	userID string,
	feature Feature,
) Access {
	if !feature.Valid() {
		return AccessDenied
	}

	ctx, span := m.startSpan(ctx, "subscription.CheckFeatureAccess", userID)
	span.SetAttributes(attribute.String("subscription.feature", string(feature)))

	sub, err := m.getOrCreate(ctx, userID)
	endSpan(span, err)
	if err != nil {
		m.logger.WarnContext(ctx, "feature check failed closed",
			"user_id", userID,
			"feature", feature,
			"error", err,
		)
		return AccessUnknown
	}

	return sub.Access(feature)
}

// ResetUsage zeroes the usage counter. Administrative use only.
func (m *Manager) ResetUsage(
	ctx context.Context,
	userID string,
) (sub *Subscription, err error) {
	ctx, span := m.startSpan(ctx, "subscription.ResetUsage", userID)
	defer func() { endSpan(span, err) }()

	sub, err = m.store.ResetAssignmentsUsed(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}

	m.logger.InfoContext(ctx, "assignment usage reset", "user_id", userID)
	m.publish(ctx, ChangeUsageReset, sub)

	return sub, nil
}

// Badge is a convenience for the presentation layer.
func (m *Manager) Badge(sub *Subscription) Badge {
	return BadgeFor(sub, m.now())
}

func (m *Manager) publish(ctx context.Context, kind ChangeKind, sub *Subscription) {
	change := Change{
		ID:           uuid.NewString(),
		UserID:       sub.UserID,
		Kind:         kind,
		Subscription: ToSubscriptionResponse(sub),
		OccurredAt:   m.now().UTC(),
	}

	if err := m.publisher.Publish(ctx, change); err != nil {
		m.logger.WarnContext(ctx, "publish subscription change",
			"user_id", sub.UserID,
			"kind", kind,
			"error", err,
		)
	}
}

// timestamp matches the microsecond precision of the database.
func (m *Manager) timestamp() time.Time {
	return m.now().UTC().Truncate(time.Microsecond)
}

func (m *Manager) startSpan(
	ctx context.Context,
	name, userID string,
) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name,
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func storeError(err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
