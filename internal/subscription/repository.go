// AngelaMos | 2026
// repository.go

package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carterperez-dev/assignly/internal/core"
)

// Store is the single-row, single-key persistence the Manager relies on.
// Every mutation is a relative or grouped update on one user's row.
type Store interface {
	Get(ctx context.Context, userID string) (*Subscription, error)
	// InsertIfAbsent reports whether the row was created by this call.
	InsertIfAbsent(ctx context.Context, sub *Subscription) (bool, error)
	IncrementAssignmentsUsed(
		ctx context.Context,
		userID string,
	) (*Subscription, error)
	ApplyUpgrade(
		ctx context.Context,
		userID string,
		upgrade Upgrade,
	) (*Subscription, error)
	ResetAssignmentsUsed(
		ctx context.Context,
		userID string,
	) (*Subscription, error)
}

type Upgrade struct {
	Plan                   Plan
	ProviderSubscriptionID string
	At                     time.Time
}

const columns = `user_id, plan_id, status, assignments_used, assignment_limit,
		has_calendar_access, trial_end_date, provider_subscription_id,
		upgraded_at, created_at`

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Store {
	return &repository{db: db}
}

func (r *repository) Get(
	ctx context.Context,
	userID string,
) (*Subscription, error) {
	query := `SELECT ` + columns + ` FROM subscriptions WHERE user_id = $1`

	var sub Subscription
	err := r.db.GetContext(ctx, &sub, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get subscription: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	return &sub, nil
}

func (r *repository) InsertIfAbsent(
	ctx context.Context,
	sub *Subscription,
) (bool, error) {
	query := `
		INSERT INTO subscriptions (
			user_id, plan_id, status, assignments_used, assignment_limit,
			has_calendar_access, trial_end_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		sub.UserID,
		string(sub.PlanID),
		string(sub.Status),
		sub.AssignmentsUsed,
		sub.AssignmentLimit,
		sub.HasCalendarAccess,
		sub.TrialEndDate,
		sub.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}

	return rows == 1, nil
}

func (r *repository) IncrementAssignmentsUsed(
	ctx context.Context,
	userID string,
) (*Subscription, error) {
	query := `
		UPDATE subscriptions
		SET assignments_used = assignments_used + 1
		WHERE user_id = $1
		RETURNING ` + columns

	return r.updateReturning(ctx, "increment assignments used", query, userID)
}

func (r *repository) ApplyUpgrade(
	ctx context.Context,
	userID string,
	upgrade Upgrade,
) (*Subscription, error) {
	query := `
		UPDATE subscriptions
		SET plan_id = $2,
		    status = 'active',
		    assignment_limit = -1,
		    has_calendar_access = TRUE,
		    provider_subscription_id = $3,
		    upgraded_at = COALESCE(upgraded_at, $4)
		WHERE user_id = $1
		RETURNING ` + columns

	return r.updateReturning(ctx, "apply upgrade", query,
		userID,
		string(upgrade.Plan),
		upgrade.ProviderSubscriptionID,
		upgrade.At,
	)
}

func (r *repository) ResetAssignmentsUsed(
	ctx context.Context,
	userID string,
) (*Subscription, error) {
	query := `
		UPDATE subscriptions
		SET assignments_used = 0
		WHERE user_id = $1
		RETURNING ` + columns

	return r.updateReturning(ctx, "reset assignments used", query, userID)
}

func (r *repository) updateReturning(
	ctx context.Context,
	op, query string,
	args ...any,
) (*Subscription, error) {
	var sub Subscription
	err := r.db.GetContext(ctx, &sub, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &sub, nil
}
