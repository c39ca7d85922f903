// AngelaMos | 2026
// entity.go

package subscription

import (
	"time"
)

type Plan string

const (
	PlanFree  Plan = "free"
	PlanBasic Plan = "basic"
	PlanPro   Plan = "pro"
)

func (p Plan) IsPaid() bool {
	return p == PlanBasic || p == PlanPro
}

func (p Plan) Valid() bool {
	return p == PlanFree || p.IsPaid()
}

type Status string

const (
	StatusFree      Status = "free"
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Unlimited is the assignment limit stored for every paid plan.
const Unlimited = -1

// DefaultFreeAssignmentLimit is the single authoritative free-tier cap.
const DefaultFreeAssignmentLimit = 4

const DefaultTrialWindow = 7 * 24 * time.Hour

// Subscription is the one-per-user plan and usage record.
type Subscription struct {
	UserID                 string     `db:"user_id"`
	PlanID                 Plan       `db:"plan_id"`
	Status                 Status     `db:"status"`
	AssignmentsUsed        int        `db:"assignments_used"`
	AssignmentLimit        int        `db:"assignment_limit"`
	HasCalendarAccess      bool       `db:"has_calendar_access"`
	TrialEndDate           time.Time  `db:"trial_end_date"`
	ProviderSubscriptionID *string    `db:"provider_subscription_id"`
	UpgradedAt             *time.Time `db:"upgraded_at"`
	CreatedAt              time.Time  `db:"created_at"`
}

func newFreeSubscription(
	userID string,
	freeLimit int,
	trialWindow time.Duration,
	now time.Time,
) *Subscription {
	return &Subscription{
		UserID:            userID,
		PlanID:            PlanFree,
		Status:            StatusFree,
		AssignmentsUsed:   0,
		AssignmentLimit:   freeLimit,
		HasCalendarAccess: false,
		TrialEndDate:      now.Add(trialWindow),
		CreatedAt:         now,
	}
}

func (s *Subscription) IsUnlimited() bool {
	return s.AssignmentLimit == Unlimited
}

func (s *Subscription) CanCreateAssignment() bool {
	return s.IsUnlimited() || s.AssignmentsUsed < s.AssignmentLimit
}

// RemainingAssignments returns Unlimited for paid plans.
func (s *Subscription) RemainingAssignments() int {
	if s.IsUnlimited() {
		return Unlimited
	}
	return max(s.AssignmentLimit-s.AssignmentsUsed, 0)
}

// EffectiveStatus resolves the trial window for free records; the stored
// status is returned unchanged for paid ones.
func (s *Subscription) EffectiveStatus(now time.Time) Status {
	if s.PlanID != PlanFree {
		return s.Status
	}
	if now.Before(s.TrialEndDate) {
		return StatusTrial
	}
	return StatusExpired
}

func (s *Subscription) TrialDaysRemaining(now time.Time) int {
	if s.PlanID != PlanFree {
		return 0
	}

	remaining := s.TrialEndDate.Sub(now)
	if remaining <= 0 {
		return 0
	}

	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// Consistent reports whether the plan-derived columns agree with PlanID.
func (s *Subscription) Consistent() bool {
	paid := s.PlanID.IsPaid()
	if paid != s.IsUnlimited() || paid != s.HasCalendarAccess {
		return false
	}
	return !(s.Status == StatusActive && s.PlanID == PlanFree)
}

// hasUpgrade reports whether applying the upgrade would change nothing.
func (s *Subscription) hasUpgrade(plan Plan, providerSubscriptionID string) bool {
	return s.PlanID == plan &&
		s.Status == StatusActive &&
		s.IsUnlimited() &&
		s.HasCalendarAccess &&
		s.UpgradedAt != nil &&
		s.ProviderSubscriptionID != nil &&
		*s.ProviderSubscriptionID == providerSubscriptionID
}
