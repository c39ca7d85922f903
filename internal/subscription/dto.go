// AngelaMos | 2026
// dto.go

package subscription

import (
	"time"
)

type SubscriptionResponse struct {
	UserID                 string     `json:"user_id"`
	PlanID                 Plan       `json:"plan_id"`
	Status                 Status     `json:"status"`
	AssignmentsUsed        int        `json:"assignments_used"`
	AssignmentLimit        int        `json:"assignment_limit"`
	HasCalendarAccess      bool       `json:"has_calendar_access"`
	TrialEndDate           time.Time  `json:"trial_end_date"`
	ProviderSubscriptionID *string    `json:"provider_subscription_id,omitempty"`
	UpgradedAt             *time.Time `json:"upgraded_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}

// StatusResponse backs the read-only status display. Known is false when
// the store could not be reached; the page still renders.
type StatusResponse struct {
	Known        bool                  `json:"known"`
	Status       string                `json:"status"`
	Subscription *SubscriptionResponse `json:"subscription,omitempty"`
	Badge        *Badge                `json:"badge,omitempty"`
}

type UsageResponse struct {
	AssignmentsUsed      int  `json:"assignments_used"`
	AssignmentLimit      int  `json:"assignment_limit"`
	AssignmentsRemaining int  `json:"assignments_remaining"`
	CanCreateAssignment  bool `json:"can_create_assignment"`
}

type FeatureAccessResponse struct {
	Feature Feature `json:"feature"`
	Access  Access  `json:"access"`
	Granted bool    `json:"granted"`
}

func ToSubscriptionResponse(s *Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		UserID:                 s.UserID,
		PlanID:                 s.PlanID,
		Status:                 s.Status,
		AssignmentsUsed:        s.AssignmentsUsed,
		AssignmentLimit:        s.AssignmentLimit,
		HasCalendarAccess:      s.HasCalendarAccess,
		TrialEndDate:           s.TrialEndDate,
		ProviderSubscriptionID: s.ProviderSubscriptionID,
		UpgradedAt:             s.UpgradedAt,
		CreatedAt:              s.CreatedAt,
	}
}

func ToUsageResponse(s *Subscription) UsageResponse {
	return UsageResponse{
		AssignmentsUsed:      s.AssignmentsUsed,
		AssignmentLimit:      s.AssignmentLimit,
		AssignmentsRemaining: s.RemainingAssignments(),
		CanCreateAssignment:  s.CanCreateAssignment(),
	}
}
