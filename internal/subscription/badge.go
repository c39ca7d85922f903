// AngelaMos | 2026
// badge.go

package subscription

import (
	"fmt"
	"time"
)

type BadgeTone string

const (
	ToneNeutral BadgeTone = "neutral"
	ToneWarning BadgeTone = "warning"
	TonePremium BadgeTone = "premium"
)

// Badge is the presentation summary of a record.
type Badge struct {
	Plan                 Plan      `json:"plan"`
	Label                string    `json:"label"`
	Detail               string    `json:"detail"`
	Tone                 BadgeTone `json:"tone"`
	Status               Status    `json:"status"`
	TrialDaysRemaining   int       `json:"trial_days_remaining"`
	AssignmentsRemaining int       `json:"assignments_remaining"`
	ShowUpgrade          bool      `json:"show_upgrade"`
}

func BadgeFor(s *Subscription, now time.Time) Badge {
	b := Badge{
		Plan:                 s.PlanID,
		Status:               s.EffectiveStatus(now),
		TrialDaysRemaining:   s.TrialDaysRemaining(now),
		AssignmentsRemaining: s.RemainingAssignments(),
	}

	switch s.PlanID {
	case PlanPro:
		b.Label = "Pro"
		b.Tone = TonePremium
		b.Detail = "Unlimited assignments"
	case PlanBasic:
		b.Label = "Basic"
		b.Tone = TonePremium
		b.Detail = "Unlimited assignments"
		b.ShowUpgrade = true
	default:
		b.ShowUpgrade = true
		b.Detail = fmt.Sprintf(
			"%d of %d assignments left",
			b.AssignmentsRemaining,
			s.AssignmentLimit,
		)
		if b.Status == StatusTrial {
			b.Label = "Free Trial"
			b.Tone = ToneNeutral
		} else {
			b.Label = "Free"
			b.Tone = ToneWarning
		}
		if b.AssignmentsRemaining == 0 {
			b.Tone = ToneWarning
		}
	}

	return b
}
