// AngelaMos | 2026
// events.go

package subscription

import (
	"context"
	"time"
)

type ChangeKind string

const (
	ChangeCreated       ChangeKind = "created"
	ChangeUsageRecorded ChangeKind = "usage_recorded"
	ChangeUpgraded      ChangeKind = "upgraded"
	ChangeUsageReset    ChangeKind = "usage_reset"
)

// Change is published after every mutation that altered a record.
type Change struct {
	ID           string               `json:"id"`
	UserID       string               `json:"user_id"`
	Kind         ChangeKind           `json:"kind"`
	Subscription SubscriptionResponse `json:"subscription"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Change) error { return nil }
