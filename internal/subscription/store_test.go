// AngelaMos | 2026
// store_test.go

package subscription

import (
	"context"
	"fmt"
	"sync"

	"github.com/carterperez-dev/assignly/internal/core"
)

// memoryStore applies every mutation under one lock, which gives the same
// per-row atomicity the SQL repository relies on.
type memoryStore struct {
	mu      sync.Mutex
	rows    map[string]Subscription
	inserts int
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[string]Subscription)}
}

func (s *memoryStore) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *memoryStore) insertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

func (s *memoryStore) Get(_ context.Context, userID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	row, ok := s.rows[userID]
	if !ok {
		return nil, fmt.Errorf("get subscription: %w", core.ErrNotFound)
	}
	return &row, nil
}

func (s *memoryStore) InsertIfAbsent(_ context.Context, sub *Subscription) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.rows[sub.UserID]; ok {
		return false, nil
	}
	s.rows[sub.UserID] = *sub
	s.inserts++
	return true, nil
}

func (s *memoryStore) IncrementAssignmentsUsed(
	_ context.Context,
	userID string,
) (*Subscription, error) {
	return s.update(userID, func(row *Subscription) {
		row.AssignmentsUsed++
	})
}

func (s *memoryStore) ApplyUpgrade(
	_ context.Context,
	userID string,
	upgrade Upgrade,
) (*Subscription, error) {
	return s.update(userID, func(row *Subscription) {
		providerID := upgrade.ProviderSubscriptionID
		row.PlanID = upgrade.Plan
		row.Status = StatusActive
		row.AssignmentLimit = Unlimited
		row.HasCalendarAccess = true
		row.ProviderSubscriptionID = &providerID
		if row.UpgradedAt == nil {
			at := upgrade.At
			row.UpgradedAt = &at
		}
	})
}

func (s *memoryStore) ResetAssignmentsUsed(
	_ context.Context,
	userID string,
) (*Subscription, error) {
	return s.update(userID, func(row *Subscription) {
		row.AssignmentsUsed = 0
	})
}

func (s *memoryStore) update(
	userID string,
	mutate func(row *Subscription),
) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	row, ok := s.rows[userID]
	if !ok {
		return nil, fmt.Errorf("update subscription: %w", core.ErrNotFound)
	}
	mutate(&row)
	s.rows[userID] = row
	return &row, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []Change
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, change Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.changes = append(p.changes, change)
	return p.err
}

func (p *recordingPublisher) kinds() []ChangeKind {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ChangeKind, 0, len(p.changes))
	for _, c := range p.changes {
		out = append(out, c.Kind)
	}
	return out
}
