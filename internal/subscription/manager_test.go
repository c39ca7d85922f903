// AngelaMos | 2026
// manager_test.go

package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/assignly/internal/core"
)

var testNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	manager   *Manager
	store     *memoryStore
	publisher *recordingPublisher
	clock     *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:     newMemoryStore(),
		publisher: &recordingPublisher{},
		clock:     &clock{now: testNow},
	}
	f.manager = NewManager(f.store, ManagerConfig{
		FreeAssignmentLimit: DefaultFreeAssignmentLimit,
		TrialWindow:         DefaultTrialWindow,
		Publisher:           f.publisher,
		Now:                 f.clock.Now,
	})
	return f
}

func (f *fixture) record(t *testing.T, userID string, n int) {
	t.Helper()
	for range n {
		require.NoError(t, f.manager.RecordAssignmentCreated(context.Background(), userID))
	}
}

func (f *fixture) canCreate(t *testing.T, userID string) bool {
	t.Helper()
	ok, err := f.manager.CanCreateAssignment(context.Background(), userID)
	require.NoError(t, err)
	return ok
}

func TestGetOrCreate_NewUserGetsFreeDefaults(t *testing.T) {
	f := newFixture(t)

	sub, err := f.manager.GetOrCreate(context.Background(), "user-a")
	require.NoError(t, err)

	assert.Equal(t, "user-a", sub.UserID)
	assert.Equal(t, PlanFree, sub.PlanID)
	assert.Equal(t, StatusFree, sub.Status)
	assert.Equal(t, 0, sub.AssignmentsUsed)
	assert.Equal(t, 4, sub.AssignmentLimit)
	assert.False(t, sub.HasCalendarAccess)
	assert.Equal(t, testNow.Add(7*24*time.Hour), sub.TrialEndDate)
	assert.Equal(t, testNow, sub.CreatedAt)
	assert.Nil(t, sub.ProviderSubscriptionID)
	assert.Nil(t, sub.UpgradedAt)
	assert.True(t, sub.Consistent())

	assert.True(t, f.canCreate(t, "user-a"))
	assert.Equal(t, []ChangeKind{ChangeCreated}, f.publisher.kinds())
}

func TestGetOrCreate_Deterministic(t *testing.T) {
	f := newFixture(t)

	first, err := f.manager.GetOrCreate(context.Background(), "user-a")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)

	second, err := f.manager.GetOrCreate(context.Background(), "user-a")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.store.insertCount())
	assert.Equal(t, []ChangeKind{ChangeCreated}, f.publisher.kinds())
}

func TestGetOrCreate_ConcurrentFirstAccess(t *testing.T) {
	f := newFixture(t)

	const callers = 16
	results := make([]*Subscription, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := f.manager.GetOrCreate(context.Background(), "user-a")
			assert.NoError(t, err)
			results[i] = sub
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.store.insertCount())
	for _, sub := range results {
		assert.Equal(t, results[0], sub)
	}
}

func TestGetOrCreate_EmptyUserID(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.GetOrCreate(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	err = f.manager.RecordAssignmentCreated(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestFreeCapReached(t *testing.T) {
	f := newFixture(t)

	for i := range DefaultFreeAssignmentLimit {
		assert.True(t, f.canCreate(t, "user-b"), "before assignment %d", i+1)
		f.record(t, "user-b", 1)
	}

	assert.False(t, f.canCreate(t, "user-b"))

	sub, err := f.manager.GetOrCreate(context.Background(), "user-b")
	require.NoError(t, err)
	assert.Equal(t, 4, sub.AssignmentsUsed)
	assert.Equal(t, 0, sub.RemainingAssignments())
}

func TestApplyPlanUpgrade_UnlocksPaidFeatures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "user-b", 4)
	require.False(t, f.canCreate(t, "user-b"))

	sub, err := f.manager.ApplyPlanUpgrade(ctx, "user-b", PlanBasic, "SUB-123")
	require.NoError(t, err)

	assert.True(t, f.canCreate(t, "user-b"))
	assert.True(t, sub.HasCalendarAccess)
	assert.Equal(t, Unlimited, sub.AssignmentLimit)
	assert.Equal(t, PlanBasic, sub.PlanID)
	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, 4, sub.AssignmentsUsed, "usage is kept across upgrades")
	require.NotNil(t, sub.ProviderSubscriptionID)
	assert.Equal(t, "SUB-123", *sub.ProviderSubscriptionID)
	require.NotNil(t, sub.UpgradedAt)
	assert.Equal(t, testNow, *sub.UpgradedAt)
	assert.True(t, sub.Consistent())
}

func TestApplyPlanUpgrade_ReplayIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "user-b", 4)

	first, err := f.manager.ApplyPlanUpgrade(ctx, "user-b", PlanBasic, "SUB-123")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)

	second, err := f.manager.ApplyPlanUpgrade(ctx, "user-b", PlanBasic, "SUB-123")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, *first.UpgradedAt, *second.UpgradedAt)

	upgrades := 0
	for _, kind := range f.publisher.kinds() {
		if kind == ChangeUpgraded {
			upgrades++
		}
	}
	assert.Equal(t, 1, upgrades)
}

func TestApplyPlanUpgrade_PlanChangeKeepsUpgradedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	basic, err := f.manager.ApplyPlanUpgrade(ctx, "user-c", PlanBasic, "SUB-1")
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)

	pro, err := f.manager.ApplyPlanUpgrade(ctx, "user-c", PlanPro, "SUB-2")
	require.NoError(t, err)

	assert.Equal(t, PlanPro, pro.PlanID)
	assert.Equal(t, "SUB-2", *pro.ProviderSubscriptionID)
	assert.Equal(t, *basic.UpgradedAt, *pro.UpgradedAt)
	assert.True(t, pro.Consistent())
}

func TestApplyPlanUpgrade_StaleBasicCallbackAfterPro(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.ApplyPlanUpgrade(ctx, "user-s", PlanBasic, "SUB-1")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	pro, err := f.manager.ApplyPlanUpgrade(ctx, "user-s", PlanPro, "SUB-2")
	require.NoError(t, err)
	kindsBefore := f.publisher.kinds()

	f.clock.Advance(time.Hour)
	replayed, err := f.manager.ApplyPlanUpgrade(ctx, "user-s", PlanBasic, "SUB-1")
	require.NoError(t, err)

	assert.Equal(t, pro, replayed)
	assert.Equal(t, PlanPro, replayed.PlanID)
	require.NotNil(t, replayed.ProviderSubscriptionID)
	assert.Equal(t, "SUB-2", *replayed.ProviderSubscriptionID)
	assert.Equal(t, kindsBefore, f.publisher.kinds())

	stored, err := f.manager.GetOrCreate(ctx, "user-s")
	require.NoError(t, err)
	assert.Equal(t, PlanPro, stored.PlanID)
	assert.Equal(t, "SUB-2", *stored.ProviderSubscriptionID)
}

func TestApplyPlanUpgrade_CreatesMissingRecord(t *testing.T) {
	f := newFixture(t)

	sub, err := f.manager.ApplyPlanUpgrade(context.Background(), "never-seen", PlanPro, "SUB-9")
	require.NoError(t, err)

	assert.Equal(t, PlanPro, sub.PlanID)
	assert.Equal(t, testNow, sub.CreatedAt)
	assert.Equal(t, []ChangeKind{ChangeCreated, ChangeUpgraded}, f.publisher.kinds())
}

func TestApplyPlanUpgrade_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		plan       Plan
		providerID string
	}{
		{"free is not an upgrade", PlanFree, "SUB-1"},
		{"unknown plan", Plan("gold"), "SUB-1"},
		{"missing provider id", PlanPro, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.manager.ApplyPlanUpgrade(context.Background(), "user-d", tt.plan, tt.providerID)

			assert.ErrorIs(t, err, ErrInvalidUpgrade)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
			assert.Equal(t, 0, f.store.insertCount())
		})
	}
}

func TestRecordAssignmentCreated_ConcurrentExactCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const writers = 64

	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.manager.RecordAssignmentCreated(ctx, "user-e"))
		}()
	}
	wg.Wait()

	sub, err := f.manager.GetOrCreate(ctx, "user-e")
	require.NoError(t, err)
	assert.Equal(t, writers, sub.AssignmentsUsed)
	assert.Equal(t, 1, f.store.insertCount())
}

func TestRecordAssignmentCreated_Sequential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, "user-e", 3)
	before, err := f.manager.GetOrCreate(ctx, "user-e")
	require.NoError(t, err)

	f.record(t, "user-e", 5)
	after, err := f.manager.GetOrCreate(ctx, "user-e")
	require.NoError(t, err)

	assert.Equal(t, before.AssignmentsUsed+5, after.AssignmentsUsed)
}

func TestStoreOutage_FailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.ApplyPlanUpgrade(ctx, "user-p", PlanPro, "SUB-1")
	require.NoError(t, err)

	f.store.fail(errors.New("dial tcp 10.0.0.5:5432: i/o timeout"))

	ok, err := f.manager.CanCreateAssignment(ctx, "user-p")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	for feature := range featureRules {
		access := f.manager.CheckFeatureAccess(ctx, "user-p", feature)
		assert.Equal(t, AccessUnknown, access, feature)
		assert.False(t, access.Granted())
	}

	_, err = f.manager.GetOrCreate(ctx, "user-p")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	err = f.manager.RecordAssignmentCreated(ctx, "user-p")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = f.manager.ApplyPlanUpgrade(ctx, "user-p", PlanBasic, "SUB-2")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestCheckFeatureAccess_UnknownFeature(t *testing.T) {
	f := newFixture(t)

	access := f.manager.CheckFeatureAccess(context.Background(), "user-b", "nonexistent_feature")

	assert.Equal(t, AccessDenied, access)
	assert.False(t, access.Granted())
	assert.Equal(t, 0, f.store.insertCount(), "unknown features never touch the store")
}

func TestCheckFeatureAccess_ByPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.ApplyPlanUpgrade(ctx, "basic-user", PlanBasic, "SUB-B")
	require.NoError(t, err)
	_, err = f.manager.ApplyPlanUpgrade(ctx, "pro-user", PlanPro, "SUB-P")
	require.NoError(t, err)

	tests := []struct {
		feature Feature
		free    Access
		basic   Access
		pro     Access
	}{
		{FeatureCalendar, AccessDenied, AccessGranted, AccessGranted},
		{FeatureUnlimitedAssignments, AccessDenied, AccessGranted, AccessGranted},
		{FeatureAdvancedExport, AccessDenied, AccessGranted, AccessGranted},
		{FeatureProFeatures, AccessDenied, AccessDenied, AccessGranted},
		{FeatureBasicFeatures, AccessDenied, AccessGranted, AccessGranted},
	}

	for _, tt := range tests {
		t.Run(string(tt.feature), func(t *testing.T) {
			assert.Equal(t, tt.free, f.manager.CheckFeatureAccess(ctx, "free-user", tt.feature))
			assert.Equal(t, tt.basic, f.manager.CheckFeatureAccess(ctx, "basic-user", tt.feature))
			assert.Equal(t, tt.pro, f.manager.CheckFeatureAccess(ctx, "pro-user", tt.feature))
		})
	}
}

func TestResetUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "user-r", 4)

	sub, err := f.manager.ResetUsage(ctx, "user-r")
	require.NoError(t, err)
	assert.Equal(t, 0, sub.AssignmentsUsed)
	assert.True(t, f.canCreate(t, "user-r"))
	assert.Contains(t, f.publisher.kinds(), ChangeUsageReset)

	_, err = f.manager.ResetUsage(ctx, "nobody")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("redis: connection refused")

	err := f.manager.RecordAssignmentCreated(context.Background(), "user-q")
	require.NoError(t, err)

	sub, err := f.manager.GetOrCreate(context.Background(), "user-q")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.AssignmentsUsed)
}

func TestChangeCarriesSnapshot(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.ApplyPlanUpgrade(context.Background(), "user-s", PlanPro, "SUB-1")
	require.NoError(t, err)

	f.publisher.mu.Lock()
	last := f.publisher.changes[len(f.publisher.changes)-1]
	f.publisher.mu.Unlock()

	assert.NotEmpty(t, last.ID)
	assert.Equal(t, "user-s", last.UserID)
	assert.Equal(t, ChangeUpgraded, last.Kind)
	assert.Equal(t, PlanPro, last.Subscription.PlanID)
	assert.Equal(t, testNow, last.OccurredAt)
}

func TestNewManager_ConfigFallbacks(t *testing.T) {
	m := NewManager(newMemoryStore(), ManagerConfig{
		FreeAssignmentLimit: -3,
		TrialWindow:         0,
	})

	assert.Equal(t, DefaultFreeAssignmentLimit, m.freeLimit)
	assert.Equal(t, DefaultTrialWindow, m.trialWindow)

	sub, err := m.GetOrCreate(context.Background(), "user-z")
	require.NoError(t, err)
	assert.Equal(t, DefaultFreeAssignmentLimit, sub.AssignmentLimit)
}

func TestNewManager_CustomFreeLimit(t *testing.T) {
	m := NewManager(newMemoryStore(), ManagerConfig{FreeAssignmentLimit: 2})
	ctx := context.Background()

	require.NoError(t, m.RecordAssignmentCreated(ctx, "user-y"))
	require.NoError(t, m.RecordAssignmentCreated(ctx, "user-y"))

	ok, err := m.CanCreateAssignment(ctx, "user-y")
	require.NoError(t, err)
	assert.False(t, ok)
}
