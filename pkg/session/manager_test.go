package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/stepflow/pkg/adapters/redis"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/ports"
	"github.com/aretw0/stepflow/pkg/profile"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/aretw0/stepflow/pkg/session"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(id string, order int, deps ...domain.StepID) domain.StepDefinition {
	return domain.StepDefinition{ID: domain.StepID(id), DisplayName: id, Component: id, Order: order, IsVisible: true, Dependencies: deps}
}

func fixture(t *testing.T) (*registry.Registry, *profile.Store) {
	t.Helper()
	reg := registry.NewRegistry()
	for _, d := range []domain.StepDefinition{step("category", 1), step("details", 2), step("pricing", 3)} {
		require.NoError(t, reg.Register(d))
	}
	store := profile.NewStore()
	require.NoError(t, store.Register(domain.FlowProfile{
		ID:                 "pricing-first",
		Name:               "Pricing first",
		StepOrderOverrides: []domain.OrderOverride{{StepID: "pricing", Order: 0}},
	}))
	return reg, store
}

// recordingLocker wraps a locker and records every key it is asked for.
type recordingLocker struct {
	mu    sync.Mutex
	keys  []string
	inner ports.DistributedLocker
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return l.inner.Lock(ctx, key, ttl)
}

func (l *recordingLocker) seen() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

func TestManager_StartAndNavigate(t *testing.T) {
	reg, store := fixture(t)
	mgr := session.NewManager(reg, session.WithProfiles(store), session.WithIDGenerator(func() string { return "s1" }))
	ctx := context.Background()

	snap, err := mgr.StartSession(ctx, map[string]bool{"beta": true})
	require.NoError(t, err)
	assert.Equal(t, "s1", snap.SessionID)
	assert.Equal(t, domain.StepID("category"), snap.State.StepID)
	assert.Equal(t, []domain.StepID{"category", "details", "pricing"}, snap.AvailableSteps)
	assert.True(t, snap.Context.FeatureFlags["beta"])
	require.NotNil(t, snap.View)
	assert.Equal(t, "category", snap.View.DisplayName)

	res, err := mgr.Complete(ctx, "s1", "category", domain.Payload{domain.KeyCategory: "property"})
	require.NoError(t, err)
	assert.Equal(t, domain.StepID("details"), res.StepID)

	res, err = mgr.Advance(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StepID("pricing"), res.StepID)

	res, err = mgr.Retreat(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StepID("details"), res.StepID)

	assert.Equal(t, []string{"s1"}, mgr.List())
}

func TestManager_UnknownAndEndedSessions(t *testing.T) {
	reg, _ := fixture(t)
	mgr := session.NewManager(reg)
	ctx := context.Background()

	_, err := mgr.Advance(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	snap, err := mgr.StartSession(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, mgr.EndSession(ctx, snap.SessionID))

	_, err = mgr.Snapshot(ctx, snap.SessionID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, mgr.EndSession(ctx, snap.SessionID), domain.ErrSessionNotFound)
	assert.Empty(t, mgr.List())
}

func TestManager_ProfilesAreIsolatedPerSession(t *testing.T) {
	reg, store := fixture(t)
	mgr := session.NewManager(reg, session.WithProfiles(store))
	ctx := context.Background()

	a, err := mgr.StartSession(ctx, nil)
	require.NoError(t, err)
	b, err := mgr.StartSession(ctx, nil)
	require.NoError(t, err)

	_, err = mgr.ActivateProfile(ctx, a.SessionID, "pricing-first")
	require.NoError(t, err)

	snapA, err := mgr.Snapshot(ctx, a.SessionID)
	require.NoError(t, err)
	snapB, err := mgr.Snapshot(ctx, b.SessionID)
	require.NoError(t, err)

	assert.Equal(t, []domain.StepID{"pricing", "category", "details"}, snapA.AvailableSteps)
	assert.Equal(t, []domain.StepID{"category", "details", "pricing"}, snapB.AvailableSteps)
	assert.Empty(t, mgr.RegistryStatus(ctx).ActiveProfileName, "the shared registry is untouched")

	status, err := mgr.SessionRegistryStatus(ctx, a.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Pricing first", status.ActiveProfileName)
}

func TestManager_SharedRegistry(t *testing.T) {
	reg, store := fixture(t)
	mgr := session.NewManager(reg, session.WithProfiles(store), session.WithIsolation(false))
	ctx := context.Background()

	a, err := mgr.StartSession(ctx, nil)
	require.NoError(t, err)

	_, err = mgr.ActivateProfile(ctx, a.SessionID, "pricing-first")
	require.NoError(t, err)
	assert.Equal(t, "Pricing first", mgr.RegistryStatus(ctx).ActiveProfileName)

	require.NoError(t, mgr.EndSession(ctx, a.SessionID))
	status := mgr.RegistryStatus(ctx)
	assert.Empty(t, status.ActiveProfileName, "ending the session clears its profile")
	assert.Equal(t, 3, status.CurrentOrderSnapshot["pricing"])
}

func TestManager_SharedRegistryProfileBelongsToOneSession(t *testing.T) {
	reg, store := fixture(t)
	require.NoError(t, store.Register(domain.FlowProfile{
		ID:                 "details-first",
		Name:               "Details first",
		StepOrderOverrides: []domain.OrderOverride{{StepID: "details", Order: 0}},
	}))
	mgr := session.NewManager(reg, session.WithProfiles(store), session.WithIsolation(false))
	ctx := context.Background()

	a, err := mgr.StartSession(ctx, nil)
	require.NoError(t, err)
	b, err := mgr.StartSession(ctx, nil)
	require.NoError(t, err)

	_, err = mgr.ActivateProfile(ctx, a.SessionID, "pricing-first")
	require.NoError(t, err)

	_, err = mgr.ActivateProfile(ctx, b.SessionID, "details-first")
	require.ErrorIs(t, err, domain.ErrProfileInUse)
	_, _, err = mgr.ApplyMatchingProfile(ctx, b.SessionID)
	require.ErrorIs(t, err, domain.ErrProfileInUse)
	assert.Equal(t, "Pricing first", mgr.RegistryStatus(ctx).ActiveProfileName)

	snap, err := mgr.Snapshot(ctx, b.SessionID)
	require.NoError(t, err)
	assert.NotEqual(t, domain.StatusProfileActive, snap.State.Status)

	// B never applied a profile, so leaving profile mode or ending must not touch A's.
	_, err = mgr.DeactivateProfile(ctx, b.SessionID)
	require.NoError(t, err)
	require.NoError(t, mgr.EndSession(ctx, b.SessionID))
	assert.Equal(t, "Pricing first", mgr.RegistryStatus(ctx).ActiveProfileName)

	// The owner may switch profiles.
	_, err = mgr.ActivateProfile(ctx, a.SessionID, "details-first")
	require.NoError(t, err)
	assert.Equal(t, "Details first", mgr.RegistryStatus(ctx).ActiveProfileName)

	_, err = mgr.DeactivateProfile(ctx, a.SessionID)
	require.NoError(t, err)
	assert.Empty(t, mgr.RegistryStatus(ctx).ActiveProfileName)

	c, err := mgr.StartSession(ctx, nil)
	require.NoError(t, err)
	_, err = mgr.ActivateProfile(ctx, c.SessionID, "pricing-first")
	require.NoError(t, err, "the profile is free once its owner deactivated")

	require.NoError(t, mgr.EndSession(ctx, c.SessionID))
	status := mgr.RegistryStatus(ctx)
	assert.Empty(t, status.ActiveProfileName)
	assert.Equal(t, 3, status.CurrentOrderSnapshot["pricing"])
}

func TestManager_ReorderAffectsNewSessionsOnly(t *testing.T) {
	reg, _ := fixture(t)
	mgr := session.NewManager(reg)
	ctx := context.Background()

	before, err := mgr.StartSession(ctx, nil)
	require.NoError(t, err)

	applied, err := mgr.ReorderSteps(ctx, []domain.OrderOverride{{StepID: "pricing", Order: 0}, {StepID: "ghost", Order: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	after, err := mgr.StartSession(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StepID("pricing"), after.State.StepID)

	snap, err := mgr.Snapshot(ctx, before.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []domain.StepID{"category", "details", "pricing"}, snap.AvailableSteps)
}

func TestManager_ConcurrentOperationsOnOneSession(t *testing.T) {
	reg := registry.NewRegistry()
	for i := 0; i < 20; i++ {
		require.NoError(t, reg.Register(step(fmt.Sprintf("s%02d", i), i)))
	}
	mgr := session.NewManager(reg)
	ctx := context.Background()

	snap, err := mgr.StartSession(ctx, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := domain.StepID(fmt.Sprintf("s%02d", i))
			_, err := mgr.Complete(ctx, snap.SessionID, id, domain.Payload{string(id): i})
			assert.NoError(t, err)
			_, err = mgr.Advance(ctx, snap.SessionID)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final, err := mgr.Snapshot(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.Len(t, final.Context.Completed(), 20)
	assert.Len(t, final.Context.CustomData, 20)
}

func TestManager_DistributedLocking(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	locker := &recordingLocker{inner: redis.NewLocker(client, "stepflow:", redis.WithRetryInterval(time.Millisecond))}
	reg, store := fixture(t)
	mgr := session.NewManager(reg,
		session.WithProfiles(store),
		session.WithLocker(locker),
		session.WithIsolation(false),
		session.WithIDGenerator(func() string { return "s1" }),
	)
	ctx := context.Background()

	_, err = mgr.StartSession(ctx, nil)
	require.NoError(t, err)
	_, err = mgr.ActivateProfile(ctx, "s1", "pricing-first")
	require.NoError(t, err)
	_, err = mgr.ReorderSteps(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		session.RegistryLockKey,
		"session:s1",
		session.RegistryLockKey,
		session.RegistryLockKey,
	}, locker.seen())
	assert.Empty(t, mr.Keys(), "every lock is released")
}

func TestManager_ReplaceKeepsRunningSessions(t *testing.T) {
	reg, store := fixture(t)
	ids := []string{"old", "new"}
	mgr := session.NewManager(reg, session.WithProfiles(store), session.WithIDGenerator(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))
	ctx := context.Background()

	_, err := mgr.StartSession(ctx, nil)
	require.NoError(t, err)

	next := registry.NewRegistry()
	require.NoError(t, next.Register(step("intro", 1)))
	require.NoError(t, mgr.Replace(ctx, next, profile.NewStore()))

	snap, err := mgr.StartSession(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.StepID{"intro"}, snap.AvailableSteps)
	_, ok := mgr.Profiles().Get("pricing-first")
	assert.False(t, ok)

	old, err := mgr.Snapshot(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, []domain.StepID{"category", "details", "pricing"}, old.AvailableSteps)
	assert.Equal(t, 1, mgr.RegistryStatus(ctx).TotalSteps)
}
