package session

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/stepflow/internal/logging"
	"github.com/aretw0/stepflow/internal/runtime"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/ports"
	"github.com/aretw0/stepflow/pkg/profile"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/google/uuid"
)

var _ ports.Wizard = (*Manager)(nil)

// Manager orchestrates live sessions, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
//
// Hooks run while the session lock is held; they may call the controller they were
// handed events for, but must not call back into the Manager for the same session.
type Manager struct {
	registry *registry.Registry
	profiles *profile.Store
	hooks    domain.LifecycleHooks
	flags    map[string]bool
	isolate  bool
	newID    func() string

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	smu      sync.RWMutex
	sessions map[string]*runtime.Controller

	// owners records which session applied the active profile of a shared registry.
	// It is only touched under the registry lock.
	owners map[*registry.Registry]string

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the TTL of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithProfiles configures the flow profiles available to sessions.
func WithProfiles(store *profile.Store) Option {
	return func(m *Manager) {
		m.profiles = store
	}
}

// WithLifecycleHooks configures the callbacks every session emits to.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithDefaultFlags sets feature flags every new session starts with.
func WithDefaultFlags(flags map[string]bool) Option {
	return func(m *Manager) {
		m.flags = flags
	}
}

// WithIsolation controls whether each session navigates its own registry clone.
// It defaults to true.
func WithIsolation(isolate bool) Option {
	return func(m *Manager) {
		m.isolate = isolate
	}
}

// WithIDGenerator replaces the session id generator (uuid by default).
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

// NewManager creates a new Session Manager over the given registry.
func NewManager(reg *registry.Registry, opts ...Option) *Manager {
	m := &Manager{
		registry: reg,
		isolate:  true,
		newID:    uuid.NewString,
		locks:    make(map[string]*lockEntry),
		sessions: make(map[string]*runtime.Controller),
		owners:   make(map[*registry.Registry]string),
		lockTTL:  DefaultLockTTL,
		logger:   logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.profiles == nil {
		m.profiles = profile.NewStore(profile.WithLogger(m.logger))
	}
	return m
}

// Registry returns the shared registry new sessions are created from.
func (m *Manager) Registry() *registry.Registry {
	reg, _ := m.catalog()
	return reg
}

// Profiles returns the flow profile store.
func (m *Manager) Profiles() *profile.Store {
	_, store := m.catalog()
	return store
}

// Replace swaps the registry and profile store new sessions start from.
// Sessions already running keep the catalog they started with.
func (m *Manager) Replace(ctx context.Context, reg *registry.Registry, store *profile.Store) error {
	return m.withRegistryLock(ctx, func(context.Context) error {
		m.smu.Lock()
		defer m.smu.Unlock()
		m.registry = reg
		if store != nil {
			m.profiles = store
		}
		return nil
	})
}

func (m *Manager) catalog() (*registry.Registry, *profile.Store) {
	m.smu.RLock()
	defer m.smu.RUnlock()
	return m.registry, m.profiles
}

// StartSession creates a session and enters its initial state.
// Session start is serialized with registry mutation.
func (m *Manager) StartSession(ctx context.Context, flags map[string]bool) (domain.SessionSnapshot, error) {
	id := m.newID()
	merged := make(map[string]bool, len(m.flags)+len(flags))
	maps.Copy(merged, m.flags)
	maps.Copy(merged, flags)

	var (
		snap domain.SessionSnapshot
		ctrl *runtime.Controller
	)
	// The session is published only after Start, so nobody else can hold its lock yet.
	err := m.withRegistryLock(ctx, func(ctx context.Context) error {
		reg, store := m.catalog()
		if m.isolate {
			reg = reg.Clone()
		}
		ctrl = runtime.New(reg,
			runtime.WithSessionID(id),
			runtime.WithLogger(m.logger),
			runtime.WithProfiles(store),
			runtime.WithLifecycleHooks(m.hooks),
			runtime.WithFeatureFlags(merged),
		)
		if _, err := ctrl.Start(ctx); err != nil {
			return err
		}
		snap = snapshot(id, ctrl)
		return nil
	})
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("failed to start session: %w", err)
	}

	m.smu.Lock()
	m.sessions[id] = ctrl
	m.smu.Unlock()

	m.logger.Debug("session started", "session_id", id, "status", snap.State.Status, "step_id", snap.State.StepID)
	return snap, nil
}

// Snapshot returns the read model of a session.
func (m *Manager) Snapshot(ctx context.Context, sessionID string) (domain.SessionSnapshot, error) {
	var snap domain.SessionSnapshot
	err := m.withSession(ctx, sessionID, func(_ context.Context, c *runtime.Controller) error {
		snap = snapshot(sessionID, c)
		return nil
	})
	return snap, err
}

// EndSession closes a session, dropping any pending recompute.
// On a shared registry, a profile the session applied is cleared so it does not outlive it.
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	err := m.withSession(ctx, sessionID, func(ctx context.Context, c *runtime.Controller) error {
		if !m.isolate && c.State().Status == domain.StatusProfileActive {
			if err := m.withRegistryLock(ctx, func(context.Context) error {
				if m.owners[c.Registry()] == sessionID {
					c.Registry().ClearFlowProfile()
					delete(m.owners, c.Registry())
				}
				return nil
			}); err != nil {
				return err
			}
		}
		c.Close()
		return nil
	})
	if err != nil {
		return err
	}
	m.forget(sessionID)
	m.logger.Debug("session ended", "session_id", sessionID)
	return nil
}

// Advance moves the session's cursor forward.
func (m *Manager) Advance(ctx context.Context, sessionID string) (domain.NavigationResult, error) {
	return m.navigate(ctx, sessionID, func(ctx context.Context, c *runtime.Controller) (domain.NavigationResult, error) {
		return c.Advance(ctx)
	})
}

// Retreat moves the session's cursor back.
func (m *Manager) Retreat(ctx context.Context, sessionID string) (domain.NavigationResult, error) {
	return m.navigate(ctx, sessionID, func(ctx context.Context, c *runtime.Controller) (domain.NavigationResult, error) {
		return c.Retreat(ctx)
	})
}

// GoTo jumps to an available step.
func (m *Manager) GoTo(ctx context.Context, sessionID string, step domain.StepID) (domain.NavigationResult, error) {
	return m.navigate(ctx, sessionID, func(ctx context.Context, c *runtime.Controller) (domain.NavigationResult, error) {
		return c.GoTo(ctx, step)
	})
}

// Complete submits a step's payload.
func (m *Manager) Complete(ctx context.Context, sessionID string, step domain.StepID, payload domain.Payload) (domain.NavigationResult, error) {
	return m.navigate(ctx, sessionID, func(ctx context.Context, c *runtime.Controller) (domain.NavigationResult, error) {
		return c.Complete(ctx, step, payload)
	})
}

// Reset clears the session's selections and completions.
func (m *Manager) Reset(ctx context.Context, sessionID string) (domain.NavigationResult, error) {
	return m.navigate(ctx, sessionID, func(ctx context.Context, c *runtime.Controller) (domain.NavigationResult, error) {
		if c.State().Status == domain.StatusProfileActive {
			return m.sharedRegistry(ctx, func(ctx context.Context) (domain.NavigationResult, error) {
				res, err := c.Reset(ctx)
				m.disown(sessionID, c)
				return res, err
			})
		}
		return c.Reset(ctx)
	})
}

// ActivateProfile switches the session into profile mode.
// On a shared registry only one session at a time may hold a profile; the others get
// ErrProfileInUse until it deactivates, resets or ends.
func (m *Manager) ActivateProfile(ctx context.Context, sessionID, profileID string) (domain.NavigationResult, error) {
	return m.navigate(ctx, sessionID, func(ctx context.Context, c *runtime.Controller) (domain.NavigationResult, error) {
		return m.sharedRegistry(ctx, func(ctx context.Context) (domain.NavigationResult, error) {
			if err := m.claim(sessionID, c); err != nil {
				return domain.NavigationResult{}, err
			}
			res, err := c.ActivateProfile(ctx, profileID)
			m.disown(sessionID, c)
			return res, err
		})
	})
}

// DeactivateProfile returns the session to step-by-step navigation.
func (m *Manager) DeactivateProfile(ctx context.Context, sessionID string) (domain.NavigationResult, error) {
	return m.navigate(ctx, sessionID, func(ctx context.Context, c *runtime.Controller) (domain.NavigationResult, error) {
		return m.sharedRegistry(ctx, func(ctx context.Context) (domain.NavigationResult, error) {
			res, err := c.DeactivateProfile(ctx)
			m.disown(sessionID, c)
			return res, err
		})
	})
}

// ApplyMatchingProfile activates the first profile whose activation conditions hold.
// Like ActivateProfile it fails with ErrProfileInUse while another session holds the shared registry's profile.
func (m *Manager) ApplyMatchingProfile(ctx context.Context, sessionID string) (domain.NavigationResult, bool, error) {
	var matched bool
	res, err := m.navigate(ctx, sessionID, func(ctx context.Context, c *runtime.Controller) (domain.NavigationResult, error) {
		return m.sharedRegistry(ctx, func(ctx context.Context) (domain.NavigationResult, error) {
			if err := m.claim(sessionID, c); err != nil {
				return domain.NavigationResult{}, err
			}
			res, ok, err := c.ApplyMatchingProfile(ctx)
			matched = ok
			m.disown(sessionID, c)
			return res, err
		})
	})
	return res, matched, err
}

// View renders the session's current position.
func (m *Manager) View(ctx context.Context, sessionID string) (domain.View, error) {
	var view domain.View
	err := m.withSession(ctx, sessionID, func(_ context.Context, c *runtime.Controller) error {
		var err error
		view, err = c.View()
		return err
	})
	return view, err
}

// ReorderSteps reassigns orders on the shared registry.
// With isolation enabled, running sessions keep the orders they started with.
func (m *Manager) ReorderSteps(ctx context.Context, orders []domain.OrderOverride) (int, error) {
	var applied int
	err := m.withRegistryLock(ctx, func(context.Context) error {
		applied = m.Registry().ReorderSteps(orders)
		return nil
	})
	return applied, err
}

// RegistryStatus reports the shared registry. It is side-effect-free.
func (m *Manager) RegistryStatus(_ context.Context) domain.RegistryStatus {
	return m.Registry().Status()
}

// SessionRegistryStatus reports the registry a session navigates, which differs from the
// shared one when isolation is enabled.
func (m *Manager) SessionRegistryStatus(ctx context.Context, sessionID string) (domain.RegistryStatus, error) {
	var status domain.RegistryStatus
	err := m.withSession(ctx, sessionID, func(_ context.Context, c *runtime.Controller) error {
		status = c.Registry().Status()
		return nil
	})
	return status, err
}

// List returns the ids of live sessions, sorted.
func (m *Manager) List() []string {
	m.smu.RLock()
	defer m.smu.RUnlock()
	return slices.Sorted(maps.Keys(m.sessions))
}

func (m *Manager) lookup(id string) (*runtime.Controller, bool) {
	m.smu.RLock()
	defer m.smu.RUnlock()
	c, ok := m.sessions[id]
	return c, ok
}

func (m *Manager) forget(id string) {
	m.smu.Lock()
	defer m.smu.Unlock()
	delete(m.sessions, id)
}

// withSession executes fn while holding the lock for the session.
func (m *Manager) withSession(ctx context.Context, id string, fn func(context.Context, *runtime.Controller) error) error {
	c, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return m.withLock(ctx, sessionKey(id), func(ctx context.Context) error {
		if c.Closed() {
			return domain.ErrSessionClosed
		}
		return fn(ctx, c)
	})
}

func (m *Manager) navigate(ctx context.Context, id string, fn func(context.Context, *runtime.Controller) (domain.NavigationResult, error)) (domain.NavigationResult, error) {
	var res domain.NavigationResult
	err := m.withSession(ctx, id, func(ctx context.Context, c *runtime.Controller) error {
		var err error
		res, err = fn(ctx, c)
		return err
	})
	return res, err
}

// sharedRegistry runs a profile operation under the registry lock when sessions share
// the registry, since the operation rewrites orders every session sees.
func (m *Manager) sharedRegistry(ctx context.Context, fn func(context.Context) (domain.NavigationResult, error)) (domain.NavigationResult, error) {
	if m.isolate {
		return fn(ctx)
	}
	var res domain.NavigationResult
	err := m.withRegistryLock(ctx, func(ctx context.Context) error {
		var err error
		res, err = fn(ctx)
		return err
	})
	return res, err
}

// claim records the session as the owner of its shared registry's profile, failing when
// another session holds it. Callers hold the registry lock.
func (m *Manager) claim(sessionID string, c *runtime.Controller) error {
	if m.isolate {
		return nil
	}
	reg := c.Registry()
	if owner, held := m.owners[reg]; held && owner != sessionID {
		return fmt.Errorf("%w: session %s", domain.ErrProfileInUse, owner)
	}
	m.owners[reg] = sessionID
	return nil
}

// disown drops the session's ownership once its controller has left profile mode.
// Callers hold the registry lock.
func (m *Manager) disown(sessionID string, c *runtime.Controller) {
	if m.isolate || c.State().Status == domain.StatusProfileActive {
		return
	}
	if m.owners[c.Registry()] == sessionID {
		delete(m.owners, c.Registry())
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

func snapshot(id string, c *runtime.Controller) domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		SessionID:      id,
		State:          c.State(),
		Context:        c.Context(),
		AvailableSteps: domain.IDs(c.AvailableSteps()),
	}
	if snap.State.Status != domain.StatusIdle {
		if v, err := c.View(); err == nil {
			snap.View = &v
		}
	}
	return snap
}
