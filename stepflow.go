package stepflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/loam"
	"github.com/aretw0/stepflow/internal/logging"
	loamAdapter "github.com/aretw0/stepflow/pkg/adapters/loam"
	"github.com/aretw0/stepflow/pkg/catalog"
	"github.com/aretw0/stepflow/pkg/condition"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/ports"
	"github.com/aretw0/stepflow/pkg/profile"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/aretw0/stepflow/pkg/session"
)

// Engine is the high-level entry point for the stepflow library.
// It loads a step catalog, owns the registry built from it and hands out sessions.
type Engine struct {
	manager     *session.Manager
	loader      ports.CatalogLoader
	evaluator   *condition.Evaluator
	predicates  map[string]condition.PredicateFunc
	behaviors   map[string]domain.StepBehavior
	sessionOpts []session.Option
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	Name        string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers the callbacks every session emits to.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLoader injects a custom CatalogLoader, bypassing the default Loam initialization.
func WithLoader(l ports.CatalogLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithPredicate registers a named predicate for conditions of type custom.
func WithPredicate(name string, fn condition.PredicateFunc) Option {
	return func(e *Engine) {
		e.predicates[name] = fn
	}
}

// WithBehavior binds a component key to the behavior that renders and validates it.
func WithBehavior(component string, behavior domain.StepBehavior) Option {
	return func(e *Engine) {
		e.behaviors[component] = behavior
	}
}

// WithLocker serializes registry mutation across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithLocker(locker))
	}
}

// WithLockTTL sets the TTL of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithLockTTL(ttl))
	}
}

// WithIsolation controls whether each session navigates its own copy of the registry (default true).
func WithIsolation(isolate bool) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithIsolation(isolate))
	}
}

// WithFeatureFlags sets the flags every new session starts with.
func WithFeatureFlags(flags map[string]bool) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithDefaultFlags(flags))
	}
}

// WithSessionIDs replaces the session id generator.
func WithSessionIDs(fn func() string) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithIDGenerator(fn))
	}
}

// New initializes a new stepflow Engine.
// By default, it reads the catalog from a Loam repository at the given path.
// If WithLoader option is provided, catalogPath can be empty and Loam is skipped.
func New(catalogPath string, opts ...Option) (*Engine, error) {
	eng := &Engine{
		predicates: make(map[string]condition.PredicateFunc),
		behaviors:  make(map[string]domain.StepBehavior),
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.loader == nil {
		if catalogPath == "" {
			return nil, fmt.Errorf("catalogPath is required when no custom loader is provided")
		}

		absPath, err := filepath.Abs(catalogPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}

		eng.Name = filepath.Base(absPath)

		// Strict mode keeps numbers as json.Number across Markdown, JSON and YAML documents.
		// The engine never writes the catalog, so the repository is opened read-only.
		repo, err := loam.Init(absPath,
			loam.WithStrict(true),
			loam.WithReadOnly(true),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize loam: %w", err)
		}

		typedRepo := loam.NewTypedRepository[loamAdapter.DocumentMetadata](repo)
		eng.loader = loamAdapter.New(typedRepo)
	} else if catalogPath != "" {
		eng.Name = filepath.Base(catalogPath)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("catalog", eng.Name)
	}

	evalOpts := []condition.Option{condition.WithLogger(eng.logger)}
	for name, fn := range eng.predicates {
		evalOpts = append(evalOpts, condition.WithPredicate(name, fn))
	}
	eng.evaluator = condition.New(evalOpts...)

	reg, store, err := eng.build(context.Background())
	if err != nil {
		return nil, err
	}

	sessionOpts := []session.Option{
		session.WithLogger(eng.logger),
		session.WithProfiles(store),
		session.WithLifecycleHooks(eng.hooks),
	}
	eng.manager = session.NewManager(reg, append(sessionOpts, eng.sessionOpts...)...)

	return eng, nil
}

// build loads the catalog and turns it into a fresh registry and profile store.
func (e *Engine) build(ctx context.Context) (*registry.Registry, *profile.Store, error) {
	steps, err := e.loader.LoadSteps(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load steps: %w", err)
	}
	profiles, err := e.loader.LoadProfiles(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	issues := catalog.ValidateDomain(catalog.New(steps, profiles))
	for _, w := range issues.Warnings() {
		e.logger.Warn("catalog warning", "path", w.Path, "message", w.Message)
	}
	if err := issues.Err(); err != nil {
		return nil, nil, err
	}

	reg := registry.NewRegistry(
		registry.WithLogger(e.logger),
		registry.WithEvaluator(e.evaluator),
	)
	for component, behavior := range e.behaviors {
		reg.Bind(component, behavior)
	}
	store := profile.NewStore(profile.WithLogger(e.logger))

	if err := catalog.Apply(reg, store, steps, profiles); err != nil {
		return nil, nil, err
	}
	e.logger.Debug("catalog loaded", "steps", len(steps), "profiles", len(profiles))
	return reg, store, nil
}

// Start opens a new session with the given feature flags on top of the defaults.
func (e *Engine) Start(ctx context.Context, flags map[string]bool) (*Session, error) {
	snap, err := e.manager.StartSession(ctx, flags)
	if err != nil {
		return nil, err
	}
	return &Session{id: snap.SessionID, manager: e.manager}, nil
}

// Session returns a handle to a live session.
func (e *Engine) Session(id string) (*Session, error) {
	if _, err := e.manager.Snapshot(context.Background(), id); err != nil {
		return nil, err
	}
	return &Session{id: id, manager: e.manager}, nil
}

// Manager exposes the session manager adapters drive.
func (e *Engine) Manager() *session.Manager {
	return e.manager
}

// Registry returns the registry new sessions are created from.
func (e *Engine) Registry() *registry.Registry {
	return e.manager.Registry()
}

// Status returns a diagnostic snapshot of the shared registry.
func (e *Engine) Status() domain.RegistryStatus {
	return e.manager.RegistryStatus(context.Background())
}

// ReorderSteps rewrites step orders for sessions started afterwards.
// It returns how many overrides matched a registered step.
func (e *Engine) ReorderSteps(ctx context.Context, orders []domain.OrderOverride) (int, error) {
	return e.manager.ReorderSteps(ctx, orders)
}

// RegisterPredicate adds or replaces a named predicate after construction.
func (e *Engine) RegisterPredicate(name string, fn condition.PredicateFunc) {
	e.evaluator.RegisterPredicate(name, fn)
}

// Reload reads the catalog again. Sessions already running keep the catalog they started with.
// On error the previous catalog stays in place.
func (e *Engine) Reload(ctx context.Context) error {
	reg, store, err := e.build(ctx)
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	if err := e.manager.Replace(ctx, reg, store); err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	e.logger.Info("catalog reloaded", "steps", reg.Status().TotalSteps)
	return nil
}

// Watch returns a channel that signals when the underlying catalog changes.
// Returns error if the loader does not support watching.
func (e *Engine) Watch(ctx context.Context) (<-chan string, error) {
	if w, ok := e.loader.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, fmt.Errorf("current loader does not support watching")
}

// Loader returns the underlying CatalogLoader used by the engine.
func (e *Engine) Loader() ports.CatalogLoader {
	return e.loader
}
