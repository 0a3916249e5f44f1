// Package runtime implements the orchestration controller: the per-session state machine
// that moves a cursor over the available steps as the context accumulates.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/stepflow/internal/logging"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/profile"
	"github.com/aretw0/stepflow/pkg/registry"
)

// Controller drives one wizard session.
//
// A Controller is single-threaded: callers must serialize operations, which is what
// pkg/session does. Hooks may call back into the controller; work they trigger is
// queued and drained when the outermost operation returns.
type Controller struct {
	sessionID string
	registry  *registry.Registry
	profiles  *profile.Store
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	now       func() time.Time

	flags   map[string]bool
	context *domain.StepContext
	state   domain.ControllerState
	queue   taskQueue
	closed  bool

	resumeAt domain.StepID // cursor to restore when the active profile is deactivated
}

// Option configures the Controller.
type Option func(*Controller)

// WithLogger configures a logger for the controller.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithLifecycleHooks configures the outward callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Controller) {
		c.hooks = hooks
	}
}

// WithProfiles configures the store consulted by ActivateProfile.
func WithProfiles(store *profile.Store) Option {
	return func(c *Controller) {
		c.profiles = store
	}
}

// WithSessionID tags emitted events and log lines.
func WithSessionID(id string) Option {
	return func(c *Controller) {
		c.sessionID = id
	}
}

// WithFeatureFlags seeds the context's feature flags. Reset restores them.
func WithFeatureFlags(flags map[string]bool) Option {
	return func(c *Controller) {
		c.flags = flags
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New creates a Controller over reg. The controller stays Idle until Start.
func New(reg *registry.Registry, opts ...Option) *Controller {
	c := &Controller{
		registry: reg,
		logger:   logging.NewNop(),
		now:      time.Now,
		state:    domain.ControllerState{Status: domain.StatusIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.profiles == nil {
		c.profiles = profile.NewStore(profile.WithLogger(c.logger))
	}
	c.logger = c.logger.With("session_id", c.sessionID)
	c.context = domain.NewStepContext(c.flags)
	return c
}

// Start enters the initial state: the first available step, or Idle if there is none.
func (c *Controller) Start(ctx context.Context) (domain.NavigationResult, error) {
	if err := c.begin(); err != nil {
		return domain.NavigationResult{}, err
	}
	res := c.enterInitial(ctx)
	return c.end(ctx, res), nil
}

// State returns the controller's logical position.
func (c *Controller) State() domain.ControllerState {
	return c.state
}

// Context returns a copy of the session context.
func (c *Controller) Context() *domain.StepContext {
	return c.context.Clone()
}

// AvailableSteps returns the steps currently reachable from the session context.
func (c *Controller) AvailableSteps() []domain.StepDefinition {
	return c.registry.AvailableSteps(c.context)
}

// Registry returns the registry the controller navigates.
func (c *Controller) Registry() *registry.Registry {
	return c.registry
}

// Pending reports how many deferred tasks are queued.
func (c *Controller) Pending() int {
	return c.queue.len()
}

// Closed reports whether Close was called.
func (c *Controller) Closed() bool {
	return c.closed
}

// Close ends the session. Pending recomputes are dropped; they read live context, so
// dropping them cannot leave anything inconsistent.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	if n := c.queue.len(); n > 0 {
		c.logger.Debug("dropping pending tasks on close", "pending", n)
	}
	c.queue.clear()
	c.closed = true
}

// Reset clears every selection and completion and re-enters the initial state.
// Any active profile is deactivated first. This is the only operation that discards context.
func (c *Controller) Reset(ctx context.Context) (domain.NavigationResult, error) {
	if err := c.begin(); err != nil {
		return domain.NavigationResult{}, err
	}
	c.queue.clear()

	if c.state.Status == domain.StatusProfileActive {
		prev := c.registry.ClearFlowProfile()
		c.resumeAt = ""
		c.emitProfileChange(ctx, "", prev)
	}

	old := c.context
	c.context = domain.NewStepContext(c.flags)
	c.emitCommitted(ctx, old)

	c.state = domain.ControllerState{Status: domain.StatusIdle}
	res := c.enterInitial(ctx)
	return c.end(ctx, res), nil
}

func (c *Controller) enterInitial(ctx context.Context) domain.NavigationResult {
	steps := c.AvailableSteps()
	from := c.state.StepID
	target, ok := firstUncompleted(steps, c.context)
	if !ok {
		c.setState(domain.ControllerState{Status: domain.StatusIdle})
		return c.result(domain.OutcomeIdle, from, steps)
	}
	c.moveTo(ctx, target.ID)
	return c.result(domain.OutcomeMoved, from, steps)
}

func (c *Controller) result(outcome domain.Outcome, from domain.StepID, steps []domain.StepDefinition) domain.NavigationResult {
	return domain.NavigationResult{
		Outcome: outcome,
		From:    from,
		StepID:  c.state.StepID,
		State:   c.state,
		Steps:   domain.IDs(steps),
	}
}

func (c *Controller) setState(s domain.ControllerState) {
	if s != c.state {
		c.logger.Debug("controller state change", "from", c.state.Status, "to", s.Status, "step_id", s.StepID)
	}
	c.state = s
	c.context.CurrentStepID = s.StepID
}

func firstUncompleted(steps []domain.StepDefinition, ctx *domain.StepContext) (domain.StepDefinition, bool) {
	for _, s := range steps {
		if !ctx.IsCompleted(s.ID) {
			return s, true
		}
	}
	if len(steps) > 0 {
		return steps[0], true
	}
	return domain.StepDefinition{}, false
}
