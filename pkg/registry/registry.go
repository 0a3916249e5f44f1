// Package registry holds the step definition table and the component lookup table.
package registry

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/stepflow/internal/logging"
	"github.com/aretw0/stepflow/pkg/availability"
	"github.com/aretw0/stepflow/pkg/condition"
	"github.com/aretw0/stepflow/pkg/domain"
)

// entry is boxed so overwrites keep the slot taken at first registration.
type entry struct {
	def domain.StepDefinition
}

// Registry is the step definition table.
//
// Definitions are immutable to readers except for Order, which ReorderSteps and
// SetFlowProfile rewrite in place. Because that is a side effect on the whole table,
// sessions that need different profiles must not share one Registry; use Clone.
type Registry struct {
	mu         sync.RWMutex
	steps      map[domain.StepID]*entry
	sequence   []domain.StepID
	components map[string]domain.StepBehavior

	active   *domain.FlowProfile
	baseline map[domain.StepID]int // orders displaced by the active profile

	evaluator availability.Evaluator
	filter    *availability.Filter
	logger    *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for registry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithEvaluator replaces the default condition evaluator.
func WithEvaluator(eval availability.Evaluator) Option {
	return func(r *Registry) {
		r.evaluator = eval
	}
}

// NewRegistry creates a new empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		steps:      make(map[domain.StepID]*entry),
		components: make(map[string]domain.StepBehavior),
		baseline:   make(map[domain.StepID]int),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.evaluator == nil {
		r.evaluator = condition.New(condition.WithLogger(r.logger))
	}
	r.filter = availability.New(r.evaluator)
	return r
}

// Register validates and stores a definition.
// If a step with the same ID exists, it is overwritten and a warning is logged.
// An invalid definition is rejected as a whole.
func (r *Registry) Register(def domain.StepDefinition) error {
	if err := Validate(def); err != nil {
		return err
	}
	def = def.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.steps[def.ID]; ok {
		r.logger.Warn("overwriting step definition", "step_id", def.ID)
		if order, displaced := r.profileOrder(def.ID); displaced {
			r.baseline[def.ID] = def.Order
			def.Order = order
		}
		existing.def = def
		return nil
	}

	r.steps[def.ID] = &entry{def: def}
	r.sequence = append(r.sequence, def.ID)
	return nil
}

// Validate checks a definition without registering it.
func Validate(def domain.StepDefinition) error {
	switch {
	case def.ID == "":
		return &domain.ValidationError{Key: "id", Reason: "required"}
	case def.DisplayName == "":
		return &domain.ValidationError{Key: "display_name", Reason: "required", Value: def.ID}
	case def.Component == "":
		return &domain.ValidationError{Key: "component", Reason: "renderable reference required", Value: def.ID}
	case def.Order < 0:
		return &domain.ValidationError{Key: "order", Reason: "must be a non-negative integer", Value: def.Order}
	}
	for _, dep := range def.Dependencies {
		if dep == "" {
			return &domain.ValidationError{Key: "dependencies", Reason: "empty step id", Value: def.ID}
		}
	}
	return nil
}

// GetStep looks up a definition. The boolean is false for unknown ids.
func (r *Registry) GetStep(id domain.StepID) (domain.StepDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.steps[id]
	if !ok {
		return domain.StepDefinition{}, false
	}
	return e.def.Clone(), true
}

// Claimed reports whether any registered step lists key in its Owns.
func (r *Registry) Claimed(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.sequence {
		if slices.Contains(r.steps[id].def.Owns, key) {
			return true
		}
	}
	return false
}

// Steps returns copies of all definitions in registration order.
func (r *Registry) Steps() []domain.StepDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot()
}

func (r *Registry) snapshot() []domain.StepDefinition {
	out := make([]domain.StepDefinition, 0, len(r.sequence))
	for _, id := range r.sequence {
		out = append(out, r.steps[id].def.Clone())
	}
	return out
}

// ReorderSteps bulk-assigns orders. Unknown ids are skipped with a warning.
// It returns the number of assignments applied.
func (r *Registry) ReorderSteps(orders []domain.OrderOverride) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	applied := 0
	for _, o := range orders {
		e, ok := r.steps[o.StepID]
		if !ok {
			r.logger.Warn("reorder skipped unknown step", "step_id", o.StepID)
			continue
		}
		if o.Order < 0 {
			r.logger.Warn("reorder skipped negative order", "step_id", o.StepID, "order", o.Order)
			continue
		}
		e.def.Order = o.Order
		// An explicit reorder wins over whatever the active profile displaced.
		delete(r.baseline, o.StepID)
		applied++
	}
	return applied
}

// AvailableSteps returns the steps currently reachable from ctx. It has no side effects.
func (r *Registry) AvailableSteps(ctx *domain.StepContext) []domain.StepDefinition {
	r.mu.RLock()
	defs := r.snapshot()
	r.mu.RUnlock()

	return r.filter.Available(defs, ctx)
}

// Evaluator returns the condition evaluator used for availability.
func (r *Registry) Evaluator() availability.Evaluator {
	return r.evaluator
}

// Clone creates an independent registry with the same definitions, components and
// active profile. Order changes on the clone never reach the original.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := &Registry{
		steps:      make(map[domain.StepID]*entry, len(r.steps)),
		sequence:   append([]domain.StepID(nil), r.sequence...),
		components: make(map[string]domain.StepBehavior, len(r.components)),
		baseline:   make(map[domain.StepID]int, len(r.baseline)),
		evaluator:  r.evaluator,
		filter:     r.filter,
		logger:     r.logger,
	}
	for id, e := range r.steps {
		c.steps[id] = &entry{def: e.def.Clone()}
	}
	for k, v := range r.components {
		c.components[k] = v
	}
	for k, v := range r.baseline {
		c.baseline[k] = v
	}
	if r.active != nil {
		p := r.active.Clone()
		c.active = &p
	}
	return c
}
