package registry

import (
	"github.com/aretw0/stepflow/pkg/domain"
)

// Bind associates a renderable component key with its behavior.
// If the component is already bound, it is overwritten.
func (r *Registry) Bind(component string, behavior domain.StepBehavior) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.components[component]; ok {
		r.logger.Warn("rebinding component", "component", component)
	}
	r.components[component] = behavior
}

// Behavior resolves the behavior of a step through its component key.
func (r *Registry) Behavior(id domain.StepID) (domain.StepBehavior, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.steps[id]
	if !ok {
		return nil, false
	}
	b, ok := r.components[e.def.Component]
	return b, ok
}
