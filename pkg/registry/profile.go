package registry

import (
	"github.com/aretw0/stepflow/pkg/domain"
)

// SetFlowProfile applies the profile's order overrides in place.
// Steps the profile does not mention keep their order; visibility, dependencies and
// conditions are untouched. Reapplying the active profile changes nothing.
// Switching from another profile first restores the orders that one displaced.
// It returns the number of overrides applied.
func (r *Registry) SetFlowProfile(profile domain.FlowProfile) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil && r.active.ID != profile.ID {
		r.restoreBaseline()
	}

	applied := 0
	for _, o := range profile.StepOrderOverrides {
		e, ok := r.steps[o.StepID]
		if !ok {
			r.logger.Warn("flow profile references unknown step", "profile", profile.ID, "step_id", o.StepID)
			continue
		}
		if _, saved := r.baseline[o.StepID]; !saved {
			r.baseline[o.StepID] = e.def.Order
		}
		e.def.Order = o.Order
		applied++
	}

	p := profile.Clone()
	r.active = &p
	return applied
}

// ClearFlowProfile restores the orders displaced by the active profile.
// It returns the id of the profile that was active, if any.
func (r *Registry) ClearFlowProfile() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil {
		return ""
	}
	prev := r.active.ID
	r.restoreBaseline()
	r.active = nil
	return prev
}

// ActiveProfile returns the active flow profile.
func (r *Registry) ActiveProfile() (domain.FlowProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == nil {
		return domain.FlowProfile{}, false
	}
	return r.active.Clone(), true
}

func (r *Registry) restoreBaseline() {
	for id, order := range r.baseline {
		if e, ok := r.steps[id]; ok {
			e.def.Order = order
		}
	}
	clear(r.baseline)
}

// profileOrder reports the order the active profile assigns to id.
func (r *Registry) profileOrder(id domain.StepID) (int, bool) {
	if r.active == nil {
		return 0, false
	}
	for _, o := range r.active.StepOrderOverrides {
		if o.StepID == id {
			return o.Order, true
		}
	}
	return 0, false
}
