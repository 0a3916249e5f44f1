package registry

import (
	"github.com/aretw0/stepflow/pkg/domain"
)

// Status reports what is registered and the orders currently in force.
func (r *Registry) Status() domain.RegistryStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := domain.RegistryStatus{
		TotalSteps:           len(r.sequence),
		RegisteredStepIDs:    append([]domain.StepID(nil), r.sequence...),
		CurrentOrderSnapshot: make(map[domain.StepID]int, len(r.steps)),
	}
	for id, e := range r.steps {
		s.CurrentOrderSnapshot[id] = e.def.Order
	}
	if r.active != nil {
		s.ActiveProfileName = r.active.Name
		if s.ActiveProfileName == "" {
			s.ActiveProfileName = r.active.ID
		}
	}
	for _, id := range r.sequence {
		c := r.steps[id].def.Component
		if _, ok := r.components[c]; ok && !contains(s.BoundComponents, c) {
			s.BoundComponents = append(s.BoundComponents, c)
		}
	}
	return s
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
