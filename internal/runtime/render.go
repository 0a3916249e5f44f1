package runtime

import (
	"fmt"

	"github.com/aretw0/stepflow/pkg/domain"
)

// View renders the current position.
//
// On a step, the bound behavior renders against a copy of the context; steps without a
// bound behavior get a view built from their definition. In ProfileActive the view is the
// combined-input surface listing every available step. Idle renders an empty view.
func (c *Controller) View() (domain.View, error) {
	switch c.state.Status {
	case domain.StatusIdle:
		return domain.View{}, nil
	case domain.StatusProfileActive:
		return c.profileView(), nil
	}

	id := c.state.StepID
	def, ok := c.registry.GetStep(id)
	if !ok {
		return domain.View{}, stepNotFound(id)
	}

	view := domain.View{}
	if behavior, ok := c.registry.Behavior(id); ok {
		v, err := behavior.Render(c.context.Clone())
		if err != nil {
			return domain.View{}, fmt.Errorf("failed to render step %s: %w", id, err)
		}
		view = v
	}

	view.StepID = def.ID
	if view.DisplayName == "" {
		view.DisplayName = def.DisplayName
	}
	if view.Component == "" {
		view.Component = def.Component
	}
	if view.CardSlots == nil {
		view.CardSlots = def.CardSlots
	}
	if c.state.Status == domain.StatusStepUnavailable {
		if view.Data == nil {
			view.Data = make(map[string]any)
		}
		view.Data["unavailable"] = true
	}
	return view, nil
}

func (c *Controller) profileView() domain.View {
	p, _ := c.profiles.Get(c.state.ProfileID)
	steps := c.AvailableSteps()

	sections := make([]map[string]any, 0, len(steps))
	for _, s := range steps {
		sections = append(sections, map[string]any{
			"step_id":      string(s.ID),
			"display_name": s.DisplayName,
			"component":    s.Component,
			"completed":    c.context.IsCompleted(s.ID),
		})
	}

	return domain.View{
		DisplayName: p.Name,
		Component:   "profile:" + p.ID,
		Data: map[string]any{
			"profile_id": p.ID,
			"sections":   sections,
		},
	}
}
