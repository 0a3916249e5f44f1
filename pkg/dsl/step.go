package dsl

import "github.com/aretw0/stepflow/pkg/domain"

// StepBuilder provides a fluent API for configuring a step.
type StepBuilder struct {
	def     domain.StepDefinition
	builder *Builder
}

// Title sets the display name. It defaults to the id.
func (s *StepBuilder) Title(name string) *StepBuilder {
	s.def.DisplayName = name
	return s
}

// Component sets the renderable reference. It defaults to the id.
func (s *StepBuilder) Component(component string) *StepBuilder {
	s.def.Component = component
	return s
}

// Order overrides the insertion-based default order.
func (s *StepBuilder) Order(order int) *StepBuilder {
	s.def.Order = order
	return s
}

// Hidden excludes the step from availability regardless of its conditions.
func (s *StepBuilder) Hidden() *StepBuilder {
	s.def.IsVisible = false
	return s
}

// After declares the steps that must be completed first.
func (s *StepBuilder) After(ids ...string) *StepBuilder {
	for _, id := range ids {
		s.def.Dependencies = append(s.def.Dependencies, domain.StepID(id))
	}
	return s
}

// When adds availability conditions. All of them must hold.
func (s *StepBuilder) When(conds ...domain.Condition) *StepBuilder {
	s.def.Conditions = append(s.def.Conditions, conds...)
	return s
}

// Slots sets the card slots handed through to the renderer.
func (s *StepBuilder) Slots(slots ...string) *StepBuilder {
	s.def.CardSlots = append(s.def.CardSlots, slots...)
	return s
}

// Owns restricts the payload keys the step may set.
func (s *StepBuilder) Owns(keys ...string) *StepBuilder {
	s.def.Owns = append(s.def.Owns, keys...)
	return s
}

// Meta attaches an opaque metadata entry.
func (s *StepBuilder) Meta(key, value string) *StepBuilder {
	if s.def.Metadata == nil {
		s.def.Metadata = make(map[string]string)
	}
	s.def.Metadata[key] = value
	return s
}

// Then starts the next step, so a linear flow reads top to bottom.
// The new step depends on this one.
func (s *StepBuilder) Then(id string) *StepBuilder {
	return s.builder.Add(id).After(string(s.def.ID))
}

// Build returns a copy of the underlying domain.StepDefinition.
func (s *StepBuilder) Build() domain.StepDefinition {
	return s.def.Clone()
}

// ProfileBuilder provides a fluent API for configuring a flow profile.
type ProfileBuilder struct {
	profile domain.FlowProfile
}

// Override moves a step to the given order while the profile is active.
func (p *ProfileBuilder) Override(stepID string, order int) *ProfileBuilder {
	p.profile.StepOrderOverrides = append(p.profile.StepOrderOverrides, domain.OrderOverride{
		StepID: domain.StepID(stepID),
		Order:  order,
	})
	return p
}

// ActivateWhen adds activation conditions used by automatic profile selection.
func (p *ProfileBuilder) ActivateWhen(conds ...domain.Condition) *ProfileBuilder {
	p.profile.ActivationConditions = append(p.profile.ActivationConditions, conds...)
	return p
}

// Build returns a copy of the underlying domain.FlowProfile.
func (p *ProfileBuilder) Build() domain.FlowProfile {
	return p.profile.Clone()
}
