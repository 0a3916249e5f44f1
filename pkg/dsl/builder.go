package dsl

import (
	"fmt"

	"github.com/aretw0/stepflow/pkg/adapters/memory"
	"github.com/aretw0/stepflow/pkg/catalog"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/registry"
)

// Builder manages the catalog construction.
// Steps and profiles keep the order in which they were first added.
type Builder struct {
	steps    map[domain.StepID]*StepBuilder
	order    []domain.StepID
	profiles map[string]*ProfileBuilder
	pOrder   []string
}

// New creates a new catalog builder.
func New() *Builder {
	return &Builder{
		steps:    make(map[domain.StepID]*StepBuilder),
		profiles: make(map[string]*ProfileBuilder),
	}
}

// Add creates a new step in the catalog.
// If the step already exists, it returns the existing builder.
// Steps added later get a higher default order.
func (b *Builder) Add(id string) *StepBuilder {
	sid := domain.StepID(id)
	if sb, ok := b.steps[sid]; ok {
		return sb
	}
	sb := &StepBuilder{
		def: domain.StepDefinition{
			ID:          sid,
			DisplayName: id,
			Component:   id,
			Order:       len(b.order) + 1,
			IsVisible:   true,
		},
		builder: b,
	}
	b.steps[sid] = sb
	b.order = append(b.order, sid)
	return sb
}

// Profile creates a new flow profile, or returns the existing one with that id.
func (b *Builder) Profile(id, name string) *ProfileBuilder {
	if pb, ok := b.profiles[id]; ok {
		return pb
	}
	pb := &ProfileBuilder{profile: domain.FlowProfile{ID: id, Name: name}}
	b.profiles[id] = pb
	b.pOrder = append(b.pOrder, id)
	return pb
}

// Catalog assembles the catalog document without validating it.
func (b *Builder) Catalog() *catalog.Catalog {
	steps := make([]domain.StepDefinition, 0, len(b.order))
	for _, id := range b.order {
		steps = append(steps, b.steps[id].Build())
	}
	profiles := make([]domain.FlowProfile, 0, len(b.pOrder))
	for _, id := range b.pOrder {
		profiles = append(profiles, b.profiles[id].Build())
	}
	return catalog.New(steps, profiles)
}

// Build validates the catalog and compiles it into a MemoryLoader.
func (b *Builder) Build() (*memory.Loader, error) {
	c := b.Catalog()
	defs := c.Definitions()
	for _, def := range defs {
		if err := registry.Validate(def); err != nil {
			return nil, fmt.Errorf("step %q: %w", def.ID, err)
		}
	}
	if err := catalog.ValidateDomain(c).Err(); err != nil {
		return nil, fmt.Errorf("failed to build memory loader: %w", err)
	}
	return memory.NewLoader(defs, c.FlowProfiles()...), nil
}
