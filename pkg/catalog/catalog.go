// Package catalog defines the declarative step catalog format.
//
// A catalog is a YAML (or JSON) document listing step definitions and flow profiles.
// It is parsed strictly, checked against a JSON Schema derived from the Go types,
// checked again for graph-level mistakes, and finally decoded into domain values
// that can be registered on a registry and a profile store.
package catalog

import (
	"fmt"
	"io"
	"os"

	"github.com/aretw0/stepflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Version is the only catalog format understood by this package.
const Version = "stepflow/v1"

// Catalog is the document root.
type Catalog struct {
	Version  string               `yaml:"version" json:"version" jsonschema:"enum=stepflow/v1"`
	Steps    []StepSpec           `yaml:"steps" json:"steps" jsonschema:"minItems=1"`
	Profiles []domain.FlowProfile `yaml:"profiles,omitempty" json:"profiles,omitempty"`
}

// StepSpec is the serialized form of a step definition.
// Visible defaults to true when omitted.
type StepSpec struct {
	ID           domain.StepID      `yaml:"id" json:"id" jsonschema:"minLength=1"`
	DisplayName  string             `yaml:"display_name" json:"display_name" jsonschema:"minLength=1"`
	Component    string             `yaml:"component" json:"component" jsonschema:"minLength=1"`
	Order        int                `yaml:"order" json:"order" jsonschema:"minimum=0"`
	Visible      *bool              `yaml:"visible,omitempty" json:"visible,omitempty"`
	Dependencies []domain.StepID    `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Conditions   []domain.Condition `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	CardSlots    []string           `yaml:"card_slots,omitempty" json:"card_slots,omitempty"`
	Owns         []string           `yaml:"owns,omitempty" json:"owns,omitempty"`
	Metadata     map[string]string  `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Definition converts the serialized step into a domain definition.
func (s StepSpec) Definition() domain.StepDefinition {
	visible := true
	if s.Visible != nil {
		visible = *s.Visible
	}
	return domain.StepDefinition{
		ID:           s.ID,
		DisplayName:  s.DisplayName,
		Component:    s.Component,
		Order:        s.Order,
		IsVisible:    visible,
		Dependencies: s.Dependencies,
		Conditions:   s.Conditions,
		CardSlots:    s.CardSlots,
		Owns:         s.Owns,
		Metadata:     s.Metadata,
	}.Clone()
}

// SpecFor is the inverse of StepSpec.Definition.
func SpecFor(def domain.StepDefinition) StepSpec {
	def = def.Clone()
	visible := def.IsVisible
	return StepSpec{
		ID:           def.ID,
		DisplayName:  def.DisplayName,
		Component:    def.Component,
		Order:        def.Order,
		Visible:      &visible,
		Dependencies: def.Dependencies,
		Conditions:   def.Conditions,
		CardSlots:    def.CardSlots,
		Owns:         def.Owns,
		Metadata:     def.Metadata,
	}
}

// New assembles a catalog from domain values, e.g. ones produced by a loader.
func New(steps []domain.StepDefinition, profiles []domain.FlowProfile) *Catalog {
	c := &Catalog{Version: Version}
	for _, s := range steps {
		c.Steps = append(c.Steps, SpecFor(s))
	}
	for _, p := range profiles {
		c.Profiles = append(c.Profiles, p.Clone())
	}
	return c
}

// Definitions returns the step definitions in document order.
func (c *Catalog) Definitions() []domain.StepDefinition {
	out := make([]domain.StepDefinition, 0, len(c.Steps))
	for _, s := range c.Steps {
		out = append(out, s.Definition())
	}
	return out
}

// FlowProfiles returns the profiles in document order.
func (c *Catalog) FlowProfiles() []domain.FlowProfile {
	out := make([]domain.FlowProfile, 0, len(c.Profiles))
	for _, p := range c.Profiles {
		out = append(out, p.Clone())
	}
	return out
}

// LoadFile reads and parses a catalog file with strict unknown-field rejection.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a catalog. Unknown fields are rejected.
func Parse(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("decode catalog: empty document")
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for i := range c.Steps {
		normalizeConditions(c.Steps[i].Conditions)
	}
	for i := range c.Profiles {
		normalizeConditions(c.Profiles[i].ActivationConditions)
	}
	return &c, nil
}

// Marshal renders the catalog as YAML.
func (c *Catalog) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	return data, nil
}

func normalizeConditions(conds []domain.Condition) {
	for i := range conds {
		conds[i].Value = NormalizeValue(conds[i].Value)
	}
}
