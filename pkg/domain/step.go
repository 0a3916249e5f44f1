package domain

// StepID identifies a step independently of its display position.
type StepID string

// StepDefinition describes one unit of the wizard.
type StepDefinition struct {
	ID          StepID `json:"id" yaml:"id" mapstructure:"id"`
	DisplayName string `json:"display_name" yaml:"display_name" mapstructure:"display_name"`

	// Component is the renderable reference. It keys into the registry's component table.
	Component string `json:"component" yaml:"component" mapstructure:"component"`

	// Order is a mutable projection: reorder operations and flow profiles rewrite it in place.
	Order int `json:"order" yaml:"order" mapstructure:"order"`

	IsVisible bool `json:"is_visible" yaml:"is_visible" mapstructure:"is_visible"`

	// Dependencies must all be completed before the step's conditions are even looked at.
	Dependencies []StepID `json:"dependencies,omitempty" yaml:"dependencies,omitempty" mapstructure:"dependencies"`

	// Conditions are combined with AND semantics. Zero conditions means always available.
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty" mapstructure:"conditions"`

	// CardSlots is opaque to the engine and handed through to the renderer.
	CardSlots []string `json:"card_slots,omitempty" yaml:"card_slots,omitempty" mapstructure:"card_slots"`

	// Owns lists the payload keys this step may set. Empty allows any key no other step owns.
	Owns []string `json:"owns,omitempty" yaml:"owns,omitempty" mapstructure:"owns"`

	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
}

// Clone returns a deep copy so that registry readers can never mutate the table.
func (d StepDefinition) Clone() StepDefinition {
	out := d
	if d.Dependencies != nil {
		out.Dependencies = append([]StepID(nil), d.Dependencies...)
	}
	if d.Conditions != nil {
		out.Conditions = make([]Condition, len(d.Conditions))
		for i, c := range d.Conditions {
			out.Conditions[i] = c.Clone()
		}
	}
	if d.CardSlots != nil {
		out.CardSlots = append([]string(nil), d.CardSlots...)
	}
	if d.Owns != nil {
		out.Owns = append([]string(nil), d.Owns...)
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// OwnsField reports whether key is listed in Owns. With no Owns every key passes; claims
// made by other steps are checked by the controller.
func (d StepDefinition) OwnsField(key string) bool {
	if len(d.Owns) == 0 {
		return true
	}
	for _, k := range d.Owns {
		if k == key {
			return true
		}
	}
	return false
}

// IDs extracts the identifiers of the given definitions, preserving order.
func IDs(defs []StepDefinition) []StepID {
	ids := make([]StepID, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
	}
	return ids
}

// View is what a step's behavior hands back to the host for rendering.
type View struct {
	StepID      StepID         `json:"step_id"`
	DisplayName string         `json:"display_name"`
	Component   string         `json:"component"`
	CardSlots   []string       `json:"card_slots,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// StepBehavior is the fixed capability set a step screen exposes to the engine.
// Implementations read the context but never mutate it; all mutation flows back through Complete.
type StepBehavior interface {
	Render(ctx *StepContext) (View, error)
	Validate(payload Payload) error
}
