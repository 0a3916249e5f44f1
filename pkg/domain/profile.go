package domain

// OrderOverride assigns a display order to a step.
type OrderOverride struct {
	StepID StepID `json:"step_id" yaml:"step_id" mapstructure:"step_id" jsonschema:"minLength=1"`
	Order  int    `json:"order" yaml:"order" mapstructure:"order" jsonschema:"minimum=0"`
}

// FlowProfile is a named alternative ordering of steps.
// Activation rewrites the Order of matching definitions; visibility, dependencies and
// conditions are left alone.
type FlowProfile struct {
	ID                   string          `json:"id" yaml:"id" mapstructure:"id" jsonschema:"minLength=1"`
	Name                 string          `json:"name" yaml:"name" mapstructure:"name" jsonschema:"minLength=1"`
	StepOrderOverrides   []OrderOverride `json:"step_order_overrides,omitempty" yaml:"step_order_overrides,omitempty" mapstructure:"step_order_overrides"`
	ActivationConditions []Condition     `json:"activation_conditions,omitempty" yaml:"activation_conditions,omitempty" mapstructure:"activation_conditions"`
}

// Clone returns a copy that shares no slices with the original.
func (p FlowProfile) Clone() FlowProfile {
	out := p
	out.StepOrderOverrides = append([]OrderOverride(nil), p.StepOrderOverrides...)
	if p.ActivationConditions != nil {
		out.ActivationConditions = make([]Condition, len(p.ActivationConditions))
		for i, c := range p.ActivationConditions {
			out.ActivationConditions[i] = c.Clone()
		}
	}
	return out
}
