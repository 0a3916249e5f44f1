package loam

import (
	"github.com/aretw0/stepflow/pkg/domain"
)

// Document kinds.
const (
	KindStep    = "step"
	KindProfile = "profile"
)

// DocumentMetadata is the front matter of one catalog document.
// A document describes either a step (the default) or a flow profile, selected by Kind.
// Numbers are kept as any because strict mode surfaces them as json.Number.
type DocumentMetadata struct {
	Kind string `json:"kind" mapstructure:"kind"`
	ID   string `json:"id" mapstructure:"id"`

	// Step fields
	DisplayName  string             `json:"display_name" mapstructure:"display_name"`
	Component    string             `json:"component" mapstructure:"component"`
	Order        any                `json:"order" mapstructure:"order"`
	Visible      *bool              `json:"visible" mapstructure:"visible"`
	Dependencies []string           `json:"dependencies" mapstructure:"dependencies"`
	Conditions   []domain.Condition `json:"conditions" mapstructure:"conditions"`
	CardSlots    []string           `json:"card_slots" mapstructure:"card_slots"`
	Owns         []string           `json:"owns" mapstructure:"owns"`

	// General Metadata, flattened to dash-joined keys.
	Metadata map[string]any `json:"metadata" mapstructure:"metadata"`

	// Profile fields
	Name                 string             `json:"name" mapstructure:"name"`
	StepOrderOverrides   []OrderEntry       `json:"step_order_overrides" mapstructure:"step_order_overrides"`
	ActivationConditions []domain.Condition `json:"activation_conditions" mapstructure:"activation_conditions"`
}

// OrderEntry is one override line of a profile document.
type OrderEntry struct {
	StepID string `json:"step_id" mapstructure:"step_id"`
	Order  any    `json:"order" mapstructure:"order"`
}
