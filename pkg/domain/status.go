package domain

// RegistryStatus is a side-effect-free diagnostic snapshot of a step registry.
type RegistryStatus struct {
	TotalSteps           int            `json:"total_steps"`
	RegisteredStepIDs    []StepID       `json:"registered_step_ids"`
	ActiveProfileName    string         `json:"active_profile_name,omitempty"`
	CurrentOrderSnapshot map[StepID]int `json:"current_order_snapshot"`
	BoundComponents      []string       `json:"bound_components,omitempty"`
}

// SessionSnapshot is the read model of a live session handed to adapters.
type SessionSnapshot struct {
	SessionID      string          `json:"session_id"`
	State          ControllerState `json:"state"`
	Context        *StepContext    `json:"context"`
	AvailableSteps []StepID        `json:"available_steps"`
	View           *View           `json:"view,omitempty"`
}
