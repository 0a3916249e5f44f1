package domain

// ControllerStatus is the mode of the orchestration controller.
type ControllerStatus string

const (
	StatusIdle            ControllerStatus = "idle"             // Nothing is reachable
	StatusAwaitingStep    ControllerStatus = "awaiting_step"    // Cursor rests on StepID
	StatusStepUnavailable ControllerStatus = "step_unavailable" // StepID dropped out of the availability list
	StatusProfileActive   ControllerStatus = "profile_active"   // Combined-input surface replaces the cursor
)

// ControllerState is the controller's logical position.
// The position is a StepID rather than an index because the availability list shifts with the context.
type ControllerState struct {
	Status    ControllerStatus `json:"status"`
	StepID    StepID           `json:"step_id,omitempty"`
	ProfileID string           `json:"profile_id,omitempty"`
}

// Outcome reports what a controller operation did.
type Outcome string

const (
	OutcomeMoved          Outcome = "moved"
	OutcomeStayed         Outcome = "stayed"
	OutcomeNoNextStep     Outcome = "no_next_step"
	OutcomeNoPreviousStep Outcome = "no_previous_step"
	OutcomeUnavailable    Outcome = "unavailable"
	OutcomeProfileActive  Outcome = "profile_active"
	OutcomeIdle           Outcome = "idle"
)

// NavigationResult is returned by every controller operation.
// Navigation anomalies are reported here instead of as errors.
type NavigationResult struct {
	Outcome Outcome         `json:"outcome"`
	From    StepID          `json:"from,omitempty"`
	StepID  StepID          `json:"step_id,omitempty"`
	State   ControllerState `json:"state"`
	Steps   []StepID        `json:"available_steps"`
}

// Moved reports whether the cursor changed.
func (r NavigationResult) Moved() bool {
	return r.Outcome == OutcomeMoved
}
