package domain

import (
	"reflect"
)

// ContextDiff represents the changes between two contexts.
// It is designed to be serialized to JSON for partial updates on the client.
type ContextDiff struct {
	CurrentStepID *StepID `json:"current_step_id,omitempty"`

	// Fields contains only changed, added or cleared selection fields, keyed like Field().
	// For cleared fields, the key is present with a nil value.
	Fields map[string]any `json:"fields,omitempty"`

	// Completed lists steps that became completed.
	Completed []StepID `json:"completed,omitempty"`

	// Uncompleted lists steps that were completed before and no longer are (only after Reset).
	Uncompleted []StepID `json:"uncompleted,omitempty"`
}

var diffedFields = []string{
	"category", "intent", "transactionType", "employmentType", "occupation",
	"location", "details", "pricing", "review",
}

// Diff calculates the difference between oldCtx and newCtx.
// If oldCtx is nil, it returns a diff representing the entire newCtx. Returns nil when nothing changed.
func Diff(oldCtx, newCtx *StepContext) *ContextDiff {
	if newCtx == nil {
		return nil
	}

	diff := &ContextDiff{}

	if oldCtx == nil || oldCtx.CurrentStepID != newCtx.CurrentStepID {
		id := newCtx.CurrentStepID
		diff.CurrentStepID = &id
	}

	diff.Fields = diffFields(oldCtx, newCtx)
	diff.Completed, diff.Uncompleted = diffCompleted(oldCtx, newCtx)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffFields(old, new *StepContext) map[string]any {
	delta := make(map[string]any)

	for _, name := range diffedFields {
		newVal := new.Field(name)
		var oldVal any
		if old != nil {
			oldVal = old.Field(name)
		}
		if !reflect.DeepEqual(oldVal, newVal) {
			delta[name] = newVal
		}
	}

	for k, newVal := range new.CustomData {
		var oldVal any
		exists := false
		if old != nil {
			oldVal, exists = old.CustomData[k]
		}
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta["custom."+k] = newVal
		}
	}
	if old != nil {
		for k := range old.CustomData {
			if _, exists := new.CustomData[k]; !exists {
				delta["custom."+k] = nil
			}
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

func diffCompleted(old, new *StepContext) (added, removed []StepID) {
	for _, id := range new.Completed() {
		if old == nil || !old.IsCompleted(id) {
			added = append(added, id)
		}
	}
	if old != nil {
		for _, id := range old.Completed() {
			if !new.IsCompleted(id) {
				removed = append(removed, id)
			}
		}
	}
	return added, removed
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *ContextDiff) IsEmpty() bool {
	return d.CurrentStepID == nil &&
		len(d.Fields) == 0 &&
		len(d.Completed) == 0 &&
		len(d.Uncompleted) == 0
}
