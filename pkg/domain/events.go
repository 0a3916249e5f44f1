package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStepChange       EventType = "step_change"
	EventStepComplete     EventType = "step_complete"
	EventStepUnavailable  EventType = "step_unavailable"
	EventContextCommitted EventType = "context_committed"
	EventProfileChange    EventType = "profile_change"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// StepEvent reports a cursor move or an unavailable step.
type StepEvent struct {
	EventBase
	StepID StepID `json:"step_id"`
	From   StepID `json:"from,omitempty"`
}

// CompletionEvent reports a completed step and the payload it submitted.
type CompletionEvent struct {
	EventBase
	StepID  StepID  `json:"step_id"`
	Payload Payload `json:"payload,omitempty"`
}

// CommitEvent is emitted once a context mutation is committed, before any recompute runs.
type CommitEvent struct {
	EventBase
	Diff    *ContextDiff `json:"diff,omitempty"`
	Context *StepContext `json:"-"`
}

// ProfileEvent reports profile activation (ProfileID set) or deactivation (ProfileID empty).
type ProfileEvent struct {
	EventBase
	ProfileID string `json:"profile_id,omitempty"`
	Previous  string `json:"previous,omitempty"`
}

// LifecycleHooks defines the outward callbacks toward the hosting UI.
type LifecycleHooks struct {
	OnStepChange       func(context.Context, *StepEvent)
	OnStepComplete     func(context.Context, *CompletionEvent)
	OnStepUnavailable  func(context.Context, *StepEvent)
	OnContextCommitted func(context.Context, *CommitEvent)
	OnProfileChange    func(context.Context, *ProfileEvent)
}

// Merge chains two hook sets: h runs first, then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStepChange:       chain(h.OnStepChange, other.OnStepChange),
		OnStepComplete:     chain(h.OnStepComplete, other.OnStepComplete),
		OnStepUnavailable:  chain(h.OnStepUnavailable, other.OnStepUnavailable),
		OnContextCommitted: chain(h.OnContextCommitted, other.OnContextCommitted),
		OnProfileChange:    chain(h.OnProfileChange, other.OnProfileChange),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
