package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDefinition is matched by every registration-time validation failure.
var ErrInvalidDefinition = errors.New("invalid step definition")

// ErrStepNotFound is returned when an operation names a step that was never registered.
var ErrStepNotFound = errors.New("step not found")

// ErrProfileNotFound is returned when a flow profile id is unknown.
var ErrProfileNotFound = errors.New("flow profile not found")

// ErrSessionNotFound is returned when a session ID cannot be found in the manager.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionClosed is returned by operations on a session that has ended.
var ErrSessionClosed = errors.New("session closed")

// ErrProfileInUse is returned when sessions share a registry and another session's profile is active on it.
var ErrProfileInUse = errors.New("flow profile held by another session")

// ErrPayloadRejected is matched by every payload a step refused: foreign fields or a failed behavior check.
var ErrPayloadRejected = errors.New("payload rejected")

// ValidationError represents a single field validation failure at registration.
type ValidationError struct {
	Key    string // Field name
	Reason string // Human-readable reason for failure
	Value  any    // The value that failed validation
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("field %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("field %q: %s (got %v)", e.Key, e.Reason, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidDefinition
}

// OwnershipError is returned when a payload carries fields its step does not own.
type OwnershipError struct {
	StepID StepID
	Keys   []string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("step '%s' submitted fields it does not own: %s", e.StepID, strings.Join(e.Keys, ", "))
}

func (e *OwnershipError) Unwrap() error {
	return ErrPayloadRejected
}
