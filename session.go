package stepflow

import (
	"context"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/session"
)

// Session is a handle on one live wizard session.
// Operations on the same session are serialized by the engine.
type Session struct {
	id      string
	manager *session.Manager
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Advance moves to the next available step.
func (s *Session) Advance(ctx context.Context) (domain.NavigationResult, error) {
	return s.manager.Advance(ctx, s.id)
}

// Retreat moves to the previous available step.
func (s *Session) Retreat(ctx context.Context) (domain.NavigationResult, error) {
	return s.manager.Retreat(ctx, s.id)
}

// GoTo jumps to an available step.
func (s *Session) GoTo(ctx context.Context, step domain.StepID) (domain.NavigationResult, error) {
	return s.manager.GoTo(ctx, s.id, step)
}

// Complete commits a step's payload into the context and marks the step completed.
func (s *Session) Complete(ctx context.Context, step domain.StepID, payload domain.Payload) (domain.NavigationResult, error) {
	return s.manager.Complete(ctx, s.id, step, payload)
}

// Reset clears the context and returns to the first available step.
func (s *Session) Reset(ctx context.Context) (domain.NavigationResult, error) {
	return s.manager.Reset(ctx, s.id)
}

// ActivateProfile applies a flow profile to the session.
func (s *Session) ActivateProfile(ctx context.Context, profileID string) (domain.NavigationResult, error) {
	return s.manager.ActivateProfile(ctx, s.id, profileID)
}

// DeactivateProfile restores the catalog order.
func (s *Session) DeactivateProfile(ctx context.Context) (domain.NavigationResult, error) {
	return s.manager.DeactivateProfile(ctx, s.id)
}

// ApplyMatchingProfile activates the first profile whose activation conditions hold.
// The boolean reports whether one matched.
func (s *Session) ApplyMatchingProfile(ctx context.Context) (domain.NavigationResult, bool, error) {
	return s.manager.ApplyMatchingProfile(ctx, s.id)
}

// Snapshot returns the session's state, context and available steps.
func (s *Session) Snapshot(ctx context.Context) (domain.SessionSnapshot, error) {
	return s.manager.Snapshot(ctx, s.id)
}

// View renders the current step through its bound behavior.
func (s *Session) View(ctx context.Context) (domain.View, error) {
	return s.manager.View(ctx, s.id)
}

// Status returns the registry status as this session sees it.
func (s *Session) Status(ctx context.Context) (domain.RegistryStatus, error) {
	return s.manager.SessionRegistryStatus(ctx, s.id)
}

// End closes the session and drops any pending recompute.
func (s *Session) End(ctx context.Context) error {
	return s.manager.EndSession(ctx, s.id)
}
