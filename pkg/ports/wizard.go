package ports

import (
	"context"

	"github.com/aretw0/stepflow/pkg/domain"
)

// Wizard is the inward surface a hosting UI or transport drives.
// Navigation anomalies come back as outcomes in the NavigationResult; errors are
// reserved for unknown sessions, steps or profiles and rejected payloads.
type Wizard interface {
	StartSession(ctx context.Context, flags map[string]bool) (domain.SessionSnapshot, error)
	Snapshot(ctx context.Context, sessionID string) (domain.SessionSnapshot, error)
	EndSession(ctx context.Context, sessionID string) error

	Advance(ctx context.Context, sessionID string) (domain.NavigationResult, error)
	Retreat(ctx context.Context, sessionID string) (domain.NavigationResult, error)
	GoTo(ctx context.Context, sessionID string, step domain.StepID) (domain.NavigationResult, error)
	Complete(ctx context.Context, sessionID string, step domain.StepID, payload domain.Payload) (domain.NavigationResult, error)
	Reset(ctx context.Context, sessionID string) (domain.NavigationResult, error)

	ActivateProfile(ctx context.Context, sessionID, profileID string) (domain.NavigationResult, error)
	DeactivateProfile(ctx context.Context, sessionID string) (domain.NavigationResult, error)

	RegistryStatus(ctx context.Context) domain.RegistryStatus
}
