package ports

import (
	"context"

	"github.com/aretw0/stepflow/pkg/domain"
)

// CatalogLoader defines how the engine retrieves its step catalog.
// This allows the storage layer (Loam, FS, Memory) to be decoupled.
type CatalogLoader interface {
	// LoadSteps returns every step definition, in the order they should be registered.
	LoadSteps(ctx context.Context) ([]domain.StepDefinition, error)

	// LoadProfiles returns every flow profile, in the order they should be registered.
	LoadProfiles(ctx context.Context) ([]domain.FlowProfile, error)
}

// Watchable defines an interface for loaders that can notify about backend changes.
// This is typically used for hot-reload of the catalog in 'stepflow serve --watch'.
type Watchable interface {
	// Watch returns a channel that receives the id of each changed document.
	// The channel is closed when ctx is done.
	Watch(ctx context.Context) (<-chan string, error)
}
