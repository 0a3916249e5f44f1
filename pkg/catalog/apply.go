package catalog

import (
	"errors"
	"fmt"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/profile"
	"github.com/aretw0/stepflow/pkg/registry"
)

// Apply registers definitions and profiles in order. Every item is attempted;
// rejected ones are reported together and leave nothing behind.
func Apply(reg *registry.Registry, store *profile.Store, steps []domain.StepDefinition, profiles []domain.FlowProfile) error {
	var errs []error
	for _, def := range steps {
		if err := reg.Register(def); err != nil {
			errs = append(errs, fmt.Errorf("step %q: %w", def.ID, err))
		}
	}
	if store != nil {
		for _, p := range profiles {
			if err := store.Register(p); err != nil {
				errs = append(errs, fmt.Errorf("profile %q: %w", p.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Apply registers the catalog's contents.
func (c *Catalog) Apply(reg *registry.Registry, store *profile.Store) error {
	return Apply(reg, store, c.Definitions(), c.FlowProfiles())
}
