package tests

import (
	"context"
	"testing"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CatalogLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.CatalogLoader.
// wantSteps and wantProfiles are the ids the loader is expected to return, in order.
func CatalogLoaderContractTest(t *testing.T, loader ports.CatalogLoader, wantSteps []domain.StepID, wantProfiles []string) {
	t.Helper()
	ctx := context.Background()

	t.Run("LoadSteps", func(t *testing.T) {
		steps, err := loader.LoadSteps(ctx)
		require.NoError(t, err)
		assert.Equal(t, wantSteps, domain.IDs(steps))
		for _, s := range steps {
			assert.NotEmpty(t, s.DisplayName, "step %s has no display name", s.ID)
			assert.NotEmpty(t, s.Component, "step %s has no component", s.ID)
		}
	})

	t.Run("LoadSteps_ReturnsCopies", func(t *testing.T) {
		first, err := loader.LoadSteps(ctx)
		require.NoError(t, err)
		if len(first) == 0 {
			t.Skip("empty catalog")
		}
		first[0].Order = -100

		second, err := loader.LoadSteps(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, -100, second[0].Order)
	})

	t.Run("LoadProfiles", func(t *testing.T) {
		profiles, err := loader.LoadProfiles(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(profiles))
		for _, p := range profiles {
			ids = append(ids, p.ID)
		}
		if len(wantProfiles) == 0 {
			assert.Empty(t, ids)
			return
		}
		assert.Equal(t, wantProfiles, ids)
	})
}
