package domain_test

import (
	"testing"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepContext_MergePreservesUntouchedFields(t *testing.T) {
	c := domain.NewStepContext(map[string]bool{"beta": true})

	require.NoError(t, c.Merge(domain.Payload{domain.KeyCategory: "property"}))
	require.NoError(t, c.Merge(domain.Payload{
		domain.KeyIntent: "offer",
		"draftTitle":     "Sunny flat",
	}))

	assert.Equal(t, "property", c.Category, "earlier selection must survive a later merge")
	assert.Equal(t, "offer", c.Intent)
	assert.Equal(t, "Sunny flat", c.CustomData["draftTitle"])
	assert.True(t, c.FeatureFlags["beta"])
}

func TestStepContext_MergeOverwrites(t *testing.T) {
	c := domain.NewStepContext(nil)
	require.NoError(t, c.Merge(domain.Payload{
		domain.KeyCategory: "property",
		domain.KeyLocation: map[string]any{"city": "Lisbon"},
	}))
	require.NoError(t, c.Merge(domain.Payload{
		domain.KeyCategory: "job",
		domain.KeyLocation: map[string]any{"city": "Porto"},
	}))

	assert.Equal(t, "job", c.Category)
	assert.Equal(t, map[string]any{"city": "Porto"}, c.Location)
}

func TestStepContext_MergeRejectsBadTypes(t *testing.T) {
	c := domain.NewStepContext(nil)
	require.NoError(t, c.Merge(domain.Payload{domain.KeyCategory: "property"}))

	err := c.Merge(domain.Payload{domain.KeyCategory: []int{1, 2}})
	assert.Error(t, err)
	assert.Equal(t, "property", c.Category, "a failed merge must not change the context")
}

func TestStepContext_Field(t *testing.T) {
	c := domain.NewStepContext(map[string]bool{"newPricing": true})
	assert.Nil(t, c.Field("category"), "unset selections are nil")

	require.NoError(t, c.Merge(domain.Payload{
		domain.KeyCategory: "job",
		"salaryBand":       "B",
	}))

	assert.Equal(t, "job", c.Field("category"))
	assert.Equal(t, true, c.Field("featureFlags.newPricing"))
	assert.Equal(t, false, c.Field("featureFlags.unknown"))
	assert.Equal(t, "B", c.Field("custom.salaryBand"))
	assert.Nil(t, c.Field("custom.missing"))
	assert.Nil(t, c.Field("nonsense"))
}

func TestStepContext_CloneIsIndependent(t *testing.T) {
	c := domain.NewStepContext(nil)
	require.NoError(t, c.Merge(domain.Payload{domain.KeyDetails: map[string]any{"rooms": 2}}))
	c.MarkCompleted("details")

	clone := c.Clone()
	clone.MarkCompleted("pricing")
	clone.Details["rooms"] = 3

	assert.False(t, c.IsCompleted("pricing"))
	assert.Equal(t, 2, c.Details["rooms"])
	assert.Equal(t, []domain.StepID{"details"}, c.Completed())
}

func TestStepDefinition_OwnsField(t *testing.T) {
	open := domain.StepDefinition{ID: "free"}
	assert.True(t, open.OwnsField(domain.KeyCategory))

	owned := domain.StepDefinition{ID: "category", Owns: []string{domain.KeyCategory}}
	assert.True(t, owned.OwnsField(domain.KeyCategory))
	assert.False(t, owned.OwnsField(domain.KeyIntent))
}
