package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/stepflow/internal/runtime"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/profile"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(id string, order int, deps ...domain.StepID) domain.StepDefinition {
	return domain.StepDefinition{
		ID:           domain.StepID(id),
		DisplayName:  id,
		Component:    id + "Screen",
		Order:        order,
		IsVisible:    true,
		Dependencies: deps,
	}
}

// listingRegistry is the category → intent → location wizard with a property-only step.
func listingRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry()

	category := step("category", 1)
	category.Owns = []string{domain.KeyCategory}
	propertyOnly := step("propertyOnlyStep", 4, "category")
	propertyOnly.Conditions = []domain.Condition{domain.CategoryIs(domain.OpNotEquals, "job")}

	for _, d := range []domain.StepDefinition{
		category,
		step("intent", 2, "category"),
		step("location", 3, "category", "intent"),
		propertyOnly,
	} {
		require.NoError(t, reg.Register(d))
	}
	return reg
}

func started(t *testing.T, reg *registry.Registry, opts ...runtime.Option) *runtime.Controller {
	t.Helper()
	c := runtime.New(reg, opts...)
	_, err := c.Start(context.Background())
	require.NoError(t, err)
	return c
}

func TestController_StartsOnFirstAvailableStep(t *testing.T) {
	c := started(t, listingRegistry(t))

	assert.Equal(t, domain.ControllerState{Status: domain.StatusAwaitingStep, StepID: "category"}, c.State())
	assert.Equal(t, []domain.StepID{"category"}, domain.IDs(c.AvailableSteps()))
}

func TestController_StartsIdleWithoutSteps(t *testing.T) {
	c := runtime.New(registry.NewRegistry())
	res, err := c.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeIdle, res.Outcome)
	assert.Equal(t, domain.StatusIdle, c.State().Status)
}

func TestController_DependencyChain(t *testing.T) {
	ctx := context.Background()
	c := started(t, listingRegistry(t))

	res, err := c.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "property"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeMoved, res.Outcome)
	assert.Equal(t, domain.StepID("intent"), res.StepID)
	assert.Equal(t, []domain.StepID{"category", "intent", "propertyOnlyStep"}, domain.IDs(c.AvailableSteps()))

	_, err = c.Complete(ctx, "intent", domain.Payload{domain.KeyIntent: "offer"})
	require.NoError(t, err)
	assert.Equal(t, []domain.StepID{"category", "intent", "location", "propertyOnlyStep"}, domain.IDs(c.AvailableSteps()))
	assert.Equal(t, domain.StepID("location"), c.State().StepID)
}

func TestController_PropertyOnlyStepFollowsCategory(t *testing.T) {
	ctx := context.Background()

	job := started(t, listingRegistry(t))
	_, err := job.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "job"})
	require.NoError(t, err)
	assert.NotContains(t, domain.IDs(job.AvailableSteps()), domain.StepID("propertyOnlyStep"))

	property := started(t, listingRegistry(t))
	_, err = property.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "property"})
	require.NoError(t, err)
	assert.Contains(t, domain.IDs(property.AvailableSteps()), domain.StepID("propertyOnlyStep"))
}

func TestController_AdvanceAtLastEntry(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(step("a", 1)))
	require.NoError(t, reg.Register(step("b", 2)))
	c := started(t, reg)

	res, err := c.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeMoved, res.Outcome)
	assert.Equal(t, domain.StepID("b"), c.State().StepID)

	res, err = c.Advance(ctx)
	require.NoError(t, err, "running off the end is an outcome, not an error")
	assert.Equal(t, domain.OutcomeNoNextStep, res.Outcome)
	assert.False(t, res.Moved())
	assert.Equal(t, domain.StepID("b"), c.State().StepID)
	assert.Equal(t, domain.StatusAwaitingStep, c.State().Status)
}

func TestController_RetreatKeepsSelections(t *testing.T) {
	ctx := context.Background()
	c := started(t, listingRegistry(t))
	_, err := c.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "property"})
	require.NoError(t, err)

	res, err := c.Retreat(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeMoved, res.Outcome)
	assert.Equal(t, domain.StepID("category"), c.State().StepID)
	assert.Equal(t, "property", c.Context().Category)
	assert.True(t, c.Context().IsCompleted("category"))

	res, err = c.Retreat(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoPreviousStep, res.Outcome)
	assert.Equal(t, domain.StepID("category"), c.State().StepID)
}

func TestController_RecomputeRunsAfterCommitIsObserved(t *testing.T) {
	ctx := context.Background()
	var c *runtime.Controller
	var trail []string
	var cursorAtCommit domain.StepID

	hooks := domain.LifecycleHooks{
		OnStepComplete: func(_ context.Context, e *domain.CompletionEvent) {
			trail = append(trail, "complete:"+string(e.StepID))
		},
		OnContextCommitted: func(_ context.Context, e *domain.CommitEvent) {
			trail = append(trail, "commit")
			cursorAtCommit = c.State().StepID
			assert.Equal(t, "property", e.Context.Category)
			require.NotNil(t, e.Diff)
			assert.Equal(t, "property", e.Diff.Fields["category"])
		},
		OnStepChange: func(_ context.Context, e *domain.StepEvent) {
			trail = append(trail, "change:"+string(e.StepID))
		},
	}
	c = runtime.New(listingRegistry(t), runtime.WithLifecycleHooks(hooks))
	_, err := c.Start(ctx)
	require.NoError(t, err)
	trail = nil

	_, err = c.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "property"})
	require.NoError(t, err)

	assert.Equal(t, domain.StepID("category"), cursorAtCommit, "navigation must wait for the commit")
	assert.Equal(t, []string{"complete:category", "commit", "change:intent"}, trail)
	assert.Zero(t, c.Pending())
}

func TestController_CompleteFromHookIsDeferredToOuterTurn(t *testing.T) {
	ctx := context.Background()
	var c *runtime.Controller
	var nested domain.NavigationResult

	hooks := domain.LifecycleHooks{
		OnContextCommitted: func(ctx context.Context, e *domain.CommitEvent) {
			if e.Context.IsCompleted("intent") {
				return
			}
			var err error
			nested, err = c.Complete(ctx, "intent", domain.Payload{domain.KeyIntent: "offer"})
			require.NoError(t, err)
			assert.Equal(t, 1, c.Pending(), "nested recompute waits for the outer turn")
		},
	}
	c = started(t, listingRegistry(t), runtime.WithLifecycleHooks(hooks))

	res, err := c.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "property"})
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeStayed, nested.Outcome)
	assert.Equal(t, domain.StepID("category"), nested.StepID)
	assert.Equal(t, domain.StepID("location"), res.StepID)
	assert.Equal(t, domain.StepID("location"), c.State().StepID)
	assert.Zero(t, c.Pending())
}

func TestController_NavigationReportsDrainedWork(t *testing.T) {
	ctx := context.Background()
	var c *runtime.Controller
	armed := false

	hooks := domain.LifecycleHooks{
		OnStepChange: func(ctx context.Context, e *domain.StepEvent) {
			if !armed || e.StepID != "intent" {
				return
			}
			armed = false
			_, err := c.Complete(ctx, "intent", domain.Payload{domain.KeyIntent: "offer"})
			require.NoError(t, err)
		},
	}
	c = started(t, listingRegistry(t), runtime.WithLifecycleHooks(hooks))
	_, err := c.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "property"})
	require.NoError(t, err)
	_, err = c.Retreat(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.StepID("category"), c.State().StepID)

	armed = true
	res, err := c.Advance(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.StepID("category"), res.From)
	assert.Equal(t, domain.OutcomeMoved, res.Outcome)
	assert.Equal(t, domain.StepID("location"), res.StepID)
	assert.Equal(t, c.State(), res.State)
	assert.Equal(t, []domain.StepID{"category", "intent", "location", "propertyOnlyStep"}, res.Steps)
}

func TestController_CloseDropsPendingRecompute(t *testing.T) {
	ctx := context.Background()
	var c *runtime.Controller
	changes := 0

	hooks := domain.LifecycleHooks{
		OnContextCommitted: func(context.Context, *domain.CommitEvent) { c.Close() },
		OnStepChange:       func(context.Context, *domain.StepEvent) { changes++ },
	}
	c = started(t, listingRegistry(t), runtime.WithLifecycleHooks(hooks))
	changes = 0

	_, err := c.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "property"})
	require.NoError(t, err)

	assert.True(t, c.Closed())
	assert.Zero(t, c.Pending())
	assert.Zero(t, changes, "dropped recompute never navigates")
	assert.Equal(t, domain.StepID("category"), c.State().StepID)
	assert.True(t, c.Context().IsCompleted("category"), "the committed mutation stands")

	_, err = c.Advance(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	_, err = c.Complete(ctx, "intent", nil)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestController_StepUnavailable(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewRegistry()
	jobDetails := step("jobDetails", 3, "intent")
	jobDetails.Conditions = []domain.Condition{domain.CategoryIs(domain.OpEquals, "job")}
	require.NoError(t, reg.Register(step("category", 1)))
	require.NoError(t, reg.Register(step("intent", 2, "category")))
	require.NoError(t, reg.Register(jobDetails))

	var unavailable []domain.StepID
	c := started(t, reg, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnStepUnavailable: func(_ context.Context, e *domain.StepEvent) {
			unavailable = append(unavailable, e.StepID)
		},
	}))

	_, err := c.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "job"})
	require.NoError(t, err)
	_, err = c.Complete(ctx, "intent", domain.Payload{domain.KeyIntent: "offer"})
	require.NoError(t, err)
	require.Equal(t, domain.StepID("jobDetails"), c.State().StepID)

	// Re-answering an earlier step invalidates the one on screen.
	res, err := c.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "property"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnavailable, res.Outcome)
	assert.Equal(t, domain.ControllerState{Status: domain.StatusStepUnavailable, StepID: "jobDetails"}, c.State())
	assert.Equal(t, []domain.StepID{"jobDetails"}, unavailable)

	res, err = c.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnavailable, res.Outcome)
	assert.Len(t, unavailable, 1, "the notification fires once per transition")

	view, err := c.View()
	require.NoError(t, err)
	assert.Equal(t, true, view.Data["unavailable"])

	res, err = c.GoTo(ctx, "intent")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeMoved, res.Outcome)
	assert.Equal(t, domain.ControllerState{Status: domain.StatusAwaitingStep, StepID: "intent"}, c.State())
}

func TestController_GoTo(t *testing.T) {
	ctx := context.Background()
	c := started(t, listingRegistry(t))

	res, err := c.GoTo(ctx, "location")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnavailable, res.Outcome)
	assert.Equal(t, domain.StepID("category"), c.State().StepID, "an unreachable target leaves the state alone")

	res, err = c.GoTo(ctx, "category")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeStayed, res.Outcome)

	_, err = c.GoTo(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrStepNotFound)
}

func TestController_CompleteRejections(t *testing.T) {
	ctx := context.Background()
	reg := listingRegistry(t)
	reg.Bind("intentScreen", rejectingBehavior{})
	c := started(t, reg)

	_, err := c.Complete(ctx, "ghost", nil)
	assert.ErrorIs(t, err, domain.ErrStepNotFound)

	_, err = c.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "job", domain.KeyIntent: "offer"})
	var owned *domain.OwnershipError
	require.ErrorAs(t, err, &owned)
	assert.Equal(t, []string{domain.KeyIntent}, owned.Keys)
	assert.ErrorIs(t, err, domain.ErrPayloadRejected)

	_, err = c.Complete(ctx, "intent", domain.Payload{domain.KeyIntent: "offer"})
	assert.ErrorIs(t, err, errRejected)
	assert.ErrorIs(t, err, domain.ErrPayloadRejected)

	_, err = c.Complete(ctx, "location", domain.Payload{domain.KeyLocation: "not a map"})
	assert.ErrorIs(t, err, domain.ErrPayloadRejected)

	snapshot := c.Context()
	assert.Empty(t, snapshot.Category, "rejected payloads leave the context untouched")
	assert.Empty(t, snapshot.Completed())
	assert.Zero(t, c.Pending())
}

func TestController_UnrestrictedStepCannotSetClaimedFields(t *testing.T) {
	ctx := context.Background()
	c := started(t, listingRegistry(t))
	_, err := c.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "property"})
	require.NoError(t, err)

	// intent declares no Owns, but selectedCategory belongs to category.
	_, err = c.Complete(ctx, "intent", domain.Payload{domain.KeyCategory: "job", domain.KeyIntent: "offer"})
	var owned *domain.OwnershipError
	require.ErrorAs(t, err, &owned)
	assert.Equal(t, []string{domain.KeyCategory}, owned.Keys)
	assert.Equal(t, "property", c.Context().Category)

	_, err = c.Complete(ctx, "intent", domain.Payload{domain.KeyIntent: "offer", "note": "corner lot"})
	require.NoError(t, err, "unclaimed keys stay open")
	assert.Equal(t, "offer", c.Context().Intent)
}

func TestController_ProfileMode(t *testing.T) {
	ctx := context.Background()
	reg := listingRegistry(t)
	store := profile.NewStore()
	require.NoError(t, store.Register(domain.FlowProfile{
		ID:                 "express",
		Name:               "Express listing",
		StepOrderOverrides: []domain.OrderOverride{{StepID: "propertyOnlyStep", Order: 0}},
	}))

	var profileEvents []string
	c := started(t, reg, runtime.WithProfiles(store), runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnProfileChange: func(_ context.Context, e *domain.ProfileEvent) {
			profileEvents = append(profileEvents, e.ProfileID+"<"+e.Previous)
		},
	}))
	_, err := c.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "property"})
	require.NoError(t, err)
	require.Equal(t, domain.StepID("intent"), c.State().StepID)

	_, err = c.ActivateProfile(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)

	res, err := c.ActivateProfile(ctx, "express")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProfileActive, res.Outcome)
	assert.Equal(t, domain.ControllerState{Status: domain.StatusProfileActive, ProfileID: "express"}, c.State())
	assert.Equal(t, []domain.StepID{"propertyOnlyStep", "category", "intent"}, domain.IDs(c.AvailableSteps()))
	assert.Equal(t, "Express listing", reg.Status().ActiveProfileName)

	for _, nav := range []func(context.Context) (domain.NavigationResult, error){c.Advance, c.Retreat} {
		res, err = nav(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeProfileActive, res.Outcome)
	}
	res, err = c.GoTo(ctx, "category")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProfileActive, res.Outcome)

	res, err = c.Complete(ctx, "intent", domain.Payload{domain.KeyIntent: "offer"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProfileActive, res.Outcome, "combined surface merges without moving")
	assert.Equal(t, "offer", c.Context().Intent)

	view, err := c.View()
	require.NoError(t, err)
	assert.Equal(t, "profile:express", view.Component)

	res, err = c.DeactivateProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeMoved, res.Outcome)
	assert.Equal(t, domain.ControllerState{Status: domain.StatusAwaitingStep, StepID: "intent"}, c.State())
	assert.Equal(t, 4, reg.Status().CurrentOrderSnapshot["propertyOnlyStep"], "baseline order restored")
	assert.Equal(t, []string{"express<", "<express"}, profileEvents)
}

func TestController_ApplyMatchingProfile(t *testing.T) {
	ctx := context.Background()
	store := profile.NewStore()
	require.NoError(t, store.Register(domain.FlowProfile{
		ID:                   "jobs",
		Name:                 "Jobs",
		ActivationConditions: []domain.Condition{domain.CategoryIs(domain.OpEquals, "job")},
	}))
	c := started(t, listingRegistry(t), runtime.WithProfiles(store))

	_, matched, err := c.ApplyMatchingProfile(ctx)
	require.NoError(t, err)
	assert.False(t, matched)
	assert.Equal(t, domain.StatusAwaitingStep, c.State().Status)

	_, err = c.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "job"})
	require.NoError(t, err)

	res, matched, err := c.ApplyMatchingProfile(ctx)
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, "jobs", res.State.ProfileID)
}

func TestController_Reset(t *testing.T) {
	ctx := context.Background()
	c := started(t, listingRegistry(t), runtime.WithFeatureFlags(map[string]bool{"beta": true}))
	_, err := c.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "property"})
	require.NoError(t, err)

	res, err := c.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StepID("category"), res.StepID)

	snapshot := c.Context()
	assert.Empty(t, snapshot.Category)
	assert.Empty(t, snapshot.Completed())
	assert.True(t, snapshot.FeatureFlags["beta"], "flags survive a reset")
	assert.Equal(t, []domain.StepID{"category"}, domain.IDs(c.AvailableSteps()))
}

func TestController_ViewUsesBoundBehavior(t *testing.T) {
	reg := listingRegistry(t)
	reg.Bind("categoryScreen", echoBehavior{})
	c := started(t, reg)

	view, err := c.View()
	require.NoError(t, err)
	assert.Equal(t, domain.StepID("category"), view.StepID)
	assert.Equal(t, "categoryScreen", view.Component)
	assert.Equal(t, "category", view.Data["current"])
}

var errRejected = errors.New("rejected")

type rejectingBehavior struct{}

func (rejectingBehavior) Render(*domain.StepContext) (domain.View, error) { return domain.View{}, nil }
func (rejectingBehavior) Validate(domain.Payload) error { return errRejected }

type echoBehavior struct{}

func (echoBehavior) Render(ctx *domain.StepContext) (domain.View, error) {
	return domain.View{Data: map[string]any{"current": string(ctx.CurrentStepID)}}, nil
}

func (echoBehavior) Validate(domain.Payload) error { return nil }
