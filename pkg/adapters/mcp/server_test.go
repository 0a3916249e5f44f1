package mcp

import (
	"context"
	"testing"

	"github.com/aretw0/stepflow"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/dsl"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	b := dsl.New()
	b.Add("category").Owns(domain.KeyCategory)
	b.Add("intent").After("category")
	b.Profile("quick", "Quick listing").Override("intent", 0)
	loader, err := b.Build()
	require.NoError(t, err)

	eng, err := stepflow.New("", stepflow.WithLoader(loader), stepflow.WithSessionIDs(func() string { return "s1" }))
	require.NoError(t, err)
	return NewServer(eng.Manager())
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	return res
}

func TestTools_SessionFlow(t *testing.T) {
	s := newServer(t)

	res := call(t, mcp.NewStructuredToolHandler(s.handleStart), map[string]any{"flags": map[string]any{"media": true}})
	require.False(t, res.IsError)
	snap, ok := res.StructuredContent.(domain.SessionSnapshot)
	require.True(t, ok)
	assert.Equal(t, "s1", snap.SessionID)
	assert.True(t, snap.Context.FeatureFlags["media"])

	res = call(t, mcp.NewStructuredToolHandler(s.handleComplete), map[string]any{
		"session_id": "s1",
		"step_id":    "category",
		"payload":    map[string]any{domain.KeyCategory: "vehicle"},
	})
	require.False(t, res.IsError)
	nav := res.StructuredContent.(domain.NavigationResult)
	assert.Equal(t, domain.StepID("intent"), nav.StepID)

	res = call(t, mcp.NewStructuredToolHandler(s.handleRetreat), map[string]any{"session_id": "s1"})
	require.False(t, res.IsError)
	assert.Equal(t, domain.StepID("category"), res.StructuredContent.(domain.NavigationResult).StepID)

	res = call(t, mcp.NewStructuredToolHandler(s.handleGoTo), map[string]any{"session_id": "s1", "step_id": "intent"})
	require.False(t, res.IsError)
	assert.Equal(t, domain.OutcomeMoved, res.StructuredContent.(domain.NavigationResult).Outcome)

	res = call(t, mcp.NewStructuredToolHandler(s.handleActivateProfile), map[string]any{"session_id": "s1", "profile_id": "quick"})
	require.False(t, res.IsError)
	assert.Equal(t, domain.OutcomeProfileActive, res.StructuredContent.(domain.NavigationResult).Outcome)

	res = call(t, mcp.NewStructuredToolHandler(s.handleDeactivateProfile), map[string]any{"session_id": "s1"})
	require.False(t, res.IsError)

	res = call(t, mcp.NewStructuredToolHandler(s.handleRegistryStatus), nil)
	require.False(t, res.IsError)
	status := res.StructuredContent.(domain.RegistryStatus)
	assert.Equal(t, 2, status.TotalSteps)
	assert.Empty(t, status.ActiveProfileName, "profiles stay on the session's own registry")

	res = call(t, mcp.NewStructuredToolHandler(s.handleReset), map[string]any{"session_id": "s1"})
	require.False(t, res.IsError)

	res = call(t, mcp.NewStructuredToolHandler(s.handleSnapshot), map[string]any{"session_id": "s1"})
	require.False(t, res.IsError)
	assert.Empty(t, res.StructuredContent.(domain.SessionSnapshot).Context.Category)
}

func TestTools_ErrorsBecomeToolErrors(t *testing.T) {
	s := newServer(t)

	res := call(t, mcp.NewStructuredToolHandler(s.handleAdvance), map[string]any{"session_id": "ghost"})
	assert.True(t, res.IsError)

	call(t, mcp.NewStructuredToolHandler(s.handleStart), nil)
	res = call(t, mcp.NewStructuredToolHandler(s.handleComplete), map[string]any{
		"session_id": "s1",
		"step_id":    "category",
		"payload":    map[string]any{"selectedIntent": "offer"},
	})
	assert.True(t, res.IsError)
}
