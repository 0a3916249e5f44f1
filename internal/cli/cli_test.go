package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/stepflow/internal/config"
	"github.com/aretw0/stepflow/internal/logging"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuntime(t *testing.T, mutate func(*config.Config), opts EngineOptions) *Runtime {
	t.Helper()
	cfg := config.Default()
	cfg.Catalog = filepath.Join("testdata", "catalog.yaml")
	cfg.Metrics = false
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := CreateEngine(cfg, logging.NewNop(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestCreateEngine_YAMLCatalog(t *testing.T) {
	rt := newRuntime(t, nil, EngineOptions{})
	assert.Equal(t, 3, rt.Engine.Status().TotalSteps)
	assert.NotNil(t, rt.fileLoader)
}

func TestCreateEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rt := newRuntime(t, func(c *config.Config) { c.Metrics = true }, EngineOptions{Registerer: reg})

	ctx := context.Background()
	sess, err := rt.Engine.Start(ctx, nil)
	require.NoError(t, err)
	_, err = sess.Complete(ctx, "category", domain.Payload{"selectedCategory": "job"})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "stepflow_step_completions_total")
}

func TestCreateEngine_ExtraHooks(t *testing.T) {
	var completed []domain.StepID
	hooks := domain.LifecycleHooks{
		OnStepComplete: func(_ context.Context, e *domain.CompletionEvent) {
			completed = append(completed, e.StepID)
		},
	}
	rt := newRuntime(t, nil, EngineOptions{Hooks: []domain.LifecycleHooks{hooks}})

	ctx := context.Background()
	sess, err := rt.Engine.Start(ctx, nil)
	require.NoError(t, err)
	_, err = sess.Complete(ctx, "category", domain.Payload{"selectedCategory": "job"})
	require.NoError(t, err)
	assert.Equal(t, []domain.StepID{"category"}, completed)
}

func TestCreateEngine_RedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	rt := newRuntime(t, func(c *config.Config) {
		c.RedisAddr = mr.Addr()
		c.IsolateProfiles = false
	}, EngineOptions{})

	ctx := context.Background()
	sess, err := rt.Engine.Start(ctx, nil)
	require.NoError(t, err)
	_, err = sess.ActivateProfile(ctx, "quick")
	require.NoError(t, err)

	// Every lock taken along the way has been released.
	assert.Empty(t, mr.Keys())
}

func TestCreateEngine_Errors(t *testing.T) {
	cfg := config.Default()
	cfg.Catalog = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := CreateEngine(cfg, logging.NewNop(), EngineOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading catalog")

	broken := filepath.Join(t.TempDir(), "broken.yml")
	require.NoError(t, os.WriteFile(broken, []byte("version: stepflow/v1\nsteps:\n  - id: a\n    display_name: A\n    component: A\n    dependencies: [ghost]\n"), 0644))
	cfg.Catalog = broken
	_, err = CreateEngine(cfg, logging.NewNop(), EngineOptions{})
	require.Error(t, err)
}

func TestIsCatalogFile(t *testing.T) {
	assert.True(t, IsCatalogFile("listing.yaml"))
	assert.True(t, IsCatalogFile("dir/listing.YML"))
	assert.False(t, IsCatalogFile("examples/listing"))
	assert.False(t, IsCatalogFile("step.md"))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    Action
		wantErr string
	}{
		{line: "next", want: Action{Do: "advance"}},
		{line: "b", want: Action{Do: "retreat"}},
		{line: "reset", want: Action{Do: "reset"}},
		{line: "goto location", want: Action{Do: "goto", Step: "location"}},
		{line: "goto", wantErr: "usage"},
		{line: "profile quick", want: Action{Do: "activate", Profile: "quick"}},
		{line: "profile off", want: Action{Do: "deactivate"}},
		{line: `complete {"selectedCategory":"job"}`, want: Action{Do: "complete", Payload: domain.Payload{"selectedCategory": "job"}}},
		{line: `c intent {"selectedIntent":"sell"}`, want: Action{Do: "complete", Step: "intent", Payload: domain.Payload{"selectedIntent": "sell"}}},
		{line: "complete {oops", wantErr: "invalid payload"},
		{line: "dance", wantErr: "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseCommand("quit")
	assert.ErrorIs(t, err, errQuit)
}

func TestSimulator_Script(t *testing.T) {
	rt := newRuntime(t, nil, EngineOptions{})
	script, err := LoadScript(filepath.Join("testdata", "script.yaml"))
	require.NoError(t, err)
	require.Len(t, script.Actions, 5)

	var out bytes.Buffer
	sim := NewSimulator(rt.Engine, &out, SimulateOptions{JSON: true})
	require.NoError(t, sim.RunScript(context.Background(), script))

	var snap domain.SessionSnapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	assert.Equal(t, "property", snap.Context.Category)
	assert.Equal(t, "sell", snap.Context.Intent)
	assert.Equal(t, "Lisbon", snap.Context.Location["city"])
	assert.Equal(t, []domain.StepID{"category", "intent", "location"}, snap.AvailableSteps)
	assert.ElementsMatch(t, []domain.StepID{"category", "intent", "location"}, snap.Context.Completed())
}

func TestSimulator_ScriptStopsOnError(t *testing.T) {
	rt := newRuntime(t, nil, EngineOptions{})
	script := &Script{Actions: []Action{
		{Do: "complete", Payload: domain.Payload{"selectedIntent": "sell"}},
	}}

	err := NewSimulator(rt.Engine, &bytes.Buffer{}, SimulateOptions{}).RunScript(context.Background(), script)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action 1 (complete)")
	assert.ErrorIs(t, err, domain.ErrPayloadRejected)
}

func TestSimulator_Interactive(t *testing.T) {
	rt := newRuntime(t, nil, EngineOptions{})
	in := strings.NewReader(strings.Join([]string{
		`complete {"selectedCategory":"job"}`,
		"dance",
		"profile quick",
		"context",
		"quit",
	}, "\n"))

	var out bytes.Buffer
	sim := NewSimulator(rt.Engine, &out, SimulateOptions{})
	require.NoError(t, sim.RunInteractive(context.Background(), in))

	text := out.String()
	assert.Contains(t, text, "# Category")
	assert.Contains(t, text, `unknown command "dance"`)
	assert.Contains(t, text, "Profile 'quick' is active")
	assert.Contains(t, text, "job")
	assert.Contains(t, text, "Finished with 1 of")
}

func TestReloader_FileCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	original, err := os.ReadFile(filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, original, 0644))

	rt := newRuntime(t, func(c *config.Config) { c.Catalog = path }, EngineOptions{})
	reloader := NewReloader(rt, logging.NewNop())
	reloader.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloads, err := reloader.Watch(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- reloader.Run(ctx) }()

	extended := string(original[:bytes.Index(original, []byte("profiles:"))]) + `  - id: review
    display_name: Review
    component: ReviewCard
    order: 9
`
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(extended), 0644)
		return rt.Engine.Status().TotalSteps == 4
	}, 5*time.Second, 100*time.Millisecond)

	select {
	case <-reloads:
	case <-time.After(time.Second):
		t.Fatal("no reload notification")
	}

	cancel()
	require.NoError(t, <-done)
}
