package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/stepflow"
	"github.com/aretw0/stepflow/internal/config"
	"github.com/aretw0/stepflow/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/stepflow/pkg/adapters/redis"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// EngineOptions carries what the commands add on top of the resolved config.
type EngineOptions struct {
	Hooks []domain.LifecycleHooks
	// Registerer receives the engine metrics when cfg.Metrics is on.
	Registerer prometheus.Registerer
}

// Runtime is an engine plus the resources opened to build it.
type Runtime struct {
	Engine *stepflow.Engine

	file       string
	fileLoader *memory.Loader
	closer     []io.Closer
	logger     *slog.Logger
}

// Close releases the resources opened by CreateEngine.
func (r *Runtime) Close() error {
	var first error
	for _, c := range r.closer {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// CreateEngine initializes a stepflow engine with standard CLI conventions:
// a .yaml/.yml catalog path is read as a single document, anything else as a Loam repository.
func CreateEngine(cfg config.Config, logger *slog.Logger, opts EngineOptions) (*Runtime, error) {
	rt := &Runtime{logger: logger}

	hooks := observability.LoggingHooks(logger)
	if cfg.Metrics && opts.Registerer != nil {
		metrics, err := observability.NewMetrics(opts.Registerer)
		if err != nil {
			return nil, fmt.Errorf("error registering metrics: %w", err)
		}
		hooks = hooks.Merge(metrics.Hooks())
	}
	for _, h := range opts.Hooks {
		hooks = hooks.Merge(h)
	}

	engineOpts := []stepflow.Option{
		stepflow.WithLogger(logger),
		stepflow.WithLifecycleHooks(hooks),
		stepflow.WithIsolation(cfg.IsolateProfiles),
		stepflow.WithFeatureFlags(cfg.FeatureFlags),
		stepflow.WithLockTTL(cfg.LockTTL),
	}

	if IsCatalogFile(cfg.Catalog) {
		loader, err := loadCatalogFile(cfg.Catalog)
		if err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, stepflow.WithLoader(loader))
		rt.file, rt.fileLoader = cfg.Catalog, loader
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		rt.closer = append(rt.closer, client)
		engineOpts = append(engineOpts, stepflow.WithLocker(redisAdapter.NewLocker(client, cfg.RedisPrefix)))
		logger.Debug("distributed locking enabled", "redis", cfg.RedisAddr)
	}

	engine, err := stepflow.New(cfg.Catalog, engineOpts...)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	rt.Engine = engine
	return rt, nil
}

// IsCatalogFile reports whether path names a single-document catalog.
func IsCatalogFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func loadCatalogFile(path string) (*memory.Loader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading catalog: %w", err)
	}
	loader, err := memory.NewFromYAML(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing catalog %s: %w", path, err)
	}
	return loader, nil
}
