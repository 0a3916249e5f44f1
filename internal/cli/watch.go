package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/stepflow/pkg/catalog"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce groups the burst of change events a single save produces.
const DefaultDebounce = 200 * time.Millisecond

// Watch reports catalog changes. Single-file catalogs are watched with fsnotify and
// pushed into the in-memory loader; repositories use the Loam watcher.
func (r *Runtime) Watch(ctx context.Context) (<-chan string, error) {
	if r.fileLoader == nil {
		return r.Engine.Watch(ctx)
	}

	changes, err := r.fileLoader.Watch(ctx)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}
	// Editors often replace the file, so the directory is watched instead.
	if err := w.Add(filepath.Dir(r.file)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", r.file, err)
	}

	target := filepath.Clean(r.file)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target || !evt.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				c, issues := catalog.ValidateFile(r.file)
				if err := issues.Err(); err != nil {
					r.logger.Warn("catalog change ignored", "file", r.file, "err", err)
					continue
				}
				r.fileLoader.Update(c.Definitions(), c.FlowProfiles()...)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warn("file watcher error", "err", err)
			}
		}
	}()

	return changes, nil
}

// Reloader applies catalog changes to the engine and tells subscribers about each
// successful reload. It implements ports.Watchable.
type Reloader struct {
	rt       *Runtime
	logger   *slog.Logger
	debounce time.Duration

	mu   sync.Mutex
	subs map[chan string]struct{}
}

// NewReloader creates a reloader for rt.
func NewReloader(rt *Runtime, logger *slog.Logger) *Reloader {
	return &Reloader{
		rt:       rt,
		logger:   logger,
		debounce: DefaultDebounce,
		subs:     make(map[chan string]struct{}),
	}
}

// Run blocks until ctx is done, reloading the engine after each burst of changes.
// A failed reload is logged and the previous catalog stays in place.
func (r *Reloader) Run(ctx context.Context) error {
	changes, err := r.rt.Watch(ctx)
	if err != nil {
		return err
	}

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending string
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case id, ok := <-changes:
			if !ok {
				return nil
			}
			pending = id
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			r.logger.Info("change detected, reloading", "event", pending)
			if err := r.rt.Engine.Reload(ctx); err != nil {
				r.logger.Error("reload failed, keeping previous catalog", "err", err)
				continue
			}
			r.notify(pending)
		}
	}
}

// Watch implements ports.Watchable over successful reloads.
func (r *Reloader) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 1)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.subs, ch)
		r.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (r *Reloader) notify(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- id:
		default:
		}
	}
}
