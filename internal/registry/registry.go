package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kalambet/stockwise/internal/metrics"
)

var (
	// ErrNotRegistered is returned when a model name has no descriptor.
	ErrNotRegistered = errors.New("model not registered")
	// ErrLoadFailed wraps the cause of a failed model load.
	ErrLoadFailed = errors.New("model load failed")
)

// Registry maps model names to descriptors and caches loaded handles.
// Loads are lazy and happen at most once per name at a time; different
// names load independently.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]ModelDescriptor
	loaded      map[string]Model
	locks       map[string]*sync.Mutex

	group singleflight.Group
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		descriptors: make(map[string]ModelDescriptor),
		loaded:      make(map[string]Model),
		locks:       make(map[string]*sync.Mutex),
	}
}

// Register inserts or overwrites the descriptor for name. A handle that is
// already loaded under name is left in place until Unload or Reload.
func (r *Registry) Register(name string, factory Factory, location string, opts ...Option) error {
	if name == "" {
		return errors.New("model name is required")
	}
	if factory == nil {
		return fmt.Errorf("model %q: factory is required", name)
	}
	d := ModelDescriptor{
		Name:             name,
		Factory:          factory,
		ArtifactLocation: location,
		Stage:            StageDevelopment,
		Version:          defaultVersion,
		Metadata:         map[string]any{},
	}
	for _, opt := range opts {
		opt(&d)
	}

	r.mu.Lock()
	r.descriptors[name] = d
	r.mu.Unlock()

	slog.Debug("model registered", "model", name, "stage", d.Stage, "version", d.Version)
	return nil
}

// Unregister removes the descriptor for name and evicts its handle.
// It is a no-op when name is unknown.
func (r *Registry) Unregister(name string) {
	lock := r.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	m := r.loaded[name]
	_, had := r.descriptors[name]
	delete(r.descriptors, name)
	delete(r.loaded, name)
	r.mu.Unlock()

	releaseModel(name, m)
	if had {
		slog.Debug("model unregistered", "model", name)
	}
}

// Load returns the cached handle for name, loading it first if needed.
// Concurrent callers for the same name share one underlying load.
func (r *Registry) Load(ctx context.Context, name string) (Model, error) {
	r.mu.RLock()
	m, ok := r.loaded[name]
	_, registered := r.descriptors[name]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}
	if !registered {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	// The shared load must not die with the first caller's context.
	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(name, func() (any, error) {
		return r.loadLocked(loadCtx, name)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Model), nil
	}
}

func (r *Registry) loadLocked(ctx context.Context, name string) (Model, error) {
	lock := r.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	m, ok := r.loaded[name]
	d, registered := r.descriptors[name]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}
	if !registered {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	m = d.Factory()
	if err := m.Load(ctx, d.ArtifactLocation); err != nil {
		metrics.RecordModelLoad(name, err)
		slog.Warn("model load failed", "model", name, "location", d.ArtifactLocation, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadFailed, name, err)
	}
	metrics.RecordModelLoad(name, nil)

	r.mu.Lock()
	if _, still := r.descriptors[name]; !still {
		r.mu.Unlock()
		releaseModel(name, m)
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	r.loaded[name] = m
	r.mu.Unlock()

	slog.Info("model loaded", "model", name, "version", d.Version)
	return m, nil
}

// Unload evicts the cached handle for name, if any. The descriptor stays.
func (r *Registry) Unload(name string) {
	lock := r.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	m, ok := r.loaded[name]
	delete(r.loaded, name)
	r.mu.Unlock()

	if ok {
		releaseModel(name, m)
		slog.Info("model unloaded", "model", name)
	}
}

// Reload evicts the handle for name and loads a fresh one.
func (r *Registry) Reload(ctx context.Context, name string) (Model, error) {
	r.Unload(name)
	return r.Load(ctx, name)
}

// Info returns a copy of the descriptor for name.
func (r *Registry) Info(name string) (ModelDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	if !ok {
		return ModelDescriptor{}, false
	}
	return cloneDescriptor(d), true
}

// List returns descriptors ordered by name, filtered to stage when non-nil.
func (r *Registry) List(stage *Stage) []ModelDescriptor {
	r.mu.RLock()
	out := make([]ModelDescriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		if stage != nil && d.Stage != *stage {
			continue
		}
		out = append(out, cloneDescriptor(d))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsLoaded reports whether a handle for name is cached. It never loads.
func (r *Registry) IsLoaded(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.loaded[name]
	return ok
}

// Preload loads every model registered in stage. Failures are logged and
// skipped; the number of models successfully loaded is returned.
func (r *Registry) Preload(ctx context.Context, stage Stage) int {
	n := 0
	for _, d := range r.List(&stage) {
		if _, err := r.Load(ctx, d.Name); err != nil {
			slog.Warn("preload failed", "model", d.Name, "error", err)
			continue
		}
		n++
	}
	return n
}

func (r *Registry) nameLock(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[name]
	if !ok {
		l = &sync.Mutex{}
		r.locks[name] = l
	}
	return l
}

func releaseModel(name string, m Model) {
	if u, ok := m.(Unloader); ok {
		if err := u.Unload(); err != nil {
			slog.Warn("model unload failed", "model", name, "error", err)
		}
	}
}
