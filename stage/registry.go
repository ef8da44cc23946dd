package stage

import (
	"context"
	"fmt"
	"sync"
)

// Executor performs the actual work of a stage. The orchestrator never
// inspects the returned payload; it is cached and handed to downstream
// consumers as-is. Executors should honor ctx cancellation.
type Executor func(ctx context.Context, rc *RunContext) (any, error)

// Registry maps stage IDs to their executors.
//
// The registry is populated once before the first run; Register is not safe
// for use concurrently with Lookup during a run.
type Registry struct {
	executors map[ID]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[ID]Executor)}
}

// Register associates an executor with a stage ID.
// Returns an error if the stage already has an executor.
func (r *Registry) Register(id ID, fn Executor) error {
	if fn == nil {
		return fmt.Errorf("nil executor for stage %q", id)
	}
	if _, exists := r.executors[id]; exists {
		return fmt.Errorf("executor for stage %q already registered", id)
	}
	r.executors[id] = fn
	return nil
}

// MustRegister is Register that panics on error, for static wiring at
// startup.
func (r *Registry) MustRegister(id ID, fn Executor) {
	if err := r.Register(id, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the executor for a stage ID.
func (r *Registry) Lookup(id ID) (Executor, bool) {
	fn, ok := r.executors[id]
	return fn, ok
}

// RunContext is a mutable key/value bag shared by all stages of one run.
// An earlier stage's output can be placed here for a later stage to read:
// lightweight dependency injection without coupling executors to each other.
//
// The bag is guarded because stages in a parallel group may read and write
// it concurrently.
type RunContext struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewRunContext creates a RunContext, optionally seeded with initial values.
func NewRunContext(seed map[string]any) *RunContext {
	values := make(map[string]any, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &RunContext{values: values}
}

// Set stores a value under key.
func (rc *RunContext) Set(key string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.values[key] = value
}

// Get returns the value stored under key.
func (rc *RunContext) Get(key string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.values[key]
	return v, ok
}

// Keys returns all keys currently in the bag.
func (rc *RunContext) Keys() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	keys := make([]string, 0, len(rc.values))
	for k := range rc.values {
		keys = append(keys, k)
	}
	return keys
}
