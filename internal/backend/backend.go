// Package backend defines the provisioning backend contract. The engine
// hands a backend an ordered operation list; the backend owns execution and
// all cross-run state. Per-step failures are reported per resource and
// surfaced to the caller unmodified; the core never retries backend
// operations.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/stax-io/stax/internal/engine"
)

// Result is the outcome of one backend operation.
type Result struct {
	Name      string
	Operation engine.Operation
	ID        string // backend-native identifier, when created
	Err       error
}

// Backend turns a resolved, ordered plan into live infrastructure.
// Deploy receives steps in deploy order; Destroy receives steps already in
// reverse order and must not reorder them.
type Backend interface {
	Deploy(ctx context.Context, plan *engine.Plan) ([]Result, error)
	Destroy(ctx context.Context, plan *engine.Plan) ([]Result, error)
}

// Factory builds a backend on first use.
type Factory func() (Backend, error)

// Registry manages backend lifecycles, keyed by name. Implementations
// register a factory; construction is deferred until a backend is requested.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	instances map[string]Backend
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Backend),
	}
}

// Register adds a named backend factory.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns the named backend, constructing it on first use.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.instances[name]; ok {
		return b, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
	b, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backend %s: %w", name, err)
	}
	r.instances[name] = b
	return b, nil
}
