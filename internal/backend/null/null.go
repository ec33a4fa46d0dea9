// Package null provides a backend that records operations without touching
// any real infrastructure. It backs tests and dry runs.
package null

import (
	"context"
	"fmt"
	"sync"

	"github.com/stax-io/stax/internal/backend"
	"github.com/stax-io/stax/internal/engine"
)

// Backend records every operation it receives, in order.
type Backend struct {
	mu        sync.Mutex
	deployed  []string
	destroyed []string
}

// New returns an empty recording backend.
func New() *Backend {
	return &Backend{}
}

// Deploy implements backend.Backend.
func (b *Backend) Deploy(ctx context.Context, plan *engine.Plan) ([]backend.Result, error) {
	results := make([]backend.Result, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		b.mu.Lock()
		b.deployed = append(b.deployed, step.Resource.Name())
		b.mu.Unlock()
		results = append(results, backend.Result{
			Name:      step.Resource.Name(),
			Operation: step.Operation,
			ID:        fmt.Sprintf("null-%s", step.Resource.Name()),
		})
	}
	return results, nil
}

// Destroy implements backend.Backend.
func (b *Backend) Destroy(ctx context.Context, plan *engine.Plan) ([]backend.Result, error) {
	results := make([]backend.Result, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		b.mu.Lock()
		b.destroyed = append(b.destroyed, step.Resource.Name())
		b.mu.Unlock()
		results = append(results, backend.Result{
			Name:      step.Resource.Name(),
			Operation: step.Operation,
		})
	}
	return results, nil
}

// Deployed returns the names deployed so far, in order.
func (b *Backend) Deployed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.deployed...)
}

// Destroyed returns the names destroyed so far, in order.
func (b *Backend) Destroyed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.destroyed...)
}
