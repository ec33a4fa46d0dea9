// Package completion defines the contract with the external field-completion
// service and an HTTP client implementation of it. The engine builds a schema
// and a context bundle for any object with unset fields and merges the
// service's candidate values under an explicit-wins rule.
package completion

import (
	"context"
	"fmt"
	"strings"
)

// FieldSpec describes one field of the schema sent to the service.
type FieldSpec struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Constraint string `json:"constraint,omitempty"`
}

// Request is one completion call: the object's field schema, structured
// metadata about the object and its neighbors, and the values the caller
// already set.
type Request struct {
	Schema     []FieldSpec    `json:"schema"`
	Context    map[string]any `json:"context"`
	AlreadySet map[string]any `json:"alreadySet"`
}

// Result is a fully populated candidate object of the requested shape.
type Result struct {
	Fields map[string]any `json:"fields"`
}

// Completer fills unset fields of a declared object. Implementations must be
// safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Result, error)
}

// UnavailableError means the completion service could not be reached or kept
// failing past the retry budget. It aborts the whole run.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("completion service unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// InvalidError means a completion response failed schema validation. It names
// the offending fields and aborts the whole run.
type InvalidError struct {
	Fields []string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("completion response failed schema validation: %s",
		strings.Join(e.Fields, ", "))
}

// Func adapts a plain function to the Completer interface.
type Func func(ctx context.Context, req *Request) (*Result, error)

// Complete implements Completer.
func (f Func) Complete(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}

// Static answers every request from a fixed table of field values. It serves
// offline runs and tests; fields it has no answer for fail validation.
type Static struct {
	Values map[string]any
}

// Complete implements Completer.
func (s *Static) Complete(_ context.Context, req *Request) (*Result, error) {
	fields := make(map[string]any, len(req.Schema))
	for _, spec := range req.Schema {
		if v, ok := req.AlreadySet[spec.Name]; ok {
			fields[spec.Name] = v
			continue
		}
		if v, ok := s.Values[spec.Name]; ok {
			fields[spec.Name] = v
		}
	}
	return &Result{Fields: fields}, nil
}
