// Package eval loads a PKL stack declaration and builds a session from it.
// It is a thin adapter: the resolution core consumes the in-memory object
// graph and never parses source text itself.
package eval

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/apple/pkl-go/pkl"

	"github.com/stax-io/stax/internal/stack"
)

// Evaluator loads stack declarations from a working directory.
type Evaluator struct {
	workdir string
}

// NewEvaluator creates an evaluator rooted at the given directory.
func NewEvaluator(workdir string) *Evaluator {
	return &Evaluator{workdir: workdir}
}

type stackModule struct {
	Resources   []*resourceDecl   `pkl:"resources"`
	Composites  []*compositeDecl  `pkl:"composites"`
	Connections []*connectionDecl `pkl:"connections"`
}

type resourceDecl struct {
	Name        string           `pkl:"name"`
	Kind        string           `pkl:"kind"`
	Description string           `pkl:"description"`
	Composite   string           `pkl:"composite"`
	Fields      map[string]any   `pkl:"fields"`
	Assertions  []*assertionDecl `pkl:"assertions"`
}

type compositeDecl struct {
	Name   string `pkl:"name"`
	Parent string `pkl:"parent"`
}

type connectionDecl struct {
	From    string         `pkl:"from"`
	To      string         `pkl:"to"`
	Variant string         `pkl:"variant"`
	Fields  map[string]any `pkl:"fields"`
}

type assertionDecl struct {
	Name   string `pkl:"name"`
	Kind   string `pkl:"kind"`
	Target string `pkl:"target"`
	Expect string `pkl:"expect"`
}

// LoadStack evaluates the PKL entrypoint and builds a fresh session.
func (e *Evaluator) LoadStack(ctx context.Context, entrypoint string) (*stack.Session, error) {
	evaluator, err := pkl.NewEvaluator(ctx, pkl.PreconfiguredOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var module stackModule
	source := pkl.FileSource(filepath.Join(e.workdir, entrypoint))
	if err := evaluator.EvaluateModule(ctx, source, &module); err != nil {
		return nil, fmt.Errorf("failed to evaluate %s: %w", entrypoint, err)
	}

	return BuildSession(&module)
}

// BuildSession turns an evaluated declaration module into a session,
// running all registration-time validation (duplicate names, unknown
// fields, self connections).
func BuildSession(module *stackModule) (*stack.Session, error) {
	session := stack.NewSession()

	// Composites first, so resources can be attached to them. A child
	// composite may reference a parent declared before it.
	for _, decl := range module.Composites {
		comp, err := session.Composite(decl.Name)
		if err != nil {
			return nil, err
		}
		if decl.Parent != "" {
			parent, ok := session.CompositeByName(decl.Parent)
			if !ok {
				return nil, fmt.Errorf("composite %s references unknown parent %s", decl.Name, decl.Parent)
			}
			parent.AddComposite(comp)
		}
	}

	for _, decl := range module.Resources {
		res, err := declareResource(session, decl)
		if err != nil {
			return nil, err
		}
		if decl.Composite != "" {
			comp, ok := session.CompositeByName(decl.Composite)
			if !ok {
				return nil, fmt.Errorf("resource %s references unknown composite %s", decl.Name, decl.Composite)
			}
			comp.Add(res)
		}
	}

	for _, decl := range module.Connections {
		if err := declareConnection(session, decl); err != nil {
			return nil, err
		}
	}

	return session, nil
}

func declareResource(session *stack.Session, decl *resourceDecl) (*stack.Resource, error) {
	var res *stack.Resource
	var err error
	switch stack.Kind(decl.Kind) {
	case stack.KindContainer:
		res, err = session.Container(decl.Name)
	case stack.KindFile:
		res, err = session.File(decl.Name)
	case stack.KindRepository:
		res, err = session.Repository(decl.Name)
	default:
		return nil, fmt.Errorf("resource %s has unknown kind %q", decl.Name, decl.Kind)
	}
	if err != nil {
		return nil, err
	}

	if decl.Description != "" {
		res.Describe(decl.Description)
	}
	for name, value := range decl.Fields {
		if err := res.Fields().Set(name, value); err != nil {
			return nil, fmt.Errorf("resource %s: %w", decl.Name, err)
		}
	}
	for _, a := range decl.Assertions {
		res.Assert(&stack.Assertion{
			Name:   a.Name,
			Kind:   a.Kind,
			Target: a.Target,
			Expect: a.Expect,
		})
	}
	return res, nil
}

func declareConnection(session *stack.Session, decl *connectionDecl) error {
	from, ok := session.Resource(decl.From)
	if !ok {
		return fmt.Errorf("connection references unknown resource %s", decl.From)
	}
	to, ok := session.Resource(decl.To)
	if !ok {
		return fmt.Errorf("connection references unknown resource %s", decl.To)
	}

	conn, err := from.Connect(to, stack.Variant(decl.Variant))
	if err != nil {
		return err
	}
	for name, value := range decl.Fields {
		if err := conn.Fields().Set(name, value); err != nil {
			return fmt.Errorf("connection %s -> %s: %w", decl.From, decl.To, err)
		}
	}
	return nil
}
