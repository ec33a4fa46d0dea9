// Package engine implements the resolution pipeline: graph construction from
// composite and connection structure, cycle detection and topological
// ordering, completion of unset fields, and per-connection side-effect
// resolution. The ordered operation list it produces is handed to a
// provisioning backend; execution is entirely the backend's concern.
package engine

import (
	"context"
	"fmt"

	"github.com/stax-io/stax/internal/completion"
	"github.com/stax-io/stax/internal/logging"
	"github.com/stax-io/stax/internal/stack"
)

// Operation is what the backend should do with a resource.
type Operation string

const (
	OpCreate  Operation = "create"
	OpDestroy Operation = "destroy"
)

// Step is one entry of the ordered operation list handed to the backend.
type Step struct {
	Resource  *stack.Resource
	Operation Operation
	Config    map[string]any
}

// Address returns a printable identifier for the step's resource.
func (s *Step) Address() string {
	return string(s.Resource.Kind()) + "." + s.Resource.Name()
}

// Summary counts planned operations.
type Summary struct {
	Create  int
	Destroy int
}

// Plan is a fully resolved, ordered operation list plus the shared
// constructs the backend must materialize first.
type Plan struct {
	Steps    []*Step
	Order    []string
	Networks []string
	Volumes  []string
	Summary  Summary
}

// Options configures a Planner.
type Options struct {
	// CompletionParallelism bounds concurrent completion-service calls.
	// Zero means DefaultCompletionParallelism.
	CompletionParallelism int
}

// Planner runs the resolution pipeline over a session. Any failure during
// graph building, cycle detection, completion or resolution aborts the whole
// run before anything reaches the backend.
type Planner struct {
	completer completion.Completer
	opts      Options
}

// NewPlanner builds a planner. The completer may be nil, in which case any
// object with unset fields fails the run with an unavailability error.
func NewPlanner(completer completion.Completer, opts Options) *Planner {
	return &Planner{completer: completer, opts: opts}
}

// resolve runs the shared front of the pipeline: graph build, cycle check,
// completion in deployment partial order, connection side-effect resolution.
func (p *Planner) resolve(ctx context.Context, session *stack.Session) (*Graph, *sharedConstructs, error) {
	g, err := BuildGraph(session)
	if err != nil {
		return nil, nil, err
	}
	logging.Debug("graph built", "resources", len(g.DeployOrder()))

	if err := completeGraph(ctx, g, p.completer, p.opts.CompletionParallelism); err != nil {
		return nil, nil, err
	}

	shared, err := resolveGraph(g)
	if err != nil {
		return nil, nil, err
	}

	return g, shared, nil
}

// Plan resolves the session and produces the ordered create list.
func (p *Planner) Plan(ctx context.Context, session *stack.Session) (*Plan, error) {
	g, shared, err := p.resolve(ctx, session)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Order:    g.DeployOrder(),
		Networks: shared.networkOrder,
		Volumes:  shared.volumeOrder,
	}
	for _, name := range g.DeployOrder() {
		res := g.Resource(name)
		plan.Steps = append(plan.Steps, &Step{
			Resource:  res,
			Operation: OpCreate,
			Config:    exportConfig(res),
		})
		plan.Summary.Create++
	}
	return plan, nil
}

// Destroy resolves the session and produces the ordered destroy list: the
// exact reverse of the deploy order over the same graph, so dependents are
// always torn down before their dependencies.
func (p *Planner) Destroy(ctx context.Context, session *stack.Session) (*Plan, error) {
	g, shared, err := p.resolve(ctx, session)
	if err != nil {
		return nil, err
	}
	return p.destroyPlan(g, shared, g.DestroyOrder()), nil
}

// DestroyComposite produces the destroy list for a single composite:
// exactly its leaf set, in the reverse-topological order of the full graph.
func (p *Planner) DestroyComposite(ctx context.Context, session *stack.Session, name string) (*Plan, error) {
	comp, ok := session.CompositeByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown composite %q", name)
	}

	g, shared, err := p.resolve(ctx, session)
	if err != nil {
		return nil, err
	}

	leaves := make(map[string]bool)
	for _, res := range comp.Leaves() {
		leaves[res.Name()] = true
	}
	return p.destroyPlan(g, shared, g.SubsetDestroyOrder(leaves)), nil
}

func (p *Planner) destroyPlan(g *Graph, shared *sharedConstructs, order []string) *Plan {
	plan := &Plan{
		Order:    order,
		Networks: shared.networkOrder,
		Volumes:  shared.volumeOrder,
	}
	for _, name := range order {
		res := g.Resource(name)
		plan.Steps = append(plan.Steps, &Step{
			Resource:  res,
			Operation: OpDestroy,
			Config:    exportConfig(res),
		})
		plan.Summary.Destroy++
	}
	return plan
}

// exportConfig renders a resource's backend-native representation: its
// resolved fields merged with everything connection resolution injected.
func exportConfig(res *stack.Resource) map[string]any {
	cfg := map[string]any{
		"name": res.Name(),
	}

	switch res.Kind() {
	case stack.KindContainer:
		fields := res.Fields()
		if v, ok := fields.Get("image"); ok {
			cfg["image"] = v
		}
		if ports := fields.Strings("ports"); ports != nil {
			cfg["ports"] = ports
		}
		if cmd := fields.Strings("command"); cmd != nil {
			cfg["command"] = cmd
		}
		if v := fields.String("restart"); v != "" {
			cfg["restart"] = v
		}
		if v := fields.String("working_dir"); v != "" {
			cfg["working_dir"] = v
		}

		// Declared env first, injected entries on top.
		env := make(map[string]string)
		for k, v := range fields.StringMap("env") {
			env[k] = v
		}
		for _, e := range res.Env() {
			env[e.Name] = e.Value
		}
		if len(env) > 0 {
			cfg["env"] = env
		}

		if networks := res.Networks(); len(networks) > 0 {
			cfg["networks"] = networks
		}
		if mounts := res.Mounts(); len(mounts) > 0 {
			cfg["mounts"] = mounts
		}
		if setup := res.SetupSteps(); len(setup) > 0 {
			cfg["setup"] = setup
		}
		if assertions := res.Assertions(); len(assertions) > 0 {
			cfg["assertions"] = assertions
		}

	case stack.KindFile:
		fields := res.Fields()
		cfg["path"] = fields.String("path")
		cfg["content"] = fields.String("content")
		if v := fields.String("mode"); v != "" {
			cfg["mode"] = v
		}

	case stack.KindRepository:
		fields := res.Fields()
		cfg["url"] = fields.String("url")
		if v := fields.String("ref"); v != "" {
			cfg["ref"] = v
		}
		cfg["path"] = fields.String("path")
	}

	return cfg
}
