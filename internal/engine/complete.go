package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stax-io/stax/internal/completion"
	"github.com/stax-io/stax/internal/logging"
	"github.com/stax-io/stax/internal/stack"
)

// DefaultCompletionParallelism bounds concurrent completion-service calls.
const DefaultCompletionParallelism = 4

// completionCache deduplicates identical (schema, context) pairs within one
// run: a plan immediately followed by an apply in the same process, or
// several connections needing the same endpoint metadata, resolve to a
// single completion call.
type completionCache struct {
	mu        sync.Mutex
	completer completion.Completer
	entries   map[string]*completion.Result
}

func newCompletionCache(completer completion.Completer) *completionCache {
	return &completionCache{
		completer: completer,
		entries:   make(map[string]*completion.Result),
	}
}

func (c *completionCache) complete(ctx context.Context, req *completion.Request) (*completion.Result, error) {
	if c.completer == nil {
		return nil, &completion.UnavailableError{Err: errors.New("no completion service configured")}
	}

	key, err := requestKey(req)
	if err != nil {
		return nil, fmt.Errorf("failed to hash completion request: %w", err)
	}

	c.mu.Lock()
	if cached, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	res, err := c.completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = res
	c.mu.Unlock()
	return res, nil
}

// requestKey returns a stable hash of (schema, context). encoding/json
// marshals map keys in sorted order, which makes the encoding canonical.
func requestKey(req *completion.Request) (string, error) {
	payload, err := json.Marshal(struct {
		Schema  []completion.FieldSpec `json:"schema"`
		Context map[string]any         `json:"context"`
	}{req.Schema, req.Context})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// completeGraph resolves unset fields for every resource and connection.
// Completion follows the same partial order as deployment: an object is only
// submitted once everything it needs as context is itself resolved.
// Independent completions within one wave run concurrently, bounded by
// parallelism.
func completeGraph(ctx context.Context, g *Graph, completer completion.Completer, parallelism int) error {
	if parallelism <= 0 {
		parallelism = DefaultCompletionParallelism
	}
	cache := newCompletionCache(completer)

	for _, wave := range g.waves() {
		eg, waveCtx := errgroup.WithContext(ctx)
		eg.SetLimit(parallelism)
		for _, name := range wave {
			res := g.Resource(name)
			eg.Go(func() error {
				return completeResource(waveCtx, cache, res)
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// waves groups the deploy order into levels: every node's prerequisites live
// in strictly earlier waves, so nodes within one wave are independent.
func (g *Graph) waves() [][]string {
	level := make(map[string]int, len(g.nodes))
	maxLevel := 0
	for _, name := range g.order {
		l := 0
		for _, dep := range g.nodes[name].edges {
			if level[dep]+1 > l {
				l = level[dep] + 1
			}
		}
		level[name] = l
		if l > maxLevel {
			maxLevel = l
		}
	}

	waves := make([][]string, maxLevel+1)
	for _, name := range g.order {
		waves[level[name]] = append(waves[level[name]], name)
	}
	return waves
}

// completeResource fills the resource's unset fields, then its outgoing
// connections' fields. Both endpoints of each connection are already
// resolved by then: the to endpoint in an earlier wave, the from endpoint
// just now.
func completeResource(ctx context.Context, cache *completionCache, res *stack.Resource) error {
	if err := completeObject(ctx, cache, res.Fields(), resourceContext(res)); err != nil {
		return fmt.Errorf("completing %s %q: %w", res.Kind(), res.Name(), err)
	}
	for _, conn := range res.Connections() {
		if err := completeObject(ctx, cache, conn.Fields(), connectionContext(conn)); err != nil {
			return fmt.Errorf("completing %s connection %s -> %s: %w",
				conn.Variant(), conn.From().Name(), conn.To().Name(), err)
		}
	}
	return nil
}

// completeObject submits one object with unset fields to the completion
// service and merges the result. An object whose fields are all known makes
// zero calls and returns unchanged. Explicitly set values always win over
// the candidate, including explicit false, zero and "".
func completeObject(ctx context.Context, cache *completionCache, fields *stack.FieldSet, contextBundle map[string]any) error {
	unknown := fields.Unknown()
	if len(unknown) == 0 {
		return nil
	}

	schema := make([]completion.FieldSpec, 0, len(fields.Specs()))
	for _, spec := range fields.Specs() {
		schema = append(schema, completion.FieldSpec{
			Name:       spec.Name,
			Type:       spec.Type,
			Constraint: spec.Constraint,
		})
	}

	res, err := cache.complete(ctx, &completion.Request{
		Schema:     schema,
		Context:    contextBundle,
		AlreadySet: fields.ExplicitValues(),
	})
	if err != nil {
		return err
	}

	if err := validateResult(fields, unknown, res); err != nil {
		return err
	}

	for _, name := range unknown {
		fields.Fill(name, res.Fields[name])
	}
	logging.Debug("completed fields", "count", len(unknown), "fields", strings.Join(unknown, ","))
	return nil
}

// validateResult checks the candidate object against the schema: every unset
// field must come back with a type-conforming value, and no field outside
// the schema may appear.
func validateResult(fields *stack.FieldSet, unknown []string, res *completion.Result) error {
	var bad []string

	known := make(map[string]string, len(fields.Specs()))
	for _, spec := range fields.Specs() {
		known[spec.Name] = spec.Type
	}

	for _, name := range unknown {
		v, ok := res.Fields[name]
		if !ok || v == nil {
			bad = append(bad, name)
			continue
		}
		if !typeConforms(known[name], v) {
			bad = append(bad, name)
		}
	}
	for name := range res.Fields {
		if _, ok := known[name]; !ok {
			bad = append(bad, name)
		}
	}

	if len(bad) > 0 {
		sort.Strings(bad)
		return &completion.InvalidError{Fields: bad}
	}
	return nil
}

func typeConforms(fieldType string, v any) bool {
	switch {
	case fieldType == "string":
		_, ok := v.(string)
		return ok
	case fieldType == "bool":
		_, ok := v.(bool)
		return ok
	case strings.HasPrefix(fieldType, "list<"):
		switch v.(type) {
		case []any, []string:
			return true
		}
		return false
	case strings.HasPrefix(fieldType, "map<"):
		switch v.(type) {
		case map[string]any, map[string]string:
			return true
		}
		return false
	}
	return true
}

// resourceContext bundles what the completion service needs to fill a
// resource: its own known fields, its description and summaries of the
// resources it connects to.
func resourceContext(res *stack.Resource) map[string]any {
	ctx := map[string]any{
		"name":   res.Name(),
		"kind":   string(res.Kind()),
		"fields": res.Fields().ExplicitValues(),
	}
	if res.Description() != "" {
		ctx["description"] = res.Description()
	}
	if conns := res.Connections(); len(conns) > 0 {
		var targets []map[string]any
		for _, conn := range conns {
			t := resourceSummary(conn.To())
			t["variant"] = string(conn.Variant())
			targets = append(targets, t)
		}
		ctx["connects_to"] = targets
	}
	return ctx
}

// connectionContext bundles a connection's variant plus summarized metadata
// of both endpoints, whose fields are already resolved.
func connectionContext(conn *stack.Connection) map[string]any {
	return map[string]any{
		"variant": string(conn.Variant()),
		"from":    resourceSummary(conn.From()),
		"to":      resourceSummary(conn.To()),
	}
}

// resourceSummary is the compact endpoint description used as context:
// name, kind and already-known fields such as image and ports.
func resourceSummary(res *stack.Resource) map[string]any {
	summary := map[string]any{
		"name": res.Name(),
		"kind": string(res.Kind()),
	}
	for name, v := range res.Fields().KnownValues() {
		switch name {
		case "image", "ports", "url", "path":
			summary[name] = v
		}
	}
	return summary
}
