package engine

import (
	"fmt"
	"sort"

	"github.com/stax-io/stax/internal/stack"
)

// Graph is the dependency graph over leaf resources. Composite membership
// contributes no edges; only connections do.
type Graph struct {
	nodes    map[string]*graphNode
	order    []string // topological order (deploy order)
	revOrder []string // exact reverse (destroy order)
}

type graphNode struct {
	name     string
	index    int // declaration order, used for stable tie-breaking
	resource *stack.Resource
	edges    []string // prerequisites: resources that must deploy first
	revEdges []string // dependents
}

// BuildGraph flattens the session's declarations into leaf resources and
// turns every connection from=A to=B into a prerequisite edge "B before A".
// It fails with a CycleError before anything else runs when the graph is
// cyclic.
func BuildGraph(session *stack.Session) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode)}

	for _, res := range session.Resources() {
		g.nodes[res.Name()] = &graphNode{
			name:     res.Name(),
			index:    res.DeclarationIndex(),
			resource: res,
		}
	}

	for _, res := range session.Resources() {
		node := g.nodes[res.Name()]
		for _, conn := range res.Connections() {
			dep := conn.To().Name()
			if _, ok := g.nodes[dep]; !ok {
				return nil, fmt.Errorf("connection from %s references unknown resource %s", res.Name(), dep)
			}
			node.edges = append(node.edges, dep)
		}
	}

	for _, node := range g.nodes {
		for _, dep := range node.edges {
			g.nodes[dep].revEdges = append(g.nodes[dep].revEdges, node.name)
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order

	// Destroy order is defined as the exact reverse of deploy order,
	// never recomputed.
	g.revOrder = make([]string, len(order))
	for i, name := range order {
		g.revOrder[len(order)-1-i] = name
	}

	return g, nil
}

// DeployOrder returns resources in dependency-respecting deploy order.
func (g *Graph) DeployOrder() []string { return g.order }

// DestroyOrder returns the exact reverse of the deploy order.
func (g *Graph) DestroyOrder() []string { return g.revOrder }

// Resource returns the resource behind a node name.
func (g *Graph) Resource(name string) *stack.Resource {
	if node, ok := g.nodes[name]; ok {
		return node.resource
	}
	return nil
}

// Dependencies returns the prerequisite names for a given resource.
func (g *Graph) Dependencies(name string) []string {
	if node, ok := g.nodes[name]; ok {
		return node.edges
	}
	return nil
}

// SubsetDestroyOrder filters the destroy order down to the given names,
// preserving their relative order. Used for composite destroy.
func (g *Graph) SubsetDestroyOrder(names map[string]bool) []string {
	var out []string
	for _, name := range g.revOrder {
		if names[name] {
			out = append(out, name)
		}
	}
	return out
}

// topoSort runs Kahn's algorithm. When several nodes are simultaneously
// eligible, the one declared first wins, so repeated runs over unchanged
// input produce an identical order.
func (g *Graph) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for name, node := range g.nodes {
		inDegree[name] = len(node.edges)
	}

	var ready []string
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	sorted := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		// Pick the eligible node with the lowest declaration index.
		best := 0
		for i := 1; i < len(ready); i++ {
			if g.nodes[ready[i]].index < g.nodes[ready[best]].index {
				best = i
			}
		}
		name := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		sorted = append(sorted, name)

		for _, dependent := range g.nodes[name].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(sorted) != len(g.nodes) {
		return nil, &CycleError{Path: g.findCycle()}
	}

	return sorted, nil
}

// findCycle walks the graph depth-first with a recursion stack and returns
// one full cycle path, closed (first node repeated at the end).
func (g *Graph) findCycle() []string {
	const (
		white = iota // unvisited
		gray         // on the recursion stack
		black        // done
	)
	color := make(map[string]int, len(g.nodes))
	var cycle []string

	var visit func(name string, trail []string) bool
	visit = func(name string, trail []string) bool {
		color[name] = gray
		trail = append(trail, name)
		for _, dep := range g.nodes[name].edges {
			switch color[dep] {
			case gray:
				// Found the cycle; slice the trail from the first
				// occurrence of dep.
				for i, n := range trail {
					if n == dep {
						cycle = append(append([]string{}, trail[i:]...), dep)
						return true
					}
				}
			case white:
				if visit(dep, trail) {
					return true
				}
			}
		}
		color[name] = black
		return false
	}

	// Iterate in declaration order so the reported cycle is deterministic.
	for _, node := range g.sortedNodes() {
		if color[node.name] == white {
			if visit(node.name, nil) {
				break
			}
		}
	}
	return cycle
}

func (g *Graph) sortedNodes() []*graphNode {
	out := make([]*graphNode, 0, len(g.nodes))
	for _, node := range g.nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}
