package stack

// Node is either a leaf Resource or a Composite. Composites may nest to
// arbitrary depth; only leaf resources are deployable.
type Node interface {
	Name() string
	node() // closed set
}

func (r *Resource) node()  {}
func (c *Composite) node() {}

// Composite is a pure organizational container: a name-keyed,
// insertion-ordered set of children with no deployable effect of its own.
// It carries no fields, connections or assertions.
type Composite struct {
	name     string
	order    []string
	children map[string]Node
	parent   *Composite
}

// Name returns the composite's unique name.
func (c *Composite) Name() string { return c.name }

// Parent returns the owning composite, or nil at the top level.
func (c *Composite) Parent() *Composite { return c.parent }

// Add attaches a resource and returns the same reference so the caller can
// immediately chain a Connect call. A child can belong to one composite only.
func (c *Composite) Add(r *Resource) *Resource {
	if r.parent != nil {
		panic("stack: " + r.name + " already belongs to " + r.parent.name)
	}
	r.parent = c
	c.attach(r)
	return r
}

// AddComposite attaches a nested composite and returns it.
func (c *Composite) AddComposite(child *Composite) *Composite {
	if child.parent != nil {
		panic("stack: " + child.name + " already belongs to " + child.parent.name)
	}
	child.parent = c
	c.attach(child)
	return child
}

func (c *Composite) attach(n Node) {
	c.order = append(c.order, n.Name())
	c.children[n.Name()] = n
}

// Get returns the named child.
func (c *Composite) Get(name string) (Node, bool) {
	n, ok := c.children[name]
	return n, ok
}

// Contains reports whether the composite directly holds the named child.
func (c *Composite) Contains(name string) bool {
	_, ok := c.children[name]
	return ok
}

// Children returns the direct children in insertion order.
func (c *Composite) Children() []Node {
	out := make([]Node, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.children[name])
	}
	return out
}

// Leaves returns the full leaf resource set of the composite, recursing
// through nested composites in insertion order. "Destroy this composite"
// means destroying exactly this set.
func (c *Composite) Leaves() []*Resource {
	var out []*Resource
	for _, name := range c.order {
		switch n := c.children[name].(type) {
		case *Resource:
			out = append(out, n)
		case *Composite:
			out = append(out, n.Leaves()...)
		}
	}
	return out
}

// Path returns the membership path from the outermost composite down to c.
func (c *Composite) Path() []string {
	if c.parent == nil {
		return []string{c.name}
	}
	return append(c.parent.Path(), c.name)
}
