package stack

// Kind identifies a deployable primitive. Composites are a distinct type,
// not a Kind.
type Kind string

const (
	KindContainer  Kind = "container"
	KindFile       Kind = "file"
	KindRepository Kind = "repository"
)

// EnvEntry is one environment variable injected by connection resolution.
type EnvEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Mount is a filesystem mount injected by connection resolution. Either
// Volume (a shared named volume) or Source (a materialized file path) is set.
type Mount struct {
	Volume   string `json:"volume,omitempty"`
	Source   string `json:"source,omitempty"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"readOnly"`
}

// SetupStep is an ordered pre-step that must run strictly between a
// dependency coming up and the dependent resource deploying.
type SetupStep struct {
	Kind    string   `json:"kind"` // "wait-ready" or "exec"
	Target  string   `json:"target"`
	Command []string `json:"command,omitempty"`
}

const (
	SetupWaitReady = "wait-ready"
	SetupExec      = "exec"
)

// Resource is a declared infrastructure primitive: a named, typed field set
// plus assertions, an optional owning composite and outgoing connections.
type Resource struct {
	name        string
	kind        Kind
	description string
	fields      *FieldSet
	assertions  []*Assertion
	parent      *Composite
	connections []*Connection
	index       int // declaration order within the session

	// Populated by connection resolution, never by the caller.
	env      []EnvEntry
	mounts   []Mount
	networks []string
	setup    []SetupStep
}

// Name returns the resource's unique name.
func (r *Resource) Name() string { return r.name }

// Kind returns the resource's primitive kind.
func (r *Resource) Kind() Kind { return r.kind }

// Fields returns the resource's tri-state field set.
func (r *Resource) Fields() *FieldSet { return r.fields }

// Description returns the free-text description used as completion context.
func (r *Resource) Description() string { return r.description }

// Describe sets the free-text description and returns the resource for
// chaining.
func (r *Resource) Describe(text string) *Resource {
	r.description = text
	return r
}

// Set records an explicit field value and returns the resource for chaining.
// Unknown field names panic: they are a programming error in the declaration,
// not a runtime condition.
func (r *Resource) Set(name string, value any) *Resource {
	if err := r.fields.Set(name, value); err != nil {
		panic("stack: " + r.name + ": " + err.Error())
	}
	return r
}

// Parent returns the owning composite, or nil for a top-level resource.
// The parent link is ownership only and never contributes a dependency edge.
func (r *Resource) Parent() *Composite { return r.parent }

// Connections returns the resource's outgoing connections in declaration
// order.
func (r *Resource) Connections() []*Connection { return r.connections }

// Assert attaches an assertion and returns the resource for chaining.
func (r *Resource) Assert(a *Assertion) *Resource {
	r.assertions = append(r.assertions, a)
	return r
}

// Assertions returns the resource's assertion list, declared plus generated.
func (r *Resource) Assertions() []*Assertion { return r.assertions }

// Connect declares a typed connection from this resource to another and
// returns it so variant fields can be set. The two endpoints must differ.
func (r *Resource) Connect(to *Resource, variant Variant) (*Connection, error) {
	if to == r {
		return nil, &SelfConnectionError{Name: r.name}
	}
	conn, err := newConnection(r, to, variant)
	if err != nil {
		return nil, err
	}
	r.connections = append(r.connections, conn)
	return conn, nil
}

// Env returns environment entries injected by connection resolution.
func (r *Resource) Env() []EnvEntry { return r.env }

// AddEnv injects an environment entry. Re-adding a name overwrites its value
// so re-resolution with identical inputs is idempotent.
func (r *Resource) AddEnv(name, value string) {
	for i, e := range r.env {
		if e.Name == name {
			r.env[i].Value = value
			return
		}
	}
	r.env = append(r.env, EnvEntry{Name: name, Value: value})
}

// Mounts returns mounts injected by connection resolution.
func (r *Resource) Mounts() []Mount { return r.mounts }

// AddMount injects a mount, deduplicated by target path.
func (r *Resource) AddMount(m Mount) {
	for _, existing := range r.mounts {
		if existing.Target == m.Target {
			return
		}
	}
	r.mounts = append(r.mounts, m)
}

// Networks returns the shared networks this resource joins.
func (r *Resource) Networks() []string { return r.networks }

// AddNetwork registers membership in a shared network, deduplicated by name.
func (r *Resource) AddNetwork(name string) {
	for _, n := range r.networks {
		if n == name {
			return
		}
	}
	r.networks = append(r.networks, name)
}

// SetupSteps returns ordered pre-steps injected by connection resolution.
func (r *Resource) SetupSteps() []SetupStep { return r.setup }

// AddSetupStep appends a pre-step, deduplicated by kind and target.
func (r *Resource) AddSetupStep(s SetupStep) {
	for _, existing := range r.setup {
		if existing.Kind == s.Kind && existing.Target == s.Target {
			return
		}
	}
	r.setup = append(r.setup, s)
}

// AppendAssertion attaches a generated assertion, deduplicated by name so
// re-resolution never duplicates health checks.
func (r *Resource) AppendAssertion(a *Assertion) {
	for _, existing := range r.assertions {
		if existing.Name == a.Name {
			return
		}
	}
	r.assertions = append(r.assertions, a)
}

// DeclarationIndex returns the resource's position in session declaration
// order, used for stable topological tie-breaking.
func (r *Resource) DeclarationIndex() int { return r.index }

func containerFields() *FieldSet {
	return NewFieldSet(
		FieldSpec{Name: "image", Type: "string", Constraint: "container image reference, e.g. postgres:16"},
		FieldSpec{Name: "ports", Type: "list<string>", Constraint: "port mappings as host:container"},
		FieldSpec{Name: "env", Type: "map<string,string>"},
		FieldSpec{Name: "command", Type: "list<string>"},
		FieldSpec{Name: "restart", Type: "string", Constraint: "one of no, always, on-failure, unless-stopped"},
		FieldSpec{Name: "working_dir", Type: "string"},
	)
}

func fileFields() *FieldSet {
	return NewFieldSet(
		FieldSpec{Name: "path", Type: "string", Constraint: "path where the file is materialized"},
		FieldSpec{Name: "content", Type: "string"},
		FieldSpec{Name: "mode", Type: "string", Constraint: "octal file mode, e.g. 0644"},
	)
}

func repositoryFields() *FieldSet {
	return NewFieldSet(
		FieldSpec{Name: "url", Type: "string", Constraint: "clone URL"},
		FieldSpec{Name: "ref", Type: "string", Constraint: "branch, tag or commit"},
		FieldSpec{Name: "path", Type: "string", Constraint: "checkout directory"},
	)
}
