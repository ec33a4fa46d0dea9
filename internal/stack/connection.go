package stack

import "fmt"

// Variant identifies a connection's type and therefore its side-effect rule.
type Variant string

const (
	Dependency  Variant = "dependency"
	Database    Variant = "database"
	Network     Variant = "network"
	File        Variant = "file"
	ServiceMesh Variant = "service-mesh"
)

// Effects records the side effects computed for a connection. They are
// computed at most once per run and applied only to the from resource.
type Effects struct {
	Env        []EnvEntry
	Setup      []SetupStep
	Assertions []*Assertion
}

// Connection is a directed, typed edge between two resources. The from
// resource depends on the to resource: to deploys first.
type Connection struct {
	from    *Resource
	to      *Resource
	variant Variant
	fields  *FieldSet

	resolved bool
	effects  Effects
}

func newConnection(from, to *Resource, variant Variant) (*Connection, error) {
	fields, err := variantFields(variant)
	if err != nil {
		return nil, err
	}
	return &Connection{from: from, to: to, variant: variant, fields: fields}, nil
}

// From returns the dependent endpoint.
func (c *Connection) From() *Resource { return c.from }

// To returns the prerequisite endpoint.
func (c *Connection) To() *Resource { return c.to }

// Variant returns the connection's type.
func (c *Connection) Variant() Variant { return c.variant }

// Fields returns the variant-specific tri-state field set.
func (c *Connection) Fields() *FieldSet { return c.fields }

// Set records an explicit field value and returns the connection for
// chaining. Unknown field names panic, as on Resource.Set.
func (c *Connection) Set(name string, value any) *Connection {
	if err := c.fields.Set(name, value); err != nil {
		panic(fmt.Sprintf("stack: %s->%s: %v", c.from.name, c.to.name, err))
	}
	return c
}

// Resolved reports whether side effects have been computed.
func (c *Connection) Resolved() bool { return c.resolved }

// MarkResolved records the computed side effects. Calling it again replaces
// them; resolution with identical inputs yields identical effects.
func (c *Connection) MarkResolved(e Effects) {
	c.resolved = true
	c.effects = e
}

// GeneratedEffects returns the side effects computed by the resolver.
func (c *Connection) GeneratedEffects() Effects { return c.effects }

func variantFields(v Variant) (*FieldSet, error) {
	switch v {
	case Dependency:
		return NewFieldSet(), nil
	case Database:
		return NewFieldSet(
			FieldSpec{Name: "user", Type: "string"},
			FieldSpec{Name: "password", Type: "string"},
			FieldSpec{Name: "database", Type: "string"},
			FieldSpec{Name: "connection_string_template", Type: "string",
				Constraint: "template with {user} {password} {host} {port} {database} placeholders"},
			FieldSpec{Name: "env_var_name", Type: "string", Constraint: "e.g. DATABASE_URL"},
			FieldSpec{Name: "wait_for_ready", Type: "bool"},
			FieldSpec{Name: "migrate_command", Type: "list<string>"},
		), nil
	case Network:
		return NewFieldSet(
			FieldSpec{Name: "network_name", Type: "string"},
			FieldSpec{Name: "hostname_env_var", Type: "string"},
		), nil
	case File:
		return NewFieldSet(
			FieldSpec{Name: "mount_path", Type: "string"},
			FieldSpec{Name: "read_only", Type: "bool"},
			FieldSpec{Name: "volume_name", Type: "string", Constraint: "set for a shared named volume"},
		), nil
	case ServiceMesh:
		return NewFieldSet(
			FieldSpec{Name: "protocol", Type: "string", Constraint: "http or https"},
			FieldSpec{Name: "health_check_path", Type: "string", Constraint: "e.g. /health"},
			FieldSpec{Name: "env_var_name", Type: "string", Constraint: "e.g. API_URL"},
		), nil
	}
	return nil, fmt.Errorf("unknown connection variant %q", v)
}
