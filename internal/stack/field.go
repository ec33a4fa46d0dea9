package stack

import "fmt"

// FieldState tracks how a field value came to be. Explicit values always win
// over completed ones, even when the explicit value is false, zero or "".
type FieldState int

const (
	// Unset means the caller never supplied a value.
	Unset FieldState = iota
	// Explicit means the caller supplied the value at construction time.
	Explicit
	// Completed means the value was filled in by the completion service.
	Completed
)

// Field is a single tri-state value.
type Field struct {
	state FieldState
	value any
}

// State returns the field's current state.
func (f Field) State() FieldState { return f.state }

// Known reports whether the field holds a value, explicit or completed.
func (f Field) Known() bool { return f.state != Unset }

// Value returns the field's value, or nil when unset.
func (f Field) Value() any { return f.value }

// FieldSpec describes one completable field of a resource or connection.
type FieldSpec struct {
	Name       string
	Type       string // "string", "bool", "list<string>", "map<string,string>"
	Constraint string // free-text hint forwarded to the completion service
}

// FieldSet is an insertion-ordered set of tri-state fields backed by a schema.
type FieldSet struct {
	specs  []FieldSpec
	fields map[string]Field
}

// NewFieldSet builds an empty field set over the given schema.
func NewFieldSet(specs ...FieldSpec) *FieldSet {
	return &FieldSet{
		specs:  specs,
		fields: make(map[string]Field, len(specs)),
	}
}

// Specs returns the schema in declaration order.
func (s *FieldSet) Specs() []FieldSpec { return s.specs }

// Set records an explicit, caller-supplied value. Setting an unknown field
// name is an error so typos surface at declaration time.
func (s *FieldSet) Set(name string, value any) error {
	if !s.has(name) {
		return fmt.Errorf("unknown field %q", name)
	}
	s.fields[name] = Field{state: Explicit, value: value}
	return nil
}

// Fill records a completion-service value. It never overwrites an explicit
// value; filling an explicitly set field is a no-op.
func (s *FieldSet) Fill(name string, value any) {
	if f, ok := s.fields[name]; ok && f.state == Explicit {
		return
	}
	s.fields[name] = Field{state: Completed, value: value}
}

// Get returns the resolved value for a field and whether it is known.
func (s *FieldSet) Get(name string) (any, bool) {
	f, ok := s.fields[name]
	if !ok || f.state == Unset {
		return nil, false
	}
	return f.value, true
}

// String returns the field's value as a string, or "" when unset.
func (s *FieldSet) String(name string) string {
	v, ok := s.Get(name)
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", v)
}

// Bool returns the field's value as a bool, or false when unset.
func (s *FieldSet) Bool(name string) bool {
	v, ok := s.Get(name)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Strings returns the field's value as a string slice, or nil when unset.
// Completion responses arrive as []any, declarations as []string.
func (s *FieldSet) Strings(name string) []string {
	v, ok := s.Get(name)
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return out
	}
	return nil
}

// StringMap returns the field's value as a string map, or nil when unset.
func (s *FieldSet) StringMap(name string) map[string]string {
	v, ok := s.Get(name)
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case map[string]string:
		return val
	case map[string]any:
		out := make(map[string]string, len(val))
		for k, e := range val {
			out[k] = fmt.Sprintf("%v", e)
		}
		return out
	}
	return nil
}

// IsExplicit reports whether the caller set the field at construction time.
func (s *FieldSet) IsExplicit(name string) bool {
	return s.fields[name].state == Explicit
}

// Unknown returns the names of fields with no value yet, in schema order.
func (s *FieldSet) Unknown() []string {
	var out []string
	for _, spec := range s.specs {
		if !s.fields[spec.Name].Known() {
			out = append(out, spec.Name)
		}
	}
	return out
}

// ExplicitValues returns a copy of all explicitly set fields.
func (s *FieldSet) ExplicitValues() map[string]any {
	out := make(map[string]any)
	for _, spec := range s.specs {
		if f := s.fields[spec.Name]; f.state == Explicit {
			out[spec.Name] = f.value
		}
	}
	return out
}

// KnownValues returns a copy of all known fields, explicit or completed.
func (s *FieldSet) KnownValues() map[string]any {
	out := make(map[string]any)
	for _, spec := range s.specs {
		if f := s.fields[spec.Name]; f.Known() {
			out[spec.Name] = f.value
		}
	}
	return out
}

func (s *FieldSet) has(name string) bool {
	for _, spec := range s.specs {
		if spec.Name == name {
			return true
		}
	}
	return false
}
