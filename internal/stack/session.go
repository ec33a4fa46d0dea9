// Package stack holds the declaration model: resources, composites and typed
// connections between them, with tri-state fields that distinguish values the
// caller set explicitly from values filled in by the completion service.
//
// All objects are created through a Session so each invocation starts from an
// isolated, fresh namespace with no hidden global state.
package stack

import "fmt"

// DuplicateNameError reports two declared objects sharing a name. Composites
// and their descendants share one namespace.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate declaration name %q", e.Name)
}

// SelfConnectionError reports a connection whose endpoints are the same
// resource.
type SelfConnectionError struct {
	Name string
}

func (e *SelfConnectionError) Error() string {
	return fmt.Sprintf("resource %q cannot connect to itself", e.Name)
}

// Session is the explicit registry for one invocation. Nothing survives
// across invocations; cross-run state belongs to the provisioning backend.
type Session struct {
	names      map[string]bool
	resources  []*Resource
	composites []*Composite
	next       int
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{names: make(map[string]bool)}
}

func (s *Session) register(name string) error {
	if s.names[name] {
		return &DuplicateNameError{Name: name}
	}
	s.names[name] = true
	return nil
}

// Container declares a container resource.
func (s *Session) Container(name string) (*Resource, error) {
	return s.resource(name, KindContainer, containerFields())
}

// File declares a file-backed resource.
func (s *Session) File(name string) (*Resource, error) {
	return s.resource(name, KindFile, fileFields())
}

// Repository declares a source repository resource.
func (s *Session) Repository(name string) (*Resource, error) {
	return s.resource(name, KindRepository, repositoryFields())
}

func (s *Session) resource(name string, kind Kind, fields *FieldSet) (*Resource, error) {
	if err := s.register(name); err != nil {
		return nil, err
	}
	r := &Resource{name: name, kind: kind, fields: fields, index: s.next}
	s.next++
	s.resources = append(s.resources, r)
	return r, nil
}

// Composite declares an organizational container.
func (s *Session) Composite(name string) (*Composite, error) {
	if err := s.register(name); err != nil {
		return nil, err
	}
	c := &Composite{name: name, children: make(map[string]Node)}
	s.composites = append(s.composites, c)
	return c, nil
}

// Resources returns every leaf resource in declaration order, regardless of
// composite membership. Membership is organizational only.
func (s *Session) Resources() []*Resource { return s.resources }

// Resource returns the named leaf resource.
func (s *Session) Resource(name string) (*Resource, bool) {
	for _, r := range s.resources {
		if r.name == name {
			return r, true
		}
	}
	return nil, false
}

// CompositeByName returns the named composite.
func (s *Session) CompositeByName(name string) (*Composite, bool) {
	for _, c := range s.composites {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

// Connections returns every declared connection in declaration order of their
// from resource.
func (s *Session) Connections() []*Connection {
	var out []*Connection
	for _, r := range s.resources {
		out = append(out, r.connections...)
	}
	return out
}
