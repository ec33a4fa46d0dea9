package engine

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle in the connection graph. It carries
// the full cycle path and is raised before any completion call is made.
type CycleError struct {
	Path []string // closed path: first element repeated last
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// ConnectionResolutionError reports a variant-specific resolution
// precondition failure, e.g. a service-mesh target exposing no port.
type ConnectionResolutionError struct {
	From    string
	To      string
	Variant string
	Reason  string
}

func (e *ConnectionResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s connection %s -> %s: %s",
		e.Variant, e.From, e.To, e.Reason)
}
