package stack

// Assertion is a declarative check attached to a resource. The core only
// constructs and attaches assertions; a separate runtime executes them.
type Assertion struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"` // e.g. "http-health"
	Target string `json:"target"`
	Expect string `json:"expect,omitempty"`
}

// AssertionKindHTTPHealth is the kind of health checks generated for
// service-mesh connections.
const AssertionKindHTTPHealth = "http-health"
