package engine

import (
	"fmt"
	"strings"

	"github.com/stax-io/stax/internal/logging"
	"github.com/stax-io/stax/internal/stack"
)

// sharedConstructs is the run-scoped registry of shared networks and
// volumes. Multiple connections naming the same network or volume collapse
// to a single registered construct, keyed by name.
type sharedConstructs struct {
	networkOrder []string
	networks     map[string]bool
	volumeOrder  []string
	volumes      map[string]bool
}

func newSharedConstructs() *sharedConstructs {
	return &sharedConstructs{
		networks: make(map[string]bool),
		volumes:  make(map[string]bool),
	}
}

func (s *sharedConstructs) registerNetwork(name string) {
	if s.networks[name] {
		return
	}
	s.networks[name] = true
	s.networkOrder = append(s.networkOrder, name)
}

func (s *sharedConstructs) registerVolume(name string) {
	if s.volumes[name] {
		return
	}
	s.volumes[name] = true
	s.volumeOrder = append(s.volumeOrder, name)
}

// resolveGraph applies every connection's variant-specific side effects.
// It runs after completion, so both endpoints and the connection itself are
// fully resolved. Side effects mutate only the from resource; the to
// resource is never touched, so resolution cannot create new ordering
// cycles.
func resolveGraph(g *Graph) (*sharedConstructs, error) {
	shared := newSharedConstructs()
	for _, name := range g.DeployOrder() {
		for _, conn := range g.Resource(name).Connections() {
			if err := resolveConnection(shared, conn); err != nil {
				return nil, err
			}
		}
	}
	return shared, nil
}

// resolveConnection computes and applies one connection's effects. Effects
// are computed at most once per run; a second resolution pass over an
// already-resolved connection is a no-op, and recomputation with identical
// inputs would produce identical effects (all mutations deduplicate).
func resolveConnection(shared *sharedConstructs, conn *stack.Connection) error {
	if conn.Resolved() {
		// Shared constructs still need registering so a resolved
		// connection keeps its network or volume alive in this run.
		reregisterShared(shared, conn)
		return nil
	}

	var effects stack.Effects
	var err error
	switch conn.Variant() {
	case stack.Dependency:
		// The graph edge is the whole effect.
	case stack.Database:
		effects, err = resolveDatabase(conn)
	case stack.Network:
		effects, err = resolveNetwork(shared, conn)
	case stack.File:
		effects, err = resolveFile(shared, conn)
	case stack.ServiceMesh:
		effects, err = resolveServiceMesh(conn)
	}
	if err != nil {
		return err
	}

	conn.MarkResolved(effects)
	logging.Debug("resolved connection",
		"variant", string(conn.Variant()),
		"from", conn.From().Name(),
		"to", conn.To().Name())
	return nil
}

func reregisterShared(shared *sharedConstructs, conn *stack.Connection) {
	switch conn.Variant() {
	case stack.Network:
		if name := conn.Fields().String("network_name"); name != "" {
			shared.registerNetwork(name)
		}
	case stack.File:
		if name := conn.Fields().String("volume_name"); name != "" {
			shared.registerVolume(name)
		}
	}
}

// resolveDatabase renders the connection string from user, password and
// database plus the target's derived host and port, injects it into the
// from resource's environment, and enqueues ordered pre-steps: a readiness
// wait and, if configured, a migration exec. Pre-steps run strictly between
// the target coming up and the dependent deploying.
func resolveDatabase(conn *stack.Connection) (stack.Effects, error) {
	fields := conn.Fields()
	for _, required := range []string{"user", "password", "database", "connection_string_template", "env_var_name"} {
		if _, ok := fields.Get(required); !ok {
			return stack.Effects{}, resolutionError(conn, "field "+required+" is not set")
		}
	}

	port, err := exposedPort(conn.To())
	if err != nil {
		return stack.Effects{}, resolutionError(conn, err.Error())
	}

	rendered := strings.NewReplacer(
		"{user}", fields.String("user"),
		"{password}", fields.String("password"),
		"{database}", fields.String("database"),
		"{host}", conn.To().Name(),
		"{port}", port,
	).Replace(fields.String("connection_string_template"))

	from := conn.From()
	envName := fields.String("env_var_name")
	from.AddEnv(envName, rendered)

	var effects stack.Effects
	effects.Env = append(effects.Env, stack.EnvEntry{Name: envName, Value: rendered})

	if fields.Bool("wait_for_ready") {
		step := stack.SetupStep{Kind: stack.SetupWaitReady, Target: conn.To().Name()}
		from.AddSetupStep(step)
		effects.Setup = append(effects.Setup, step)
	}
	if cmd := fields.Strings("migrate_command"); len(cmd) > 0 {
		step := stack.SetupStep{Kind: stack.SetupExec, Target: conn.To().Name(), Command: cmd}
		from.AddSetupStep(step)
		effects.Setup = append(effects.Setup, step)
	}
	return effects, nil
}

// resolveNetwork registers the shared network (idempotent by name), joins
// the from resource to it and injects a hostname variable pointing at the
// target's resolvable name.
func resolveNetwork(shared *sharedConstructs, conn *stack.Connection) (stack.Effects, error) {
	fields := conn.Fields()
	name := fields.String("network_name")
	if name == "" {
		return stack.Effects{}, resolutionError(conn, "field network_name is not set")
	}

	shared.registerNetwork(name)

	from := conn.From()
	from.AddNetwork(name)

	envName := fields.String("hostname_env_var")
	if envName == "" {
		envName = envVarName(conn.To().Name(), "HOST")
	}
	from.AddEnv(envName, conn.To().Name())

	return stack.Effects{
		Env: []stack.EnvEntry{{Name: envName, Value: conn.To().Name()}},
	}, nil
}

// resolveFile mounts either a named shared volume (idempotently registered)
// or the materialized content of a file-backed target, read-only, into the
// from resource.
func resolveFile(shared *sharedConstructs, conn *stack.Connection) (stack.Effects, error) {
	fields := conn.Fields()
	target := fields.String("mount_path")
	if target == "" {
		return stack.Effects{}, resolutionError(conn, "field mount_path is not set")
	}

	from := conn.From()
	if volume := fields.String("volume_name"); volume != "" {
		shared.registerVolume(volume)
		from.AddMount(stack.Mount{
			Volume:   volume,
			Target:   target,
			ReadOnly: fields.Bool("read_only"),
		})
		return stack.Effects{}, nil
	}

	if conn.To().Kind() != stack.KindFile {
		return stack.Effects{}, resolutionError(conn, "target is not a file resource and no volume_name is set")
	}
	source := conn.To().Fields().String("path")
	if source == "" {
		return stack.Effects{}, resolutionError(conn, "file resource has no path")
	}
	from.AddMount(stack.Mount{
		Source:   source,
		Target:   target,
		ReadOnly: true,
	})
	return stack.Effects{}, nil
}

// resolveServiceMesh discovers the target's exposed port, synthesizes the
// service URL, injects it as an environment variable and appends one
// generated health-check assertion to the from resource.
func resolveServiceMesh(conn *stack.Connection) (stack.Effects, error) {
	fields := conn.Fields()
	protocol := fields.String("protocol")
	if protocol == "" {
		return stack.Effects{}, resolutionError(conn, "field protocol is not set")
	}

	port, err := exposedPort(conn.To())
	if err != nil {
		return stack.Effects{}, resolutionError(conn, "target exposes no port")
	}

	url := protocol + "://" + conn.To().Name() + ":" + port

	from := conn.From()
	envName := fields.String("env_var_name")
	if envName == "" {
		envName = envVarName(conn.To().Name(), "URL")
	}
	from.AddEnv(envName, url)

	assertion := &stack.Assertion{
		Name:   conn.From().Name() + "-" + conn.To().Name() + "-health",
		Kind:   stack.AssertionKindHTTPHealth,
		Target: url + fields.String("health_check_path"),
		Expect: "status==200",
	}
	from.AppendAssertion(assertion)

	return stack.Effects{
		Env:        []stack.EnvEntry{{Name: envName, Value: url}},
		Assertions: []*stack.Assertion{assertion},
	}, nil
}

// exposedPort derives a resource's externally reachable port from its first
// host:container port mapping.
func exposedPort(res *stack.Resource) (string, error) {
	ports := res.Fields().Strings("ports")
	if len(ports) == 0 {
		return "", fmt.Errorf("resource %s exposes no port", res.Name())
	}
	host, _, found := strings.Cut(ports[0], ":")
	if !found {
		return ports[0], nil
	}
	return host, nil
}

func resolutionError(conn *stack.Connection, reason string) *ConnectionResolutionError {
	return &ConnectionResolutionError{
		From:    conn.From().Name(),
		To:      conn.To().Name(),
		Variant: string(conn.Variant()),
		Reason:  reason,
	}
}

// envVarName derives an environment variable name like POSTGRES_HOST from a
// resource name.
func envVarName(resource, suffix string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 32
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, resource)
	return cleaned + "_" + suffix
}
