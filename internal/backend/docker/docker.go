// Package docker materializes resolved stacks against a local Docker
// daemon: containers, shared networks and volumes, file content, repository
// checkouts, readiness waits and migration execs.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/stax-io/stax/internal/backend"
	"github.com/stax-io/stax/internal/engine"
	"github.com/stax-io/stax/internal/logging"
	"github.com/stax-io/stax/internal/stack"
)

const (
	stopTimeoutSeconds = 10
	readyTimeout       = 60 * time.Second
	readyPollInterval  = 2 * time.Second
)

// Backend provisions resources through the Docker API.
type Backend struct {
	client *client.Client
}

// New returns a backend; the Docker client is created lazily from the
// environment.
func New() *Backend {
	return &Backend{}
}

func (b *Backend) ensureClient() error {
	if b.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	b.client = cli
	return nil
}

// Deploy implements backend.Backend. Shared networks and volumes are created
// first; steps then execute strictly in the given order, so a resource's
// setup pre-steps always run after its dependencies are up.
func (b *Backend) Deploy(ctx context.Context, plan *engine.Plan) ([]backend.Result, error) {
	if err := b.ensureClient(); err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	for _, name := range plan.Networks {
		if err := b.ensureNetwork(ctx, name); err != nil {
			return nil, err
		}
	}
	for _, name := range plan.Volumes {
		if _, err := b.client.VolumeCreate(ctx, volume.CreateOptions{Name: name}); err != nil {
			return nil, fmt.Errorf("failed to create volume %s: %w", name, err)
		}
	}

	var results []backend.Result
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("deploy cancelled: %w", err)
		}

		id, err := b.deployStep(ctx, step)
		results = append(results, backend.Result{
			Name:      step.Resource.Name(),
			Operation: step.Operation,
			ID:        id,
			Err:       err,
		})
		if err != nil {
			return results, fmt.Errorf("deploy failed for %s: %w", step.Address(), err)
		}
	}
	return results, nil
}

func (b *Backend) deployStep(ctx context.Context, step *engine.Step) (string, error) {
	switch step.Resource.Kind() {
	case stack.KindContainer:
		return b.deployContainer(ctx, step.Config)
	case stack.KindFile:
		return "", deployFile(step.Config)
	case stack.KindRepository:
		return "", deployRepository(ctx, step.Config)
	}
	return "", fmt.Errorf("unknown resource kind: %s", step.Resource.Kind())
}

// Destroy implements backend.Backend. Steps arrive already in reverse deploy
// order; shared networks and volumes are removed last, once nothing uses
// them.
func (b *Backend) Destroy(ctx context.Context, plan *engine.Plan) ([]backend.Result, error) {
	if err := b.ensureClient(); err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	var results []backend.Result
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("destroy cancelled: %w", err)
		}

		err := b.destroyStep(ctx, step)
		results = append(results, backend.Result{
			Name:      step.Resource.Name(),
			Operation: step.Operation,
			Err:       err,
		})
		if err != nil {
			return results, fmt.Errorf("destroy failed for %s: %w", step.Address(), err)
		}
	}

	for _, name := range plan.Networks {
		if err := b.client.NetworkRemove(ctx, name); err != nil && !client.IsErrNotFound(err) {
			return results, fmt.Errorf("failed to remove network %s: %w", name, err)
		}
	}
	for _, name := range plan.Volumes {
		if err := b.client.VolumeRemove(ctx, name, true); err != nil && !client.IsErrNotFound(err) {
			return results, fmt.Errorf("failed to remove volume %s: %w", name, err)
		}
	}
	return results, nil
}

func (b *Backend) destroyStep(ctx context.Context, step *engine.Step) error {
	switch step.Resource.Kind() {
	case stack.KindContainer:
		name := step.Resource.Name()
		timeout := stopTimeoutSeconds
		_ = b.client.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout})
		if err := b.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
			if !client.IsErrNotFound(err) {
				return fmt.Errorf("failed to remove container: %w", err)
			}
		}
		return nil

	case stack.KindFile:
		var cfg fileConfig
		if err := decodeConfig(step.Config, &cfg); err != nil {
			return err
		}
		if err := os.Remove(cfg.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove file: %w", err)
		}
		return nil

	case stack.KindRepository:
		var cfg repositoryConfig
		if err := decodeConfig(step.Config, &cfg); err != nil {
			return err
		}
		if cfg.Path == "" {
			return nil
		}
		if err := os.RemoveAll(cfg.Path); err != nil {
			return fmt.Errorf("failed to remove checkout: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown resource kind: %s", step.Resource.Kind())
}

func (b *Backend) deployContainer(ctx context.Context, config map[string]any) (string, error) {
	var desired containerConfig
	if err := decodeConfig(config, &desired); err != nil {
		return "", err
	}

	// Ordered pre-steps run strictly before this container is created.
	for _, setup := range desired.Setup {
		switch setup.Kind {
		case stack.SetupWaitReady:
			if err := b.waitReady(ctx, setup.Target); err != nil {
				return "", err
			}
		case stack.SetupExec:
			if err := b.execInContainer(ctx, setup.Target, setup.Command); err != nil {
				return "", err
			}
		}
	}

	reader, err := b.client.ImagePull(ctx, desired.Image, image.PullOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to pull image %s: %w", desired.Image, err)
	}
	io.Copy(io.Discard, reader)
	reader.Close()

	portBindings := nat.PortMap{}
	exposed := nat.PortSet{}
	for _, mapping := range desired.Ports {
		hostPort, containerPort, found := strings.Cut(mapping, ":")
		if !found {
			containerPort = hostPort
		}
		port := nat.Port(containerPort + "/tcp")
		exposed[port] = struct{}{}
		portBindings[port] = []nat.PortBinding{
			{HostIP: "0.0.0.0", HostPort: hostPort},
		}
	}

	var binds []string
	for _, m := range desired.Mounts {
		switch {
		case m.Volume != "":
			binds = append(binds, bindSpec(m.Volume, m.Target, m.ReadOnly))
		case m.Source != "":
			abs, err := filepath.Abs(m.Source)
			if err != nil {
				return "", fmt.Errorf("failed to resolve mount source %s: %w", m.Source, err)
			}
			binds = append(binds, bindSpec(abs, m.Target, m.ReadOnly))
		}
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        binds,
	}
	if len(desired.Networks) > 0 {
		hostConfig.NetworkMode = container.NetworkMode(desired.Networks[0])
	}
	if desired.Restart != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(desired.Restart),
		}
	}

	cfg := &container.Config{
		Image:        desired.Image,
		Cmd:          desired.Command,
		Env:          mapToEnvList(desired.Env),
		WorkingDir:   desired.WorkingDir,
		ExposedPorts: exposed,
	}

	if hc := healthcheckFor(desired.Assertions); hc != nil {
		cfg.Healthcheck = hc
	}

	resp, err := b.client.ContainerCreate(ctx,
		cfg,
		hostConfig,
		&network.NetworkingConfig{},
		&v1.Platform{},
		desired.Name,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := b.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	logging.Info("container started", "name", desired.Name, "id", resp.ID[:12])
	return resp.ID, nil
}

// ensureNetwork creates a shared network if it does not exist yet.
func (b *Backend) ensureNetwork(ctx context.Context, name string) error {
	if _, err := b.client.NetworkInspect(ctx, name, network.InspectOptions{}); err == nil {
		return nil
	}
	_, err := b.client.NetworkCreate(ctx, name, types.NetworkCreate{Driver: "bridge"})
	if err != nil {
		return fmt.Errorf("failed to create network %s: %w", name, err)
	}
	return nil
}

// waitReady polls the target container until it reports healthy, or running
// when it has no health check.
func (b *Backend) waitReady(ctx context.Context, target string) error {
	deadline := time.Now().Add(readyTimeout)
	for {
		inspect, err := b.client.ContainerInspect(ctx, target)
		if err == nil && inspect.State != nil {
			if inspect.State.Health != nil {
				if inspect.State.Health.Status == "healthy" {
					return nil
				}
			} else if inspect.State.Running {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %s to become ready", target)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s cancelled: %w", target, ctx.Err())
		case <-time.After(readyPollInterval):
		}
	}
}

// execInContainer runs a migration or schema command inside the target
// container and fails on a non-zero exit code.
func (b *Backend) execInContainer(ctx context.Context, target string, command []string) error {
	execResp, err := b.client.ContainerExecCreate(ctx, target, container.ExecOptions{
		Cmd:          command,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create exec in %s: %w", target, err)
	}

	if err := b.client.ContainerExecStart(ctx, execResp.ID, container.ExecStartOptions{}); err != nil {
		return fmt.Errorf("failed to start exec in %s: %w", target, err)
	}

	for {
		inspect, err := b.client.ContainerExecInspect(ctx, execResp.ID)
		if err != nil {
			return fmt.Errorf("failed to inspect exec in %s: %w", target, err)
		}
		if !inspect.Running {
			if inspect.ExitCode != 0 {
				return fmt.Errorf("command %v in %s exited with code %d", command, target, inspect.ExitCode)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("exec in %s cancelled: %w", target, ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func deployFile(config map[string]any) error {
	var cfg fileConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return err
	}

	mode := os.FileMode(0o644)
	if cfg.Mode != "" {
		parsed, err := strconv.ParseUint(strings.TrimPrefix(cfg.Mode, "0o"), 8, 32)
		if err != nil {
			return fmt.Errorf("invalid file mode %q: %w", cfg.Mode, err)
		}
		mode = os.FileMode(parsed)
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", cfg.Path, err)
		}
	}
	if err := os.WriteFile(cfg.Path, []byte(cfg.Content), mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", cfg.Path, err)
	}
	return nil
}

func deployRepository(ctx context.Context, config map[string]any) error {
	var cfg repositoryConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.URL == "" || cfg.Path == "" {
		return fmt.Errorf("repository requires url and path")
	}

	if _, err := os.Stat(cfg.Path); err == nil {
		logging.Debug("checkout already exists", "path", cfg.Path)
		return nil
	}

	clone := exec.CommandContext(ctx, "git", "clone", cfg.URL, cfg.Path)
	if out, err := clone.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	if cfg.Ref != "" {
		checkout := exec.CommandContext(ctx, "git", "-C", cfg.Path, "checkout", cfg.Ref)
		if out, err := checkout.CombinedOutput(); err != nil {
			return fmt.Errorf("git checkout %s failed: %w: %s", cfg.Ref, err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

// healthcheckFor translates generated http-health assertions into a Docker
// health check. The first assertion wins; containers rarely carry more.
func healthcheckFor(assertions []assertionConfig) *container.HealthConfig {
	for _, a := range assertions {
		if a.Kind != stack.AssertionKindHTTPHealth {
			continue
		}
		return &container.HealthConfig{
			Test:     []string{"CMD-SHELL", fmt.Sprintf("curl -fsS %s || exit 1", a.Target)},
			Interval: 10 * time.Second,
			Timeout:  5 * time.Second,
			Retries:  3,
		}
	}
	return nil
}

func bindSpec(source, target string, readOnly bool) string {
	spec := source + ":" + target
	if readOnly {
		spec += ":ro"
	}
	return spec
}

func mapToEnvList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// decodeConfig round-trips the engine's export map through JSON into a typed
// config struct.
func decodeConfig(config map[string]any, out any) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

type containerConfig struct {
	Name       string            `json:"name"`
	Image      string            `json:"image"`
	Ports      []string          `json:"ports"`
	Env        map[string]string `json:"env"`
	Command    []string          `json:"command"`
	Restart    string            `json:"restart"`
	WorkingDir string            `json:"working_dir"`
	Networks   []string          `json:"networks"`
	Mounts     []mountConfig     `json:"mounts"`
	Setup      []setupConfig     `json:"setup"`
	Assertions []assertionConfig `json:"assertions"`
}

type mountConfig struct {
	Volume   string `json:"volume"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"readOnly"`
}

type setupConfig struct {
	Kind    string   `json:"kind"`
	Target  string   `json:"target"`
	Command []string `json:"command"`
}

type assertionConfig struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Expect string `json:"expect"`
}

type fileConfig struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

type repositoryConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Ref  string `json:"ref"`
	Path string `json:"path"`
}
