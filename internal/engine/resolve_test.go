package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stax-io/stax/internal/stack"
)

func TestResolveDatabase_ConnectionString(t *testing.T) {
	s := stack.NewSession()
	api := mustContainer(t, s, "api")
	db := mustContainer(t, s, "postgres")
	db.Set("ports", []string{"5432:5432"})

	conn := mustConnect(t, api, db, stack.Database)
	conn.Set("user", "u").
		Set("password", "p").
		Set("database", "appdb").
		Set("connection_string_template", "postgresql://{user}:{password}@{host}:{port}/{database}").
		Set("env_var_name", "DATABASE_URL")

	g, err := BuildGraph(s)
	require.NoError(t, err)
	_, err = resolveGraph(g)
	require.NoError(t, err)

	require.Len(t, api.Env(), 1)
	assert.Equal(t, "DATABASE_URL", api.Env()[0].Name)
	assert.Equal(t, "postgresql://u:p@postgres:5432/appdb", api.Env()[0].Value)

	// Only the from resource is mutated.
	assert.Empty(t, db.Env())
	assert.Empty(t, db.SetupSteps())
}

func TestResolveDatabase_SetupSteps(t *testing.T) {
	s := stack.NewSession()
	api := mustContainer(t, s, "api")
	db := mustContainer(t, s, "postgres")
	db.Set("ports", []string{"5432:5432"})

	conn := mustConnect(t, api, db, stack.Database)
	conn.Set("user", "u").
		Set("password", "p").
		Set("database", "appdb").
		Set("connection_string_template", "postgresql://{user}:{password}@{host}:{port}/{database}").
		Set("env_var_name", "DATABASE_URL").
		Set("wait_for_ready", true).
		Set("migrate_command", []string{"alembic", "upgrade", "head"})

	g, err := BuildGraph(s)
	require.NoError(t, err)
	_, err = resolveGraph(g)
	require.NoError(t, err)

	steps := api.SetupSteps()
	require.Len(t, steps, 2)
	assert.Equal(t, stack.SetupWaitReady, steps[0].Kind)
	assert.Equal(t, "postgres", steps[0].Target)
	assert.Equal(t, stack.SetupExec, steps[1].Kind)
	assert.Equal(t, []string{"alembic", "upgrade", "head"}, steps[1].Command)
}

func TestResolveDatabase_MissingField(t *testing.T) {
	s := stack.NewSession()
	api := mustContainer(t, s, "api")
	db := mustContainer(t, s, "postgres")
	db.Set("ports", []string{"5432:5432"})

	conn := mustConnect(t, api, db, stack.Database)
	conn.Set("user", "u") // everything else unset

	g, err := BuildGraph(s)
	require.NoError(t, err)
	_, err = resolveGraph(g)
	require.Error(t, err)

	var resErr *ConnectionResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "api", resErr.From)
	assert.Equal(t, "postgres", resErr.To)
	assert.Contains(t, resErr.Reason, "password")
}

func TestResolveServiceMesh_URLAndAssertion(t *testing.T) {
	s := stack.NewSession()
	frontend := mustContainer(t, s, "frontend")
	api := mustContainer(t, s, "api")
	api.Set("ports", []string{"8000:80"})

	conn := mustConnect(t, frontend, api, stack.ServiceMesh)
	conn.Set("protocol", "http").Set("health_check_path", "/health")

	g, err := BuildGraph(s)
	require.NoError(t, err)
	_, err = resolveGraph(g)
	require.NoError(t, err)

	// The URL uses the host side of the port mapping.
	require.Len(t, frontend.Env(), 1)
	assert.Equal(t, "API_URL", frontend.Env()[0].Name)
	assert.Equal(t, "http://api:8000", frontend.Env()[0].Value)

	assertions := frontend.Assertions()
	require.Len(t, assertions, 1)
	assert.Equal(t, "frontend-api-health", assertions[0].Name)
	assert.Equal(t, stack.AssertionKindHTTPHealth, assertions[0].Kind)
	assert.Equal(t, "http://api:8000/health", assertions[0].Target)
	assert.Equal(t, "status==200", assertions[0].Expect)
}

func TestResolveServiceMesh_Idempotent(t *testing.T) {
	s := stack.NewSession()
	frontend := mustContainer(t, s, "frontend")
	api := mustContainer(t, s, "api")
	api.Set("ports", []string{"8000:80"})

	conn := mustConnect(t, frontend, api, stack.ServiceMesh)
	conn.Set("protocol", "http").Set("health_check_path", "/health")

	g, err := BuildGraph(s)
	require.NoError(t, err)

	// A second resolution pass over the same graph changes nothing.
	_, err = resolveGraph(g)
	require.NoError(t, err)
	_, err = resolveGraph(g)
	require.NoError(t, err)

	assert.Len(t, frontend.Env(), 1)
	assert.Len(t, frontend.Assertions(), 1)
}

func TestResolveServiceMesh_NoExposedPort(t *testing.T) {
	s := stack.NewSession()
	frontend := mustContainer(t, s, "frontend")
	api := mustContainer(t, s, "api") // no ports

	conn := mustConnect(t, frontend, api, stack.ServiceMesh)
	conn.Set("protocol", "http")

	g, err := BuildGraph(s)
	require.NoError(t, err)
	_, err = resolveGraph(g)

	var resErr *ConnectionResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Contains(t, resErr.Reason, "no port")
}

func TestResolveNetwork_SharedRegistration(t *testing.T) {
	s := stack.NewSession()
	api := mustContainer(t, s, "api")
	worker := mustContainer(t, s, "worker")
	db := mustContainer(t, s, "postgres")

	mustConnect(t, api, db, stack.Network).Set("network_name", "backend")
	mustConnect(t, worker, db, stack.Network).Set("network_name", "backend")

	g, err := BuildGraph(s)
	require.NoError(t, err)
	shared, err := resolveGraph(g)
	require.NoError(t, err)

	// Both connections name the same network; it is registered once.
	assert.Equal(t, []string{"backend"}, shared.networkOrder)
	assert.Equal(t, []string{"backend"}, api.Networks())
	assert.Equal(t, []string{"backend"}, worker.Networks())
	assert.Empty(t, db.Networks())
}

func TestResolveNetwork_HostnameEnv(t *testing.T) {
	s := stack.NewSession()
	api := mustContainer(t, s, "api")
	db := mustContainer(t, s, "postgres")

	mustConnect(t, api, db, stack.Network).Set("network_name", "backend")

	g, err := BuildGraph(s)
	require.NoError(t, err)
	_, err = resolveGraph(g)
	require.NoError(t, err)

	// Default hostname variable derives from the target name.
	require.Len(t, api.Env(), 1)
	assert.Equal(t, "POSTGRES_HOST", api.Env()[0].Name)
	assert.Equal(t, "postgres", api.Env()[0].Value)
}

func TestResolveFile_SharedVolume(t *testing.T) {
	s := stack.NewSession()
	api := mustContainer(t, s, "api")
	worker := mustContainer(t, s, "worker")
	db := mustContainer(t, s, "postgres")

	mustConnect(t, api, db, stack.File).
		Set("mount_path", "/var/lib/shared").Set("volume_name", "appdata")
	mustConnect(t, worker, db, stack.File).
		Set("mount_path", "/var/lib/shared").Set("volume_name", "appdata")

	g, err := BuildGraph(s)
	require.NoError(t, err)
	shared, err := resolveGraph(g)
	require.NoError(t, err)

	assert.Equal(t, []string{"appdata"}, shared.volumeOrder)

	require.Len(t, api.Mounts(), 1)
	assert.Equal(t, "appdata", api.Mounts()[0].Volume)
	assert.Equal(t, "/var/lib/shared", api.Mounts()[0].Target)
}

func TestResolveFile_FileResourceMount(t *testing.T) {
	s := stack.NewSession()
	api := mustContainer(t, s, "api")
	config := mustFile(t, s, "config")
	config.Set("path", "./config.yaml").Set("content", "key: value")

	mustConnect(t, api, config, stack.File).Set("mount_path", "/etc/app/config.yaml")

	g, err := BuildGraph(s)
	require.NoError(t, err)
	_, err = resolveGraph(g)
	require.NoError(t, err)

	require.Len(t, api.Mounts(), 1)
	m := api.Mounts()[0]
	assert.Equal(t, "./config.yaml", m.Source)
	assert.Equal(t, "/etc/app/config.yaml", m.Target)
	assert.True(t, m.ReadOnly)
}

func TestResolveFile_NonFileTargetWithoutVolume(t *testing.T) {
	s := stack.NewSession()
	api := mustContainer(t, s, "api")
	db := mustContainer(t, s, "postgres")

	mustConnect(t, api, db, stack.File).Set("mount_path", "/var/lib/data")

	g, err := BuildGraph(s)
	require.NoError(t, err)
	_, err = resolveGraph(g)

	var resErr *ConnectionResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Contains(t, resErr.Reason, "volume_name")
}

func TestResolveDependency_NoSideEffects(t *testing.T) {
	s := stack.NewSession()
	api := mustContainer(t, s, "api")
	db := mustContainer(t, s, "postgres")

	conn := mustConnect(t, api, db, stack.Dependency)

	g, err := BuildGraph(s)
	require.NoError(t, err)
	_, err = resolveGraph(g)
	require.NoError(t, err)

	assert.True(t, conn.Resolved())
	assert.Empty(t, api.Env())
	assert.Empty(t, api.Mounts())
	assert.Empty(t, api.SetupSteps())
}

func TestExposedPort(t *testing.T) {
	s := stack.NewSession()
	api := mustContainer(t, s, "api")
	api.Set("ports", []string{"8000:80", "9000:90"})

	port, err := exposedPort(api)
	require.NoError(t, err)
	assert.Equal(t, "8000", port)

	bare := mustContainer(t, s, "bare")
	bare.Set("ports", []string{"6379"})
	port, err = exposedPort(bare)
	require.NoError(t, err)
	assert.Equal(t, "6379", port)
}

func TestEnvVarName(t *testing.T) {
	assert.Equal(t, "POSTGRES_HOST", envVarName("postgres", "HOST"))
	assert.Equal(t, "MY_API_URL", envVarName("my-api", "URL"))
}
