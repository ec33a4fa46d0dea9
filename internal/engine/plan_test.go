package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stax-io/stax/internal/stack"
)

// databaseStack declares the postgres/api pair with a database connection.
func databaseStack(t *testing.T) (*stack.Session, *stack.Resource, *stack.Resource) {
	t.Helper()
	s := stack.NewSession()
	db := fullySetContainer(t, s, "postgres")
	db.Set("ports", []string{"5432:5432"})
	api := fullySetContainer(t, s, "api")

	conn := mustConnect(t, api, db, stack.Database)
	conn.Set("user", "u").
		Set("password", "p").
		Set("database", "appdb").
		Set("connection_string_template", "postgresql://{user}:{password}@{host}:{port}/{database}").
		Set("env_var_name", "DATABASE_URL").
		Set("wait_for_ready", false).
		Set("migrate_command", []string{})
	return s, api, db
}

func TestPlanner_Plan_DatabaseScenario(t *testing.T) {
	s, api, _ := databaseStack(t)

	completer := &countingCompleter{}
	plan, err := NewPlanner(completer, Options{}).Plan(context.Background(), s)
	require.NoError(t, err)

	// Everything was explicit: zero completion calls.
	assert.Equal(t, int64(0), completer.calls.Load())

	assert.Equal(t, []string{"postgres", "api"}, plan.Order)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, OpCreate, plan.Steps[0].Operation)
	assert.Equal(t, 2, plan.Summary.Create)

	require.Len(t, api.Env(), 1)
	assert.Equal(t, "DATABASE_URL", api.Env()[0].Name)
	assert.Equal(t, "postgresql://u:p@postgres:5432/appdb", api.Env()[0].Value)

	// The injected entry lands in the exported config.
	apiCfg := plan.Steps[1].Config
	env, ok := apiCfg["env"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "postgresql://u:p@postgres:5432/appdb", env["DATABASE_URL"])
}

func TestPlanner_PlanThenDestroy_ExactReverse(t *testing.T) {
	s, _, _ := databaseStack(t)
	planner := NewPlanner(&countingCompleter{}, Options{})

	plan, err := planner.Plan(context.Background(), s)
	require.NoError(t, err)
	destroy, err := planner.Destroy(context.Background(), s)
	require.NoError(t, err)

	require.Len(t, destroy.Order, len(plan.Order))
	for i, name := range plan.Order {
		assert.Equal(t, name, destroy.Order[len(plan.Order)-1-i])
	}
	for _, step := range destroy.Steps {
		assert.Equal(t, OpDestroy, step.Operation)
	}
	assert.Equal(t, 2, destroy.Summary.Destroy)
}

func TestPlanner_CycleMakesZeroCompletionCalls(t *testing.T) {
	s := stack.NewSession()
	a := mustContainer(t, s, "a")
	b := mustContainer(t, s, "b")
	mustConnect(t, a, b, stack.Dependency)
	mustConnect(t, b, a, stack.Dependency)

	completer := &countingCompleter{}
	_, err := NewPlanner(completer, Options{}).Plan(context.Background(), s)

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, int64(0), completer.calls.Load())
}

func TestPlanner_DestroyComposite_LeafSetOnly(t *testing.T) {
	s := stack.NewSession()
	comp, err := s.Composite("stack")
	require.NoError(t, err)

	a := fullySetContainer(t, s, "a")
	b := fullySetContainer(t, s, "b")
	comp.Add(a)
	comp.Add(b)
	fullySetContainer(t, s, "outside")

	planner := NewPlanner(&countingCompleter{}, Options{})
	destroy, err := planner.DestroyComposite(context.Background(), s, "stack")
	require.NoError(t, err)

	// Exactly {a, b}, each once, in reverse of their deploy order.
	assert.Equal(t, []string{"b", "a"}, destroy.Order)
	assert.Equal(t, 2, destroy.Summary.Destroy)
}

func TestPlanner_DestroyComposite_Unknown(t *testing.T) {
	s := stack.NewSession()
	fullySetContainer(t, s, "api")

	planner := NewPlanner(&countingCompleter{}, Options{})
	_, err := planner.DestroyComposite(context.Background(), s, "ghost")
	assert.ErrorContains(t, err, "unknown composite")
}

func TestPlanner_SharedConstructsInPlan(t *testing.T) {
	s := stack.NewSession()
	api := fullySetContainer(t, s, "api")
	worker := fullySetContainer(t, s, "worker")
	db := fullySetContainer(t, s, "postgres")

	netFields := func(c *stack.Connection) {
		c.Set("network_name", "backend").Set("hostname_env_var", "DB_HOST")
	}
	netFields(mustConnect(t, api, db, stack.Network))
	netFields(mustConnect(t, worker, db, stack.Network))

	plan, err := NewPlanner(&countingCompleter{}, Options{}).Plan(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, []string{"backend"}, plan.Networks)
}

func TestExportConfig_File(t *testing.T) {
	s := stack.NewSession()
	file := mustFile(t, s, "config")
	file.Set("path", "./config.yaml").Set("content", "key: value").Set("mode", "0600")

	cfg := exportConfig(file)
	assert.Equal(t, "config", cfg["name"])
	assert.Equal(t, "./config.yaml", cfg["path"])
	assert.Equal(t, "key: value", cfg["content"])
	assert.Equal(t, "0600", cfg["mode"])
}

func TestExportConfig_Repository(t *testing.T) {
	s := stack.NewSession()
	repo, err := s.Repository("app-src")
	require.NoError(t, err)
	repo.Set("url", "https://example.com/app.git").Set("ref", "v1.2.0").Set("path", "./src")

	cfg := exportConfig(repo)
	assert.Equal(t, "https://example.com/app.git", cfg["url"])
	assert.Equal(t, "v1.2.0", cfg["ref"])
	assert.Equal(t, "./src", cfg["path"])
}
