package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_DuplicateName(t *testing.T) {
	s := NewSession()
	_, err := s.Container("api")
	require.NoError(t, err)

	_, err = s.Container("api")
	require.Error(t, err)
	var dup *DuplicateNameError
	assert.ErrorAs(t, err, &dup)
	assert.Equal(t, "api", dup.Name)
}

func TestSession_DuplicateNameAcrossTypes(t *testing.T) {
	s := NewSession()
	_, err := s.Container("shared")
	require.NoError(t, err)

	// Composites and resources share one namespace.
	_, err = s.Composite("shared")
	assert.Error(t, err)

	_, err = s.File("shared")
	assert.Error(t, err)
}

func TestSession_Isolation(t *testing.T) {
	a := NewSession()
	_, err := a.Container("api")
	require.NoError(t, err)

	// A fresh session starts with an empty namespace.
	b := NewSession()
	_, err = b.Container("api")
	assert.NoError(t, err)
}

func TestSession_ResourcesInDeclarationOrder(t *testing.T) {
	s := NewSession()
	for _, name := range []string{"c", "a", "b"} {
		_, err := s.Container(name)
		require.NoError(t, err)
	}

	var names []string
	for _, r := range s.Resources() {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestConnect_SelfConnection(t *testing.T) {
	s := NewSession()
	api, err := s.Container("api")
	require.NoError(t, err)

	_, err = api.Connect(api, Dependency)
	require.Error(t, err)
	var self *SelfConnectionError
	assert.ErrorAs(t, err, &self)
}

func TestConnect_UnknownVariant(t *testing.T) {
	s := NewSession()
	api, err := s.Container("api")
	require.NoError(t, err)
	db, err := s.Container("db")
	require.NoError(t, err)

	_, err = api.Connect(db, Variant("teleport"))
	assert.Error(t, err)
}

func TestFieldSet_TriState(t *testing.T) {
	fs := NewFieldSet(
		FieldSpec{Name: "image", Type: "string"},
		FieldSpec{Name: "restart", Type: "string"},
	)

	_, ok := fs.Get("image")
	assert.False(t, ok, "unset field should not be known")

	require.NoError(t, fs.Set("image", "nginx:1.27"))
	v, ok := fs.Get("image")
	require.True(t, ok)
	assert.Equal(t, "nginx:1.27", v)
	assert.True(t, fs.IsExplicit("image"))

	fs.Fill("restart", "always")
	v, ok = fs.Get("restart")
	require.True(t, ok)
	assert.Equal(t, "always", v)
	assert.False(t, fs.IsExplicit("restart"))
}

func TestFieldSet_ExplicitFalsyWins(t *testing.T) {
	fs := NewFieldSet(
		FieldSpec{Name: "read_only", Type: "bool"},
		FieldSpec{Name: "mode", Type: "string"},
	)

	require.NoError(t, fs.Set("read_only", false))
	require.NoError(t, fs.Set("mode", ""))

	// A completion candidate never overrides an explicit value, even when
	// the explicit value is false or "".
	fs.Fill("read_only", true)
	fs.Fill("mode", "0644")

	v, ok := fs.Get("read_only")
	require.True(t, ok)
	assert.Equal(t, false, v)

	v, ok = fs.Get("mode")
	require.True(t, ok)
	assert.Equal(t, "", v)
}

func TestFieldSet_UnknownFieldName(t *testing.T) {
	fs := NewFieldSet(FieldSpec{Name: "image", Type: "string"})
	err := fs.Set("imge", "nginx")
	assert.Error(t, err)
}

func TestFieldSet_Unknown(t *testing.T) {
	fs := NewFieldSet(
		FieldSpec{Name: "image", Type: "string"},
		FieldSpec{Name: "ports", Type: "list<string>"},
		FieldSpec{Name: "restart", Type: "string"},
	)
	require.NoError(t, fs.Set("image", "redis:7"))
	fs.Fill("restart", "always")

	assert.Equal(t, []string{"ports"}, fs.Unknown())
}

func TestFieldSet_ExplicitValues(t *testing.T) {
	fs := NewFieldSet(
		FieldSpec{Name: "image", Type: "string"},
		FieldSpec{Name: "restart", Type: "string"},
	)
	require.NoError(t, fs.Set("image", "redis:7"))
	fs.Fill("restart", "always")

	assert.Equal(t, map[string]any{"image": "redis:7"}, fs.ExplicitValues())
	assert.Equal(t, map[string]any{"image": "redis:7", "restart": "always"}, fs.KnownValues())
}

func TestComposite_ChildrenOrder(t *testing.T) {
	s := NewSession()
	comp, err := s.Composite("app")
	require.NoError(t, err)

	for _, name := range []string{"web", "worker", "cache"} {
		r, err := s.Container(name)
		require.NoError(t, err)
		comp.Add(r)
	}

	var names []string
	for _, n := range comp.Children() {
		names = append(names, n.Name())
	}
	assert.Equal(t, []string{"web", "worker", "cache"}, names)
	assert.True(t, comp.Contains("worker"))
	assert.False(t, comp.Contains("db"))
}

func TestComposite_LeavesRecursive(t *testing.T) {
	s := NewSession()
	outer, err := s.Composite("platform")
	require.NoError(t, err)
	inner, err := s.Composite("data")
	require.NoError(t, err)

	web, err := s.Container("web")
	require.NoError(t, err)
	db, err := s.Container("db")
	require.NoError(t, err)
	cache, err := s.Container("cache")
	require.NoError(t, err)

	outer.Add(web)
	outer.AddComposite(inner)
	inner.Add(db)
	inner.Add(cache)

	var names []string
	for _, r := range outer.Leaves() {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"web", "db", "cache"}, names)
}

func TestComposite_SingleParent(t *testing.T) {
	s := NewSession()
	a, err := s.Composite("a")
	require.NoError(t, err)
	b, err := s.Composite("b")
	require.NoError(t, err)
	r, err := s.Container("web")
	require.NoError(t, err)

	a.Add(r)
	assert.Panics(t, func() { b.Add(r) })
}

func TestComposite_Path(t *testing.T) {
	s := NewSession()
	outer, err := s.Composite("platform")
	require.NoError(t, err)
	inner, err := s.Composite("data")
	require.NoError(t, err)
	outer.AddComposite(inner)

	assert.Equal(t, []string{"platform", "data"}, inner.Path())
}

func TestResource_AddEnvOverwrites(t *testing.T) {
	s := NewSession()
	r, err := s.Container("api")
	require.NoError(t, err)

	r.AddEnv("DATABASE_URL", "first")
	r.AddEnv("DATABASE_URL", "second")

	require.Len(t, r.Env(), 1)
	assert.Equal(t, "second", r.Env()[0].Value)
}

func TestResource_AddMountDedupes(t *testing.T) {
	s := NewSession()
	r, err := s.Container("api")
	require.NoError(t, err)

	r.AddMount(Mount{Volume: "data", Target: "/var/lib/data"})
	r.AddMount(Mount{Volume: "data", Target: "/var/lib/data"})

	assert.Len(t, r.Mounts(), 1)
}

func TestResource_AppendAssertionDedupes(t *testing.T) {
	s := NewSession()
	r, err := s.Container("api")
	require.NoError(t, err)

	r.AppendAssertion(&Assertion{Name: "api-db-health", Kind: AssertionKindHTTPHealth})
	r.AppendAssertion(&Assertion{Name: "api-db-health", Kind: AssertionKindHTTPHealth})

	assert.Len(t, r.Assertions(), 1)
}

func TestSession_Connections(t *testing.T) {
	s := NewSession()
	api, err := s.Container("api")
	require.NoError(t, err)
	db, err := s.Container("db")
	require.NoError(t, err)
	cache, err := s.Container("cache")
	require.NoError(t, err)

	_, err = api.Connect(db, Database)
	require.NoError(t, err)
	_, err = api.Connect(cache, Dependency)
	require.NoError(t, err)

	conns := s.Connections()
	require.Len(t, conns, 2)
	assert.Equal(t, Database, conns[0].Variant())
	assert.Equal(t, Dependency, conns[1].Variant())
}
