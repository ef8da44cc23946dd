package stage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalog_BuildsReverseEdges(t *testing.T) {
	catalog, err := NewCatalog([]Stage{
		{ID: "base", EstimatedDuration: 100 * time.Millisecond},
		{ID: "left", DependsOn: []ID{"base"}, EstimatedDuration: 200 * time.Millisecond},
		{ID: "right", DependsOn: []ID{"base"}, EstimatedDuration: 300 * time.Millisecond},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, catalog.Len())
	assert.Equal(t, []ID{"base", "left", "right"}, catalog.IDs())
	assert.Equal(t, []ID{"left", "right"}, catalog.RequiredFor("base"))
	assert.Empty(t, catalog.RequiredFor("left"))
	assert.Equal(t, 600*time.Millisecond, catalog.SequentialDuration())

	s, ok := catalog.Get("left")
	require.True(t, ok)
	assert.True(t, s.DependsOnStage("base"))
	assert.False(t, s.DependsOnStage("right"))
}

func TestNewCatalog_RejectsDuplicates(t *testing.T) {
	_, err := NewCatalog([]Stage{{ID: "dup"}, {ID: "dup"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate stage")
}

func TestNewCatalog_RejectsUnknownDependency(t *testing.T) {
	_, err := NewCatalog([]Stage{{ID: "a", DependsOn: []ID{"ghost"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}

func TestNewCatalog_RejectsSelfDependency(t *testing.T) {
	_, err := NewCatalog([]Stage{{ID: "a", DependsOn: []ID{"a"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depends on itself")
}

func TestNewCatalog_RejectsEmptyID(t *testing.T) {
	_, err := NewCatalog([]Stage{{ID: ""}})
	require.Error(t, err)
}

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()

	assert.Equal(t, 15, catalog.Len())
	assert.Equal(t, []ID{CoreServices, Connectivity, Auth, Session, Identity},
		catalog.CriticalIDs())

	// The critical chain must be ordered by dependencies.
	session, ok := catalog.Get(Session)
	require.True(t, ok)
	assert.True(t, session.DependsOnStage(Auth))
	assert.True(t, session.Critical)
	assert.False(t, session.Parallelizable)

	jobs, ok := catalog.Get(Jobs)
	require.True(t, ok)
	assert.True(t, jobs.Parallelizable)
	assert.False(t, jobs.Critical)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, rc *RunContext) (any, error) { return nil, nil }

	require.NoError(t, r.Register("a", noop))
	require.Error(t, r.Register("a", noop), "double registration must fail")
	require.Error(t, r.Register("b", nil), "nil executor must fail")

	_, ok := r.Lookup("a")
	assert.True(t, ok)
	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRunContext(t *testing.T) {
	rc := NewRunContext(map[string]any{"seeded": 1})

	v, ok := rc.Get("seeded")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	rc.Set("later", "value")
	v, ok = rc.Get("later")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	_, ok = rc.Get("missing")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"seeded", "later"}, rc.Keys())
}
