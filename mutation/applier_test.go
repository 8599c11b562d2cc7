package mutation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRecordsCreateMarkerForNewRecord(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "")

	a := newApplier(s)
	err := a.root(context.Background(), projectMap(), p, map[string]any{"name": "apollo"})
	require.NoError(t, err)
	require.Len(t, a.changes, 2)

	marker := a.changes[0]
	assert.Equal(t, ActionCreate, marker.Action)
	assert.Empty(t, marker.Attribute)
	assert.Empty(t, marker.Path)

	write := a.changes[1]
	assert.Equal(t, "name", write.Attribute)
	assert.Equal(t, Path{"name"}, write.Path)
	assert.Equal(t, "apollo", p.GetAttribute("name"))
}

func TestApplyElidesEqualValuedWrites(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "apollo")
	mustSave(t, s, p)

	a := newApplier(s)
	err := a.root(context.Background(), projectMap(), p, map[string]any{"name": "apollo"})
	require.NoError(t, err)
	assert.Empty(t, a.changes)
	assert.Empty(t, a.problems)
}

func TestApplyElidesNumericKindMismatches(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "apollo")
	c := newTicket(t, s, p, "first", 1)
	// Stored integers surface as int64; the input carries a native int.
	c.SetAttribute("position", int64(1))
	mustSave(t, s, p, c)

	a := newApplier(s)
	err := a.root(context.Background(), projectMap(), p, map[string]any{
		"name": "apollo",
		"tickets": []any{
			map[string]any{"title": "first", "position": 1},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, a.changes)
	assert.Empty(t, a.problems)
}

func TestValueEqualNormalizesRepresentations(t *testing.T) {
	instant := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	shifted := instant.In(time.FixedZone("UTC+2", 2*60*60))

	assert.True(t, valueEqual(int64(2), 2))
	assert.True(t, valueEqual(2, float64(2)))
	assert.True(t, valueEqual(instant, shifted))
	assert.False(t, valueEqual(int64(2), int64(3)))
	assert.False(t, valueEqual("2", 2))
	assert.True(t, valueEqual(nil, nil))
	assert.False(t, valueEqual(nil, 0))
}

func TestRequiredInputMissingOnCreate(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "")

	a := newApplier(s)
	err := a.root(context.Background(), projectMap(), p, map[string]any{})
	require.NoError(t, err)
	require.Len(t, a.problems, 1)
	assert.Equal(t, Path{"name"}, a.problems[0].path)
	assert.Equal(t, "is required", a.problems[0].message)
}

func TestRequiredInputNullOnUpdate(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "apollo")
	mustSave(t, s, p)

	a := newApplier(s)
	err := a.root(context.Background(), projectMap(), p, map[string]any{"name": nil})
	require.NoError(t, err)
	require.Len(t, a.problems, 1)
	assert.Equal(t, Path{"name"}, a.problems[0].path)
}

func TestRequiredInputAbsentOnUpdateIsNoChange(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "apollo")
	mustSave(t, s, p)

	a := newApplier(s)
	err := a.root(context.Background(), projectMap(), p, map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, a.problems)
	assert.Empty(t, a.changes)
}

func TestOmittedAssociationLeavesChildrenAlone(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "apollo")
	c := newTicket(t, s, p, "a", 1)
	mustSave(t, s, p, c)

	a := newApplier(s)
	err := a.root(context.Background(), projectMap(), p, map[string]any{"name": "renamed"})
	require.NoError(t, err)
	assert.False(t, c.MarkedForDestroy())
	for _, ch := range a.changes {
		assert.NotEqual(t, ActionDestroy, ch.Action)
	}
}

func TestEmptyListDestroysAllChildren(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "apollo")
	c := newTicket(t, s, p, "a", 1)
	mustSave(t, s, p, c)

	a := newApplier(s)
	err := a.root(context.Background(), projectMap(), p, map[string]any{"tickets": []any{}})
	require.NoError(t, err)
	require.Len(t, a.changes, 1)
	assert.Equal(t, ActionDestroy, a.changes[0].Action)
	assert.Same(t, c, a.changes[0].Record)
	assert.Equal(t, Path{"tickets"}, a.changes[0].Path)
	assert.True(t, c.MarkedForDestroy())
}

func TestNestedWritesCarryIndexedPaths(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "")

	input := map[string]any{
		"name": "apollo",
		"tickets": []any{
			map[string]any{"title": "first", "position": 1},
			map[string]any{"title": "second", "position": 2},
		},
	}
	a := newApplier(s)
	err := a.root(context.Background(), projectMap(), p, input)
	require.NoError(t, err)

	var paths []string
	for _, ch := range a.changes {
		if ch.Attribute == "title" {
			paths = append(paths, ch.Path.String())
		}
	}
	assert.Equal(t, []string{"tickets.0.title", "tickets.1.title"}, paths)
}

func TestBelongsToLinkDirtiesTheParent(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "apollo")
	u, err := s.New("user")
	require.NoError(t, err)
	mustSave(t, s, p, u)

	a := newApplier(s)
	err = a.root(context.Background(), projectMap(), p, map[string]any{
		"owner": map[string]any{"ownerId": u.ID()},
	})
	require.NoError(t, err)

	require.Len(t, a.changes, 1)
	assert.Same(t, p, a.changes[0].Record)
	assert.Equal(t, ActionUpdate, a.changes[0].Action)
	assert.Equal(t, Path{"owner"}, a.changes[0].Path)
}
