package mutation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nater540/yggdrasil/fieldmap"
	"github.com/nater540/yggdrasil/record"
)

func requireTitle(r record.Record) []record.FieldError {
	if v, ok := r.GetAttribute("title").(string); !ok || v == "" {
		return []record.FieldError{{Attribute: "title", Message: "can't be blank"}}
	}
	return nil
}

func TestExecuteCreatesWholeGraph(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "")

	input := map[string]any{
		"name": "apollo",
		"tickets": []any{
			map[string]any{"title": "first", "position": 1},
			map[string]any{"title": "second", "position": 2},
		},
	}
	res, err := NewExecutor(s).Execute(context.Background(), projectMap(), p, input)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.False(t, p.IsNew())
	assert.Len(t, res.Records, 3)
	assert.NotEmpty(t, res.Changes)

	children, err := s.ChildMany(p, "tickets")
	require.NoError(t, err)
	require.Len(t, children, 2)
	for _, c := range children {
		assert.Equal(t, p.ID(), c.GetAttribute("project_id"))
	}
}

func TestExecuteNoChangesSkipsPersistence(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "apollo")
	mustSave(t, s, p)

	res, err := NewExecutor(s).Execute(context.Background(), projectMap(), p, map[string]any{"name": "apollo"})
	require.NoError(t, err)
	assert.Same(t, p, res.Root)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Changes)
}

func TestExecuteRequiredInputFailsBeforePersistence(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "")

	_, err := NewExecutor(s).Execute(context.Background(), projectMap(), p, map[string]any{})
	require.Error(t, err)

	failure, ok := AsFailure(err)
	require.True(t, ok)
	require.Len(t, failure.Problems, 1)
	assert.Equal(t, []any{"name"}, failure.Problems[0].Path)
	assert.Equal(t, "is required", failure.Problems[0].Explanation)
	assert.True(t, p.IsNew())
}

func TestExecuteIsAtomicAcrossTheGraph(t *testing.T) {
	s := testStore()
	s.Validator("ticket", requireTitle)
	p := newProject(t, s, "")

	// The root is valid and saves first; the second ticket fails validation,
	// which must unwind the whole transaction.
	input := map[string]any{
		"name": "apollo",
		"tickets": []any{
			map[string]any{"title": "ok", "position": 1},
			map[string]any{"position": 2},
		},
	}
	_, err := NewExecutor(s).Execute(context.Background(), projectMap(), p, input)
	require.Error(t, err)

	failure, ok := AsFailure(err)
	require.True(t, ok)
	require.Len(t, failure.Problems, 1)
	assert.Equal(t, []any{"tickets", 1, "title"}, failure.Problems[0].Path)
	assert.Equal(t, "can't be blank", failure.Problems[0].Explanation)
	assert.Equal(t, input, failure.Inputs)

	// Nothing was committed, not even the valid records.
	assert.True(t, p.IsNew())
	assert.Nil(t, p.ID())
}

func TestExecuteAttributesErrorsOnDirectlyMappedInputs(t *testing.T) {
	s := testStore()
	s.Validator("project", func(r record.Record) []record.FieldError {
		if v, ok := r.GetAttribute("name").(string); !ok || len(v) < 3 {
			return []record.FieldError{{Attribute: "name", Message: "is too short"}}
		}
		return nil
	})
	p := newProject(t, s, "")

	_, err := NewExecutor(s).Execute(context.Background(), projectMap(), p, map[string]any{"name": "ab"})
	require.Error(t, err)

	failure, ok := AsFailure(err)
	require.True(t, ok)
	require.Len(t, failure.Problems, 1)
	assert.Equal(t, []any{"name"}, failure.Problems[0].Path)
	assert.Equal(t, "is too short", failure.Problems[0].Explanation)
}

func TestExecuteReportsUnattributableErrors(t *testing.T) {
	s := testStore()
	// The failing attribute is not input-mapped and names no association, so
	// no path can be reconstructed for it.
	s.Validator("project", func(r record.Record) []record.FieldError {
		return []record.FieldError{{Attribute: "audit_state", Message: "is stale"}}
	})
	p := newProject(t, s, "")

	_, err := NewExecutor(s).Execute(context.Background(), projectMap(), p, map[string]any{"name": "apollo"})
	require.Error(t, err)

	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Empty(t, failure.Problems)
	require.Len(t, failure.Unknown, 1)
	assert.Equal(t, "project", failure.Unknown[0].Entity)
	assert.Equal(t, "audit_state", failure.Unknown[0].Attribute)
	assert.Equal(t, "is stale", failure.Unknown[0].Message)
}

func TestExecuteKeyedUpdateCreateDestroy(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "apollo")
	keep := newTicket(t, s, p, "b", 2)
	drop := newTicket(t, s, p, "a", 1)
	mustSave(t, s, p, keep, drop)
	dropID := drop.ID()

	input := map[string]any{
		"tickets": []any{
			map[string]any{"position": 2, "title": "b2"},
			map[string]any{"position": 3, "title": "c"},
		},
	}
	res, err := NewExecutor(s).Execute(context.Background(), projectMap(), p, input)
	require.NoError(t, err)

	assert.Equal(t, "b2", keep.GetAttribute("title"))
	_, err = s.Find(context.Background(), "ticket", dropID)
	assert.True(t, record.IsNotFound(err))

	children, err := s.ChildMany(p, "tickets")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, p.ID(), children[1].GetAttribute("project_id"))

	// Destroyed records are not survivors.
	for _, r := range res.Records {
		assert.NotEqual(t, dropID, r.ID())
	}
}

// A keyed collection handles all four legs in one pass: a fragment whose key
// matches updates in place, an omitted child is destroyed, an unmatched
// fragment without an identifier creates, and an unmatched fragment carrying
// the identifier re-associates an existing record from elsewhere.
func TestExecuteKeyedReassociatesByIdentifier(t *testing.T) {
	s := testStore()
	fm := fieldmap.New().
		Attrs("name").
		HasMany("tickets", "tickets", func(b *fieldmap.Builder) {
			b.Attrs("title", "position").MatchOn("position").IdentifiedBy("ticketId")
		}).
		MustBuild()

	p := newProject(t, s, "apollo")
	keep := newTicket(t, s, p, "a", 1)
	drop := newTicket(t, s, p, "b", 2)
	other := newProject(t, s, "zeus")
	stray := newTicket(t, s, other, "stray", 9)
	mustSave(t, s, p, keep, drop, other, stray)
	dropID := drop.ID()

	input := map[string]any{
		"tickets": []any{
			map[string]any{"position": 1, "title": "a2"},
			map[string]any{"position": 5, "title": "new"},
			map[string]any{"ticketId": stray.ID(), "position": 9, "title": "adopted"},
		},
	}
	res, err := NewExecutor(s).Execute(context.Background(), fm, p, input)
	require.NoError(t, err)

	assert.Equal(t, "a2", keep.GetAttribute("title"))
	_, err = s.Find(context.Background(), "ticket", dropID)
	assert.True(t, record.IsNotFound(err))

	// The stray ticket moved under the new parent and took the fragment's
	// attribute writes.
	assert.Equal(t, p.ID(), stray.GetAttribute("project_id"))
	assert.Equal(t, "adopted", stray.GetAttribute("title"))

	children, err := s.ChildMany(p, "tickets")
	require.NoError(t, err)
	require.Len(t, children, 3)

	titles := make([]string, 0, len(children))
	for _, c := range children {
		titles = append(titles, c.GetAttribute("title").(string))
	}
	assert.ElementsMatch(t, []string{"a2", "new", "adopted"}, titles)

	for _, r := range res.Records {
		assert.NotEqual(t, dropID, r.ID())
	}
}

func TestExecuteReassociatesExistingRecord(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "apollo")
	u, err := s.New("user")
	require.NoError(t, err)
	u.SetAttribute("email", "lee@example.com")
	mustSave(t, s, p, u)

	res, err := NewExecutor(s).Execute(context.Background(), projectMap(), p, map[string]any{
		"owner": map[string]any{"ownerId": u.ID()},
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Same(t, p, res.Records[0])
	assert.Equal(t, u.ID(), p.GetAttribute("owner_id"))

	owner, err := s.ChildOne(p, "owner")
	require.NoError(t, err)
	assert.Same(t, u, owner)
}

func TestExecuteReassociationMissIsHardFailure(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "apollo")
	mustSave(t, s, p)

	_, err := NewExecutor(s).Execute(context.Background(), projectMap(), p, map[string]any{
		"owner": map[string]any{"ownerId": int64(404)},
	})
	require.Error(t, err)
	assert.True(t, record.IsNotFound(err))
	_, isFailure := AsFailure(err)
	assert.False(t, isFailure)
}

func TestExecuteReapplyingInputIsIdempotent(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "")
	input := map[string]any{
		"name": "apollo",
		"tickets": []any{
			map[string]any{"title": "first", "position": 1},
		},
	}

	_, err := NewExecutor(s).Execute(context.Background(), projectMap(), p, input)
	require.NoError(t, err)

	res, err := NewExecutor(s).Execute(context.Background(), projectMap(), p, input)
	require.NoError(t, err)
	assert.Empty(t, res.Changes)

	children, err := s.ChildMany(p, "tickets")
	require.NoError(t, err)
	assert.Len(t, children, 1)
}

func TestFailurePayloadShape(t *testing.T) {
	s := testStore()
	p := newProject(t, s, "")

	_, err := NewExecutor(s).Execute(context.Background(), projectMap(), p, map[string]any{})
	failure, ok := AsFailure(err)
	require.True(t, ok)

	payload := failure.Payload()
	assert.Equal(t, "InputValidationError", payload["__typename"])
	assert.Equal(t, "validation failed with 1 problem(s)", payload["message"])
	problems, ok := payload["problems"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, problems, 1)
	assert.Equal(t, []any{"name"}, problems[0]["path"])
	assert.Equal(t, "is required", problems[0]["explanation"])
}
