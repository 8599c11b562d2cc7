package mutation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nater540/yggdrasil/fieldmap"
	"github.com/nater540/yggdrasil/memstore"
	"github.com/nater540/yggdrasil/record"
)

// The package tests run the engine against an in-memory store with a small
// project tracker schema: a project has many tickets and may belong to an
// owner.

func testStore() *memstore.Store {
	return memstore.New(
		record.Entity{
			Name:       "project",
			PrimaryKey: "id",
			Attributes: []record.Attribute{
				{Name: "id", Kind: record.KindID},
				{Name: "name", Kind: record.KindString},
				{Name: "owner_id", Kind: record.KindID, Nullable: true},
			},
			Associations: []record.Association{
				{Name: "tickets", Target: "ticket", HasMany: true, ForeignKey: "project_id"},
				{Name: "owner", Target: "user", BelongsTo: true, ForeignKey: "owner_id"},
			},
		},
		record.Entity{
			Name:       "ticket",
			PrimaryKey: "id",
			Attributes: []record.Attribute{
				{Name: "id", Kind: record.KindID},
				{Name: "title", Kind: record.KindString},
				{Name: "position", Kind: record.KindInt},
				{Name: "project_id", Kind: record.KindID, Nullable: true},
			},
			Associations: []record.Association{
				{Name: "project", Target: "project", BelongsTo: true, ForeignKey: "project_id"},
			},
		},
		record.Entity{
			Name:       "user",
			PrimaryKey: "id",
			Attributes: []record.Attribute{
				{Name: "id", Kind: record.KindID},
				{Name: "email", Kind: record.KindString},
			},
		},
	)
}

func projectMap() *fieldmap.FieldMap {
	return fieldmap.New().
		Attrs("name").
		Require("name").
		HasMany("tickets", "tickets", func(b *fieldmap.Builder) {
			b.Attrs("title", "position").MatchOn("position")
		}).
		BelongsTo("owner", "owner", func(b *fieldmap.Builder) {
			b.Attrs("email").IdentifiedBy("ownerId")
		}).
		MustBuild()
}

// positionalTicketsNode is the tickets association without match keys, so
// pairing falls back to sequence position.
func positionalTicketsNode() *fieldmap.FieldMap {
	fm := fieldmap.New().
		Attrs("name").
		HasMany("tickets", "tickets", func(b *fieldmap.Builder) {
			b.Attrs("title", "position")
		}).
		MustBuild()
	node, _ := fm.NestedByName("tickets")
	return node
}

func mustSave(t *testing.T, s *memstore.Store, records ...record.Record) {
	t.Helper()
	err := s.Transaction(context.Background(), func(tx record.Tx) error {
		for _, r := range records {
			if err := tx.Save(context.Background(), r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func newProject(t *testing.T, s *memstore.Store, name string) record.Record {
	t.Helper()
	p, err := s.New("project")
	require.NoError(t, err)
	p.SetAttribute("name", name)
	return p
}

func newTicket(t *testing.T, s *memstore.Store, parent record.Record, title string, position int) record.Record {
	t.Helper()
	c, err := s.BuildChild(parent, "tickets")
	require.NoError(t, err)
	c.SetAttribute("title", title)
	c.SetAttribute("position", position)
	return c
}
