package serverapp

import (
	"strings"

	"github.com/nater540/yggdrasil/fieldmap"
	"github.com/nater540/yggdrasil/gql"
	"github.com/nater540/yggdrasil/record"
)

// The built-in catalog is a small project tracker: projects own tickets and
// belong to an owning user. It exists so the server is usable out of the box;
// embedders replace it with their own entities and field maps.

func catalogEntities() []record.Entity {
	return []record.Entity{
		{
			Name:       "project",
			PrimaryKey: "id",
			Attributes: []record.Attribute{
				{Name: "id", Kind: record.KindID},
				{Name: "name", Kind: record.KindString},
				{Name: "description", Kind: record.KindString, Nullable: true},
				{Name: "owner_id", Kind: record.KindID, Nullable: true},
			},
			Associations: []record.Association{
				{Name: "tickets", Target: "ticket", HasMany: true, ForeignKey: "project_id"},
				{Name: "owner", Target: "user", BelongsTo: true, ForeignKey: "owner_id"},
			},
		},
		{
			Name:       "ticket",
			PrimaryKey: "id",
			Attributes: []record.Attribute{
				{Name: "id", Kind: record.KindID},
				{Name: "title", Kind: record.KindString},
				{Name: "position", Kind: record.KindInt, Nullable: true},
				{Name: "status", Kind: record.KindString, Nullable: true},
				{Name: "project_id", Kind: record.KindID, Nullable: true},
			},
			Associations: []record.Association{
				{Name: "project", Target: "project", BelongsTo: true, ForeignKey: "project_id"},
			},
		},
		{
			Name:       "user",
			PrimaryKey: "id",
			Attributes: []record.Attribute{
				{Name: "id", Kind: record.KindID},
				{Name: "email", Kind: record.KindString},
				{Name: "name", Kind: record.KindString, Nullable: true},
			},
		},
	}
}

func validateProject(r record.Record) []record.FieldError {
	var errs []record.FieldError
	if name, _ := r.GetAttribute("name").(string); strings.TrimSpace(name) == "" {
		errs = append(errs, record.FieldError{Attribute: "name", Message: "can't be blank"})
	}
	return errs
}

func validateTicket(r record.Record) []record.FieldError {
	var errs []record.FieldError
	if title, _ := r.GetAttribute("title").(string); strings.TrimSpace(title) == "" {
		errs = append(errs, record.FieldError{Attribute: "title", Message: "can't be blank"})
	}
	return errs
}

func validateUser(r record.Record) []record.FieldError {
	var errs []record.FieldError
	if email, _ := r.GetAttribute("email").(string); !strings.Contains(email, "@") {
		errs = append(errs, record.FieldError{Attribute: "email", Message: "is not a valid email address"})
	}
	return errs
}

func projectFieldMap() *fieldmap.FieldMap {
	b := fieldmap.New()
	return b.
		Attrs("name", "description").
		Require("name").
		HasMany("tickets", "tickets", func(t *fieldmap.Builder) {
			t.Attrs("title", "position", "status").
				Require("title").
				MatchOn("position")
		}).
		BelongsTo("owner", "owner", func(o *fieldmap.Builder) {
			o.Attrs("email", "name").
				IdentifiedBy("ownerId")
		}).
		MustBuild()
}

func ticketFieldMap() *fieldmap.FieldMap {
	return fieldmap.New().
		Attrs("title", "position", "status").
		Require("title").
		MustBuild()
}

func userFieldMap() *fieldmap.FieldMap {
	return fieldmap.New().
		Attrs("email", "name").
		Require("email").
		MustBuild()
}

func catalogMutations() []gql.Mutation {
	return []gql.Mutation{
		{
			Verb:        "upsert",
			Entity:      "project",
			FieldMap:    projectFieldMap(),
			Description: "Create or update a project together with its tickets and owner.",
		},
		{
			Verb:        "upsert",
			Entity:      "ticket",
			FieldMap:    ticketFieldMap(),
			Description: "Create or update a single ticket.",
		},
		{
			Verb:        "upsert",
			Entity:      "user",
			FieldMap:    userFieldMap(),
			Description: "Create or update a user.",
		},
	}
}
