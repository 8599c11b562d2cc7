package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeName(t *testing.T) {
	n := Default()
	assert.Equal(t, "UserProfile", n.TypeName("user_profiles"))
	assert.Equal(t, "Ticket", n.TypeName("ticket"))
	assert.Equal(t, "Person", n.TypeName("people"))
}

func TestFieldName(t *testing.T) {
	n := Default()
	assert.Equal(t, "createdAt", n.FieldName("created_at"))
	assert.Equal(t, "name", n.FieldName("name"))
	assert.Equal(t, "ownerUserId", n.FieldName("owner_user_id"))
}

func TestCollectionFieldName(t *testing.T) {
	n := Default()
	assert.Equal(t, "tickets", n.CollectionFieldName("ticket"))
	assert.Equal(t, "userProfiles", n.CollectionFieldName("user_profile"))
}

func TestMutationAndResultNames(t *testing.T) {
	n := Default()
	assert.Equal(t, "upsertProject", n.MutationFieldName("upsert", "projects"))
	assert.Equal(t, "ProjectResult", n.ResultTypeName("projects"))
	assert.Equal(t, "UpsertProjectInput", n.InputTypeName("upsert", "project"))
}

func TestReservedWordsAreSuffixed(t *testing.T) {
	n := Default()
	assert.Equal(t, "Query_", n.TypeName("query"))
	assert.Equal(t, "type_", n.FieldName("type"))
}

func TestInflectionOverrides(t *testing.T) {
	n := New(Config{
		PluralOverrides:   map[string]string{"equipment": "equipment"},
		SingularOverrides: map[string]string{"oxen": "ox"},
	}, nil)
	assert.Equal(t, "equipment", n.Pluralize("equipment"))
	assert.Equal(t, "ox", n.Singularize("oxen"))
}
