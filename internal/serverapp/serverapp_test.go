package serverapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nater540/yggdrasil/internal/config"
	"github.com/nater540/yggdrasil/internal/logging"
	"github.com/nater540/yggdrasil/internal/naming"
	"github.com/nater540/yggdrasil/record"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "error", Format: "text"})
}

func memoryConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Backend: "memory"},
		Server:  config.ServerConfig{Port: 8080},
	}
}

func TestCatalogFieldMapsBuild(t *testing.T) {
	require.NotNil(t, projectFieldMap())
	require.NotNil(t, ticketFieldMap())
	require.NotNil(t, userFieldMap())

	mutations := catalogMutations()
	require.Len(t, mutations, 3)
	for _, m := range mutations {
		assert.Equal(t, "upsert", m.Verb)
		assert.NotNil(t, m.FieldMap)
	}
}

func TestBuildStoreMemoryBackend(t *testing.T) {
	cfg := memoryConfig()
	logger := testLogger()
	namer := naming.New(naming.Config{}, logger.Logger)

	store, db, reg, err := buildStore(context.Background(), cfg, logger, namer)
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Nil(t, db)
	assert.Nil(t, reg)

	entity, ok := store.Entity("project")
	require.True(t, ok)
	assert.Equal(t, "id", entity.PrimaryKey)
}

func TestBuildStoreRejectsUnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Backend = "etcd"
	logger := testLogger()
	namer := naming.New(naming.Config{}, logger.Logger)

	_, _, _, err := buildStore(context.Background(), cfg, logger, namer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}

func TestCatalogValidators(t *testing.T) {
	cfg := memoryConfig()
	logger := testLogger()
	namer := naming.New(naming.Config{}, logger.Logger)

	store, _, _, err := buildStore(context.Background(), cfg, logger, namer)
	require.NoError(t, err)

	project, err := store.New("project")
	require.NoError(t, err)
	project.SetAttribute("name", "   ")
	errs := store.Validate(project)
	require.Len(t, errs, 1)
	assert.Equal(t, "name", errs[0].Attribute)

	user, err := store.New("user")
	require.NoError(t, err)
	user.SetAttribute("email", "not-an-email")
	errs = store.Validate(user)
	require.Len(t, errs, 1)
	assert.Equal(t, "email", errs[0].Attribute)

	ticket, err := store.New("ticket")
	require.NoError(t, err)
	ticket.SetAttribute("title", "valid")
	assert.Empty(t, store.Validate(ticket))
}

func TestBuildGraphQLHandlerServesUpsert(t *testing.T) {
	cfg := memoryConfig()
	logger := testLogger()
	namer := naming.New(naming.Config{}, logger.Logger)

	store, _, _, err := buildStore(context.Background(), cfg, logger, namer)
	require.NoError(t, err)

	handler, schema, err := buildGraphQLHandler(cfg, logger, store, namer, nil)
	require.NoError(t, err)
	require.NotNil(t, handler)
	require.NotNil(t, schema.MutationType())

	body := map[string]string{
		"query": `
			mutation {
				upsertProject(input: {name: "apollo", tickets: [{title: "first", position: 1}]}) {
					__typename
					... on UpsertProjectSuccess {
						project { id name tickets { title } }
					}
				}
			}
		`,
	}
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp struct {
		Data struct {
			UpsertProject struct {
				Typename string `json:"__typename"`
				Project  struct {
					Name    string `json:"name"`
					Tickets []struct {
						Title string `json:"title"`
					} `json:"tickets"`
				} `json:"project"`
			} `json:"upsertProject"`
		} `json:"data"`
		Errors []json.RawMessage `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.Errors, "unexpected GraphQL errors: %s", rec.Body.String())

	assert.Equal(t, "UpsertProjectSuccess", resp.Data.UpsertProject.Typename)
	assert.Equal(t, "apollo", resp.Data.UpsertProject.Project.Name)
	require.Len(t, resp.Data.UpsertProject.Project.Tickets, 1)
	assert.Equal(t, "first", resp.Data.UpsertProject.Project.Tickets[0].Title)
}

func TestBuildRouterRedirectsRootToGraphQL(t *testing.T) {
	cfg := memoryConfig()
	logger := testLogger()

	mux := buildRouter(cfg, logger, nil, http.NotFoundHandler(), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/graphql", rec.Header().Get("Location"))
}

func TestHealthHandlerWithoutDatabase(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	healthHandler(nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHTTPRootSpanName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/graphql", "POST /graphql"},
		{"/health", "POST /health"},
		{"/metrics", "POST /metrics"},
		{"/", "POST /"},
		{"/internal/debug", "POST /*"},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodPost, tc.path, nil)
		assert.Equal(t, tc.want, httpRootSpanName(req))
	}
	assert.Equal(t, "HTTP /*", httpRootSpanName(nil))
}

func TestCatalogEntitiesAreConsistent(t *testing.T) {
	entities := catalogEntities()
	byName := make(map[string]record.Entity, len(entities))
	for _, e := range entities {
		byName[e.Name] = e
	}

	for _, e := range entities {
		require.NotEmpty(t, e.PrimaryKey, "entity %s has no primary key", e.Name)
		for _, assoc := range e.Associations {
			target, ok := byName[assoc.Target]
			require.True(t, ok, "association %s.%s targets unknown entity %s", e.Name, assoc.Name, assoc.Target)
			if assoc.HasMany {
				assert.Truef(t, hasAttribute(target, assoc.ForeignKey),
					"has-many %s.%s foreign key %s missing on %s", e.Name, assoc.Name, assoc.ForeignKey, target.Name)
			}
			if assoc.BelongsTo {
				assert.Truef(t, hasAttribute(e, assoc.ForeignKey),
					"belongs-to %s.%s foreign key %s missing on %s", e.Name, assoc.Name, assoc.ForeignKey, e.Name)
			}
		}
	}
}

func hasAttribute(e record.Entity, name string) bool {
	for _, a := range e.Attributes {
		if a.Name == name {
			return true
		}
	}
	return false
}
