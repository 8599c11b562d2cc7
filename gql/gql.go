// Package gql derives a GraphQL schema from entity schemas and field maps:
// output object types per entity, input objects per mutation, and mutation
// fields whose results are unions of a success type and typed errors.
package gql

import (
	"sync"

	"github.com/graphql-go/graphql"

	"github.com/nater540/yggdrasil/fieldmap"
	"github.com/nater540/yggdrasil/internal/naming"
	"github.com/nater540/yggdrasil/internal/scalars"
	"github.com/nater540/yggdrasil/mutation"
	"github.com/nater540/yggdrasil/record"
)

// The custom scalars are built once so every reference in a schema resolves
// to the same type instance.
var (
	bigIntScalar = scalars.BigInt()
	jsonScalar   = scalars.JSON()
	base64Scalar = scalars.Base64()
)

// Mutation declares one mutation field: a verb applied to an entity through
// a field map. The GraphQL field name is derived from both, e.g.
// ("upsert", "project") -> upsertProject.
type Mutation struct {
	Verb        string
	Entity      string
	FieldMap    *fieldmap.FieldMap
	Description string
}

// Builder assembles the schema. Type construction is cached and safe for
// concurrent use.
type Builder struct {
	store record.Store
	exec  *mutation.Executor
	namer *naming.Namer

	mu           sync.RWMutex
	typeCache    map[string]*graphql.Object
	inputCache   map[string]*graphql.InputObject
	successCache map[string]*graphql.Object
	resultCache  map[string]*graphql.Union

	errorInterface  *graphql.Interface
	errorTypeCache  map[string]*graphql.Object
	problemType     *graphql.Object
	unknownProbType *graphql.Object
}

// Option configures a Builder.
type Option func(*Builder)

// WithNamer overrides the default name derivation.
func WithNamer(n *naming.Namer) Option {
	return func(b *Builder) { b.namer = n }
}

// NewBuilder creates a schema builder over a store and a mutation executor.
func NewBuilder(store record.Store, exec *mutation.Executor, opts ...Option) *Builder {
	b := &Builder{
		store:          store,
		exec:           exec,
		namer:          naming.Default(),
		typeCache:      make(map[string]*graphql.Object),
		inputCache:     make(map[string]*graphql.InputObject),
		successCache:   make(map[string]*graphql.Object),
		resultCache:    make(map[string]*graphql.Union),
		errorTypeCache: make(map[string]*graphql.Object),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Schema builds the executable schema: one lookup query field per distinct
// entity and one mutation field per declaration.
func (b *Builder) Schema(mutations ...Mutation) (graphql.Schema, error) {
	queryFields := graphql.Fields{}
	seen := make(map[string]bool)
	for _, m := range mutations {
		if seen[m.Entity] {
			continue
		}
		seen[m.Entity] = true
		name, field, err := b.queryField(m.Entity)
		if err != nil {
			return graphql.Schema{}, err
		}
		queryFields[name] = field
	}

	mutationFields := graphql.Fields{}
	for _, m := range mutations {
		name, field, err := b.mutationField(m)
		if err != nil {
			return graphql.Schema{}, err
		}
		mutationFields[name] = field
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
		Mutation: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Mutation",
			Fields: mutationFields,
		}),
	})
}

// kindType maps a storage kind onto its GraphQL scalar.
func kindType(k record.Kind) graphql.Type {
	switch k {
	case record.KindInt:
		return graphql.Int
	case record.KindFloat:
		return graphql.Float
	case record.KindBool:
		return graphql.Boolean
	case record.KindID:
		return bigIntScalar
	case record.KindTime:
		return graphql.DateTime
	case record.KindBytes:
		return base64Scalar
	default:
		return graphql.String
	}
}
