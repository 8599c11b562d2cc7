package gql

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/nater540/yggdrasil/record"
)

// mutationField builds one mutation field: input object argument, result
// union, and a resolver that drives the execution engine.
func (b *Builder) mutationField(m Mutation) (string, *graphql.Field, error) {
	if m.FieldMap == nil {
		return "", nil, fmt.Errorf("gql: mutation %s/%s has no field map", m.Verb, m.Entity)
	}

	input, err := b.inputType(m)
	if err != nil {
		return "", nil, err
	}
	success, err := b.successType(m)
	if err != nil {
		return "", nil, err
	}
	union, err := b.resultUnion(m, success)
	if err != nil {
		return "", nil, err
	}

	name := b.namer.MutationFieldName(m.Verb, m.Entity)
	field := &graphql.Field{
		Type:        graphql.NewNonNull(union),
		Description: m.Description,
		Args: graphql.FieldConfigArgument{
			"id": &graphql.ArgumentConfig{
				Type:        bigIntScalar,
				Description: "Primary key of the record to modify. Omit to create a new one.",
			},
			"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(input)},
		},
		Resolve: b.resolveMutation(m),
	}
	return name, field, nil
}

func (b *Builder) resolveMutation(m Mutation) graphql.FieldResolveFn {
	successName := b.successTypeName(m)
	entityField := b.namer.FieldName(b.namer.Singularize(m.Entity))

	return func(p graphql.ResolveParams) (interface{}, error) {
		input, _ := p.Args["input"].(map[string]interface{})

		var root record.Record
		var err error
		if id, ok := p.Args["id"]; ok && id != nil {
			root, err = b.store.Find(p.Context, m.Entity, id)
		} else {
			root, err = b.store.New(m.Entity)
		}
		if err != nil {
			return b.errorPayload(p, err), nil
		}

		res, err := b.exec.Execute(p.Context, m.FieldMap, root, input)
		if err != nil {
			return b.errorPayload(p, err), nil
		}

		return map[string]interface{}{
			"__typename": successName,
			entityField:  res.Root,
		}, nil
	}
}

func (b *Builder) successTypeName(m Mutation) string {
	return upperFirst(m.Verb) + b.namer.TypeName(m.Entity) + "Success"
}

func (b *Builder) successType(m Mutation) (*graphql.Object, error) {
	typeName := b.successTypeName(m)
	b.mu.RLock()
	cached, ok := b.successCache[typeName]
	b.mu.RUnlock()
	if ok {
		return cached, nil
	}

	entityType, err := b.entityType(m.Entity)
	if err != nil {
		return nil, err
	}

	fieldName := b.namer.FieldName(b.namer.Singularize(m.Entity))
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name: typeName,
		Fields: graphql.Fields{
			fieldName: &graphql.Field{
				Type: graphql.NewNonNull(entityType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					m, ok := p.Source.(map[string]interface{})
					if !ok {
						return nil, nil
					}
					return m[fieldName], nil
				},
			},
		},
	})

	b.mu.Lock()
	if cached, ok := b.successCache[typeName]; ok {
		b.mu.Unlock()
		return cached, nil
	}
	b.successCache[typeName] = obj
	b.mu.Unlock()
	return obj, nil
}

func (b *Builder) resultUnion(m Mutation, success *graphql.Object) (*graphql.Union, error) {
	typeName := upperFirst(m.Verb) + b.namer.TypeName(m.Entity) + "Result"
	b.mu.RLock()
	cached, ok := b.resultCache[typeName]
	b.mu.RUnlock()
	if ok {
		return cached, nil
	}

	union := graphql.NewUnion(graphql.UnionConfig{
		Name: typeName,
		Types: []*graphql.Object{
			success,
			b.sharedErrorType(typenameValidationError),
			b.sharedErrorType(typenameNotFoundError),
			b.sharedErrorType(typenameConflictError),
			b.sharedErrorType(typenameConstraintError),
			b.sharedErrorType(typenameInternalError),
		},
		ResolveType: b.resultResolveType(success),
	})

	b.mu.Lock()
	if cached, ok := b.resultCache[typeName]; ok {
		b.mu.Unlock()
		return cached, nil
	}
	b.resultCache[typeName] = union
	b.mu.Unlock()
	return union, nil
}
