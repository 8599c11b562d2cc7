package gql

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/nater540/yggdrasil/record"
)

// entityType builds (and caches) the output object type for one entity.
// Attribute fields resolve straight off the record; association fields go
// back through the store, so they observe records attached in memory as well
// as persisted rows.
func (b *Builder) entityType(name string) (*graphql.Object, error) {
	b.mu.RLock()
	cached, ok := b.typeCache[name]
	b.mu.RUnlock()
	if ok {
		return cached, nil
	}

	entity, ok := b.store.Entity(name)
	if !ok {
		return nil, fmt.Errorf("gql: unknown entity %q", name)
	}

	obj := graphql.NewObject(graphql.ObjectConfig{
		Name: b.namer.TypeName(entity.Name),
		// Fields are thunked so association cycles resolve against the cache.
		Fields: (graphql.FieldsThunk)(func() graphql.Fields {
			fields := graphql.Fields{}
			for _, attr := range entity.Attributes {
				var fieldType graphql.Type = kindType(attr.Kind)
				if !attr.Nullable {
					fieldType = graphql.NewNonNull(fieldType)
				}
				fields[b.namer.FieldName(attr.Name)] = &graphql.Field{
					Type:        fieldType,
					Description: attr.Comment,
					Resolve:     resolveAttribute(attr.Name),
				}
			}
			for _, assoc := range entity.Associations {
				target, err := b.entityType(assoc.Target)
				if err != nil {
					continue
				}
				if assoc.HasMany {
					fields[b.namer.FieldName(assoc.Name)] = &graphql.Field{
						Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(target))),
						Resolve: b.resolveChildMany(assoc.Name),
					}
				} else {
					fields[b.namer.FieldName(assoc.Name)] = &graphql.Field{
						Type:    target,
						Resolve: b.resolveChildOne(assoc.Name),
					}
				}
			}
			return fields
		}),
	})

	b.mu.Lock()
	if cached, ok := b.typeCache[name]; ok {
		b.mu.Unlock()
		return cached, nil
	}
	b.typeCache[name] = obj
	b.mu.Unlock()
	return obj, nil
}

func resolveAttribute(name string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		r, ok := p.Source.(record.Record)
		if !ok {
			return nil, nil
		}
		return r.GetAttribute(name), nil
	}
}

func (b *Builder) resolveChildOne(association string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		r, ok := p.Source.(record.Record)
		if !ok {
			return nil, nil
		}
		child, err := b.store.ChildOne(r, association)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, nil
		}
		return child, nil
	}
}

func (b *Builder) resolveChildMany(association string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		r, ok := p.Source.(record.Record)
		if !ok {
			return nil, nil
		}
		return b.store.ChildMany(r, association)
	}
}

// queryField builds the primary key lookup field for an entity. A miss
// resolves to null rather than an error.
func (b *Builder) queryField(entity string) (string, *graphql.Field, error) {
	objType, err := b.entityType(entity)
	if err != nil {
		return "", nil, err
	}

	name := b.namer.FieldName(b.namer.Singularize(entity))
	field := &graphql.Field{
		Type: objType,
		Args: graphql.FieldConfigArgument{
			"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(bigIntScalar)},
		},
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			rec, err := b.store.Find(p.Context, entity, p.Args["id"])
			if err != nil {
				if record.IsNotFound(err) {
					return nil, nil
				}
				return nil, err
			}
			return rec, nil
		},
	}
	return name, field, nil
}
