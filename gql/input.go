package gql

import (
	"fmt"
	"strings"

	"github.com/graphql-go/graphql"

	"github.com/nater540/yggdrasil/fieldmap"
)

// inputType builds (and caches) the input object for one mutation
// declaration. Every field is nullable: absence means "no change" on
// existing records, and required-input enforcement belongs to the engine so
// violations come back as typed validation errors instead of opaque GraphQL
// coercion failures.
func (b *Builder) inputType(m Mutation) (*graphql.InputObject, error) {
	name := b.namer.InputTypeName(m.Verb, m.Entity)
	return b.buildInput(name, m.Entity, m.FieldMap)
}

func (b *Builder) buildInput(name, entity string, fm *fieldmap.FieldMap) (*graphql.InputObject, error) {
	b.mu.RLock()
	cached, ok := b.inputCache[name]
	b.mu.RUnlock()
	if ok {
		return cached, nil
	}

	schema, ok := b.store.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("gql: unknown entity %q", entity)
	}

	fields := graphql.InputObjectConfigFieldMap{}
	for _, f := range fm.Fields() {
		fieldType := graphql.Type(graphql.String)
		if attr, ok := schema.Attribute(f.Attribute); ok {
			fieldType = kindType(attr.Kind)
		}
		fields[f.Input] = &graphql.InputObjectFieldConfig{Type: fieldType}
	}
	if id := fm.Identifier(); id != "" {
		fields[id] = &graphql.InputObjectFieldConfig{
			Type:        bigIntScalar,
			Description: "Primary key of an existing record to attach in place of creating one.",
		}
	}

	for _, child := range fm.Nested() {
		assoc, ok := schema.Association(child.Association())
		if !ok {
			return nil, fmt.Errorf("gql: entity %q has no association %q", entity, child.Association())
		}
		childName := strings.TrimSuffix(name, "Input") + upperFirst(child.Name()) + "Input"
		childInput, err := b.buildInput(childName, assoc.Target, child)
		if err != nil {
			return nil, err
		}
		var fieldType graphql.Type = childInput
		if child.Kind() == fieldmap.HasMany {
			fieldType = graphql.NewList(childInput)
		}
		fields[child.Name()] = &graphql.InputObjectFieldConfig{Type: fieldType}
	}

	obj := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   name,
		Fields: fields,
	})

	b.mu.Lock()
	if cached, ok := b.inputCache[name]; ok {
		b.mu.Unlock()
		return cached, nil
	}
	b.inputCache[name] = obj
	b.mu.Unlock()
	return obj, nil
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
