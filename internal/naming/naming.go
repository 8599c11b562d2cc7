// Package naming converts entity and attribute names into GraphQL type and
// field names: PascalCase types, camelCase fields, pluralized collection
// fields, with reserved GraphQL words suffixed out of the way.
package naming

import (
	"log/slog"
	"strings"
)

// Namer derives GraphQL names from snake_case entity schema names.
type Namer struct {
	config Config
	logger *slog.Logger
}

// Config holds irregular word forms that override the inflection rules.
type Config struct {
	PluralOverrides   map[string]string
	SingularOverrides map[string]string
}

// New creates a Namer with the given configuration.
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{config: cfg, logger: logger}
}

// Default returns a Namer with no overrides.
func Default() *Namer {
	return New(Config{}, nil)
}

// TypeName converts an entity name to a GraphQL type name.
// Example: "user_profile" -> "UserProfile".
func (n *Namer) TypeName(entity string) string {
	return n.suffixReserved(toPascalCase(n.Singularize(entity)))
}

// FieldName converts an attribute or association name to a GraphQL field
// name. Example: "created_at" -> "createdAt".
func (n *Namer) FieldName(name string) string {
	return n.suffixReserved(toCamelCase(name))
}

// CollectionFieldName derives the plural query field for an entity.
// Example: "ticket" -> "tickets".
func (n *Namer) CollectionFieldName(entity string) string {
	return n.suffixReserved(n.Pluralize(toCamelCase(entity)))
}

// MutationFieldName derives the mutation field for a verb applied to an
// entity. Example: ("upsert", "user_profile") -> "upsertUserProfile".
func (n *Namer) MutationFieldName(verb, entity string) string {
	return n.suffixReserved(toCamelCase(verb) + toPascalCase(n.Singularize(entity)))
}

// ResultTypeName derives the mutation result union name for an entity.
// Example: "project" -> "ProjectResult".
func (n *Namer) ResultTypeName(entity string) string {
	return n.suffixReserved(toPascalCase(n.Singularize(entity)) + "Result")
}

// InputTypeName derives the input object name for a mutation on an entity.
// Example: ("upsert", "project") -> "UpsertProjectInput".
func (n *Namer) InputTypeName(verb, entity string) string {
	return n.suffixReserved(toPascalCase(verb) + toPascalCase(n.Singularize(entity)) + "Input")
}

func (n *Namer) suffixReserved(name string) string {
	if !isReserved(name) {
		return name
	}
	safe := name + "_"
	n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
		slog.String("original", name),
		slog.String("renamed", safe),
	)
	return safe
}

// toPascalCase converts snake_case to PascalCase.
func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// toCamelCase converts snake_case to camelCase.
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
