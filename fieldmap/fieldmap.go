// Package fieldmap declares the static mapping between a mutation's input
// payload and the backing records it manipulates. A FieldMap is built once
// when a mutation is declared, validated structurally at that point, and
// shared read-only across concurrent executions.
package fieldmap

import "fmt"

// AssociationKind classifies how a FieldMap node relates to its parent.
type AssociationKind int

const (
	// None marks the root node of a field map tree.
	None AssociationKind = iota
	// HasOne is a one-to-one association owned by the parent.
	HasOne
	// HasMany is an ordered one-to-many association owned by the parent.
	HasMany
	// BelongsTo is the inverse side of a one-to-one association; the foreign
	// key lives on the parent record.
	BelongsTo
)

func (k AssociationKind) String() string {
	switch k {
	case None:
		return "none"
	case HasOne:
		return "has-one"
	case HasMany:
		return "has-many"
	case BelongsTo:
		return "belongs-to"
	default:
		return "unknown"
	}
}

// Field is one input-name to storage-attribute pairing.
type Field struct {
	Input     string
	Attribute string
}

// FieldMap is one node of the mapping tree: the scalar field pairings for a
// record shape plus the nested association nodes below it. Immutable once
// built.
type FieldMap struct {
	name        string
	kind        AssociationKind
	association string
	fields      []Field
	byInput     map[string]string
	byAttribute map[string]string
	matchKeys   []string
	identifier  string
	required    map[string]bool
	requireOrd  []string
	nested      []*FieldMap
}

// Name returns the input-facing name of this node. Empty at the root; for
// nested nodes it is the input key (and error-path segment) of the
// association, e.g. "tickets".
func (fm *FieldMap) Name() string { return fm.name }

// Kind returns the association kind of this node.
func (fm *FieldMap) Kind() AssociationKind { return fm.kind }

// Association returns the store-side relation name, empty at the root.
func (fm *FieldMap) Association() string { return fm.association }

// Fields returns the ordered input-to-attribute pairings.
func (fm *FieldMap) Fields() []Field {
	out := make([]Field, len(fm.fields))
	copy(out, fm.fields)
	return out
}

// Attribute translates an input name into its storage attribute name.
func (fm *FieldMap) Attribute(input string) (string, bool) {
	attr, ok := fm.byInput[input]
	return attr, ok
}

// InputFor translates a storage attribute name back into the input name that
// feeds it. Used when attributing validation errors to input paths.
func (fm *FieldMap) InputFor(attribute string) (string, bool) {
	input, ok := fm.byAttribute[attribute]
	return input, ok
}

// MatchKeys returns the attribute names used to key-match existing children.
// Empty means positional matching.
func (fm *FieldMap) MatchKeys() []string {
	out := make([]string, len(fm.matchKeys))
	copy(out, fm.matchKeys)
	return out
}

// Identifier returns the input name that carries the primary key of an
// existing record to re-associate, or empty when re-association is disabled.
func (fm *FieldMap) Identifier() string { return fm.identifier }

// Required returns the input names that must be present and non-null.
func (fm *FieldMap) Required() []string {
	out := make([]string, len(fm.requireOrd))
	copy(out, fm.requireOrd)
	return out
}

// IsRequired reports whether the named input must be non-null.
func (fm *FieldMap) IsRequired(input string) bool { return fm.required[input] }

// Nested returns the ordered child nodes.
func (fm *FieldMap) Nested() []*FieldMap {
	out := make([]*FieldMap, len(fm.nested))
	copy(out, fm.nested)
	return out
}

// NestedByName returns the child node with the given input-facing name.
func (fm *FieldMap) NestedByName(name string) (*FieldMap, bool) {
	for _, child := range fm.nested {
		if child.name == name {
			return child, true
		}
	}
	return nil, false
}

// NestedByAssociation returns the child node declared for the given
// store-side relation name.
func (fm *FieldMap) NestedByAssociation(association string) (*FieldMap, bool) {
	for _, child := range fm.nested {
		if child.association == association {
			return child, true
		}
	}
	return nil, false
}

// StructuralError reports an invalid field map declaration. It is raised at
// construction time and never recovered.
type StructuralError struct {
	Node    string
	Message string
}

func (e *StructuralError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("field map: %s", e.Message)
	}
	return fmt.Sprintf("field map %q: %s", e.Node, e.Message)
}
