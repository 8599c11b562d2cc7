package fieldmap

import "errors"

// Builder assembles a FieldMap tree. Declaration errors accumulate and are
// reported together by Build.
type Builder struct {
	fm   *FieldMap
	errs []error
}

// New starts a root field map declaration.
func New() *Builder {
	return &Builder{fm: &FieldMap{
		kind:        None,
		byInput:     make(map[string]string),
		byAttribute: make(map[string]string),
		required:    make(map[string]bool),
	}}
}

func newNested(name, association string, kind AssociationKind) *Builder {
	return &Builder{fm: &FieldMap{
		name:        name,
		kind:        kind,
		association: association,
		byInput:     make(map[string]string),
		byAttribute: make(map[string]string),
		required:    make(map[string]bool),
	}}
}

func (b *Builder) fail(message string) {
	b.errs = append(b.errs, &StructuralError{Node: b.fm.name, Message: message})
}

// Field declares one input-name to storage-attribute pairing.
func (b *Builder) Field(input, attribute string) *Builder {
	if input == "" || attribute == "" {
		b.fail("field input and attribute names must be non-empty")
		return b
	}
	if _, dup := b.fm.byInput[input]; dup {
		b.fail("duplicate input name " + input)
		return b
	}
	b.fm.fields = append(b.fm.fields, Field{Input: input, Attribute: attribute})
	b.fm.byInput[input] = attribute
	if _, seen := b.fm.byAttribute[attribute]; !seen {
		b.fm.byAttribute[attribute] = input
	}
	return b
}

// Attrs declares pairings whose input name equals the attribute name.
func (b *Builder) Attrs(names ...string) *Builder {
	for _, name := range names {
		b.Field(name, name)
	}
	return b
}

// Require marks input names that must be present and non-null.
func (b *Builder) Require(inputs ...string) *Builder {
	for _, input := range inputs {
		if b.fm.required[input] {
			continue
		}
		b.fm.required[input] = true
		b.fm.requireOrd = append(b.fm.requireOrd, input)
	}
	return b
}

// MatchOn declares the attribute subset used to key-match existing children
// against input fragments. Only meaningful on has-many nodes.
func (b *Builder) MatchOn(attributes ...string) *Builder {
	b.fm.matchKeys = append(b.fm.matchKeys, attributes...)
	return b
}

// IdentifiedBy declares the input name carrying the primary key of an
// existing record to re-associate instead of creating a new one.
func (b *Builder) IdentifiedBy(input string) *Builder {
	if b.fm.identifier != "" {
		b.fail("identifier declared twice")
		return b
	}
	b.fm.identifier = input
	return b
}

// HasOne declares a nested one-to-one association node.
func (b *Builder) HasOne(name, association string, fn func(*Builder)) *Builder {
	return b.nested(name, association, HasOne, fn)
}

// HasMany declares a nested one-to-many association node.
func (b *Builder) HasMany(name, association string, fn func(*Builder)) *Builder {
	return b.nested(name, association, HasMany, fn)
}

// BelongsTo declares a nested inverse one-to-one association node.
func (b *Builder) BelongsTo(name, association string, fn func(*Builder)) *Builder {
	return b.nested(name, association, BelongsTo, fn)
}

func (b *Builder) nested(name, association string, kind AssociationKind, fn func(*Builder)) *Builder {
	if name == "" || association == "" {
		b.fail("nested association and input names must be non-empty")
		return b
	}
	child := newNested(name, association, kind)
	if fn != nil {
		fn(child)
	}
	b.errs = append(b.errs, child.errs...)
	b.fm.nested = append(b.fm.nested, child.fm)
	return b
}

// Build finalizes the declaration, validating the whole tree. The returned
// FieldMap is immutable and safe for concurrent use.
func (b *Builder) Build() (*FieldMap, error) {
	errs := append([]error(nil), b.errs...)
	errs = append(errs, validate(b.fm)...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return b.fm, nil
}

// MustBuild is Build for static declarations; it panics on structural errors.
func (b *Builder) MustBuild() *FieldMap {
	fm, err := b.Build()
	if err != nil {
		panic(err)
	}
	return fm
}

func validate(fm *FieldMap) []error {
	var errs []error
	bad := func(message string) {
		errs = append(errs, &StructuralError{Node: fm.name, Message: message})
	}

	if len(fm.matchKeys) > 0 && fm.kind != HasMany {
		bad("match keys are only valid on has-many associations")
	}
	for _, input := range fm.requireOrd {
		if _, ok := fm.byInput[input]; !ok {
			bad("required input " + input + " is not a declared field")
		}
	}
	if fm.identifier != "" {
		if _, clash := fm.byInput[fm.identifier]; clash {
			bad("identifier " + fm.identifier + " collides with a declared field")
		}
	}

	seen := make(map[string]bool, len(fm.byInput)+len(fm.nested))
	for input := range fm.byInput {
		seen[input] = true
	}
	if fm.identifier != "" {
		seen[fm.identifier] = true
	}
	for _, child := range fm.nested {
		if child.kind == None {
			errs = append(errs, &StructuralError{Node: child.name, Message: "nested node must declare an association kind"})
		}
		if seen[child.name] {
			bad("duplicate input name " + child.name)
			continue
		}
		seen[child.name] = true
		errs = append(errs, validate(child)...)
	}
	return errs
}
