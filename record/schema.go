package record

// Kind is the storage-level type of an attribute. The gql package maps each
// kind onto a GraphQL scalar.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindID
	KindTime
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindID:
		return "id"
	case KindTime:
		return "time"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Attribute describes one named attribute of an entity.
type Attribute struct {
	Name     string
	Kind     Kind
	Nullable bool
	Comment  string
}

// Association describes one named relation of an entity.
//
// For has-one/has-many associations the foreign key lives on the target
// entity and points back at this one. For belongs-to associations (BelongsTo
// true) the foreign key lives on this entity and points at the target.
type Association struct {
	Name       string
	Target     string
	HasMany    bool
	BelongsTo  bool
	ForeignKey string
}

// Entity is the static schema for one record shape.
type Entity struct {
	Name         string
	PrimaryKey   string
	Attributes   []Attribute
	Associations []Association
}

// Attribute returns the schema for a named attribute.
func (e Entity) Attribute(name string) (Attribute, bool) {
	for _, attr := range e.Attributes {
		if attr.Name == name {
			return attr, true
		}
	}
	return Attribute{}, false
}

// Association returns the schema for a named association.
func (e Entity) Association(name string) (Association, bool) {
	for _, assoc := range e.Associations {
		if assoc.Name == name {
			return assoc, true
		}
	}
	return Association{}, false
}
