// Package record defines the boundary between the mutation engine and a
// backing record store. The engine never talks to a database directly; it
// manipulates Record instances and asks a Store to build, look up, validate,
// and persist them.
package record

import "context"

// Record is one backing entity instance. Attribute access is by runtime name;
// the valid names for an entity are declared by its Entity schema so callers
// can resolve them ahead of time instead of reflecting per call.
//
// Implementations must be pointer types: the engine deduplicates touched
// records by interface equality.
type Record interface {
	// EntityName returns the name of the entity schema this record belongs to.
	EntityName() string

	// ID returns the primary key value, or nil when the record is unsaved.
	ID() any

	// IsNew reports whether the record has never been persisted.
	IsNew() bool

	// GetAttribute returns the current value of a named attribute.
	GetAttribute(name string) any

	// SetAttribute overwrites the current value of a named attribute.
	SetAttribute(name string, value any)

	// MarkForDestroy flags the record for deletion at persistence time.
	MarkForDestroy()

	// MarkedForDestroy reports whether the record is flagged for deletion.
	MarkedForDestroy() bool
}

// Store provides entity schemas, record construction and lookup, association
// traversal, domain validation, and transactional persistence.
//
// Child lookups (ChildOne, ChildMany) must reflect records built or attached
// in memory through BuildChild/Associate, not only persisted rows: the engine
// re-walks the association graph after applying changes and expects to see
// the records it created.
type Store interface {
	// Entity returns the schema for a named entity.
	Entity(name string) (Entity, bool)

	// New builds a fresh unsaved record for the named entity.
	New(entity string) (Record, error)

	// Find looks up a record by primary key value. It returns a *NotFoundError
	// when no such record exists.
	Find(ctx context.Context, entity string, id any) (Record, error)

	// BuildChild builds a new unsaved record attached to the parent through
	// the named association.
	BuildChild(parent Record, association string) (Record, error)

	// ChildOne returns the single related record for a has-one or belongs-to
	// association, or nil when there is none.
	ChildOne(parent Record, association string) (Record, error)

	// ChildMany returns the ordered related records for a has-many association.
	ChildMany(parent Record, association string) ([]Record, error)

	// Associate attaches an existing record to the parent through the named
	// association, setting whichever foreign key the association declares.
	Associate(parent Record, association string, child Record) error

	// Validate runs domain validation against the record's current state and
	// returns the attribute-level failures, in a stable order.
	Validate(r Record) []FieldError

	// Transaction runs fn inside a new transaction scope. Any error returned
	// by fn aborts every write made within it; a nested call must open its
	// own scope so an aborted inner operation cannot partially commit into an
	// outer one.
	Transaction(ctx context.Context, fn func(Tx) error) error
}

// Tx persists or deletes individual records inside a Store transaction.
type Tx interface {
	// Save inserts the record when new, otherwise updates it. It returns a
	// *InvalidError when domain validation rejects the record's current state.
	Save(ctx context.Context, r Record) error

	// Delete removes the record.
	Delete(ctx context.Context, r Record) error
}
