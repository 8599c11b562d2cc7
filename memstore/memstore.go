// Package memstore is an in-memory record.Store. It backs the reference
// server's demo schema and the engine's tests: records live as identity-keyed
// working copies, each transaction journals its own writes for rollback, and
// domain validation runs through per-entity validator functions.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/nater540/yggdrasil/record"
)

// ValidateFunc inspects a record's current state and returns its
// attribute-level failures in a stable order.
type ValidateFunc func(r record.Record) []record.FieldError

// Store holds every entity's rows in memory. All methods are safe for
// concurrent use; each Save and Delete is atomic under the store lock, and
// an aborted Transaction rolls back only its own writes.
type Store struct {
	mu         sync.RWMutex
	schema     map[string]record.Entity
	validators map[string]ValidateFunc
	seq        int64
	tables     map[string]*table
	children   map[*rec]map[string][]*rec
	fills      []fkFill
}

type table struct {
	byID map[int64]*rec
	list []*rec
}

// fkFill is a deferred foreign key assignment: holder's attr receives the
// source record's primary key once the source has been saved.
type fkFill struct {
	holder *rec
	attr   string
	source *rec
}

// New builds a store over the given entity schemas.
func New(entities ...record.Entity) *Store {
	s := &Store{
		schema:     make(map[string]record.Entity, len(entities)),
		validators: make(map[string]ValidateFunc),
		tables:     make(map[string]*table, len(entities)),
		children:   make(map[*rec]map[string][]*rec),
	}
	for _, e := range entities {
		s.schema[e.Name] = e
		s.tables[e.Name] = &table{byID: make(map[int64]*rec)}
	}
	return s
}

// Validator registers the validation function for one entity, replacing any
// previous registration.
func (s *Store) Validator(entity string, fn ValidateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validators[entity] = fn
}

// Entity returns the schema for a named entity.
func (s *Store) Entity(name string) (record.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.schema[name]
	return e, ok
}

// New builds a fresh unsaved record for the named entity.
func (s *Store) New(entity string) (record.Record, error) {
	s.mu.RLock()
	e, ok := s.schema[entity]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memstore: unknown entity %q", entity)
	}
	return &rec{entity: e, attrs: make(map[string]any)}, nil
}

// Find looks up a record by primary key value.
func (s *Store) Find(ctx context.Context, entity string, id any) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[entity]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown entity %q", entity)
	}
	key, ok := normalizeID(id)
	if !ok {
		return nil, &record.NotFoundError{Entity: entity, ID: id}
	}
	r, ok := t.byID[key]
	if !ok {
		return nil, &record.NotFoundError{Entity: entity, ID: id}
	}
	return r, nil
}

// BuildChild builds a new unsaved record attached to the parent through the
// named association.
func (s *Store) BuildChild(parent record.Record, association string) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, assoc, err := s.resolveAssociation(parent, association)
	if err != nil {
		return nil, err
	}
	target, ok := s.schema[assoc.Target]
	if !ok {
		return nil, fmt.Errorf("memstore: association %q targets unknown entity %q", association, assoc.Target)
	}
	child := &rec{entity: target, attrs: make(map[string]any)}
	s.link(p, assoc, child)
	return child, nil
}

// Associate attaches an existing record to the parent through the named
// association.
func (s *Store) Associate(parent record.Record, association string, child record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, assoc, err := s.resolveAssociation(parent, association)
	if err != nil {
		return err
	}
	c, ok := child.(*rec)
	if !ok {
		return fmt.Errorf("memstore: foreign record %T", child)
	}
	s.link(p, assoc, c)
	return nil
}

// link caches the in-memory relationship and arranges the foreign key write,
// immediately when the key source is already saved, deferred otherwise.
func (s *Store) link(parent *rec, assoc record.Association, child *rec) {
	byAssoc, ok := s.children[parent]
	if !ok {
		byAssoc = make(map[string][]*rec)
		s.children[parent] = byAssoc
	}
	if assoc.HasMany {
		if !containsRec(byAssoc[assoc.Name], child) {
			byAssoc[assoc.Name] = append(byAssoc[assoc.Name], child)
		}
	} else {
		byAssoc[assoc.Name] = []*rec{child}
	}

	holder, source := child, parent
	if assoc.BelongsTo {
		holder, source = parent, child
	}
	if source.saved {
		holder.attrs[assoc.ForeignKey] = source.id
		return
	}
	s.fills = append(s.fills, fkFill{holder: holder, attr: assoc.ForeignKey, source: source})
}

// ChildOne returns the single related record for a has-one or belongs-to
// association, or nil when there is none.
func (s *Store) ChildOne(parent record.Record, association string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, assoc, err := s.resolveAssociation(parent, association)
	if err != nil {
		return nil, err
	}
	if assoc.HasMany {
		return nil, fmt.Errorf("memstore: association %q is has-many", association)
	}
	if cached := s.children[p][assoc.Name]; len(cached) > 0 {
		return cached[0], nil
	}
	if assoc.BelongsTo {
		key, ok := normalizeID(p.attrs[assoc.ForeignKey])
		if !ok {
			return nil, nil
		}
		if t := s.tables[assoc.Target]; t != nil {
			if child, ok := t.byID[key]; ok {
				return child, nil
			}
		}
		return nil, nil
	}
	for _, child := range s.relatedRows(p, assoc) {
		return child, nil
	}
	return nil, nil
}

// ChildMany returns the related records for a has-many association: persisted
// rows in insertion order, then in-memory attachments not yet visible as rows.
func (s *Store) ChildMany(parent record.Record, association string) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, assoc, err := s.resolveAssociation(parent, association)
	if err != nil {
		return nil, err
	}
	if !assoc.HasMany {
		return nil, fmt.Errorf("memstore: association %q is not has-many", association)
	}
	seen := make(map[*rec]bool)
	var out []record.Record
	for _, child := range s.relatedRows(p, assoc) {
		seen[child] = true
		out = append(out, child)
	}
	for _, child := range s.children[p][assoc.Name] {
		if !seen[child] {
			out = append(out, child)
		}
	}
	return out, nil
}

// relatedRows scans the target table for rows whose foreign key points at the
// parent. The parent must be saved for any row to match.
func (s *Store) relatedRows(parent *rec, assoc record.Association) []*rec {
	if !parent.saved {
		return nil
	}
	t, ok := s.tables[assoc.Target]
	if !ok {
		return nil
	}
	var out []*rec
	for _, child := range t.list {
		if key, ok := normalizeID(child.attrs[assoc.ForeignKey]); ok && key == parent.id {
			out = append(out, child)
		}
	}
	return out
}

// Validate runs the entity's registered validator, if any.
func (s *Store) Validate(r record.Record) []record.FieldError {
	s.mu.RLock()
	fn := s.validators[r.EntityName()]
	s.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(r)
}

// Transaction runs fn against an undo journal: every write made through the
// returned Tx records how to reverse itself, and when fn fails the journal
// replays in reverse so only this scope's writes are undone. A concurrent or
// enclosing transaction's committed writes are never touched, and nested
// calls journal independently, so an aborted inner scope never leaks partial
// writes into the outer one. Ids consumed by an aborted scope are not reused.
func (s *Store) Transaction(ctx context.Context, fn func(record.Tx) error) error {
	t := &tx{store: s}
	if err := fn(t); err != nil {
		s.mu.Lock()
		t.rollback()
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) resolveAssociation(parent record.Record, association string) (*rec, record.Association, error) {
	p, ok := parent.(*rec)
	if !ok {
		return nil, record.Association{}, fmt.Errorf("memstore: foreign record %T", parent)
	}
	assoc, ok := p.entity.Association(association)
	if !ok {
		return nil, record.Association{}, fmt.Errorf("memstore: entity %q has no association %q", p.entity.Name, association)
	}
	return p, assoc, nil
}

func containsRec(list []*rec, r *rec) bool {
	for _, other := range list {
		if other == r {
			return true
		}
	}
	return false
}

// normalizeID coerces the id representations seen in practice (native ints,
// JSON floats, decimal strings) onto the store's int64 keys.
func normalizeID(id any) (int64, bool) {
	switch v := id.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		n := int64(v)
		if float64(n) == v {
			return n, true
		}
		return 0, false
	case string:
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n, true
		}
		return 0, false
	default:
		return 0, false
	}
}
