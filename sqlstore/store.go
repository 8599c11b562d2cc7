// Package sqlstore is a record.Store backed by a MySQL-compatible database.
// Rows load into identity-cached working copies so the mutation engine sees
// one Record instance per row; relationships attached in memory are visible
// through the child lookups before they are persisted.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/nater540/yggdrasil/internal/naming"
	"github.com/nater540/yggdrasil/record"
)

// ValidateFunc inspects a record's current state and returns its
// attribute-level failures in a stable order.
type ValidateFunc func(r record.Record) []record.FieldError

// Store implements record.Store over database/sql. All methods are safe for
// concurrent use.
type Store struct {
	db     *sql.DB
	namer  *naming.Namer
	schema map[string]record.Entity
	tables map[string]string

	mu         sync.RWMutex
	validators map[string]ValidateFunc
	loaded     map[string]map[int64]*row
	children   map[*row]map[string][]*row
	fills      []fkFill
}

// fkFill is a deferred foreign key assignment: holder's attr receives the
// source row's primary key once the source has been inserted.
type fkFill struct {
	holder *row
	attr   string
	source *row
}

// Option configures a Store.
type Option func(*Store)

// WithTableName overrides the derived table name for one entity.
func WithTableName(entity, table string) Option {
	return func(s *Store) { s.tables[entity] = table }
}

// WithNamer overrides the namer used to derive table names.
func WithNamer(n *naming.Namer) Option {
	return func(s *Store) { s.namer = n }
}

// New builds a store over an open database handle. Table names default to
// the pluralized entity name, e.g. entity "ticket" maps to table "tickets".
func New(db *sql.DB, entities []record.Entity, opts ...Option) *Store {
	s := &Store{
		db:         db,
		namer:      naming.Default(),
		schema:     make(map[string]record.Entity, len(entities)),
		tables:     make(map[string]string, len(entities)),
		validators: make(map[string]ValidateFunc),
		loaded:     make(map[string]map[int64]*row, len(entities)),
		children:   make(map[*row]map[string][]*row),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, e := range entities {
		s.schema[e.Name] = e
		if _, ok := s.tables[e.Name]; !ok {
			s.tables[e.Name] = s.namer.Pluralize(e.Name)
		}
		s.loaded[e.Name] = make(map[int64]*row)
	}
	return s
}

// Open opens an instrumented database handle for the given DSN. Queries are
// traced through otelsql with MySQL semantic attributes.
func Open(dsn string) (*sql.DB, error) {
	db, err := otelsql.Open("mysql", dsn,
		otelsql.WithAttributes(semconv.DBSystemMySQL),
		otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL)); err != nil {
		return nil, fmt.Errorf("failed to register db stats metrics: %w", err)
	}
	return db, nil
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
	e, ok := s.schema[name]
	return e, ok
}

// New builds a fresh unsaved record for the named entity.
func (s *Store) New(entity string) (record.Record, error) {
	e, ok := s.schema[entity]
	if !ok {
		return nil, fmt.Errorf("sqlstore: unknown entity %q", entity)
	}
	return &row{entity: e, attrs: make(map[string]any)}, nil
}

// Find loads a record by primary key, returning the cached working copy when
// the row has been seen before.
func (s *Store) Find(ctx context.Context, entity string, id any) (record.Record, error) {
	e, ok := s.schema[entity]
	if !ok {
		return nil, fmt.Errorf("sqlstore: unknown entity %q", entity)
	}
	key, ok := normalizeID(id)
	if !ok {
		return nil, &record.NotFoundError{Entity: entity, ID: id}
	}

	s.mu.RLock()
	cached, ok := s.loaded[entity][key]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	r, err := s.queryOne(ctx, e, sq.Eq{s.quotedColumn(e.PrimaryKey): key})
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &record.NotFoundError{Entity: entity, ID: id}
	}
	return s.intern(r), nil
}

// BuildChild builds a new unsaved record attached to the parent through the
// named association.
func (s *Store) BuildChild(parent record.Record, association string) (record.Record, error) {
	p, assoc, err := s.resolveAssociation(parent, association)
	if err != nil {
		return nil, err
	}
	target, ok := s.schema[assoc.Target]
	if !ok {
		return nil, fmt.Errorf("sqlstore: association %q targets unknown entity %q", association, assoc.Target)
	}

	child := &row{entity: target, attrs: make(map[string]any)}
	s.mu.Lock()
	s.link(p, assoc, child)
	s.mu.Unlock()
	return child, nil
}

// Associate attaches an existing record to the parent through the named
// association.
func (s *Store) Associate(parent record.Record, association string, child record.Record) error {
	p, assoc, err := s.resolveAssociation(parent, association)
	if err != nil {
		return err
	}
	c, ok := child.(*row)
	if !ok {
		return fmt.Errorf("sqlstore: foreign record %T", child)
	}
	s.mu.Lock()
	s.link(p, assoc, c)
	s.mu.Unlock()
	return nil
}

// link caches the in-memory relationship and arranges the foreign key write,
// immediately when the key source is already saved, deferred otherwise.
func (s *Store) link(parent *row, assoc record.Association, child *row) {
	byAssoc, ok := s.children[parent]
	if !ok {
		byAssoc = make(map[string][]*row)
		s.children[parent] = byAssoc
	}
	if assoc.HasMany {
		if !containsRow(byAssoc[assoc.Name], child) {
			byAssoc[assoc.Name] = append(byAssoc[assoc.Name], child)
		}
	} else {
		byAssoc[assoc.Name] = []*row{child}
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
	p, assoc, err := s.resolveAssociation(parent, association)
	if err != nil {
		return nil, err
	}
	if assoc.HasMany {
		return nil, fmt.Errorf("sqlstore: association %q is has-many", association)
	}

	s.mu.RLock()
	cached := s.children[p][assoc.Name]
	s.mu.RUnlock()
	if len(cached) > 0 {
		return cached[0], nil
	}

	if assoc.BelongsTo {
		key, ok := normalizeID(p.attrs[assoc.ForeignKey])
		if !ok {
			return nil, nil
		}
		child, err := s.Find(context.Background(), assoc.Target, key)
		if err != nil {
			if record.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return child, nil
	}

	if !p.saved {
		return nil, nil
	}
	target := s.schema[assoc.Target]
	r, err := s.queryOne(context.Background(), target, sq.Eq{s.quotedColumn(assoc.ForeignKey): p.id})
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	return s.intern(r), nil
}

// ChildMany returns the related records for a has-many association:
// persisted rows in primary key order, then in-memory attachments not yet
// visible as rows.
func (s *Store) ChildMany(parent record.Record, association string) ([]record.Record, error) {
	p, assoc, err := s.resolveAssociation(parent, association)
	if err != nil {
		return nil, err
	}
	if !assoc.HasMany {
		return nil, fmt.Errorf("sqlstore: association %q is not has-many", association)
	}

	var out []record.Record
	seen := make(map[*row]bool)
	if p.saved {
		target := s.schema[assoc.Target]
		rows, err := s.queryMany(context.Background(), target, sq.Eq{s.quotedColumn(assoc.ForeignKey): p.id})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			interned := s.intern(r)
			seen[interned] = true
			out = append(out, interned)
		}
	}

	s.mu.RLock()
	cached := s.children[p][assoc.Name]
	s.mu.RUnlock()
	for _, child := range cached {
		if !seen[child] {
			out = append(out, child)
		}
	}
	return out, nil
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

// intern returns the canonical working copy for a freshly scanned row,
// keeping one Record instance per row identity.
func (s *Store) intern(r *row) *row {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.loaded[r.entity.Name][r.id]; ok {
		return cached
	}
	s.loaded[r.entity.Name][r.id] = r
	return r
}

func (s *Store) resolveAssociation(parent record.Record, association string) (*row, record.Association, error) {
	p, ok := parent.(*row)
	if !ok {
		return nil, record.Association{}, fmt.Errorf("sqlstore: foreign record %T", parent)
	}
	assoc, ok := p.entity.Association(association)
	if !ok {
		return nil, record.Association{}, fmt.Errorf("sqlstore: entity %q has no association %q", p.entity.Name, association)
	}
	return p, assoc, nil
}

func containsRow(list []*row, r *row) bool {
	for _, other := range list {
		if other == r {
			return true
		}
	}
	return false
}

func normalizeID(id any) (int64, bool) {
	switch v := id.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint64:
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
