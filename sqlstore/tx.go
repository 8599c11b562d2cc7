package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"

	"github.com/nater540/yggdrasil/internal/sqlutil"
	"github.com/nater540/yggdrasil/record"
)

// Transaction runs fn inside a database transaction. Each call opens its own
// *sql.Tx, so a nested call gets an independent scope. On failure the
// database transaction rolls back and the scope's undo journal reverses its
// own cache and identity bookkeeping, leaving writes committed by concurrent
// or enclosing scopes untouched; attribute values on working copies stay as
// the caller left them.
func (s *Store) Transaction(ctx context.Context, fn func(record.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	t := &tx{store: s, tx: dbTx}
	if err := fn(t); err != nil {
		_ = dbTx.Rollback()
		s.mu.Lock()
		t.rollback()
		s.mu.Unlock()
		return err
	}
	if err := dbTx.Commit(); err != nil {
		s.mu.Lock()
		t.rollback()
		s.mu.Unlock()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// tx is one transaction scope. Database writes ride the *sql.Tx; every cache
// and identity mutation appends an undo step, and rollback replays the steps
// in reverse under the store lock, reversing exactly this scope's writes.
// Attribute maps are never captured; after a rollback callers still hold
// their working values, which the mutation engine needs when it maps
// persistence failures back onto inputs.
type tx struct {
	store *Store
	tx    *sql.Tx
	undo  []func()
}

// rollback must be called with the store locked.
func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// Save validates the record, inserts it when new (update otherwise), and
// applies any foreign key writes that were waiting on this record's key.
// Updates touch only the columns that changed since the row was loaded.
func (t *tx) Save(ctx context.Context, r record.Record) error {
	rr, ok := r.(*row)
	if !ok {
		return fmt.Errorf("sqlstore: foreign record %T", r)
	}
	if errs := t.store.Validate(rr); len(errs) > 0 {
		return &record.InvalidError{Record: rr, Errors: errs}
	}

	if rr.saved {
		if err := t.update(ctx, rr); err != nil {
			return err
		}
	} else if err := t.insert(ctx, rr); err != nil {
		return err
	}
	return t.applyFills(ctx, rr)
}

func (t *tx) insert(ctx context.Context, rr *row) error {
	table := sqlutil.QuoteIdentifier(t.store.tables[rr.entity.Name])

	var cols []string
	var vals []any
	for _, attr := range rr.entity.Attributes {
		if attr.Name == rr.entity.PrimaryKey {
			continue
		}
		value, ok := rr.attrs[attr.Name]
		if !ok {
			continue
		}
		cols = append(cols, sqlutil.QuoteIdentifier(attr.Name))
		vals = append(vals, value)
	}

	var query string
	var args []any
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s () VALUES ()", table)
	} else {
		var err error
		query, args, err = sq.Insert(table).
			Columns(cols...).
			Values(vals...).
			PlaceholderFormat(sq.Question).
			ToSql()
		if err != nil {
			return err
		}
	}

	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return normalizeError(rr.entity.Name, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted id: %w", err)
	}

	pk := rr.entity.PrimaryKey
	prevPK, hadPK := rr.attrs[pk]
	prevPersisted := rr.persisted

	rr.id = id
	rr.saved = true
	if pk != "" {
		rr.attrs[pk] = id
	}
	rr.markPersisted()

	t.store.mu.Lock()
	t.store.loaded[rr.entity.Name][id] = rr
	t.store.mu.Unlock()

	t.undo = append(t.undo, func() {
		delete(t.store.loaded[rr.entity.Name], id)
		rr.id = 0
		rr.saved = false
		rr.persisted = prevPersisted
		if pk != "" {
			if hadPK {
				rr.attrs[pk] = prevPK
			} else {
				delete(rr.attrs, pk)
			}
		}
	})
	return nil
}

func (t *tx) update(ctx context.Context, rr *row) error {
	dirty := rr.dirtyColumns()
	if len(dirty) == 0 {
		return nil
	}

	setMap := make(map[string]any, len(dirty))
	for col, val := range dirty {
		setMap[sqlutil.QuoteIdentifier(col)] = val
	}
	query, args, err := sq.Update(sqlutil.QuoteIdentifier(t.store.tables[rr.entity.Name])).
		SetMap(setMap).
		Where(sq.Eq{sqlutil.QuoteIdentifier(rr.entity.PrimaryKey): rr.id}).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return normalizeError(rr.entity.Name, err)
	}

	prevPersisted := rr.persisted
	rr.markPersisted()
	t.undo = append(t.undo, func() { rr.persisted = prevPersisted })
	return nil
}

// applyFills resolves deferred foreign keys waiting on the just-saved row.
// A holder that is already persisted gets its key column written immediately
// within the same transaction.
func (t *tx) applyFills(ctx context.Context, saved *row) error {
	t.store.mu.Lock()
	var pending []fkFill
	remaining := t.store.fills[:0]
	for _, f := range t.store.fills {
		if f.source == saved {
			pending = append(pending, f)
			continue
		}
		remaining = append(remaining, f)
	}
	t.store.fills = remaining
	t.store.mu.Unlock()

	for _, f := range pending {
		f := f
		prev, had := f.holder.attrs[f.attr]
		f.holder.attrs[f.attr] = saved.id
		t.undo = append(t.undo, func() {
			if had {
				f.holder.attrs[f.attr] = prev
			} else {
				delete(f.holder.attrs, f.attr)
			}
			t.store.fills = append(t.store.fills, f)
		})
		if f.holder.saved {
			if err := t.update(ctx, f.holder); err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete removes the record's row and evicts it from the identity and
// association caches.
func (t *tx) Delete(ctx context.Context, r record.Record) error {
	rr, ok := r.(*row)
	if !ok {
		return fmt.Errorf("sqlstore: foreign record %T", r)
	}
	if !rr.saved {
		return nil
	}

	query, args, err := sq.Delete(sqlutil.QuoteIdentifier(t.store.tables[rr.entity.Name])).
		Where(sq.Eq{sqlutil.QuoteIdentifier(rr.entity.PrimaryKey): rr.id}).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return normalizeError(rr.entity.Name, err)
	}

	s := t.store
	s.mu.Lock()
	id := rr.id
	delete(s.loaded[rr.entity.Name], id)
	t.undo = append(t.undo, func() { s.loaded[rr.entity.Name][id] = rr })

	if byAssoc, ok := s.children[rr]; ok {
		delete(s.children, rr)
		t.undo = append(t.undo, func() { s.children[rr] = byAssoc })
	}
	for _, byAssoc := range s.children {
		byAssoc := byAssoc
		for name, list := range byAssoc {
			idx := indexOfRow(list, rr)
			if idx < 0 {
				continue
			}
			name := name
			byAssoc[name] = removeRow(list, rr)
			t.undo = append(t.undo, func() {
				byAssoc[name] = insertRow(byAssoc[name], idx, rr)
			})
		}
	}
	s.mu.Unlock()

	rr.saved = false
	t.undo = append(t.undo, func() { rr.saved = true })
	return nil
}

func removeRow(list []*row, r *row) []*row {
	out := list[:0]
	for _, other := range list {
		if other != r {
			out = append(out, other)
		}
	}
	return out
}

func indexOfRow(list []*row, r *row) int {
	for i, other := range list {
		if other == r {
			return i
		}
	}
	return -1
}

func insertRow(list []*row, idx int, r *row) []*row {
	if idx < 0 || idx > len(list) {
		idx = len(list)
	}
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = r
	return list
}

// normalizeError translates driver constraint violations into the store's
// typed errors. Duplicate keys become ConflictError; broken foreign keys and
// null violations become ConstraintError.
func normalizeError(entity string, err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return err
	}
	switch mysqlErr.Number {
	case 1062:
		return &record.ConflictError{Entity: entity, Message: mysqlErr.Message}
	case 1451, 1452, 1048, 1364:
		return &record.ConstraintError{Entity: entity, Message: mysqlErr.Message}
	default:
		return err
	}
}
