package sqlstore

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/nater540/yggdrasil/internal/sqlutil"
	"github.com/nater540/yggdrasil/record"
)

func (s *Store) quotedColumn(name string) string {
	return sqlutil.QuoteIdentifier(name)
}

func (s *Store) quotedColumns(e record.Entity) []string {
	cols := make([]string, len(e.Attributes))
	for i, attr := range e.Attributes {
		cols[i] = sqlutil.QuoteIdentifier(attr.Name)
	}
	return cols
}

func (s *Store) selectBuilder(e record.Entity, where sq.Eq) sq.SelectBuilder {
	return sq.Select(s.quotedColumns(e)...).
		From(sqlutil.QuoteIdentifier(s.tables[e.Name])).
		Where(where).
		OrderBy(sqlutil.QuoteIdentifier(e.PrimaryKey)).
		PlaceholderFormat(sq.Question)
}

func (s *Store) queryOne(ctx context.Context, e record.Entity, where sq.Eq) (*row, error) {
	query, args, err := s.selectBuilder(e, where).Limit(1).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, normalizeError(e.Name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanRow(e, rows)
	if err != nil {
		return nil, err
	}
	return r, rows.Err()
}

func (s *Store) queryMany(ctx context.Context, e record.Entity, where sq.Eq) ([]*row, error) {
	query, args, err := s.selectBuilder(e, where).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, normalizeError(e.Name, err)
	}
	defer rows.Close()

	var out []*row
	for rows.Next() {
		r, err := scanRow(e, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// scanRow scans the current result row into a working copy, coercing each
// column through its declared kind.
func scanRow(e record.Entity, rows *sql.Rows) (*row, error) {
	holders := make([]any, len(e.Attributes))
	for i, attr := range e.Attributes {
		holders[i] = holderFor(attr.Kind)
	}
	if err := rows.Scan(holders...); err != nil {
		return nil, err
	}

	r := &row{entity: e, attrs: make(map[string]any, len(e.Attributes)), saved: true}
	for i, attr := range e.Attributes {
		value := holderValue(holders[i])
		r.attrs[attr.Name] = value
		if attr.Name == e.PrimaryKey {
			if id, ok := normalizeID(value); ok {
				r.id = id
			}
		}
	}
	r.markPersisted()
	return r, nil
}

func holderFor(k record.Kind) any {
	switch k {
	case record.KindInt, record.KindID:
		return new(sql.NullInt64)
	case record.KindFloat:
		return new(sql.NullFloat64)
	case record.KindBool:
		return new(sql.NullBool)
	case record.KindTime:
		return new(sql.NullTime)
	case record.KindBytes:
		return new([]byte)
	default:
		return new(sql.NullString)
	}
}

func holderValue(holder any) any {
	switch v := holder.(type) {
	case *sql.NullInt64:
		if v.Valid {
			return v.Int64
		}
	case *sql.NullFloat64:
		if v.Valid {
			return v.Float64
		}
	case *sql.NullBool:
		if v.Valid {
			return v.Bool
		}
	case *sql.NullTime:
		if v.Valid {
			return v.Time
		}
	case *sql.NullString:
		if v.Valid {
			return v.String
		}
	case *[]byte:
		if *v != nil {
			return *v
		}
	}
	return nil
}
