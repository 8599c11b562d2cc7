package sqlstore

import (
	"reflect"
	"time"

	"github.com/nater540/yggdrasil/record"
)

// row is the store's record implementation: a working copy of one table row.
// attrs holds the current in-memory state; persisted holds the state as of
// the last load or save, so updates write only the columns that changed.
type row struct {
	entity    record.Entity
	attrs     map[string]any
	persisted map[string]any
	id        int64
	saved     bool
	destroyed bool
}

func (r *row) EntityName() string { return r.entity.Name }

func (r *row) ID() any {
	if !r.saved {
		return nil
	}
	return r.id
}

func (r *row) IsNew() bool { return !r.saved }

func (r *row) GetAttribute(name string) any { return r.attrs[name] }

func (r *row) SetAttribute(name string, value any) { r.attrs[name] = value }

func (r *row) MarkForDestroy() { r.destroyed = true }

func (r *row) MarkedForDestroy() bool { return r.destroyed }

// dirtyColumns returns the non-key columns whose in-memory value differs from
// the persisted state.
func (r *row) dirtyColumns() map[string]any {
	out := make(map[string]any)
	for _, attr := range r.entity.Attributes {
		if attr.Name == r.entity.PrimaryKey {
			continue
		}
		current, ok := r.attrs[attr.Name]
		if !ok {
			continue
		}
		if prev, had := r.persisted[attr.Name]; had && valueEqual(prev, current) {
			continue
		}
		out[attr.Name] = current
	}
	return out
}

// markPersisted snapshots the current attribute state as the saved baseline.
func (r *row) markPersisted() {
	snapshot := make(map[string]any, len(r.attrs))
	for k, v := range r.attrs {
		snapshot[k] = v
	}
	r.persisted = snapshot
}

// valueEqual treats numeric representations of the same quantity as equal:
// scanned columns surface int64 and float64 while the engine writes native
// ints, and re-applying an unchanged value must not dirty the column. Times
// compare by instant, not representation.
func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if an, ok := numericValue(a); ok {
		if bn, ok := numericValue(b); ok {
			return an == bn
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Equal(bt)
		}
	}
	return reflect.DeepEqual(a, b)
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
