package memstore

import (
	"context"
	"fmt"

	"github.com/nater540/yggdrasil/record"
)

// tx is one transaction scope. Every write appends an undo step; rollback
// replays the steps in reverse under the store lock, reversing exactly this
// scope's writes and nothing else.
type tx struct {
	store *Store
	undo  []func()
}

// rollback must be called with the store locked.
func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// Save validates the record, assigns a primary key on first save, commits the
// record into its table, and applies any foreign key writes that were waiting
// on this record's key.
func (t *tx) Save(ctx context.Context, r record.Record) error {
	rr, ok := r.(*rec)
	if !ok {
		return fmt.Errorf("memstore: foreign record %T", r)
	}
	if errs := t.store.Validate(rr); len(errs) > 0 {
		return &record.InvalidError{Record: rr, Errors: errs}
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, ok := s.tables[rr.entity.Name]
	if !ok {
		return fmt.Errorf("memstore: unknown entity %q", rr.entity.Name)
	}
	if !rr.saved {
		s.seq++
		id := s.seq
		pk := rr.entity.PrimaryKey
		prevPK, hadPK := rr.attrs[pk]

		rr.id = id
		rr.saved = true
		tbl.byID[id] = rr
		tbl.list = append(tbl.list, rr)
		if pk != "" {
			rr.attrs[pk] = id
		}

		t.undo = append(t.undo, func() {
			rr.id = 0
			rr.saved = false
			delete(tbl.byID, id)
			tbl.list = removeRec(tbl.list, rr)
			if pk != "" {
				if hadPK {
					rr.attrs[pk] = prevPK
				} else {
					delete(rr.attrs, pk)
				}
			}
		})
	}

	remaining := s.fills[:0]
	for _, f := range s.fills {
		if f.source == rr {
			f := f
			prev, had := f.holder.attrs[f.attr]
			f.holder.attrs[f.attr] = rr.id
			t.undo = append(t.undo, func() {
				if had {
					f.holder.attrs[f.attr] = prev
				} else {
					delete(f.holder.attrs, f.attr)
				}
				s.fills = append(s.fills, f)
			})
			continue
		}
		remaining = append(remaining, f)
	}
	s.fills = remaining
	return nil
}

// Delete removes the record from its table and from every in-memory
// association cache.
func (t *tx) Delete(ctx context.Context, r record.Record) error {
	rr, ok := r.(*rec)
	if !ok {
		return fmt.Errorf("memstore: foreign record %T", r)
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if tbl, ok := s.tables[rr.entity.Name]; ok && rr.saved {
		id := rr.id
		idx := indexOfRec(tbl.list, rr)
		delete(tbl.byID, id)
		tbl.list = removeRec(tbl.list, rr)
		t.undo = append(t.undo, func() {
			tbl.byID[id] = rr
			tbl.list = insertRec(tbl.list, idx, rr)
		})
	}

	wasSaved := rr.saved
	rr.saved = false
	t.undo = append(t.undo, func() { rr.saved = wasSaved })

	if byAssoc, ok := s.children[rr]; ok {
		delete(s.children, rr)
		t.undo = append(t.undo, func() { s.children[rr] = byAssoc })
	}
	for _, byAssoc := range s.children {
		byAssoc := byAssoc
		for name, list := range byAssoc {
			idx := indexOfRec(list, rr)
			if idx < 0 {
				continue
			}
			name := name
			byAssoc[name] = removeRec(list, rr)
			t.undo = append(t.undo, func() {
				byAssoc[name] = insertRec(byAssoc[name], idx, rr)
			})
		}
	}
	return nil
}

func removeRec(list []*rec, r *rec) []*rec {
	out := list[:0]
	for _, other := range list {
		if other != r {
			out = append(out, other)
		}
	}
	return out
}

func indexOfRec(list []*rec, r *rec) int {
	for i, other := range list {
		if other == r {
			return i
		}
	}
	return -1
}

func insertRec(list []*rec, idx int, r *rec) []*rec {
	if idx < 0 || idx > len(list) {
		idx = len(list)
	}
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = r
	return list
}
