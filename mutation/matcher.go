package mutation

import (
	"context"
	"fmt"
	"strings"

	"github.com/nater540/yggdrasil/fieldmap"
	"github.com/nater540/yggdrasil/record"
)

// matchResult pairs one candidate child record with its input fragment for a
// single association level. A result with no fragment is a pure deletion; a
// result whose record was just built is a pure creation. index is the
// fragment's position in a has-many input sequence, -1 otherwise.
type matchResult struct {
	child       record.Record
	fragment    map[string]any
	hasFragment bool
	index       int
	destroy     bool
	created     bool
	linked      bool
}

// matchLevel pairs the existing children of parent under the fm association
// with the corresponding input fragment(s), for exactly one nesting level.
// Recursion into deeper levels is the caller's job.
func matchLevel(ctx context.Context, store record.Store, fm *fieldmap.FieldMap, parent record.Record, raw any) ([]matchResult, error) {
	switch fm.Kind() {
	case fieldmap.HasOne, fieldmap.BelongsTo:
		return matchSingle(ctx, store, fm, parent, raw)
	case fieldmap.HasMany:
		return matchMany(ctx, store, fm, parent, raw)
	default:
		return nil, fmt.Errorf("association %q has no matchable kind", fm.Association())
	}
}

func matchSingle(ctx context.Context, store record.Store, fm *fieldmap.FieldMap, parent record.Record, raw any) ([]matchResult, error) {
	frag, present, err := asFragment(fm.Name(), raw)
	if err != nil {
		return nil, err
	}

	existing, err := store.ChildOne(parent, fm.Association())
	if err != nil {
		return nil, err
	}

	switch {
	case existing != nil && !present:
		return []matchResult{{child: existing, index: -1, destroy: true}}, nil

	case existing == nil && present:
		if id, ok := identifierValue(fm, frag); ok {
			child, err := reassociate(ctx, store, fm, parent, id)
			if err != nil {
				return nil, err
			}
			return []matchResult{{child: child, fragment: frag, hasFragment: true, index: -1, linked: true}}, nil
		}
		child, err := store.BuildChild(parent, fm.Association())
		if err != nil {
			return nil, err
		}
		return []matchResult{{child: child, fragment: frag, hasFragment: true, index: -1, created: true}}, nil

	case existing != nil && present:
		return []matchResult{{child: existing, fragment: frag, hasFragment: true, index: -1}}, nil

	default:
		return nil, nil
	}
}

func matchMany(ctx context.Context, store record.Store, fm *fieldmap.FieldMap, parent record.Record, raw any) ([]matchResult, error) {
	frags, err := asFragmentList(fm.Name(), raw)
	if err != nil {
		return nil, err
	}

	existing, err := store.ChildMany(parent, fm.Association())
	if err != nil {
		return nil, err
	}

	if len(fm.MatchKeys()) > 0 {
		return matchKeyed(ctx, store, fm, parent, existing, frags)
	}
	return matchPositional(ctx, store, fm, parent, existing, frags)
}

// matchKeyed pairs children and fragments by equality of the declared match
// key tuple. When several children or fragments collapse onto the same key
// the pairing is first-come: children queue up per key in collection order
// and fragments consume them in input order.
func matchKeyed(ctx context.Context, store record.Store, fm *fieldmap.FieldMap, parent record.Record, existing []record.Record, frags []map[string]any) ([]matchResult, error) {
	byKey := make(map[string][]int, len(existing))
	for i, child := range existing {
		key := childMatchKey(fm, child)
		byKey[key] = append(byKey[key], i)
	}

	matched := make([]bool, len(existing))
	results := make([]matchResult, 0, len(existing)+len(frags))

	for i, frag := range frags {
		if frag == nil {
			continue
		}
		key, err := fragmentMatchKey(fm, frag)
		if err != nil {
			return nil, err
		}
		if queue := byKey[key]; len(queue) > 0 {
			childIdx := queue[0]
			byKey[key] = queue[1:]
			matched[childIdx] = true
			results = append(results, matchResult{child: existing[childIdx], fragment: frag, hasFragment: true, index: i})
			continue
		}
		if id, ok := identifierValue(fm, frag); ok {
			child, err := reassociate(ctx, store, fm, parent, id)
			if err != nil {
				return nil, err
			}
			results = append(results, matchResult{child: child, fragment: frag, hasFragment: true, index: i, linked: true})
			continue
		}
		child, err := store.BuildChild(parent, fm.Association())
		if err != nil {
			return nil, err
		}
		results = append(results, matchResult{child: child, fragment: frag, hasFragment: true, index: i, created: true})
	}

	for i, child := range existing {
		if !matched[i] {
			results = append(results, matchResult{child: child, index: -1, destroy: true})
		}
	}
	return results, nil
}

// matchPositional zips children and fragments by sequence index, padding the
// shorter side with null. Reliable only for pure-create flows: with existing
// children on both sides there is no guarantee index i is the same record the
// client edited.
func matchPositional(ctx context.Context, store record.Store, fm *fieldmap.FieldMap, parent record.Record, existing []record.Record, frags []map[string]any) ([]matchResult, error) {
	n := len(existing)
	if len(frags) > n {
		n = len(frags)
	}

	results := make([]matchResult, 0, n)
	for i := 0; i < n; i++ {
		var child record.Record
		if i < len(existing) {
			child = existing[i]
		}
		var frag map[string]any
		if i < len(frags) {
			frag = frags[i]
		}

		switch {
		case child != nil && frag == nil:
			results = append(results, matchResult{child: child, index: -1, destroy: true})

		case child == nil && frag != nil:
			if id, ok := identifierValue(fm, frag); ok {
				linked, err := reassociate(ctx, store, fm, parent, id)
				if err != nil {
					return nil, err
				}
				results = append(results, matchResult{child: linked, fragment: frag, hasFragment: true, index: i, linked: true})
				continue
			}
			built, err := store.BuildChild(parent, fm.Association())
			if err != nil {
				return nil, err
			}
			results = append(results, matchResult{child: built, fragment: frag, hasFragment: true, index: i, created: true})

		case child != nil && frag != nil:
			results = append(results, matchResult{child: child, fragment: frag, hasFragment: true, index: i})
		}
	}
	return results, nil
}

// reassociate looks up an existing record of the association's target entity
// by primary key and attaches it to the parent. A miss is a hard failure for
// the whole mutation, surfaced as *record.NotFoundError.
func reassociate(ctx context.Context, store record.Store, fm *fieldmap.FieldMap, parent record.Record, id any) (record.Record, error) {
	entity, ok := store.Entity(parent.EntityName())
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", parent.EntityName())
	}
	assoc, ok := entity.Association(fm.Association())
	if !ok {
		return nil, fmt.Errorf("entity %q has no association %q", entity.Name, fm.Association())
	}

	child, err := store.Find(ctx, assoc.Target, id)
	if err != nil {
		return nil, err
	}
	if err := store.Associate(parent, fm.Association(), child); err != nil {
		return nil, err
	}
	return child, nil
}

func identifierValue(fm *fieldmap.FieldMap, frag map[string]any) (any, bool) {
	if fm.Identifier() == "" {
		return nil, false
	}
	id, ok := frag[fm.Identifier()]
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}

func childMatchKey(fm *fieldmap.FieldMap, child record.Record) string {
	parts := make([]string, 0, len(fm.MatchKeys()))
	for _, attr := range fm.MatchKeys() {
		parts = append(parts, keyPart(child.GetAttribute(attr)))
	}
	return strings.Join(parts, "\x1f")
}

func fragmentMatchKey(fm *fieldmap.FieldMap, frag map[string]any) (string, error) {
	parts := make([]string, 0, len(fm.MatchKeys()))
	for _, attr := range fm.MatchKeys() {
		input, ok := fm.InputFor(attr)
		if !ok {
			return "", fmt.Errorf("match key %q has no input mapping in association %q", attr, fm.Association())
		}
		parts = append(parts, keyPart(frag[input]))
	}
	return strings.Join(parts, "\x1f"), nil
}

func keyPart(v any) string {
	if v == nil {
		return "\x00"
	}
	return fmt.Sprint(v)
}

func asFragment(name string, raw any) (map[string]any, bool, error) {
	if raw == nil {
		return nil, false, nil
	}
	frag, ok := raw.(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("input %q must be an object", name)
	}
	return frag, true, nil
}

func asFragmentList(name string, raw any) ([]map[string]any, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("input %q must be a list of objects", name)
	}
	frags := make([]map[string]any, len(items))
	for i, item := range items {
		if item == nil {
			continue
		}
		frag, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("input %q must be a list of objects", name)
		}
		frags[i] = frag
	}
	return frags, nil
}
