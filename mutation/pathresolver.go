package mutation

import (
	"context"

	"github.com/nater540/yggdrasil/fieldmap"
	"github.com/nater540/yggdrasil/record"
)

// resolution is the outcome of attributing validation errors to input paths:
// the problems that mapped onto a path and the ones that could not.
type resolution struct {
	problems []pathProblem
	unknown  []UnknownProblem
}

// resolveErrors walks every record touched by the change log, enumerates its
// current attribute-level validation errors, and reconstructs the input path
// each one came from.
//
// Attribution tries the change log first: a change recorded for the same
// record and attribute carries the exact path the client submitted. When the
// failing attribute never appeared in the input (a required association left
// out, for instance) the record is located by re-walking the field map
// against the original input tree, and the path is synthesized from the
// association names and locators discovered on the way down. Errors that
// survive both attempts are unattributable and reported per record instead.
func resolveErrors(ctx context.Context, store record.Store, fm *fieldmap.FieldMap, root record.Record, input map[string]any, changes []Change) (resolution, error) {
	var res resolution

	for _, rec := range uniqueRecords(changes) {
		if rec.MarkedForDestroy() {
			continue
		}
		fieldErrs := store.Validate(rec)
		if len(fieldErrs) == 0 {
			continue
		}

		base, node, located, err := locateRecord(ctx, store, fm, root, input, Path{}, rec)
		if err != nil {
			return resolution{}, err
		}

		for _, fe := range fieldErrs {
			if path, ok := directPath(changes, rec, fe.Attribute); ok {
				res.problems = append(res.problems, pathProblem{path: path, message: fe.Message})
				continue
			}
			if located {
				if path, ok := synthesizePath(node, base, fe.Attribute); ok {
					res.problems = append(res.problems, pathProblem{path: path, message: fe.Message})
					continue
				}
			}
			res.unknown = append(res.unknown, UnknownProblem{
				Entity:    rec.EntityName(),
				RecordID:  rec.ID(),
				Attribute: fe.Attribute,
				Message:   fe.Message,
			})
		}
	}
	return res, nil
}

// directPath finds the input path recorded for an attribute change on this
// exact record, if the attribute was directly input-mapped.
func directPath(changes []Change, rec record.Record, attribute string) (Path, bool) {
	for _, ch := range changes {
		if ch.Record == rec && ch.Attribute == attribute && len(ch.Path) > 0 {
			return ch.Path, true
		}
	}
	return nil, false
}

// synthesizePath maps a failing attribute onto an input path relative to the
// field map node where the record lives: through the scalar field mapping
// when one exists, or through a nested association node when the error names
// the association itself.
func synthesizePath(node *fieldmap.FieldMap, base Path, attribute string) (Path, bool) {
	if input, ok := node.InputFor(attribute); ok {
		return base.Child(input), true
	}
	if child, ok := node.NestedByAssociation(attribute); ok {
		return base.Child(child.Name()), true
	}
	if child, ok := node.NestedByName(attribute); ok {
		return base.Child(child.Name()), true
	}
	return nil, false
}

// locateRecord re-walks the structural pairing of records and input
// fragments, without side effects, to find the branch where target lives.
// Children built or re-associated during the apply phase are visible here
// because the store reflects in-memory association state.
func locateRecord(ctx context.Context, store record.Store, node *fieldmap.FieldMap, rec record.Record, frag map[string]any, base Path, target record.Record) (Path, *fieldmap.FieldMap, bool, error) {
	if rec == target {
		return base, node, true, nil
	}

	for _, child := range node.Nested() {
		raw, present := frag[child.Name()]
		if !present {
			continue
		}

		switch child.Kind() {
		case fieldmap.HasOne, fieldmap.BelongsTo:
			childFrag, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			childRec, err := store.ChildOne(rec, child.Association())
			if err != nil {
				return nil, nil, false, err
			}
			if childRec == nil || childRec.MarkedForDestroy() {
				continue
			}
			path, at, found, err := locateRecord(ctx, store, child, childRec, childFrag, base.Child(child.Name()), target)
			if err != nil || found {
				return path, at, found, err
			}

		case fieldmap.HasMany:
			frags, err := asFragmentList(child.Name(), raw)
			if err != nil {
				continue
			}
			children, err := store.ChildMany(rec, child.Association())
			if err != nil {
				return nil, nil, false, err
			}
			pairs := pairExisting(child, children, frags)
			for _, p := range pairs {
				path, at, found, err := locateRecord(ctx, store, child, p.child, p.fragment, base.Child(child.Name()).Child(p.index), target)
				if err != nil || found {
					return path, at, found, err
				}
			}
		}
	}
	return nil, nil, false, nil
}

type existingPair struct {
	child    record.Record
	fragment map[string]any
	index    int
}

// pairExisting mirrors the matcher's pairing rules against already-matched
// state: keyed nodes pair by match-key tuple with the same first-come
// ordering, positional nodes pair by index. Children without a fragment have
// no locator and are skipped.
func pairExisting(fm *fieldmap.FieldMap, children []record.Record, frags []map[string]any) []existingPair {
	live := make([]record.Record, 0, len(children))
	for _, c := range children {
		if !c.MarkedForDestroy() {
			live = append(live, c)
		}
	}

	if len(fm.MatchKeys()) == 0 {
		pairs := make([]existingPair, 0, len(frags))
		for i, frag := range frags {
			if frag == nil || i >= len(live) {
				continue
			}
			pairs = append(pairs, existingPair{child: live[i], fragment: frag, index: i})
		}
		return pairs
	}

	byKey := make(map[string][]int, len(live))
	for i, c := range live {
		key := childMatchKey(fm, c)
		byKey[key] = append(byKey[key], i)
	}
	pairs := make([]existingPair, 0, len(frags))
	for i, frag := range frags {
		if frag == nil {
			continue
		}
		key, err := fragmentMatchKey(fm, frag)
		if err != nil {
			continue
		}
		queue := byKey[key]
		if len(queue) == 0 {
			continue
		}
		byKey[key] = queue[1:]
		pairs = append(pairs, existingPair{child: live[queue[0]], fragment: frag, index: i})
	}
	return pairs
}
