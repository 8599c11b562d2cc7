package mutation

import (
	"context"
	"reflect"
	"time"

	"github.com/nater540/yggdrasil/fieldmap"
	"github.com/nater540/yggdrasil/record"
)

// requiredMessage is the explanation attached when a required input is
// missing or null.
const requiredMessage = "is required"

// applier walks a record graph and its input tree per a field map, applying
// scalar attribute changes in place and recording the ordered change log for
// the whole operation. One applier serves exactly one mutation invocation.
type applier struct {
	store    record.Store
	changes  []Change
	problems []pathProblem
}

type pathProblem struct {
	path    Path
	message string
}

func newApplier(store record.Store) *applier {
	return &applier{store: store}
}

// root applies the input tree to the root record. The root gets a create
// marker when it has never been persisted, so a bare create with no scalar
// input still reaches the store.
func (a *applier) root(ctx context.Context, fm *fieldmap.FieldMap, rec record.Record, input map[string]any) error {
	if rec.IsNew() {
		a.changes = append(a.changes, Change{Record: rec, Path: Path{}, Action: ActionCreate})
	}
	return a.apply(ctx, fm, rec, input, Path{})
}

func (a *applier) apply(ctx context.Context, fm *fieldmap.FieldMap, rec record.Record, frag map[string]any, base Path) error {
	a.checkRequired(fm, rec, frag, base)
	a.applyScalars(fm, rec, frag, base)

	for _, child := range fm.Nested() {
		raw, present := frag[child.Name()]
		if !present {
			// Omission means "no change", not "delete all".
			continue
		}
		if err := a.applyAssociation(ctx, child, rec, raw, base); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) applyAssociation(ctx context.Context, fm *fieldmap.FieldMap, parent record.Record, raw any, base Path) error {
	results, err := matchLevel(ctx, a.store, fm, parent, raw)
	if err != nil {
		return err
	}

	for _, res := range results {
		childBase := base.Child(fm.Name())
		if res.index >= 0 {
			childBase = childBase.Child(res.index)
		}

		if res.destroy {
			res.child.MarkForDestroy()
			a.changes = append(a.changes, Change{Record: res.child, Path: childBase, Action: ActionDestroy})
			continue
		}

		if res.created {
			a.changes = append(a.changes, Change{Record: res.child, Path: childBase, Action: ActionCreate})
		}
		if res.linked {
			// Re-association dirties whichever record holds the foreign key:
			// the parent for belongs-to, the attached child otherwise.
			holder := res.child
			if fm.Kind() == fieldmap.BelongsTo {
				holder = parent
			}
			action := ActionUpdate
			if holder.IsNew() {
				action = ActionCreate
			}
			a.changes = append(a.changes, Change{Record: holder, Path: childBase, Action: action})
		}

		if res.hasFragment {
			if err := a.apply(ctx, fm, res.child, res.fragment, childBase); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyScalars diffs each mapped input value against the record's current
// attribute value and writes only the ones that differ. Equal-valued writes
// are elided so reapplying the same input produces an empty change log and
// no spuriously dirty records reach persistence.
func (a *applier) applyScalars(fm *fieldmap.FieldMap, rec record.Record, frag map[string]any, base Path) {
	for _, field := range fm.Fields() {
		value, present := frag[field.Input]
		if !present {
			continue
		}
		if valueEqual(rec.GetAttribute(field.Attribute), value) {
			continue
		}
		rec.SetAttribute(field.Attribute, value)

		action := ActionUpdate
		if rec.IsNew() {
			action = ActionCreate
		}
		a.changes = append(a.changes, Change{
			Record:    rec,
			Attribute: field.Attribute,
			Path:      base.Child(field.Input),
			Action:    action,
		})
	}
}

// checkRequired records a problem for every required input that is null, or
// absent on a record being created. Absence on an existing record is fine:
// it means "leave the current value alone".
func (a *applier) checkRequired(fm *fieldmap.FieldMap, rec record.Record, frag map[string]any, base Path) {
	for _, input := range fm.Required() {
		value, present := frag[input]
		if (present && value == nil) || (!present && rec.IsNew()) {
			a.problems = append(a.problems, pathProblem{path: base.Child(input), message: requiredMessage})
		}
	}
}

// valueEqual compares an in-memory value against an incoming one. Numeric
// kinds are normalized first: stores surface int64 while resolved GraphQL
// arguments carry int or float64, and re-applying the same quantity must not
// count as a change. Times compare by instant, not representation.
func valueEqual(current, incoming any) bool {
	if current == nil || incoming == nil {
		return current == nil && incoming == nil
	}
	if c, ok := numericValue(current); ok {
		if i, ok := numericValue(incoming); ok {
			return c == i
		}
	}
	if c, ok := current.(time.Time); ok {
		if i, ok := incoming.(time.Time); ok {
			return c.Equal(i)
		}
	}
	return reflect.DeepEqual(current, incoming)
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
