package mutation

import "github.com/nater540/yggdrasil/record"

// Action classifies one recorded change.
type Action int

const (
	// ActionCreate marks an attribute write (or bare marker) on a record that
	// has never been persisted.
	ActionCreate Action = iota
	// ActionUpdate marks an attribute write (or bare marker) on an existing
	// record.
	ActionUpdate
	// ActionDestroy marks a record for deletion.
	ActionDestroy
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// Change is one recorded mutation unit. Attribute is empty for pure
// create/destroy markers and for re-association markers; Path points at the
// input that produced the change and may be empty for the root record.
//
// The same record may appear in any number of Change entries; persistence
// deduplicates by record identity, not by entry.
type Change struct {
	Record    record.Record
	Attribute string
	Path      Path
	Action    Action
}

// uniqueRecords returns every record referenced by the change list, in
// first-reference order.
func uniqueRecords(changes []Change) []record.Record {
	seen := make(map[record.Record]bool, len(changes))
	out := make([]record.Record, 0, len(changes))
	for _, ch := range changes {
		if seen[ch.Record] {
			continue
		}
		seen[ch.Record] = true
		out = append(out, ch.Record)
	}
	return out
}
