package mutation

import (
	"fmt"
	"strings"
)

// Path locates one value inside the submitted input tree. Segments are
// association or field names (string) and has-many positions (int), e.g.
// ["tickets", 1, "name"].
type Path []any

// Child returns a new Path with one more segment appended. The receiver is
// never mutated; paths recorded in the change log stay stable as the
// traversal descends.
func (p Path) Child(segment any) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, segment)
}

// Parent returns the path with its last segment removed.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	out := make(Path, len(p)-1)
	copy(out, p[:len(p)-1])
	return out
}

// Values returns the segments as a plain slice for serialization.
func (p Path) Values() []any {
	out := make([]any, len(p))
	copy(out, p)
	return out
}

// String renders the dotted form, e.g. "tickets.1.name".
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, segment := range p {
		parts[i] = fmt.Sprint(segment)
	}
	return strings.Join(parts, ".")
}

// Equal reports whether two paths have identical segments.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}
