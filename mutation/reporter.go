package mutation

import (
	"errors"
	"fmt"
)

// Problem is one validation failure attributed to an input path. Path mixes
// field/association names and has-many indices, e.g. ["tickets", 1, "name"].
type Problem struct {
	Path        []any
	Explanation string
}

// UnknownProblem is a validation failure that could not be attributed to any
// input path, tagged with enough record context to be actionable.
type UnknownProblem struct {
	Entity    string
	RecordID  any
	Attribute string
	Message   string
}

// Failure is the single structured payload produced by a failed mutation:
// a summary message, the original inputs (so a caller can redisplay a form),
// the path-attributed problems in first-occurrence order, and the problems
// no path could be reconstructed for. It is the only observable effect of a
// failed mutation.
type Failure struct {
	Message  string
	Inputs   map[string]any
	Problems []Problem
	Unknown  []UnknownProblem
}

func (f *Failure) Error() string {
	return f.Message
}

// Payload renders the failure as a GraphQL-serializable map, using the
// __typename convention consumed by result-union ResolveType dispatch.
func (f *Failure) Payload() map[string]any {
	problems := make([]map[string]any, len(f.Problems))
	for i, p := range f.Problems {
		problems[i] = map[string]any{
			"path":        p.Path,
			"explanation": p.Explanation,
		}
	}
	unknown := make([]map[string]any, len(f.Unknown))
	for i, u := range f.Unknown {
		unknown[i] = map[string]any{
			"entity":    u.Entity,
			"recordId":  u.RecordID,
			"attribute": u.Attribute,
			"message":   u.Message,
		}
	}
	return map[string]any{
		"__typename":      "InputValidationError",
		"message":         f.Message,
		"inputs":          f.Inputs,
		"problems":        problems,
		"unknownProblems": unknown,
	}
}

// AsFailure unwraps a *Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func newFailure(inputs map[string]any, problems []pathProblem, unknown []UnknownProblem) *Failure {
	f := &Failure{
		Message: "validation failed",
		Inputs:  inputs,
		Unknown: unknown,
	}
	if n := len(problems) + len(unknown); n > 0 {
		f.Message = fmt.Sprintf("validation failed with %d problem(s)", n)
	}
	f.Problems = make([]Problem, len(problems))
	for i, p := range problems {
		f.Problems[i] = Problem{Path: p.path.Values(), Explanation: p.message}
	}
	return f
}
