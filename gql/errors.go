package gql

import (
	"errors"
	"log/slog"

	"github.com/graphql-go/graphql"

	"github.com/nater540/yggdrasil/internal/logging"
	"github.com/nater540/yggdrasil/mutation"
	"github.com/nater540/yggdrasil/record"
)

// Error payloads travel as __typename-tagged maps; the result unions dispatch
// on that tag in ResolveType.
const (
	typenameValidationError = "InputValidationError"
	typenameNotFoundError   = "NotFoundError"
	typenameConflictError   = "ConflictError"
	typenameConstraintError = "ConstraintError"
	typenameInternalError   = "InternalError"
)

func (b *Builder) mutationErrorInterface() *graphql.Interface {
	b.mu.RLock()
	cached := b.errorInterface
	b.mu.RUnlock()
	if cached != nil {
		return cached
	}

	iface := graphql.NewInterface(graphql.InterfaceConfig{
		Name: "MutationError",
		Fields: graphql.Fields{
			"message": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
		ResolveType: func(p graphql.ResolveTypeParams) *graphql.Object {
			m, ok := p.Value.(map[string]interface{})
			if !ok {
				return nil
			}
			typename, _ := m["__typename"].(string)
			return b.sharedErrorType(typename)
		},
	})

	b.mu.Lock()
	if b.errorInterface == nil {
		b.errorInterface = iface
	}
	cached = b.errorInterface
	b.mu.Unlock()
	return cached
}

// sharedErrorType returns the error object for a typename. The same instances
// appear in every result union.
func (b *Builder) sharedErrorType(typename string) *graphql.Object {
	b.mu.RLock()
	cached, ok := b.errorTypeCache[typename]
	b.mu.RUnlock()
	if ok {
		return cached
	}

	var obj *graphql.Object
	switch typename {
	case typenameValidationError:
		obj = graphql.NewObject(graphql.ObjectConfig{
			Name: typenameValidationError,
			Fields: graphql.Fields{
				"message": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
				"inputs":  &graphql.Field{Type: jsonScalar},
				"problems": &graphql.Field{
					Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(b.validationProblemType()))),
				},
				"unknownProblems": &graphql.Field{
					Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(b.unknownProblemType()))),
				},
			},
			Interfaces: []*graphql.Interface{b.mutationErrorInterface()},
		})
	case typenameNotFoundError:
		obj = graphql.NewObject(graphql.ObjectConfig{
			Name: typenameNotFoundError,
			Fields: graphql.Fields{
				"message":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
				"entity":   &graphql.Field{Type: graphql.String},
				"recordId": &graphql.Field{Type: bigIntScalar},
			},
			Interfaces: []*graphql.Interface{b.mutationErrorInterface()},
		})
	case typenameConflictError, typenameConstraintError, typenameInternalError:
		obj = graphql.NewObject(graphql.ObjectConfig{
			Name: typename,
			Fields: graphql.Fields{
				"message": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			},
			Interfaces: []*graphql.Interface{b.mutationErrorInterface()},
		})
	default:
		return nil
	}

	b.mu.Lock()
	if cached, ok := b.errorTypeCache[typename]; ok {
		b.mu.Unlock()
		return cached
	}
	b.errorTypeCache[typename] = obj
	b.mu.Unlock()
	return obj
}

func (b *Builder) validationProblemType() *graphql.Object {
	b.mu.RLock()
	cached := b.problemType
	b.mu.RUnlock()
	if cached != nil {
		return cached
	}

	obj := graphql.NewObject(graphql.ObjectConfig{
		Name: "ValidationProblem",
		Fields: graphql.Fields{
			// Paths mix field names and list positions, so they travel as
			// JSON rather than a homogeneous list.
			"path":        &graphql.Field{Type: graphql.NewNonNull(jsonScalar)},
			"explanation": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	b.mu.Lock()
	if b.problemType == nil {
		b.problemType = obj
	}
	cached = b.problemType
	b.mu.Unlock()
	return cached
}

func (b *Builder) unknownProblemType() *graphql.Object {
	b.mu.RLock()
	cached := b.unknownProbType
	b.mu.RUnlock()
	if cached != nil {
		return cached
	}

	obj := graphql.NewObject(graphql.ObjectConfig{
		Name: "UnknownRecordProblem",
		Fields: graphql.Fields{
			"entity":    &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"recordId":  &graphql.Field{Type: bigIntScalar},
			"attribute": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"message":   &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	b.mu.Lock()
	if b.unknownProbType == nil {
		b.unknownProbType = obj
	}
	cached = b.unknownProbType
	b.mu.Unlock()
	return cached
}

func (b *Builder) resultResolveType(successType *graphql.Object) graphql.ResolveTypeFn {
	return func(p graphql.ResolveTypeParams) *graphql.Object {
		m, ok := p.Value.(map[string]interface{})
		if !ok {
			return successType
		}
		typename, _ := m["__typename"].(string)
		if typename == "" {
			return successType
		}
		if obj := b.sharedErrorType(typename); obj != nil {
			return obj
		}
		return successType
	}
}

// errorPayload classifies a mutation error into its union member payload.
// Unrecognized errors are logged and collapsed into InternalError so storage
// details never leak to clients.
func (b *Builder) errorPayload(p graphql.ResolveParams, err error) map[string]interface{} {
	if failure, ok := mutation.AsFailure(err); ok {
		return failure.Payload()
	}

	var nf *record.NotFoundError
	if errors.As(err, &nf) {
		return map[string]interface{}{
			"__typename": typenameNotFoundError,
			"message":    nf.Error(),
			"entity":     nf.Entity,
			"recordId":   nf.ID,
		}
	}

	var conflict *record.ConflictError
	if errors.As(err, &conflict) {
		return map[string]interface{}{
			"__typename": typenameConflictError,
			"message":    conflict.Message,
		}
	}

	var constraint *record.ConstraintError
	if errors.As(err, &constraint) {
		return map[string]interface{}{
			"__typename": typenameConstraintError,
			"message":    constraint.Message,
		}
	}

	logging.FromContext(p.Context).Error("mutation execution failed",
		slog.String("error", err.Error()),
	)
	return map[string]interface{}{
		"__typename": typenameInternalError,
		"message":    "internal server error",
	}
}
