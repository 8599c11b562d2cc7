// Package mutation executes multi-record mutation operations: it matches a
// nested input tree against a tree of backing records, applies attribute
// changes, persists them inside one transaction, and maps validation
// failures back onto the exact input paths that produced them.
package mutation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nater540/yggdrasil/fieldmap"
	"github.com/nater540/yggdrasil/internal/logging"
	"github.com/nater540/yggdrasil/record"
)

const (
	outcomeSuccess = "success"
	outcomeInvalid = "invalid"
	outcomeError   = "error"
)

// Executor runs mutation operations against one record store. It is safe for
// concurrent use; every Execute call owns its own change log and match state.
type Executor struct {
	store   record.Store
	tracer  trace.Tracer
	metrics *Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics attaches mutation metrics to the executor.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates an executor over the given store.
func NewExecutor(store record.Store, opts ...Option) *Executor {
	e := &Executor{
		store:  store,
		tracer: otel.Tracer("yggdrasil/mutation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of a successful mutation: the root record and every
// touched record that survived persistence, plus the recorded change log.
type Result struct {
	Root    record.Record
	Records []record.Record
	Changes []Change
}

// Execute runs one mutation invocation: match, apply, persist, and on
// validation failure resolve every error onto its input path. The returned
// error is a *Failure for validation problems; lookup and storage failures
// propagate as their typed store errors.
func (e *Executor) Execute(ctx context.Context, fm *fieldmap.FieldMap, root record.Record, input map[string]any) (_ *Result, err error) {
	opID := uuid.NewString()
	started := time.Now()
	entity := root.EntityName()

	ctx, span := e.tracer.Start(ctx, "yggdrasil.mutation",
		trace.WithAttributes(
			attribute.String("mutation.entity", entity),
			attribute.String("mutation.operation_id", opID),
		),
	)
	logger := logging.FromContext(ctx).WithFields(
		slog.String("operation_id", opID),
		slog.String("entity", entity),
	)

	outcome := outcomeSuccess
	changeCount := 0
	defer func() {
		if err != nil {
			span.RecordError(err)
			if _, invalid := AsFailure(err); invalid {
				outcome = outcomeInvalid
			} else {
				outcome = outcomeError
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.SetAttributes(
			attribute.String("mutation.outcome", outcome),
			attribute.Int("mutation.changes", changeCount),
		)
		span.End()
		e.metrics.observe(ctx, entity, outcome, time.Since(started), changeCount)
	}()

	a := newApplier(e.store)
	if err := a.root(ctx, fm, root, input); err != nil {
		return nil, err
	}
	changeCount = len(a.changes)

	if len(a.problems) > 0 {
		logger.Debug("mutation rejected before persistence",
			slog.Int("problems", len(a.problems)),
		)
		return nil, newFailure(input, a.problems, nil)
	}

	if len(a.changes) == 0 {
		logger.Debug("mutation produced no changes")
		return &Result{Root: root}, nil
	}

	survivors, persistErr := persist(ctx, e.store, a.changes)
	if persistErr == nil {
		logger.Info("mutation persisted",
			slog.Int("changes", len(a.changes)),
			slog.Int("records", len(survivors)),
		)
		return &Result{Root: root, Records: survivors, Changes: a.changes}, nil
	}

	if !record.IsInvalid(persistErr) {
		return nil, persistErr
	}

	res, resolveErr := resolveErrors(ctx, e.store, fm, root, input, a.changes)
	if resolveErr != nil {
		return nil, resolveErr
	}
	if len(res.problems) == 0 && len(res.unknown) == 0 {
		// The store rejected a record whose errors are no longer observable;
		// fall back to the save-time error list so the failure isn't empty.
		var inv *record.InvalidError
		if errors.As(persistErr, &inv) {
			for _, fe := range inv.Errors {
				res.unknown = append(res.unknown, UnknownProblem{
					Entity:    inv.Record.EntityName(),
					RecordID:  inv.Record.ID(),
					Attribute: fe.Attribute,
					Message:   fe.Message,
				})
			}
		}
	}
	logger.Debug("mutation failed validation",
		slog.Int("problems", len(res.problems)),
		slog.Int("unknown", len(res.unknown)),
	)
	return nil, newFailure(input, res.problems, res.unknown)
}
