package mutation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded per mutation execution. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	duration    metric.Float64Histogram
	executions  metric.Int64Counter
	changeCount metric.Int64Histogram
}

// NewMetrics registers the mutation instruments against the global meter
// provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("yggdrasil/mutation")

	duration, err := meter.Float64Histogram(
		"mutation.duration",
		metric.WithDescription("Duration of mutation executions in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mutation duration histogram: %w", err)
	}

	executions, err := meter.Int64Counter(
		"mutation.executions.total",
		metric.WithDescription("Total number of mutation executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mutation execution counter: %w", err)
	}

	changeCount, err := meter.Int64Histogram(
		"mutation.changes.count",
		metric.WithDescription("Number of recorded changes per mutation execution"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mutation change histogram: %w", err)
	}

	return &Metrics{
		duration:    duration,
		executions:  executions,
		changeCount: changeCount,
	}, nil
}

func (m *Metrics) observe(ctx context.Context, entity, outcome string, elapsed time.Duration, changes int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mutation.entity", entity),
		attribute.String("mutation.outcome", outcome),
	)
	m.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	m.executions.Add(ctx, 1, attrs)
	m.changeCount.Record(ctx, int64(changes), attrs)
}
