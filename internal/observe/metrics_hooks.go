package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/harnessd/internal/harness"
)

const instrumentationName = "github.com/fyrsmithlabs/harnessd/internal/observe"

// MetricsRuntimeHooks records phase outcomes and durations as OTEL
// metrics.
type MetricsRuntimeHooks struct {
	phaseStarts   metric.Int64Counter
	phaseOutcomes metric.Int64Counter
	phaseDuration metric.Float64Histogram
}

// NewMetricsRuntimeHooks builds metrics hooks against the global meter
// provider.
func NewMetricsRuntimeHooks() (*MetricsRuntimeHooks, error) {
	meter := otel.Meter(instrumentationName)
	starts, err := meter.Int64Counter("harnessd.phase_starts",
		metric.WithDescription("Phases started"))
	if err != nil {
		return nil, err
	}
	outcomes, err := meter.Int64Counter("harnessd.phase_outcomes",
		metric.WithDescription("Phases finished, by outcome"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("harnessd.phase_duration_seconds",
		metric.WithDescription("Wall time per phase"))
	if err != nil {
		return nil, err
	}
	return &MetricsRuntimeHooks{
		phaseStarts:   starts,
		phaseOutcomes: outcomes,
		phaseDuration: duration,
	}, nil
}

func (h *MetricsRuntimeHooks) OnPhaseStart(phase harness.Phase, _, _ string) {
	h.phaseStarts.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("phase", string(phase))))
}

func (h *MetricsRuntimeHooks) OnPhaseSuccess(phase harness.Phase, _, _ string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("phase", string(phase)),
		attribute.String("outcome", "success"),
	)
	h.phaseOutcomes.Add(context.Background(), 1, attrs)
	h.phaseDuration.Record(context.Background(), elapsed.Seconds(), attrs)
}

func (h *MetricsRuntimeHooks) OnPhaseFailure(phase harness.Phase, _, _ string, _ error, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("phase", string(phase)),
		attribute.String("outcome", "failure"),
	)
	h.phaseOutcomes.Add(context.Background(), 1, attrs)
	h.phaseDuration.Record(context.Background(), elapsed.Seconds(), attrs)
}
