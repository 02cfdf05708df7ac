package decom

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/opsforge/mothball/internal/domain/decom"
)

// DecomMetrics defines metrics operations needed by the orchestration
// services.
type DecomMetrics interface {
	// Phase lifecycle metrics.
	IncPhaseStarted(ctx context.Context, phase domain.Phase)
	IncPhaseCancelled(ctx context.Context, phase domain.Phase)
	ObservePhaseDuration(ctx context.Context, phase domain.Phase, duration time.Duration)

	// Per-target outcome metrics.
	IncTargetOutcome(ctx context.Context, phase domain.Phase, status domain.OutcomeStatus)

	// Worker pool metrics.
	SetActiveWorkers(ctx context.Context, count int)

	// Discovery metrics.
	ObserveBatchSize(ctx context.Context, size int)
}

type decomMetrics struct {
	phasesStarted   metric.Int64Counter
	phasesCancelled metric.Int64Counter
	phaseDuration   metric.Float64Histogram
	targetOutcomes  metric.Int64Counter
	activeWorkers   metric.Int64UpDownCounter
	batchSize       metric.Int64Histogram

	lastWorkerCount int64
}

const namespace = "mothball"

// NewDecomMetrics creates a new metrics instance backed by the provided
// meter provider.
func NewDecomMetrics(mp metric.MeterProvider) (DecomMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(decomMetrics)
	var err error

	if m.phasesStarted, err = meter.Int64Counter(
		"decom_phases_started_total",
		metric.WithDescription("Total number of phase invocations started"),
	); err != nil {
		return nil, err
	}

	if m.phasesCancelled, err = meter.Int64Counter(
		"decom_phases_cancelled_total",
		metric.WithDescription("Total number of phase invocations cancelled by a batch gate"),
	); err != nil {
		return nil, err
	}

	if m.phaseDuration, err = meter.Float64Histogram(
		"decom_phase_duration_seconds",
		metric.WithDescription("Time taken to drain one phase invocation"),
	); err != nil {
		return nil, err
	}

	if m.targetOutcomes, err = meter.Int64Counter(
		"decom_target_outcomes_total",
		metric.WithDescription("Per-target phase outcomes by status"),
	); err != nil {
		return nil, err
	}

	if m.activeWorkers, err = meter.Int64UpDownCounter(
		"decom_active_workers",
		metric.WithDescription("Number of phase executor workers currently running"),
	); err != nil {
		return nil, err
	}

	if m.batchSize, err = meter.Int64Histogram(
		"decom_batch_size",
		metric.WithDescription("Number of targets per batch run"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *decomMetrics) IncPhaseStarted(ctx context.Context, phase domain.Phase) {
	m.phasesStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase.String())))
}

func (m *decomMetrics) IncPhaseCancelled(ctx context.Context, phase domain.Phase) {
	m.phasesCancelled.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase.String())))
}

func (m *decomMetrics) ObservePhaseDuration(ctx context.Context, phase domain.Phase, duration time.Duration) {
	m.phaseDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("phase", phase.String())))
}

func (m *decomMetrics) IncTargetOutcome(ctx context.Context, phase domain.Phase, status domain.OutcomeStatus) {
	m.targetOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase.String()),
		attribute.String("status", status.String()),
	))
}

func (m *decomMetrics) SetActiveWorkers(ctx context.Context, count int) {
	delta := int64(count) - m.lastWorkerCount
	m.lastWorkerCount = int64(count)
	m.activeWorkers.Add(ctx, delta)
}

func (m *decomMetrics) ObserveBatchSize(ctx context.Context, size int) {
	m.batchSize.Record(ctx, int64(size))
}

// NoopMetrics returns a DecomMetrics implementation that records nothing.
// Intended for tests.
func NoopMetrics() DecomMetrics { return noopMetrics{} }

type noopMetrics struct{}

func (noopMetrics) IncPhaseStarted(context.Context, domain.Phase)                  {}
func (noopMetrics) IncPhaseCancelled(context.Context, domain.Phase)                {}
func (noopMetrics) ObservePhaseDuration(context.Context, domain.Phase, time.Duration) {}
func (noopMetrics) IncTargetOutcome(context.Context, domain.Phase, domain.OutcomeStatus) {
}
func (noopMetrics) SetActiveWorkers(context.Context, int) {}
func (noopMetrics) ObserveBatchSize(context.Context, int) {}
