package observability

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records harness metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordCheckpoint records one checkpoint request and its payload size.
	RecordCheckpoint(ctx context.Context, level int, sizeBytes int64, duration time.Duration, err error)

	// RecordRecovery records a recovery attempt.
	RecordRecovery(ctx context.Context, recoveredBytes int64, err error)

	// RecordArtifactCheck records one artifact inspected by the verifier.
	RecordArtifactCheck(ctx context.Context, kind string, ok bool)

	// RecordRun records one process's final status.
	RecordRun(ctx context.Context, failMode bool, status int, duration time.Duration)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	checkpoints       metric.Int64Counter
	checkpointErrors  metric.Int64Counter
	checkpointSize    metric.Int64Histogram
	checkpointLatency metric.Float64Histogram
	recoveries        metric.Int64Counter
	recoveredBytes    metric.Int64Histogram
	artifactChecks    metric.Int64Counter
	runs              metric.Int64Counter
	runLatency        metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("ckptcheck")

	checkpoints, err := meter.Int64Counter("ckptcheck.checkpoint.count",
		metric.WithDescription("Number of checkpoint requests"),
	)
	if err != nil {
		return nil, err
	}

	checkpointErrors, err := meter.Int64Counter("ckptcheck.checkpoint.errors",
		metric.WithDescription("Number of failed checkpoint requests"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("ckptcheck.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint payload size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	checkpointLatency, err := meter.Float64Histogram("ckptcheck.checkpoint.latency_ms",
		metric.WithDescription("Checkpoint latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	recoveries, err := meter.Int64Counter("ckptcheck.recovery.count",
		metric.WithDescription("Number of recovery attempts"),
	)
	if err != nil {
		return nil, err
	}

	recoveredBytes, err := meter.Int64Histogram("ckptcheck.recovery.size_bytes",
		metric.WithDescription("Recovered state size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	artifactChecks, err := meter.Int64Counter("ckptcheck.artifact.checks",
		metric.WithDescription("Number of artifacts inspected by the verifier"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter("ckptcheck.run.count",
		metric.WithDescription("Number of process runs"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("ckptcheck.run.latency_ms",
		metric.WithDescription("Process run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		checkpoints:       checkpoints,
		checkpointErrors:  checkpointErrors,
		checkpointSize:    checkpointSize,
		checkpointLatency: checkpointLatency,
		recoveries:        recoveries,
		recoveredBytes:    recoveredBytes,
		artifactChecks:    artifactChecks,
		runs:              runs,
		runLatency:        runLatency,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordCheckpoint records a checkpoint request.
func (m *otelMetrics) RecordCheckpoint(ctx context.Context, level int, sizeBytes int64, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.Int("level", level))

	m.checkpoints.Add(ctx, 1, attrs)
	m.checkpointLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.checkpointErrors.Add(ctx, 1, attrs)
		return
	}
	m.checkpointSize.Record(ctx, sizeBytes, attrs)
}

// RecordRecovery records a recovery attempt.
func (m *otelMetrics) RecordRecovery(ctx context.Context, recoveredBytes int64, err error) {
	attrs := metric.WithAttributes(attribute.Bool("success", err == nil))
	m.recoveries.Add(ctx, 1, attrs)
	if err == nil {
		m.recoveredBytes.Record(ctx, recoveredBytes, attrs)
	}
}

// RecordArtifactCheck records one inspected artifact.
func (m *otelMetrics) RecordArtifactCheck(ctx context.Context, kind string, ok bool) {
	m.artifactChecks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("ok", ok),
	))
}

// RecordRun records one process's final status.
func (m *otelMetrics) RecordRun(ctx context.Context, failMode bool, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.Bool("fail_mode", failMode),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}
