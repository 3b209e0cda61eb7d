package workload

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/model"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/observability"
)

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) DriverOption {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithSpans sets the span manager.
func WithSpans(s observability.SpanManager) DriverOption {
	return func(d *Driver) {
		d.spans = s
	}
}

// Driver runs the workload of one process.
type Driver struct {
	lib      Library
	level    int
	failMode bool

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// NewDriver creates a driver that checkpoints at level. With failMode the
// run stops at model.StopIteration and leaves its checkpoints behind.
func NewDriver(lib Library, level int, failMode bool, opts ...DriverOption) *Driver {
	d := &Driver{
		lib:      lib,
		level:    level,
		failMode: failMode,
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes the workload of rank and returns its final state, which is
// also returned alongside an error. A pending restart is recovered and
// validated first unless the driver runs in fail mode.
//
// Errors are *CheckpointError, *RecoveryError or *VerifyError.
func (d *Driver) Run(ctx context.Context, rank int) (*ProcessState, error) {
	s := NewProcessState(rank)
	if err := s.Protect(d.lib); err != nil {
		return s, &CheckpointError{Level: d.level, Err: err}
	}

	if d.lib.Status() == ckpt.StatusPending && !d.failMode {
		if err := d.recover(ctx, s); err != nil {
			observability.LogRecoveryError(d.logger, err)
			return s, err
		}
	}

	wctx, span := d.spans.StartPhaseSpan(ctx, observability.PhaseWorkload)
	err := d.work(wctx, s)
	d.spans.EndSpanWithError(span, err)
	if err != nil {
		return s, err
	}

	if int(s.Iteration) < model.Iterations {
		observability.LogWorkStopped(d.logger, int(s.Iteration), int(s.BufferLength))
		return s, nil
	}
	return s, VerifyFinal(s)
}

func (d *Driver) recover(ctx context.Context, s *ProcessState) (err error) {
	ctx, span := d.spans.StartPhaseSpan(ctx, observability.PhaseRecovery)
	defer func() {
		d.metrics.RecordRecovery(ctx, s.Bytes(), err)
		d.spans.EndSpanWithError(span, err)
	}()

	if err := NewRecovery(d.lib, s).Run(ctx); err != nil {
		return &RecoveryError{Index: -1, Err: err}
	}
	report, err := ValidateRecovery(s.Rank, s)
	if err != nil {
		return err
	}
	observability.LogRecovery(d.logger, report.Iteration, report.BufferLength, report.RecoveredBytes)
	return nil
}

// work runs the main loop from the current iteration.
func (d *Driver) work(ctx context.Context, s *ProcessState) error {
	for int(s.Iteration) < model.Iterations {
		i := int(s.Iteration)
		if d.failMode && i == model.StopIteration {
			return nil
		}

		if model.IsCheckpointIteration(i) {
			if err := d.checkpoint(ctx, s, model.CheckpointID(i)); err != nil {
				return err
			}
		}

		if err := s.Grow(d.lib); err != nil {
			return &CheckpointError{ID: model.CheckpointID(i), Level: d.level, Err: err}
		}
	}
	return nil
}

func (d *Driver) checkpoint(ctx context.Context, s *ProcessState, id int) error {
	if err := s.ProtectBuffer(d.lib); err != nil {
		return &CheckpointError{ID: id, Level: d.level, Err: err}
	}

	start := time.Now()
	err := d.lib.Checkpoint(ctx, id, d.level)
	d.metrics.RecordCheckpoint(ctx, d.level, s.Bytes(), time.Since(start), err)
	if err != nil {
		observability.LogCheckpointError(d.logger, id, d.level, err)
		return &CheckpointError{ID: id, Level: d.level, Err: err}
	}
	observability.LogCheckpoint(d.logger, id, d.level, s.Bytes())
	return nil
}
