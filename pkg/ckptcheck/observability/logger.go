// Package observability provides logging, metrics, and tracing for the
// checkpoint verification harness.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds process identity to a logger.
// Returns a new logger with rank and physical_id fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, 2, 17)
//	enriched.Info("doing work") // includes rank, physical_id
func EnrichLogger(logger *slog.Logger, rank, physicalID int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.Int("rank", rank),
		slog.Int("physical_id", physicalID),
	)
}

// LogRunStart logs the start of one process's run.
func LogRunStart(logger *slog.Logger, level int, failMode bool, ckptIO int) {
	if logger == nil {
		return
	}
	logger.Info("run starting",
		slog.Int("ckpt_level", level),
		slog.Bool("fail_mode", failMode),
		slog.Int("ckpt_io", ckptIO),
	)
}

// LogCheckpoint logs a completed checkpoint.
func LogCheckpoint(logger *slog.Logger, id, level int, sizeBytes int64) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint taken",
		slog.Int("checkpoint_id", id),
		slog.Int("ckpt_level", level),
		slog.Int64("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs a failed checkpoint.
func LogCheckpointError(logger *slog.Logger, id, level int, err error) {
	if logger == nil {
		return
	}
	logger.Error("checkpoint failed",
		slog.Int("checkpoint_id", id),
		slog.Int("ckpt_level", level),
		slog.String("error", err.Error()),
	)
}

// LogRecovery logs a validated recovery.
func LogRecovery(logger *slog.Logger, iteration, length int, recoveredBytes int64) {
	if logger == nil {
		return
	}
	logger.Info("state recovered",
		slog.Int("iteration", iteration),
		slog.Int("buffer_length", length),
		slog.Int64("recovered_bytes", recoveredBytes),
	)
}

// LogRecoveryError logs a failed or invalid recovery.
func LogRecoveryError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Error("recovery failed",
		slog.String("error", err.Error()),
	)
}

// LogArtifactCheck logs one size comparison.
func LogArtifactCheck(logger *slog.Logger, path string, actual, expected int64) {
	if logger == nil {
		return
	}
	if actual == expected {
		logger.Debug("artifact size ok",
			slog.String("path", path),
			slog.Int64("size_bytes", actual),
		)
		return
	}
	logger.Error("artifact size mismatch",
		slog.String("path", path),
		slog.Int64("actual_bytes", actual),
		slog.Int64("expected_bytes", expected),
	)
}

// LogArtifactSkipped logs an artifact kind whose size is not modelled.
func LogArtifactSkipped(logger *slog.Logger, path, kind string) {
	if logger == nil {
		return
	}
	logger.Debug("artifact not size-checked",
		slog.String("path", path),
		slog.String("kind", kind),
	)
}

// LogArtifactWarning logs a file that could not be classified.
func LogArtifactWarning(logger *slog.Logger, path string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("unrecognized artifact",
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
}

// LogVerdict logs the final status of a process.
func LogVerdict(logger *slog.Logger, code int, err error, durationMs float64) {
	if logger == nil {
		return
	}
	if err == nil {
		logger.Info("run completed",
			slog.Int("status", code),
			slog.Float64("duration_ms", durationMs),
		)
		return
	}
	logger.Error("run failed",
		slog.Int("status", code),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}

// LogWorkStopped logs a run halted early to leave artifacts for a restart.
func LogWorkStopped(logger *slog.Logger, iteration, length int) {
	if logger == nil {
		return
	}
	logger.Info("work stopped",
		slog.Int("iteration", iteration),
		slog.Int("buffer_length", length),
	)
}
