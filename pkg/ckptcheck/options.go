package ckptcheck

import (
	"log/slog"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt/catalog"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/observability"
	"github.com/spf13/afero"
)

// runConfig holds configuration for one process's run.
type runConfig struct {
	fs      afero.Fs
	store   catalog.Store
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

func defaultRunConfig() runConfig {
	return runConfig{
		fs:      afero.NewOsFs(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// Option configures Run.
type Option func(*runConfig)

// WithFS sets the file system holding the configuration and the
// artifacts. Default: the OS file system.
func WithFS(fs afero.Fs) Option {
	return func(c *runConfig) {
		if fs != nil {
			c.fs = fs
		}
	}
}

// WithStore sets the checkpoint catalog shared by every process. Default:
// a SQLite catalog in the library's metadata directory.
func WithStore(store catalog.Store) Option {
	return func(c *runConfig) {
		c.store = store
	}
}

// WithLogger enables logging. Each process adds its identity.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	outcome := ckptcheck.Run(ctx, world, params, ckptcheck.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics.
func WithMetrics(enabled bool) Option {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry tracing through the global tracer
// provider.
func WithTracing(enabled bool) Option {
	return func(c *runConfig) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}
