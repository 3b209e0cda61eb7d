package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/observability"
	"github.com/spf13/afero"
)

// SizeMismatchError reports an artifact whose size differs from the model.
type SizeMismatchError struct {
	Path string
	// Rank is the logical rank of the writer, or -1 for a shared file.
	Rank     int
	Actual   int64
	Expected int64
}

// Error implements the error interface.
func (e *SizeMismatchError) Error() string {
	if e.Rank < 0 {
		return fmt.Sprintf("shared artifact %s: size %d, expected %d", e.Path, e.Actual, e.Expected)
	}
	return fmt.Sprintf("artifact %s of rank %d: size %d, expected %d", e.Path, e.Rank, e.Actual, e.Expected)
}

// DirectoryAccessError reports a level directory that could not be listed.
type DirectoryAccessError struct {
	Dir string
	Err error
}

// Error implements the error interface.
func (e *DirectoryAccessError) Error() string {
	return fmt.Sprintf("list artifact directory %s: %v", e.Dir, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DirectoryAccessError) Unwrap() error {
	return e.Err
}

// Check is the outcome of inspecting one artifact.
type Check struct {
	Descriptor

	// Rank is the writer's logical rank, -1 when not applicable.
	Rank     int
	Expected int64

	// Skipped is true for kinds whose size is not modelled.
	Skipped bool
}

// OK reports whether the artifact passed.
func (c Check) OK() bool {
	return c.Skipped || c.Size == c.Expected
}

// Warning is a file that was found but not classified.
type Warning struct {
	Path string
	Err  error
}

// Report lists every artifact the verifier looked at.
type Report struct {
	Dirs     []string
	Checks   []Check
	Warnings []Warning
}

// Checked returns the number of artifacts whose size was compared.
func (r *Report) Checked() int {
	n := 0
	for _, c := range r.Checks {
		if !c.Skipped {
			n++
		}
	}
	return n
}

// Mismatches returns the failed checks.
func (r *Report) Mismatches() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.OK() {
			out = append(out, c)
		}
	}
	return out
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithLogger sets the logger for per-artifact results.
func WithLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) VerifierOption {
	return func(v *Verifier) {
		if m != nil {
			v.metrics = m
		}
	}
}

// Verifier compares the artifacts on storage with the size model.
type Verifier struct {
	fs      afero.Fs
	layout  Layout
	model   SizeModel
	ids     *IdentifierMap
	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// NewVerifier creates a verifier for the artifacts described by layout.
func NewVerifier(fs afero.Fs, layout Layout, model SizeModel, ids *IdentifierMap, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		fs:      fs,
		layout:  layout,
		model:   model,
		ids:     ids,
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify inspects every level directory. Size mismatches are collected and
// returned joined, after every artifact was checked. An unreadable
// directory or an artifact from an unknown process stops verification.
// Files that match no artifact pattern are reported as warnings only.
func (v *Verifier) Verify(ctx context.Context) (*Report, error) {
	report := &Report{Dirs: v.layout.Dirs()}
	var mismatches []error

	for _, dir := range report.Dirs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		entries, err := afero.ReadDir(v.fs, dir)
		if err != nil {
			return report, &DirectoryAccessError{Dir: dir, Err: err}
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			d, err := ParseDescriptor(dir, entry.Name())
			if err != nil {
				path := filepath.Join(dir, entry.Name())
				report.Warnings = append(report.Warnings, Warning{Path: path, Err: err})
				observability.LogArtifactWarning(v.logger, path, err)
				continue
			}
			d.Size = entry.Size()

			check, err := v.check(d)
			if err != nil {
				return report, err
			}
			report.Checks = append(report.Checks, check)
			v.metrics.RecordArtifactCheck(ctx, d.Kind.String(), check.OK())

			if check.Skipped {
				observability.LogArtifactSkipped(v.logger, d.Path(), d.Kind.String())
				continue
			}
			observability.LogArtifactCheck(v.logger, d.Path(), d.Size, check.Expected)
			if !check.OK() {
				mismatches = append(mismatches, &SizeMismatchError{
					Path:     d.Path(),
					Rank:     check.Rank,
					Actual:   d.Size,
					Expected: check.Expected,
				})
			}
		}
	}

	return report, errors.Join(mismatches...)
}

func (v *Verifier) check(d Descriptor) (Check, error) {
	c := Check{Descriptor: d, Rank: -1}
	switch d.Kind {
	case KindRank:
		rank, err := v.ids.Rank(d.PhysicalID)
		if err != nil {
			return c, fmt.Errorf("artifact %s: %w", d.Path(), err)
		}
		c.Rank = rank
		c.Expected = v.model.ProcessBytes(rank)
	case KindShared:
		c.Expected = v.model.SharedBytes()
	default:
		c.Skipped = true
	}
	return c, nil
}
