package ckptcheck

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/workload"
)

// ErrConfigRewrite indicates the coordinating process could not update the
// configuration, either Basic:ckpt_io before the run or the restart keys
// when the checkpoint library starts.
var ErrConfigRewrite = ckpt.ErrConfigRewrite

// UsageError reports invalid or missing run parameters.
type UsageError struct {
	// Position is the 1-based parameter position.
	Position int
	// Name is the parameter's name.
	Name string
	// Msg describes the problem.
	Msg string
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	return fmt.Sprintf("parameter %d (%s): %s", e.Position, e.Name, e.Msg)
}

// StatusOf maps an error returned by Run to the per-process status code.
// Workload errors keep their own code; every other failure, artifact size
// mismatches included, is a verification failure.
func StatusOf(err error) workload.Status {
	if err == nil {
		return workload.WorkDone
	}

	var (
		cerr *workload.CheckpointError
		rerr *workload.RecoveryError
	)
	switch {
	case errors.As(err, &rerr):
		return workload.RecoveryFailed
	case errors.As(err, &cerr):
		return workload.CheckpointFailed
	default:
		return workload.VerifyFailed
	}
}

// ExitCode maps an error to the process exit code: 0 on success, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
