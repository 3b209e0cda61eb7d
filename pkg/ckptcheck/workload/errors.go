package workload

import (
	"errors"
	"fmt"
)

// Status is a per-process outcome code.
type Status int

// Status codes. Only WorkDone is a success.
const (
	WorkDone         Status = 0
	VerifyFailed     Status = 1
	CheckpointFailed Status = 2
	RecoveryFailed   Status = 3
)

func (s Status) String() string {
	switch s {
	case WorkDone:
		return "work done"
	case VerifyFailed:
		return "verify failed"
	case CheckpointFailed:
		return "checkpoint failed"
	case RecoveryFailed:
		return "recovery failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrAlreadyRecovered is returned by Recovery.Step after the last phase.
var ErrAlreadyRecovered = errors.New("recovery already complete")

// CheckpointError is a checkpoint request the library did not complete.
type CheckpointError struct {
	ID    int
	Level int
	Err   error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %d at level %d: %v", e.ID, e.Level, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// RecoveryError is a failed recovery or recovered state that does not
// match the model. Index is -1 unless a buffer element is at fault.
type RecoveryError struct {
	Field string
	Index int
	Got   int64
	Want  int64
	Err   error
}

func (e *RecoveryError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("recovery: %v", e.Err)
	case e.Index >= 0:
		return fmt.Sprintf("recovered %s[%d] = %d, want %d", e.Field, e.Index, e.Got, e.Want)
	default:
		return fmt.Sprintf("recovered %s = %d, want %d", e.Field, e.Got, e.Want)
	}
}

func (e *RecoveryError) Unwrap() error {
	return e.Err
}

// VerifyError is a buffer element that differs from the final value after
// a completed run.
type VerifyError struct {
	Index int
	Got   int64
	Want  int64
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("buffer[%d] = %d, want %d", e.Index, e.Got, e.Want)
}
