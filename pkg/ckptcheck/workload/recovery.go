package workload

import (
	"context"
	"fmt"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/model"
)

// RecoveryPhase is the progress of a two-pass recovery.
type RecoveryPhase int

// Recovery phases, in order.
const (
	AwaitingScalarRecovery RecoveryPhase = iota
	AwaitingArrayRecovery
	Recovered
)

func (p RecoveryPhase) String() string {
	switch p {
	case AwaitingScalarRecovery:
		return "awaiting scalar recovery"
	case AwaitingArrayRecovery:
		return "awaiting array recovery"
	case Recovered:
		return "recovered"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Recovery restores a ProcessState whose buffer size is itself protected.
//
// The first pass registers an empty buffer and recovers only the scalars.
// The buffer is then reallocated to the recovered length and registered
// again, and the second pass recovers its contents.
type Recovery struct {
	lib   Library
	state *ProcessState
	phase RecoveryPhase
}

// NewRecovery prepares the recovery of state through lib.
func NewRecovery(lib Library, state *ProcessState) *Recovery {
	return &Recovery{lib: lib, state: state}
}

// Phase returns the current phase.
func (r *Recovery) Phase() RecoveryPhase {
	return r.phase
}

// Step runs the current phase and advances to the next one.
func (r *Recovery) Step(ctx context.Context) error {
	switch r.phase {
	case AwaitingScalarRecovery:
		r.state.Buffer = nil
		if err := r.state.ProtectBuffer(r.lib); err != nil {
			return err
		}
		if err := r.lib.Recover(ctx); err != nil {
			return fmt.Errorf("recover scalars: %w", err)
		}
		if r.state.BufferLength < 0 {
			return fmt.Errorf("recovered negative buffer length %d", r.state.BufferLength)
		}
		r.phase = AwaitingArrayRecovery

	case AwaitingArrayRecovery:
		r.state.Resize()
		if err := r.state.ProtectBuffer(r.lib); err != nil {
			return err
		}
		if err := r.lib.Recover(ctx); err != nil {
			return fmt.Errorf("recover buffer: %w", err)
		}
		r.phase = Recovered

	default:
		return ErrAlreadyRecovered
	}
	return nil
}

// Run steps until the state is recovered.
func (r *Recovery) Run(ctx context.Context) error {
	for r.phase != Recovered {
		if err := r.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RecoveryReport summarises a validated recovery.
type RecoveryReport struct {
	Iteration    int
	BufferLength int

	// RecoveredBytes is the size the checkpoint implies: both scalars and
	// the buffer. It is informational.
	RecoveredBytes int64
}

// ValidateRecovery checks recovered state against the model. A restart
// always follows a run stopped early, so the iteration must be the last
// one checkpointed before the early stop.
func ValidateRecovery(rank int, s *ProcessState) (RecoveryReport, error) {
	wantI := model.LastCheckpointedIteration(true)
	if int(s.Iteration) != wantI {
		return RecoveryReport{}, &RecoveryError{Field: "iteration", Index: -1, Got: int64(s.Iteration), Want: int64(wantI)}
	}

	wantLen := model.ExpectedLength(rank, int(s.Iteration))
	if int(s.BufferLength) != wantLen {
		return RecoveryReport{}, &RecoveryError{Field: "buffer length", Index: -1, Got: int64(s.BufferLength), Want: int64(wantLen)}
	}
	if len(s.Buffer) != wantLen {
		return RecoveryReport{}, &RecoveryError{Field: "buffer size", Index: -1, Got: int64(len(s.Buffer)), Want: int64(wantLen)}
	}

	want := model.ExpectedElement(rank, int(s.Iteration))
	for i, v := range s.Buffer {
		if v != want {
			return RecoveryReport{}, &RecoveryError{Field: "buffer", Index: i, Got: v, Want: want}
		}
	}

	return RecoveryReport{
		Iteration:      int(s.Iteration),
		BufferLength:   int(s.BufferLength),
		RecoveredBytes: s.Bytes(),
	}, nil
}

// VerifyFinal checks a completed run: every element must equal
// model.ExpectedFinalValue.
func VerifyFinal(s *ProcessState) error {
	want := model.ExpectedFinalValue(s.Rank)
	for i, v := range s.Buffer {
		if v != want {
			return &VerifyError{Index: i, Got: v, Want: want}
		}
	}
	return nil
}
