// Package workload drives the synthetic size-growing array through the
// checkpoint library and checks what comes back.
//
// Each process owns a ProcessState: an iteration counter, the buffer length
// and the buffer itself. Every iteration the buffer grows by rank elements
// and every element grows by rank, so after i iterations the buffer holds
// model.ExpectedLength(rank, i) copies of model.ExpectedElement(rank, i).
// A checkpoint is requested every model.CheckInterval iterations.
package workload

import (
	"context"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/model"
)

// Region ids the state registers with the library. The encoding order of
// the library follows the ids, so the artifact size model depends on them.
const (
	RegionIteration = 0
	RegionLength    = 1
	RegionBuffer    = 2
)

// Library is the part of the checkpoint library the workload uses.
// *ckpt.Session implements it.
type Library interface {
	Protect(id int, r ckpt.Region) error
	Status() ckpt.Status
	Checkpoint(ctx context.Context, id, level int) error
	Recover(ctx context.Context) error
}

// ProcessState is the protected state of one process.
type ProcessState struct {
	Rank         int
	Iteration    int32
	BufferLength int32
	Buffer       []int64
}

// NewProcessState returns the state of rank before the first iteration.
func NewProcessState(rank int) *ProcessState {
	n := model.ExpectedLength(rank, 0)
	return &ProcessState{
		Rank:         rank,
		BufferLength: int32(n),
		Buffer:       make([]int64, n),
	}
}

// Protect registers all three regions with lib.
func (s *ProcessState) Protect(lib Library) error {
	if err := lib.Protect(RegionIteration, ckpt.Int32(&s.Iteration)); err != nil {
		return err
	}
	if err := lib.Protect(RegionLength, ckpt.Int32(&s.BufferLength)); err != nil {
		return err
	}
	return s.ProtectBuffer(lib)
}

// ProtectBuffer registers the buffer's current storage. It must follow
// every reallocation.
func (s *ProcessState) ProtectBuffer(lib Library) error {
	return lib.Protect(RegionBuffer, ckpt.Int64s(s.Buffer))
}

// Resize reallocates the buffer to BufferLength elements, keeping the
// common prefix.
func (s *ProcessState) Resize() {
	buf := make([]int64, s.BufferLength)
	copy(buf, s.Buffer)
	s.Buffer = buf
}

// Grow runs one iteration: the buffer grows by Rank elements, every element
// becomes the previous first element plus Rank, and the new storage is
// protected again.
func (s *ProcessState) Grow(lib Library) error {
	var first int64
	if len(s.Buffer) > 0 {
		first = s.Buffer[0]
	}

	s.BufferLength += int32(s.Rank)
	s.Resize()
	for i := range s.Buffer {
		s.Buffer[i] = first + int64(s.Rank)
	}
	if err := s.ProtectBuffer(lib); err != nil {
		return err
	}
	s.Iteration++
	return nil
}

// Bytes is the encoded size of the protected regions.
func (s *ProcessState) Bytes() int64 {
	return 2*4 + int64(s.BufferLength)*8
}
