package workload_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/model"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLibrary keeps checkpoints in memory and encodes regions the way the
// real library does.
type fakeLibrary struct {
	regions  map[int]ckpt.Region
	status   ckpt.Status
	saved    []byte
	ids      []int
	failAt   int
	recovers int
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{regions: make(map[int]ckpt.Region), failAt: -1}
}

func (f *fakeLibrary) Protect(id int, r ckpt.Region) error {
	f.regions[id] = r
	return nil
}

func (f *fakeLibrary) Status() ckpt.Status { return f.status }

func (f *fakeLibrary) Checkpoint(_ context.Context, id, _ int) error {
	if id == f.failAt {
		return errors.New("disk full")
	}
	f.saved = f.saved[:0]
	for _, rid := range f.sortedIDs() {
		f.saved = f.regions[rid].AppendTo(f.saved)
	}
	f.ids = append(f.ids, id)
	return nil
}

func (f *fakeLibrary) Recover(context.Context) error {
	f.recovers++
	pos := 0
	for _, rid := range f.sortedIDs() {
		r := f.regions[rid]
		if pos+r.Size() > len(f.saved) {
			return ckpt.ErrShortCheckpoint
		}
		if err := r.Decode(f.saved[pos : pos+r.Size()]); err != nil {
			return err
		}
		pos += r.Size()
	}
	return nil
}

func (f *fakeLibrary) sortedIDs() []int {
	ids := make([]int, 0, len(f.regions))
	for id := range f.regions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// restart turns the library's last checkpoint into a pending restart.
func (f *fakeLibrary) restart() *fakeLibrary {
	next := newFakeLibrary()
	next.saved = slices.Clone(f.saved)
	next.status = ckpt.StatusPending
	return next
}

func TestProcessState_Grow(t *testing.T) {
	lib := newFakeLibrary()
	s := workload.NewProcessState(2)
	require.NoError(t, s.Protect(lib))

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Grow(lib))
		assert.Equal(t, int32(i), s.Iteration)
		assert.Equal(t, int32(model.ExpectedLength(2, i)), s.BufferLength)
		require.Len(t, s.Buffer, model.ExpectedLength(2, i))
		for _, v := range s.Buffer {
			require.Equal(t, model.ExpectedElement(2, i), v)
		}
		assert.Equal(t, s.Bytes(), int64(lib.regions[workload.RegionBuffer].Size()+8),
			"grown buffer is protected again")
	}
}

func TestDriver_FailModeStopsEarly(t *testing.T) {
	lib := newFakeLibrary()
	s, err := workload.NewDriver(lib, 1, true).Run(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, int32(model.StopIteration), s.Iteration)
	assert.Equal(t, int32(318), s.BufferLength)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, lib.ids)
	assert.Len(t, lib.saved, 8+8*model.ExpectedLength(2, 60))
}

func TestDriver_CompleteRun(t *testing.T) {
	lib := newFakeLibrary()
	s, err := workload.NewDriver(lib, 1, false).Run(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, int32(model.Iterations), s.Iteration)
	assert.Equal(t, model.ExpectedFinalValue(3), s.Buffer[0])
	assert.Len(t, lib.ids, 12)
	assert.Len(t, lib.saved, 8+8*model.ExpectedLength(3, 110))
}

func TestDriver_RestartRoundTrip(t *testing.T) {
	first := newFakeLibrary()
	_, err := workload.NewDriver(first, 4, true).Run(context.Background(), 2)
	require.NoError(t, err)

	second := first.restart()
	s, err := workload.NewDriver(second, 4, false).Run(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, second.recovers, "two-pass recovery")
	assert.Equal(t, []int{7, 8, 9, 10, 11, 12}, second.ids, "resumes at iteration 60")
	assert.Equal(t, int32(model.Iterations), s.Iteration)
	assert.Equal(t, int32(model.ExpectedLength(2, model.Iterations)), s.BufferLength)
	assert.Equal(t, int64(222), s.Buffer[len(s.Buffer)-1])
}

func TestDriver_FailModeIgnoresPendingRestart(t *testing.T) {
	lib := newFakeLibrary()
	lib.status = ckpt.StatusPending

	s, err := workload.NewDriver(lib, 1, true).Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, lib.recovers)
	assert.Equal(t, int32(model.StopIteration), s.Iteration)
}

func TestDriver_CheckpointFailure(t *testing.T) {
	lib := newFakeLibrary()
	lib.failAt = 3

	s, err := workload.NewDriver(lib, 2, false).Run(context.Background(), 1)
	var cerr *workload.CheckpointError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 3, cerr.ID)
	assert.Equal(t, 2, cerr.Level)
	assert.EqualError(t, cerr.Unwrap(), "disk full")
	assert.Equal(t, int32(20), s.Iteration, "aborted at the failing checkpoint")
}

func TestDriver_RecoveryFailures(t *testing.T) {
	t.Run("library error", func(t *testing.T) {
		lib := newFakeLibrary()
		lib.status = ckpt.StatusPending

		_, err := workload.NewDriver(lib, 1, false).Run(context.Background(), 1)
		var rerr *workload.RecoveryError
		require.ErrorAs(t, err, &rerr)
		assert.ErrorIs(t, err, ckpt.ErrShortCheckpoint)
	})

	t.Run("wrong iteration", func(t *testing.T) {
		// A complete run leaves its iteration-110 checkpoint behind.
		first := newFakeLibrary()
		_, err := workload.NewDriver(first, 1, false).Run(context.Background(), 1)
		require.NoError(t, err)

		_, err = workload.NewDriver(first.restart(), 1, false).Run(context.Background(), 1)
		var rerr *workload.RecoveryError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, "iteration", rerr.Field)
		assert.Equal(t, int64(110), rerr.Got)
		assert.Equal(t, int64(60), rerr.Want)
	})
}

func TestRecovery_Phases(t *testing.T) {
	first := newFakeLibrary()
	_, err := workload.NewDriver(first, 1, true).Run(context.Background(), 3)
	require.NoError(t, err)

	lib := first.restart()
	s := workload.NewProcessState(3)
	require.NoError(t, s.Protect(lib))

	ctx := context.Background()
	r := workload.NewRecovery(lib, s)
	assert.Equal(t, workload.AwaitingScalarRecovery, r.Phase())

	require.NoError(t, r.Step(ctx))
	assert.Equal(t, workload.AwaitingArrayRecovery, r.Phase())
	assert.Equal(t, int32(60), s.Iteration)
	assert.Equal(t, int32(model.ExpectedLength(3, 60)), s.BufferLength)
	assert.Empty(t, s.Buffer, "only scalars recovered")

	require.NoError(t, r.Step(ctx))
	assert.Equal(t, workload.Recovered, r.Phase())
	assert.Len(t, s.Buffer, model.ExpectedLength(3, 60))
	assert.Equal(t, int64(180), s.Buffer[0])

	assert.ErrorIs(t, r.Step(ctx), workload.ErrAlreadyRecovered)
}

func TestValidateRecovery(t *testing.T) {
	valid := func() *workload.ProcessState {
		n := model.ExpectedLength(2, 60)
		s := &workload.ProcessState{Rank: 2, Iteration: 60, BufferLength: int32(n), Buffer: make([]int64, n)}
		for i := range s.Buffer {
			s.Buffer[i] = 120
		}
		return s
	}

	report, err := workload.ValidateRecovery(2, valid())
	require.NoError(t, err)
	assert.Equal(t, 312, report.BufferLength)
	assert.Equal(t, int64(8+312*8), report.RecoveredBytes)

	tests := []struct {
		name   string
		mutate func(s *workload.ProcessState)
		field  string
		index  int
	}{
		{name: "iteration", mutate: func(s *workload.ProcessState) { s.Iteration = 50 }, field: "iteration", index: -1},
		{name: "length", mutate: func(s *workload.ProcessState) { s.BufferLength-- }, field: "buffer length", index: -1},
		{name: "storage", mutate: func(s *workload.ProcessState) { s.Buffer = s.Buffer[:10] }, field: "buffer size", index: -1},
		{name: "element", mutate: func(s *workload.ProcessState) { s.Buffer[17] = 0 }, field: "buffer", index: 17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			_, err := workload.ValidateRecovery(2, s)
			var rerr *workload.RecoveryError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, tt.field, rerr.Field)
			assert.Equal(t, tt.index, rerr.Index)
		})
	}
}

func TestVerifyFinal(t *testing.T) {
	s := &workload.ProcessState{Rank: 1, Buffer: []int64{111, 111, 110}}
	err := workload.VerifyFinal(s)
	var verr *workload.VerifyError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 2, verr.Index)
	assert.Equal(t, int64(111), verr.Want)

	s.Buffer[2] = 111
	assert.NoError(t, workload.VerifyFinal(s))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "recovery failed", workload.RecoveryFailed.String())
	assert.Equal(t, "status(9)", workload.Status(9).String())
}
