package artifact

import "github.com/randalmurphal/ckptcheck/pkg/ckptcheck/model"

// Encoded sizes of the protected regions, in registration order: the
// iteration counter, the buffer length, then the buffer.
const (
	ScalarBytes  = 2 * 4
	ElementBytes = 8
)

// SizeModel predicts checkpoint file sizes from the deterministic workload.
type SizeModel struct {
	// WorldSize is the number of application processes.
	WorldSize int

	// FailMode is true when the run stopped early.
	FailMode bool
}

// ProcessBytes returns the size of rank's per-process checkpoint.
func (m SizeModel) ProcessBytes(rank int) int64 {
	last := model.LastCheckpointedIteration(m.FailMode)
	return ScalarBytes + int64(model.ExpectedLength(rank, last))*ElementBytes
}

// SharedBytes returns the size of the shared checkpoint file.
func (m SizeModel) SharedBytes() int64 {
	var total int64
	for r := 0; r < m.WorldSize; r++ {
		total += m.ProcessBytes(r)
	}
	return total
}
