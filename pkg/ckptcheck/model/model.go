// Package model defines the deterministic state evolution of the synthetic
// workload. Every function is pure: the same inputs always give the same
// outputs, which is what makes "what should have been saved" checkable.
package model

// Workload constants.
const (
	// InitSize is the per-rank multiplier of the initial buffer length.
	InitSize = 64

	// Iterations is the full run length.
	Iterations = 111

	// CheckInterval is the number of iterations between checkpoints.
	CheckInterval = 10

	// StopIteration is where a fail-mode run halts to leave artifacts behind.
	StopIteration = 63
)

// ExpectedLength returns the buffer length of rank after iteration updates.
func ExpectedLength(rank, iteration int) int {
	return (rank+1)*InitSize + iteration*rank
}

// ExpectedElement returns the value of every buffer element of rank after
// iteration updates. The buffer is uniform.
func ExpectedElement(rank, iteration int) int64 {
	return int64(iteration) * int64(rank)
}

// ExpectedFinalValue returns the element value of a rank that ran to completion.
func ExpectedFinalValue(rank int) int64 {
	return ExpectedElement(rank, Iterations)
}

// LastCheckpointedIteration returns the iteration at which the last
// checkpoint was taken. A run stopped early checkpointed last at the largest
// multiple of CheckInterval not above StopIteration; a complete run at the
// largest multiple not above the last executed iteration.
func LastCheckpointedIteration(stoppedEarly bool) int {
	if stoppedEarly {
		return StopIteration - StopIteration%CheckInterval
	}
	last := Iterations - 1
	return last - last%CheckInterval
}

// IsCheckpointIteration reports whether a checkpoint is requested before the
// update of iteration.
func IsCheckpointIteration(iteration int) bool {
	return iteration%CheckInterval == 0
}

// CheckpointID returns the sequence id of the checkpoint taken at iteration.
func CheckpointID(iteration int) int {
	return iteration/CheckInterval + 1
}
