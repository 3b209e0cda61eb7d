// Package catalog records which checkpoint each rank of an execution wrote
// last, so a restarted job can find its artifacts again.
package catalog

import (
	"errors"
	"time"
)

// Store persists checkpoint records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores the record of a rank's checkpoint with sequence seq.
	// Overwrites any earlier record for (execID, rank).
	Save(execID string, rank, seq int, data []byte) error

	// Load retrieves the latest record of a rank.
	// Returns ErrNotFound if the rank has no record.
	Load(execID string, rank int) ([]byte, error)

	// List returns all records for an execution, ordered by rank.
	// Returns empty slice (not error) if the execution has no records.
	List(execID string) ([]Info, error)

	// Delete removes a rank's record.
	// Returns nil if the record doesn't exist.
	Delete(execID string, rank int) error

	// DeleteRun removes all records of an execution.
	// Returns nil if the execution has no records.
	DeleteRun(execID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading the record.
type Info struct {
	ExecID    string
	Rank      int
	Sequence  int
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for catalog operations.
var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("checkpoint record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("catalog store closed")
)

// Open returns a SQLite store at path, or a MemoryStore when path is empty.
func Open(path string) (Store, error) {
	if path == "" {
		return NewMemoryStore(), nil
	}
	return NewSQLiteStore(path)
}
