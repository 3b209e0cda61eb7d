package catalog

import (
	"encoding/json"
	"time"

	"github.com/opencontainers/go-digest"
)

// Version is the current record format version.
// Increment when making breaking changes to record structure.
const Version = 1

// Record describes where one rank's checkpoint lives and how to check it.
type Record struct {
	Version    int       `json:"version"`
	ExecID     string    `json:"exec_id"`
	Rank       int       `json:"rank"`
	PhysicalID int       `json:"physical_id"`
	Sequence   int       `json:"sequence"`
	Level      int       `json:"level"`
	Timestamp  time.Time `json:"timestamp"`

	// Path is the artifact holding the payload. For a shared file, Offset
	// locates this rank's chunk.
	Path   string        `json:"path"`
	Offset int64         `json:"offset"`
	Size   int64         `json:"size"`
	Digest digest.Digest `json:"digest"`
}

// Marshal serializes a record to JSON.
func (r *Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal deserializes a record from JSON.
func Unmarshal(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// NewRecord creates a record for payload, computing its digest.
func NewRecord(execID string, rank, physicalID, seq, level int, payload []byte) *Record {
	return &Record{
		Version:    Version,
		ExecID:     execID,
		Rank:       rank,
		PhysicalID: physicalID,
		Sequence:   seq,
		Level:      level,
		Timestamp:  time.Now().UTC(),
		Size:       int64(len(payload)),
		Digest:     digest.FromBytes(payload),
	}
}

// WithLocation sets the artifact path and offset.
func (r *Record) WithLocation(path string, offset int64) *Record {
	r.Path = path
	r.Offset = offset
	return r
}
