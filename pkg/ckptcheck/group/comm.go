// Package group provides the process-group abstraction the harness and the
// checkpoint library run on: ranks, collectives and tagged point-to-point
// messages.
//
// Comm mirrors the subset of a message-passing runtime the harness needs.
// LocalWorld implements it in-process with one goroutine per rank, which is
// how tests and the CLI run a whole job inside a single OS process.
package group

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
)

// Wildcards accepted by Recv.
const (
	AnySource = -1
	AnyTag    = -1
)

// ErrRankOutOfRange is returned when a rank argument is not a member of the group.
var ErrRankOutOfRange = errors.New("rank out of range")

// Message is a received point-to-point message.
type Message struct {
	Source  int
	Tag     int
	Payload []byte
}

// Comm is one rank's handle on a process group.
//
// Collectives (Barrier, Allgather, Gather, Split) must be called by every
// member in the same order. All blocking calls return ctx.Err() when the
// context is cancelled.
type Comm interface {
	// Rank is this process's rank within the group.
	Rank() int

	// Size is the number of processes in the group.
	Size() int

	// PhysicalID is the runtime-assigned process identifier that appears in
	// artifact names. It may differ from Rank and may change between runs.
	PhysicalID() int

	Barrier(ctx context.Context) error

	// Allgather returns every member's value indexed by rank.
	Allgather(ctx context.Context, value []byte) ([][]byte, error)

	// Gather returns every member's value at root and nil elsewhere.
	Gather(ctx context.Context, root int, value []byte) ([][]byte, error)

	Send(ctx context.Context, dest, tag int, payload []byte) error

	// Recv blocks for the first message matching src and tag, either of
	// which may be a wildcard. Messages from one source with one tag are
	// received in the order they were sent.
	Recv(ctx context.Context, src, tag int) (Message, error)

	// Split partitions the group by color. Members with the same color form
	// a new group ordered by (key, rank). A negative color yields a nil Comm.
	Split(ctx context.Context, color, key int) (Comm, error)
}

// AllgatherInt gathers one integer per rank.
func AllgatherInt(ctx context.Context, c Comm, v int64) ([]int64, error) {
	raw, err := c.Allgather(ctx, EncodeInt(v))
	if err != nil {
		return nil, err
	}
	return decodeInts(raw)
}

// GatherInt gathers one integer per rank at root; other ranks receive nil.
func GatherInt(ctx context.Context, c Comm, root int, v int64) ([]int64, error) {
	raw, err := c.Gather(ctx, root, EncodeInt(v))
	if err != nil || raw == nil {
		return nil, err
	}
	return decodeInts(raw)
}

// EncodeInt encodes v as a varint payload.
func EncodeInt(v int64) []byte {
	return binary.AppendVarint(nil, v)
}

// DecodeInt decodes a payload produced by EncodeInt.
func DecodeInt(b []byte) (int64, error) {
	v, n := binary.Varint(b)
	if n <= 0 {
		return 0, fmt.Errorf("decode int payload of %d bytes", len(b))
	}
	return v, nil
}

func decodeInts(raw [][]byte) ([]int64, error) {
	out := make([]int64, len(raw))
	for i, b := range raw {
		v, err := DecodeInt(b)
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
