package group

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RankFunc is the body one rank runs inside LocalWorld.Run.
type RankFunc func(ctx context.Context, c Comm) error

// WorldOption configures a LocalWorld.
type WorldOption func(*LocalWorld)

// WithPhysicalIDs sets the physical id assigned to each world rank. The
// default is the rank itself. Tests use this to simulate a runtime that
// numbers processes differently after a restart.
func WithPhysicalIDs(fn func(rank int) int) WorldOption {
	return func(w *LocalWorld) {
		w.physicalID = fn
	}
}

// LocalWorld runs a process group in-process: one goroutine per rank.
type LocalWorld struct {
	size       int
	physicalID func(rank int) int
}

// NewLocalWorld creates a world of size ranks.
func NewLocalWorld(size int, opts ...WorldOption) *LocalWorld {
	w := &LocalWorld{
		size:       size,
		physicalID: func(rank int) int { return rank },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Size returns the number of ranks.
func (w *LocalWorld) Size() int {
	return w.size
}

// Run starts fn once per rank and waits for all of them. The first error
// cancels the context handed to every other rank, so ranks blocked in a
// collective or a receive return instead of hanging.
func (w *LocalWorld) Run(ctx context.Context, fn RankFunc) error {
	if w.size <= 0 {
		return fmt.Errorf("world size must be positive, got %d", w.size)
	}

	phys := make([]int, w.size)
	seen := make(map[int]int, w.size)
	for r := range phys {
		phys[r] = w.physicalID(r)
		if prev, dup := seen[phys[r]]; dup {
			return fmt.Errorf("physical id %d assigned to ranks %d and %d", phys[r], prev, r)
		}
		seen[phys[r]] = r
	}

	st := &worldState{
		phys:   phys,
		groups: make(map[string]*groupState),
	}
	members := make([]int, w.size)
	for i := range members {
		members[i] = i
	}
	root := st.group("world", members)

	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < w.size; r++ {
		r := r
		c := &localComm{world: st, grp: root, rank: r}
		g.Go(func() error {
			if err := fn(gctx, c); err != nil {
				return fmt.Errorf("rank %d: %w", r, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// worldState is shared by every rank of one Run.
type worldState struct {
	phys []int

	mu     sync.Mutex
	groups map[string]*groupState
}

// group returns the group registered under id, creating it on first use.
// Every member of a split computes the same id, so they meet here.
func (s *worldState) group(id string, members []int) *groupState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[id]; ok {
		return g
	}
	g := &groupState{
		id:      id,
		members: members,
		ex:      newExchange(len(members)),
		boxes:   make([]*mailbox, len(members)),
	}
	for i := range g.boxes {
		g.boxes[i] = newMailbox()
	}
	s.groups[id] = g
	return g
}

type groupState struct {
	id      string
	members []int // world ranks, indexed by group rank
	ex      *exchange
	boxes   []*mailbox
}

// localComm is one rank's view of a group.
type localComm struct {
	world *worldState
	grp   *groupState
	rank  int

	// collectives counts collective calls. All members call collectives in
	// the same order, so the count names the same call on every rank.
	collectives int
}

func (c *localComm) Rank() int { return c.rank }

func (c *localComm) Size() int { return len(c.grp.members) }

func (c *localComm) PhysicalID() int {
	return c.world.phys[c.grp.members[c.rank]]
}

func (c *localComm) Barrier(ctx context.Context) error {
	_, err := c.collective(ctx, nil)
	return err
}

func (c *localComm) Allgather(ctx context.Context, value []byte) ([][]byte, error) {
	return c.collective(ctx, bytes.Clone(value))
}

func (c *localComm) Gather(ctx context.Context, root int, value []byte) ([][]byte, error) {
	if err := c.checkRank(root); err != nil {
		return nil, err
	}
	vals, err := c.collective(ctx, bytes.Clone(value))
	if err != nil || c.rank != root {
		return nil, err
	}
	return vals, nil
}

func (c *localComm) Send(ctx context.Context, dest, tag int, payload []byte) error {
	if err := c.checkRank(dest); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.grp.boxes[dest].put(Message{Source: c.rank, Tag: tag, Payload: bytes.Clone(payload)})
	return nil
}

func (c *localComm) Recv(ctx context.Context, src, tag int) (Message, error) {
	if src != AnySource {
		if err := c.checkRank(src); err != nil {
			return Message{}, err
		}
	}
	return c.grp.boxes[c.rank].take(ctx, src, tag)
}

func (c *localComm) Split(ctx context.Context, color, key int) (Comm, error) {
	call := c.collectives
	vals, err := c.collective(ctx, binaryPair(color, key))
	if err != nil {
		return nil, err
	}
	if color < 0 {
		return nil, nil
	}

	type entry struct{ key, rank int }
	var entries []entry
	for r, v := range vals {
		col, k, err := splitPair(v)
		if err != nil {
			return nil, fmt.Errorf("split: rank %d: %w", r, err)
		}
		if col == color {
			entries = append(entries, entry{key: k, rank: r})
		}
	}
	slices.SortStableFunc(entries, func(a, b entry) int {
		if a.key != b.key {
			return a.key - b.key
		}
		return a.rank - b.rank
	})

	members := make([]int, len(entries))
	myRank := -1
	for i, e := range entries {
		members[i] = c.grp.members[e.rank]
		if e.rank == c.rank {
			myRank = i
		}
	}

	id := strings.Join([]string{c.grp.id, strconv.Itoa(call), strconv.Itoa(color)}, "/")
	return &localComm{world: c.world, grp: c.world.group(id, members), rank: myRank}, nil
}

func (c *localComm) collective(ctx context.Context, v []byte) ([][]byte, error) {
	c.collectives++
	return c.grp.ex.contribute(ctx, c.rank, v)
}

func (c *localComm) checkRank(r int) error {
	if r < 0 || r >= len(c.grp.members) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrRankOutOfRange, r, len(c.grp.members))
	}
	return nil
}

var errMalformedSplit = errors.New("malformed split payload")

func binaryPair(a, b int) []byte {
	out := EncodeInt(int64(a))
	return append(out, EncodeInt(int64(b))...)
}

func splitPair(buf []byte) (a, b int, err error) {
	x, n := binary.Varint(buf)
	if n <= 0 {
		return 0, 0, errMalformedSplit
	}
	y, m := binary.Varint(buf[n:])
	if m <= 0 {
		return 0, 0, errMalformedSplit
	}
	return int(x), int(y), nil
}
