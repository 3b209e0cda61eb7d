package group

import (
	"context"
	"sync"
)

// exchange is the rendezvous behind every collective. Each round collects
// one value per rank and releases all of them at once. A new round starts
// only after the previous one completed, so a fast rank re-entering cannot
// overwrite a value a slow rank has not read yet.
type exchange struct {
	mu      sync.Mutex
	size    int
	current *round
}

type round struct {
	vals    [][]byte
	arrived int
	done    chan struct{}
}

func newExchange(size int) *exchange {
	return &exchange{size: size}
}

func (e *exchange) contribute(ctx context.Context, rank int, v []byte) ([][]byte, error) {
	e.mu.Lock()
	r := e.current
	if r == nil {
		r = &round{vals: make([][]byte, e.size), done: make(chan struct{})}
		e.current = r
	}
	r.vals[rank] = v
	r.arrived++
	if r.arrived == e.size {
		e.current = nil
		close(r.done)
	}
	e.mu.Unlock()

	select {
	case <-r.done:
		out := make([][]byte, len(r.vals))
		copy(out, r.vals)
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
