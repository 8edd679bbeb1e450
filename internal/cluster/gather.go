// Package cluster provides the barrier through which simulation workers
// exchange per-round vectors. LocalGather serves goroutines of one process;
// GatherServer and RemoteGather extend the same barrier over gRPC.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrWorkerMismatch is returned for an unknown worker id, a duplicate
	// contribution or a vector whose length differs from the round's.
	ErrWorkerMismatch = errors.New("worker mismatch")
	// ErrRoundMismatch is returned when workers contribute to different rounds.
	ErrRoundMismatch = errors.New("round mismatch")
)

// Gatherer is a reusable all-gather barrier. Gather blocks until every
// worker contributed to round and returns the contributions in worker order.
// The returned slices are shared between workers and must not be modified.
type Gatherer interface {
	Gather(ctx context.Context, round, worker int, values []float64) ([][]float64, error)
	Size() int
}

// LocalGather is an in-process Gatherer built on a mutex and condition variable.
type LocalGather struct {
	mu     sync.Mutex
	cond   *sync.Cond
	size   int
	round  int
	length int
	count  int
	seen   []bool
	parts  [][]float64
	gen    uint64
	done   [][]float64
}

// NewLocalGather creates a barrier for size workers
func NewLocalGather(size int) *LocalGather {
	g := &LocalGather{
		size:  size,
		seen:  make([]bool, size),
		parts: make([][]float64, size),
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Size returns the number of workers
func (g *LocalGather) Size() int { return g.size }

// Gather implements Gatherer. A contribution whose context is cancelled
// before the round completes is withdrawn.
func (g *LocalGather) Gather(ctx context.Context, round, worker int, values []float64) ([][]float64, error) {
	if worker < 0 || worker >= g.size {
		return nil, fmt.Errorf("%w: worker %d outside [0, %d)", ErrWorkerMismatch, worker, g.size)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.count == 0 {
		g.round = round
		g.length = len(values)
	}
	if round != g.round {
		return nil, fmt.Errorf("%w: worker %d sent round %d while round %d is open", ErrRoundMismatch, worker, round, g.round)
	}
	if g.seen[worker] {
		return nil, fmt.Errorf("%w: worker %d already contributed to round %d", ErrWorkerMismatch, worker, round)
	}
	if len(values) != g.length {
		return nil, fmt.Errorf("%w: worker %d sent %d values, round %d has %d", ErrWorkerMismatch, worker, len(values), round, g.length)
	}

	g.parts[worker] = append([]float64(nil), values...)
	g.seen[worker] = true
	g.count++

	if g.count == g.size {
		g.done = g.parts
		g.parts = make([][]float64, g.size)
		clear(g.seen)
		g.count = 0
		g.gen++
		g.cond.Broadcast()
		return g.done, nil
	}

	stop := context.AfterFunc(ctx, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.cond.Broadcast()
	})
	defer stop()

	gen := g.gen
	for g.gen == gen {
		if err := ctx.Err(); err != nil {
			g.parts[worker] = nil
			g.seen[worker] = false
			g.count--
			return nil, err
		}
		g.cond.Wait()
	}
	return g.done, nil
}
