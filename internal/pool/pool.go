// Package pool provides the process-wide worker pools shared by all jobs.
//
// Every concurrently dispatched batch holds one slot of a named pool while
// it executes. Jobs that ask for more concurrency than a pool has left wait
// for slots instead of oversubscribing it.
package pool

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"periodic-engine/internal/metrics"

	"golang.org/x/sync/semaphore"
)

// Pool is a bounded set of worker slots.
type Pool struct {
	name     string
	size     int64
	sem      *semaphore.Weighted
	inFlight atomic.Int64
}

func newPool(name string, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		name: name,
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Acquire blocks until a slot is free or ctx is done. Waiters are served in
// arrival order.
func (p *Pool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.inFlight.Add(1)
	metrics.PoolInFlight.WithLabelValues(p.name).Inc()
	return nil
}

// Release frees a slot taken by Acquire.
func (p *Pool) Release() {
	p.inFlight.Add(-1)
	metrics.PoolInFlight.WithLabelValues(p.name).Dec()
	p.sem.Release(1)
}

func (p *Pool) Name() string { return p.name }

func (p *Pool) Size() int { return int(p.size) }

// InFlight returns the number of slots currently held.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// Stats is a point-in-time view of a pool.
type Stats struct {
	Name     string `json:"name"`
	Size     int    `json:"size"`
	InFlight int    `json:"in_flight"`
}

// Registry hands out pools by name, creating them on first use.
type Registry struct {
	mu          sync.Mutex
	pools       map[string]*Pool
	sizes       map[string]int
	defaultSize int
	logger      *slog.Logger
}

// NewRegistry creates a registry. sizes overrides the capacity of specific
// pools; every other pool gets defaultSize slots, or runtime.NumCPU() when
// defaultSize is not positive.
func NewRegistry(defaultSize int, sizes map[string]int, logger *slog.Logger) *Registry {
	if defaultSize <= 0 {
		defaultSize = runtime.NumCPU()
	}
	return &Registry{
		pools:       make(map[string]*Pool),
		sizes:       sizes,
		defaultSize: defaultSize,
		logger:      logger.With("component", "pool-registry"),
	}
}

// Get returns the named pool.
func (r *Registry) Get(name string) *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[name]; ok {
		return p
	}

	size := r.defaultSize
	if s, ok := r.sizes[name]; ok && s > 0 {
		size = s
	}
	p := newPool(name, size)
	r.pools[name] = p
	r.logger.Info("created worker pool", "pool", name, "size", p.Size())
	return p
}

// Stats returns a snapshot of every pool created so far, sorted by name.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]Stats, 0, len(r.pools))
	for _, p := range r.pools {
		stats = append(stats, Stats{Name: p.name, Size: p.Size(), InFlight: p.InFlight()})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
