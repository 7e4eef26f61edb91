package usecase

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"periodic-engine/internal/domain"
	"periodic-engine/internal/engine"
)

// JobHandle tracks one submitted run. Results are kept for the lifetime of
// the handle so late readers still see every cycle.
type JobHandle struct {
	ID        string
	Name      string
	Kind      domain.JobKind
	StartedAt time.Time

	key   string
	guard *engine.Guard

	mu      sync.Mutex
	results []*domain.JobResult
	err     error
	updated chan struct{}
	done    chan struct{}
}

func newJobHandle(id string, def *domain.JobDefinition, guard *engine.Guard) *JobHandle {
	return &JobHandle{
		ID:        id,
		Name:      def.Name,
		Kind:      def.Kind,
		StartedAt: time.Now(),
		key:       def.Name,
		guard:     guard,
		updated:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Cancel terminates the run. Running batches finish; nothing new starts.
func (h *JobHandle) Cancel() {
	h.guard.Terminate()
}

// Done is closed once the run has produced its last result.
func (h *JobHandle) Done() <-chan struct{} {
	return h.done
}

// Err reports an error that ended a loop run early, such as a malformed
// predicate in a later cycle.
func (h *JobHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Snapshot returns the results produced so far.
func (h *JobHandle) Snapshot() []*domain.JobResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.results)
}

// Results yields every result of the run in order, waiting for new ones
// until the run is done or ctx ends.
func (h *JobHandle) Results(ctx context.Context) iter.Seq[*domain.JobResult] {
	return func(yield func(*domain.JobResult) bool) {
		next := 0
		for {
			h.mu.Lock()
			pending := h.results[next:]
			updated := h.updated
			h.mu.Unlock()

			for _, r := range pending {
				if !yield(r) {
					return
				}
				next++
			}
			if len(pending) > 0 {
				continue
			}

			select {
			case <-updated:
			case <-h.done:
				h.mu.Lock()
				rest := slices.Clone(h.results[next:])
				h.mu.Unlock()
				for _, r := range rest {
					if !yield(r) {
						return
					}
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// Info is a point-in-time summary of a handle.
type Info struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Kind      domain.JobKind    `json:"kind"`
	StartedAt time.Time         `json:"started_at"`
	Running   bool              `json:"running"`
	Cycles    int               `json:"cycles"`
	Error     string            `json:"error,omitempty"`
	Last      *domain.JobResult `json:"last,omitempty"`
}

// Info summarizes the run.
func (h *JobHandle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()

	info := Info{
		ID:        h.ID,
		Name:      h.Name,
		Kind:      h.Kind,
		StartedAt: h.StartedAt,
		Cycles:    len(h.results),
	}
	select {
	case <-h.done:
	default:
		info.Running = true
	}
	if h.err != nil {
		info.Error = h.err.Error()
	}
	if n := len(h.results); n > 0 {
		info.Last = h.results[n-1]
	}
	return info
}

func (h *JobHandle) publish(r *domain.JobResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
	close(h.updated)
	h.updated = make(chan struct{})
}

func (h *JobHandle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}
