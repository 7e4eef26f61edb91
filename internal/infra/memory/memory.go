// Package memory holds process-local implementations of the repositories
// and coordination interfaces, used when no etcd cluster is configured.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"periodic-engine/internal/domain"
)

type jobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.JobDefinition
}

// NewJobRepository returns an in-memory domain.JobRepository.
func NewJobRepository() domain.JobRepository {
	return &jobRepository{jobs: make(map[string]*domain.JobDefinition)}
}

func (r *jobRepository) Save(_ context.Context, job *domain.JobDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.Name] = &cp
	return nil
}

func (r *jobRepository) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[name]; !ok {
		return domain.ErrJobNotFound
	}
	delete(r.jobs, name)
	return nil
}

func (r *jobRepository) Get(_ context.Context, name string) (*domain.JobDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[name]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *jobRepository) List(context.Context) ([]*domain.JobDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.JobDefinition, 0, len(r.jobs))
	for _, job := range r.jobs {
		cp := *job
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *domain.JobDefinition) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out, nil
}

type executionRepository struct {
	mu      sync.RWMutex
	records map[string][]*domain.ExecutionRecord // per job, oldest first
}

// NewExecutionRepository returns an in-memory domain.ExecutionRepository.
func NewExecutionRepository() domain.ExecutionRepository {
	return &executionRepository{records: make(map[string][]*domain.ExecutionRecord)}
}

func (r *executionRepository) Save(_ context.Context, record *domain.ExecutionRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.JobName] = append(r.records[record.JobName], record)
	return nil
}

func (r *executionRepository) ListByJobName(_ context.Context, jobName string, page, pageSize int) ([]*domain.ExecutionRecord, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.records[jobName]

	out := make([]*domain.ExecutionRecord, 0, pageSize)
	start := (page - 1) * pageSize
	for i := len(all) - 1 - start; i >= 0 && len(out) < pageSize; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (r *executionRepository) Get(_ context.Context, jobName, executionID string) (*domain.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records[jobName] {
		if rec.ID == executionID {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", domain.ErrExecutionNotFound, jobName, executionID)
}

type locker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocker returns a process-local domain.Locker.
func NewLocker() domain.Locker {
	return &locker{held: make(map[string]bool)}
}

func (l *locker) Lock(_ context.Context, name string) (domain.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, domain.ErrLockNotAcquired
	}
	l.held[name] = true
	return &lock{owner: l, name: name}, nil
}

type lock struct {
	owner *locker
	name  string
	once  sync.Once
}

func (l *lock) Unlock(context.Context) error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		delete(l.owner.held, l.name)
		l.owner.mu.Unlock()
	})
	return nil
}

type soleLeader struct {
	resigned chan struct{}
	once     sync.Once
	mu       sync.RWMutex
	leader   bool
}

// NewSoleLeader returns a LeaderElectionManager for a single process: every
// campaign wins immediately.
func NewSoleLeader() domain.LeaderElectionManager {
	return &soleLeader{resigned: make(chan struct{})}
}

func (l *soleLeader) Campaign(context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leader = true
	return l.resigned, nil
}

func (l *soleLeader) Resign(context.Context) error {
	l.mu.Lock()
	l.leader = false
	l.mu.Unlock()
	l.once.Do(func() { close(l.resigned) })
	return nil
}

func (l *soleLeader) IsLeader() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.leader
}

type membership struct {
	mu   sync.RWMutex
	self *domain.Node
}

// NewMembership returns a Membership for a single process: it only ever
// knows about itself.
func NewMembership() domain.Membership {
	return &membership{}
}

func (m *membership) Join(_ context.Context, node domain.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.self = &node
	return nil
}

func (m *membership) Leave(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.self = nil
	return nil
}

func (m *membership) Watch(ctx context.Context) {
	<-ctx.Done()
}

func (m *membership) Nodes() []domain.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.self == nil {
		return []domain.Node{}
	}
	return []domain.Node{*m.self}
}
