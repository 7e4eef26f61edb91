// internal/usecase/runner.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"periodic-engine/internal/domain"
	"periodic-engine/internal/engine"
	"periodic-engine/internal/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ComponentFactory builds the engine components named by a definition.
type ComponentFactory interface {
	Source(spec domain.SourceSpec) (domain.SourceFactory, error)
	Action(spec domain.ActionSpec) (domain.Action, error)
	Predicate(spec domain.PredicateSpec) (domain.Predicate, error)
}

// Runner submits job definitions to the engine and keeps track of the runs
// in progress. Submitted runs are keyed by job name; scheduled runs under
// the Allow policy get a key of their own so overlapping ticks coexist.
type Runner struct {
	engine    *engine.Engine
	factory   ComponentFactory
	validator domain.Validator
	execRepo  domain.ExecutionRepository
	locker    domain.Locker
	logger    *slog.Logger
	tracer    trace.Tracer

	mu      sync.Mutex
	running map[string]*JobHandle
	wg      sync.WaitGroup
}

// NewRunner creates a Runner.
func NewRunner(eng *engine.Engine, factory ComponentFactory, validator domain.Validator, execRepo domain.ExecutionRepository, locker domain.Locker, logger *slog.Logger) *Runner {
	return &Runner{
		engine:    eng,
		factory:   factory,
		validator: validator,
		execRepo:  execRepo,
		locker:    locker,
		logger:    logger.With("component", "job-runner"),
		tracer:    otel.Tracer("periodic-engine-usecase"),
		running:   make(map[string]*JobHandle),
	}
}

// Submit starts def with read and write statements allowed. Configuration
// problems, including a loop predicate that yields no first value, are
// returned before any batch runs. A running job with the same name is
// cancelled.
func (r *Runner) Submit(ctx context.Context, def *domain.JobDefinition) (*JobHandle, error) {
	return r.submit(ctx, def, []domain.StatementMode{domain.ModeRead, domain.ModeWrite}, nil, false)
}

// SubmitSchema is Submit with schema statements also allowed.
func (r *Runner) SubmitSchema(ctx context.Context, def *domain.JobDefinition) (*JobHandle, error) {
	return r.submit(ctx, def, []domain.StatementMode{domain.ModeRead, domain.ModeWrite, domain.ModeSchema}, nil, false)
}

// Start submits def with the modes its Schema flag allows.
func (r *Runner) Start(ctx context.Context, def *domain.JobDefinition) (*JobHandle, error) {
	if def.Schema {
		return r.SubmitSchema(ctx, def)
	}
	return r.Submit(ctx, def)
}

// RunScheduled implements domain.ScheduledRunner. With the Allow policy each
// tick starts a run alongside any still in progress. With the Forbid policy
// a tick is skipped while the previous run still holds the job's lock.
func (r *Runner) RunScheduled(ctx context.Context, def *domain.JobDefinition) error {
	if def.ConcurrencyPolicy != domain.ConcurrencyPolicyForbid {
		_, err := r.submit(ctx, def, def.AllowedModes(), nil, true)
		return err
	}

	lock, err := r.locker.Lock(ctx, def.Name)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotAcquired) {
			r.logger.Info("previous run still active, skipping", "job_name", def.Name)
			return nil
		}
		return fmt.Errorf("failed to lock job %s: %w", def.Name, err)
	}
	if _, err := r.submit(ctx, def, def.AllowedModes(), lock, false); err != nil {
		_ = lock.Unlock(context.WithoutCancel(ctx))
		return err
	}
	return nil
}

func (r *Runner) submit(ctx context.Context, def *domain.JobDefinition, allowed []domain.StatementMode, lock domain.Lock, coexist bool) (*JobHandle, error) {
	ctx, span := r.tracer.Start(ctx, "runner.Submit", trace.WithAttributes(
		attribute.String("job.name", def.Name),
		attribute.String("job.kind", string(def.Kind)),
	))
	defer span.End()

	// 1. Validate and decode the definition.
	if err := def.Validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	cfg, err := domain.ParseJobConfig(def.Config)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := checkDefinition(r.validator, def, allowed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "statement not allowed")
		return nil, err
	}

	// 2. Build the components.
	source, err := r.factory.Source(def.Source)
	if err != nil {
		return nil, err
	}
	action, err := r.factory.Action(def.Action)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	span.SetAttributes(attribute.String("job.id", id))
	guard := engine.NewDeadlineGuard(cfg.Timeout)
	job := engine.Job{Name: def.Name, Source: source, Action: action, Config: cfg, Guard: guard}
	handle := newJobHandle(id, def, guard)

	// Runs outlive the request that submitted them.
	runCtx := context.WithoutCancel(ctx)

	// 3. Loop jobs evaluate their first predicate now, so a malformed one is
	//    reported to the caller.
	var loop *engine.LoopRun
	if def.Kind == domain.JobKindLoop {
		predicate, err := r.factory.Predicate(*def.Predicate)
		if err != nil {
			return nil, err
		}
		loop, err = r.engine.Loop(runCtx, job, predicate)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "loop predicate failed")
			return nil, err
		}
	}

	// 4. Register, replacing a previous run of the same name unless the run
	//    coexists with it.
	if coexist {
		handle.key = def.Name + "/" + id
	}
	r.mu.Lock()
	if prev, ok := r.running[handle.key]; ok {
		r.logger.Info("cancelling previous run", "job_name", def.Name, "job_id", prev.ID)
		prev.Cancel()
	}
	r.running[handle.key] = handle
	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Info("job submitted", "job_name", def.Name, "job_id", id, "kind", def.Kind)
	go r.run(runCtx, handle, job, loop, lock)
	return handle, nil
}

func (r *Runner) run(ctx context.Context, handle *JobHandle, job engine.Job, loop *engine.LoopRun, lock domain.Lock) {
	defer r.wg.Done()
	defer func() {
		if lock != nil {
			if err := lock.Unlock(ctx); err != nil {
				r.logger.Warn("failed to release job lock", "job_name", handle.Name, "error", err)
			}
		}
	}()

	var runErr error
	if loop != nil {
		for result := range loop.Results() {
			r.record(ctx, handle, result)
		}
		runErr = loop.Err()
	} else {
		result, err := r.engine.Iterate(ctx, job)
		if err != nil {
			runErr = err
		} else {
			r.record(ctx, handle, result)
		}
	}

	if runErr != nil {
		r.logger.Error("job ended with error", "job_name", handle.Name, "job_id", handle.ID, "error", runErr)
	}
	handle.finish(runErr)

	r.mu.Lock()
	if r.running[handle.key] == handle {
		delete(r.running, handle.key)
	}
	r.mu.Unlock()
	r.logger.Info("job finished", "job_name", handle.Name, "job_id", handle.ID)
}

// record publishes a result and appends it to the execution history.
func (r *Runner) record(ctx context.Context, handle *JobHandle, result *domain.JobResult) {
	handle.publish(result)

	status := result.Status()
	metrics.JobResultsTotal.WithLabelValues(handle.Name, string(status)).Inc()

	cycle := len(handle.Snapshot())
	rec := domain.NewExecutionRecord(uuid.New().String(), handle.ID, handle.Name, cycle, result, time.Now())
	if err := r.execRepo.Save(ctx, rec); err != nil {
		r.logger.Error("failed to save execution record", "job_name", handle.Name, "job_id", handle.ID, "error", err)
	}

	r.logger.Info("job result",
		"job_name", handle.Name,
		"job_id", handle.ID,
		"cycle", cycle,
		"status", status,
		"batches", result.Batches,
		"committed", result.CommittedOperations,
		"failed", result.FailedOperations,
		"time_taken", result.TimeTaken,
	)
}

// Cancel terminates every running job with the given name.
func (r *Runner) Cancel(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found bool
	for _, h := range r.running {
		if h.Name != name {
			continue
		}
		h.Cancel()
		found = true
		r.logger.Info("job cancelled", "job_name", name, "job_id", h.ID)
	}
	if !found {
		return domain.ErrJobNotFound
	}
	return nil
}

// Get returns the running job with the given name. When only overlapping
// scheduled runs exist, the oldest one is returned.
func (r *Runner) Get(name string) (*JobHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.running[name]; ok {
		return h, nil
	}
	var oldest *JobHandle
	for _, h := range r.running {
		if h.Name == name && (oldest == nil || h.StartedAt.Before(oldest.StartedAt)) {
			oldest = h
		}
	}
	if oldest == nil {
		return nil, domain.ErrJobNotFound
	}
	return oldest, nil
}

// List returns the running jobs sorted by name, then by start time.
func (r *Runner) List() []*JobHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*JobHandle, 0, len(r.running))
	for _, h := range r.running {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Close terminates every running job and waits for them to drain or for
// ctx to end.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	for _, h := range r.running {
		h.Cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
