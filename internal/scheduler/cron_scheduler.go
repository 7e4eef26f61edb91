// internal/scheduler/cron_scheduler.go
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"periodic-engine/internal/domain"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Parser accepts cron expressions with a leading seconds field as well as
// descriptors such as @every 1m.
var Parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// cronScheduler only decides when a definition runs; the runner does the rest.
type cronScheduler struct {
	cron   *cron.Cron
	runner domain.ScheduledRunner
	mu     sync.Mutex
	jobs   map[string]cron.EntryID
	logger *slog.Logger
	tracer trace.Tracer
}

// NewCronScheduler creates a scheduler that hands due definitions to runner.
func NewCronScheduler(runner domain.ScheduledRunner, logger *slog.Logger) domain.Schedular {
	return &cronScheduler{
		cron:   cron.New(cron.WithParser(Parser)),
		runner: runner,
		jobs:   make(map[string]cron.EntryID),
		logger: logger.With("component", "cron-scheduler"),
		tracer: otel.Tracer("periodic-engine-scheduler"),
	}
}

// Start runs the cron loop until ctx ends.
func (s *cronScheduler) Start(ctx context.Context) error {
	s.logger.Info("cron scheduler started")
	s.cron.Start()
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// Stop halts the cron loop and waits for fired jobs to be handed off.
func (s *cronScheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("cron scheduler stopped")
}

// AddJob schedules a definition, replacing an earlier entry of the same name.
func (s *cronScheduler) AddJob(job *domain.JobDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[job.Name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, job.Name)
	}

	jobWrapper := &cronJobWrapper{
		job:    job,
		runner: s.runner,
		logger: s.logger.With("job_name", job.Name),
		tracer: s.tracer,
	}

	entryID, err := s.cron.AddJob(job.CronExpr, jobWrapper)
	if err != nil {
		s.logger.Error("failed to add job to cron", "job_name", job.Name, "error", err)
		return err
	}

	s.jobs[job.Name] = entryID
	s.logger.Info("added job to scheduler", "job_name", job.Name, "schedule", job.CronExpr)
	return nil
}

// RemoveJob removes a job from the scheduler.
func (s *cronScheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger.Info("removed job from scheduler", "job_name", name)
	}
	return nil
}

// cronJobWrapper adapts a definition to cron.Job.
type cronJobWrapper struct {
	job    *domain.JobDefinition
	runner domain.ScheduledRunner
	logger *slog.Logger
	tracer trace.Tracer
}

// Run is called by the cron library when the definition is due.
func (w *cronJobWrapper) Run() {
	// Start a new trace for this background run.
	ctx, span := w.tracer.Start(context.Background(), "scheduler.Run",
		trace.WithAttributes(
			attribute.String("job.name", w.job.Name),
			attribute.String("job.id", w.job.ID),
		))
	defer span.End()

	w.logger.Info("starting scheduled run")
	if err := w.runner.RunScheduled(ctx, w.job); err != nil {
		w.logger.Error("failed to start scheduled run", "error", err)
		span.RecordError(err)
	}
}
