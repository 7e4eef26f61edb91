package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"periodic-engine/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// JobService manages stored job definitions and their execution history.
type JobService struct {
	repo      domain.JobRepository
	execRepo  domain.ExecutionRepository
	scheduler domain.Schedular
	runner    *Runner
	validator domain.Validator
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewJobService creates a new JobService instance.
func NewJobService(repo domain.JobRepository, execRepo domain.ExecutionRepository, scheduler domain.Schedular, runner *Runner, logger *slog.Logger) *JobService {
	return &JobService{
		repo:      repo,
		execRepo:  execRepo,
		scheduler: scheduler,
		runner:    runner,
		validator: NewStatementValidator(),
		logger:    logger.With("component", "job-service"),
		tracer:    otel.Tracer("periodic-engine-usecase"),
	}
}

// ListHistory lists the execution history for a specific job.
func (s *JobService) ListHistory(ctx context.Context, jobName string, page, pageSize int) ([]*domain.ExecutionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListHistory")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.name", jobName),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	records, err := s.execRepo.ListByJobName(ctx, jobName, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list job history from repository")
	}
	return records, err
}

// Save validates and stores a definition. Definitions with a cron
// expression are handed to the scheduler.
func (s *JobService) Save(ctx context.Context, job *domain.JobDefinition) error {
	ctx, span := s.tracer.Start(ctx, "service.Save")
	defer span.End()

	if err := job.Validate(); err != nil {
		return err
	}
	if _, err := domain.ParseJobConfig(job.Config); err != nil {
		return err
	}
	if err := checkDefinition(s.validator, job, job.AllowedModes()); err != nil {
		return err
	}

	now := time.Now()
	if job.ID == "" {
		job.ID = uuid.New().String()
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	span.SetAttributes(attribute.String("job.id", job.ID), attribute.String("job.name", job.Name))

	// Schedule first so a bad cron expression is never stored.
	if job.CronExpr != "" {
		if err := s.scheduler.AddJob(job); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to add job to scheduler")
			return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
		}
	} else if err := s.scheduler.RemoveJob(job.Name); err != nil {
		return err
	}

	if err := s.repo.Save(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save job to repository")
		_ = s.scheduler.RemoveJob(job.Name)
		return err
	}
	return nil
}

// Delete unschedules and removes a definition, and cancels its run if one
// is in progress.
func (s *JobService) Delete(ctx context.Context, name string) error {
	ctx, span := s.tracer.Start(ctx, "service.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	if err := s.scheduler.RemoveJob(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to remove job from scheduler")
		return err
	}

	cancelErr := s.runner.Cancel(name)
	err := s.repo.Delete(ctx, name)
	if errors.Is(err, domain.ErrJobNotFound) && cancelErr == nil {
		// a submitted job that was never stored
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete job from repository")
		return err
	}
	return nil
}

// Get returns a stored definition.
func (s *JobService) Get(ctx context.Context, name string) (*domain.JobDefinition, error) {
	ctx, span := s.tracer.Start(ctx, "service.Get")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	job, err := s.repo.Get(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get job from repository")
	}
	return job, err
}

// List returns every stored definition.
func (s *JobService) List(ctx context.Context) ([]*domain.JobDefinition, error) {
	ctx, span := s.tracer.Start(ctx, "service.List")
	defer span.End()

	jobs, err := s.repo.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list jobs from repository")
	}
	return jobs, err
}
