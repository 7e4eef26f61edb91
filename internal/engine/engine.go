// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"periodic-engine/internal/domain"
	"periodic-engine/internal/pool"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Job is everything the engine needs to run one job.
type Job struct {
	Name   string
	Source domain.SourceFactory
	Action domain.Action
	Config domain.JobConfig
	// Guard terminates the job. When nil a guard honoring Config.Timeout is
	// created for the run.
	Guard *Guard
}

// Engine runs iterate and loop jobs on a set of shared worker pools.
type Engine struct {
	pools  *pool.Registry
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates an engine.
func New(pools *pool.Registry, logger *slog.Logger) *Engine {
	return &Engine{
		pools:  pools,
		logger: logger.With("component", "engine"),
		tracer: otel.Tracer("periodic-engine"),
	}
}

// Iterate makes a single pass over the job's source. Action failures,
// source failures and termination are all reported through the result; the
// error is only set for an invalid job.
func (e *Engine) Iterate(ctx context.Context, job Job) (*domain.JobResult, error) {
	if err := e.prepare(&job); err != nil {
		return nil, err
	}
	return e.runPass(ctx, job, nil), nil
}

func (e *Engine) prepare(job *Job) error {
	if job.Source == nil || job.Action == nil {
		return fmt.Errorf("%w: job %q needs a source and an action", domain.ErrInvalidConfig, job.Name)
	}
	if err := job.Config.Validate(); err != nil {
		return err
	}
	if job.Guard == nil {
		job.Guard = NewDeadlineGuard(job.Config.Timeout)
	}
	return nil
}

// runPass opens the source with carry and dispatches all of its batches.
func (e *Engine) runPass(ctx context.Context, job Job, carry any) *domain.JobResult {
	ctx, span := e.tracer.Start(ctx, "engine.Pass", trace.WithAttributes(
		attribute.String("job.name", job.Name),
		attribute.Int("job.batch_size", job.Config.BatchSize),
		attribute.Int("job.concurrency", job.Config.Concurrency),
	))
	defer span.End()

	collector := NewCollector(job.Config.FailedParamsCap)
	if job.Guard.Check(ctx) {
		collector.Terminated()
		return collector.Result()
	}

	src, err := job.Source.Open(ctx, carry)
	if err != nil {
		e.logger.Error("failed to open work source", "job_name", job.Name, "error", err)
		span.RecordError(err)
		collector.SourceFailed(&SourceError{Err: err})
		return collector.Result()
	}
	defer func() {
		if err := src.Close(); err != nil {
			e.logger.Warn("failed to close work source", "job_name", job.Name, "error", err)
		}
	}()

	exec := NewExecutor(job.Name, job.Action, job.Config, collector, job.Guard, e.logger)
	dispatcher := NewDispatcher(e.pools.Get(job.Config.PoolName), e.logger)
	result := dispatcher.Run(ctx, NewPartitioner(src, job.Config.BatchSize), exec, job.Config.Concurrency)

	span.SetAttributes(
		attribute.Int64("job.batches", result.Batches),
		attribute.Int64("job.failed_operations", result.FailedOperations),
		attribute.Bool("job.terminated", result.WasTerminated),
	)
	e.logger.Debug("pass finished",
		"job_name", job.Name,
		"batches", result.Batches,
		"total", result.Total,
		"committed", result.CommittedOperations,
		"failed", result.FailedOperations,
		"terminated", result.WasTerminated,
	)
	return result
}
