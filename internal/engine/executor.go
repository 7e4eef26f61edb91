package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"periodic-engine/internal/domain"
	"periodic-engine/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Executor runs an action over batches and accounts for the outcome in its
// Collector. Action failures and panics never escape Execute, so one bad
// batch cannot abort its siblings.
type Executor struct {
	jobName   string
	action    domain.Action
	collector *Collector
	guard     *Guard
	mode      domain.CommitMode
	retries   int
	backoff   time.Duration
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewExecutor creates an executor for one pass of a job.
func NewExecutor(jobName string, action domain.Action, cfg domain.JobConfig, collector *Collector, guard *Guard, logger *slog.Logger) *Executor {
	return &Executor{
		jobName:   jobName,
		action:    action,
		collector: collector,
		guard:     guard,
		mode:      cfg.CommitMode,
		retries:   cfg.Retries,
		backoff:   cfg.RetryBackoff,
		logger:    logger.With("component", "batch-executor", "job_name", jobName),
		tracer:    otel.Tracer("periodic-engine-executor"),
	}
}

// Execute runs one batch. seq is the 1-based position of the batch in the pass.
func (e *Executor) Execute(ctx context.Context, seq int64, batch domain.Batch) {
	ctx, span := e.tracer.Start(ctx, "engine.ExecuteBatch", trace.WithAttributes(
		attribute.String("job.name", e.jobName),
		attribute.Int64("batch.seq", seq),
		attribute.Int("batch.size", len(batch)),
	))
	defer span.End()

	e.collector.BatchStarted(len(batch))

	err := e.invoke(ctx, batch)
	for attempt := 1; err != nil && attempt <= e.retries; attempt++ {
		if e.guard.Check(ctx) {
			break
		}
		e.collector.Retried()
		metrics.RetriesTotal.WithLabelValues(e.jobName).Inc()
		e.logger.Debug("retrying batch", "batch", seq, "attempt", attempt, "error", err)
		if !sleepCtx(ctx, e.backoff) {
			break
		}
		err = e.invoke(ctx, batch)
	}

	if err == nil {
		e.collector.Committed(len(batch))
		metrics.BatchesTotal.WithLabelValues(e.jobName, "committed").Inc()
		metrics.RowsTotal.WithLabelValues(e.jobName, "committed").Add(float64(len(batch)))
		span.SetStatus(codes.Ok, "batch committed")
		return
	}

	span.RecordError(err)
	if e.mode == domain.CommitModeRow {
		e.executeRows(ctx, seq, batch, err)
		return
	}

	e.collector.BatchFailed(seq, batch, err)
	metrics.BatchesTotal.WithLabelValues(e.jobName, "failed").Inc()
	metrics.RowsTotal.WithLabelValues(e.jobName, "failed").Add(float64(len(batch)))
	span.SetStatus(codes.Error, "batch failed")
	e.logger.Warn("batch failed", "batch", seq, "size", len(batch), "error", err)
}

// executeRows retries every row of a failed batch on its own.
func (e *Executor) executeRows(ctx context.Context, seq int64, batch domain.Batch, batchErr error) {
	var failed domain.Batch
	var committed int
	for i, row := range batch {
		if e.guard.Check(ctx) {
			rest := batch[i:]
			e.collector.RowsAbandoned(len(rest))
			failed = append(failed, rest...)
			break
		}
		if err := e.invoke(ctx, domain.Batch{row}); err != nil {
			e.collector.RowFailed(err)
			failed = append(failed, row)
			continue
		}
		e.collector.Committed(1)
		committed++
	}

	metrics.RowsTotal.WithLabelValues(e.jobName, "committed").Add(float64(committed))
	metrics.RowsTotal.WithLabelValues(e.jobName, "failed").Add(float64(len(failed)))
	if len(failed) == 0 {
		metrics.BatchesTotal.WithLabelValues(e.jobName, "committed").Inc()
		return
	}
	e.collector.RowBatchFailed(seq, failed, batchErr)
	metrics.BatchesTotal.WithLabelValues(e.jobName, "failed").Inc()
	e.logger.Warn("batch partially failed", "batch", seq, "size", len(batch), "failed_rows", len(failed), "error", batchErr)
}

func (e *Executor) invoke(ctx context.Context, batch domain.Batch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return e.action.Execute(ctx, batch)
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
