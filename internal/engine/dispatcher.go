// internal/engine/dispatcher.go
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"periodic-engine/internal/domain"
	"periodic-engine/internal/pool"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Dispatcher feeds the batches of a Partitioner to an Executor.
type Dispatcher struct {
	pool   *pool.Pool
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher whose concurrent batches share p.
func NewDispatcher(p *pool.Pool, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		pool:   p,
		logger: logger.With("component", "dispatcher"),
	}
}

// Run drains the partitioner and returns the collector's final snapshot.
// With concurrency of one or less every batch runs on the calling goroutine
// in source order. Otherwise up to concurrency batches run at once, each
// holding one slot of the shared pool, and the next batch is only pulled
// once a slot is free.
//
// Termination stops admission of new batches; batches already running are
// always allowed to finish. The result is only marked terminated when
// admission stopped with work left in the source, so a deadline passing
// during the final batch still reports a complete pass.
func (d *Dispatcher) Run(ctx context.Context, part *Partitioner, exec *Executor, concurrency int) *domain.JobResult {
	var stopped bool
	if concurrency <= 1 {
		stopped = d.runSequential(ctx, part, exec)
	} else {
		stopped = d.runConcurrent(ctx, part, exec, concurrency)
	}
	if stopped {
		exec.collector.Terminated()
	}
	return exec.collector.Result()
}

// runSequential reports whether admission was cut short by the guard while
// the source still had work.
func (d *Dispatcher) runSequential(ctx context.Context, part *Partitioner, exec *Executor) bool {
	var seq int64
	for {
		if exec.guard.Check(ctx) {
			return !part.Drained()
		}
		batch, ok := d.pull(ctx, part, exec)
		if !ok {
			return false
		}
		if exec.guard.Check(ctx) {
			d.dropped(exec, batch)
			return true
		}
		seq++
		exec.Execute(ctx, seq, batch)
	}
}

// runConcurrent reports the same as runSequential once every admitted batch
// has finished.
func (d *Dispatcher) runConcurrent(ctx context.Context, part *Partitioner, exec *Executor, concurrency int) bool {
	// local bounds this job, the shared pool bounds all jobs together.
	local := semaphore.NewWeighted(int64(concurrency))
	var g errgroup.Group

	var (
		seq     int64
		stopped bool
	)
	for {
		// 1. Wait for a local slot before pulling, so at most concurrency
		//    batches are buffered or running.
		if err := local.Acquire(ctx, 1); err != nil {
			exec.guard.Terminate()
			stopped = !part.Drained()
			break
		}
		if exec.guard.Check(ctx) {
			local.Release(1)
			stopped = !part.Drained()
			break
		}

		// 2. Pull the next batch.
		batch, ok := d.pull(ctx, part, exec)
		if !ok {
			local.Release(1)
			break
		}

		// 3. Take a shared slot and re-check before starting.
		if err := d.pool.Acquire(ctx); err != nil {
			local.Release(1)
			exec.guard.Terminate()
			d.dropped(exec, batch)
			stopped = true
			break
		}
		if exec.guard.Check(ctx) {
			d.pool.Release()
			local.Release(1)
			d.dropped(exec, batch)
			stopped = true
			break
		}

		seq++
		n := seq
		g.Go(func() error {
			defer local.Release(1)
			defer d.pool.Release()
			exec.Execute(ctx, n, batch)
			return nil
		})
	}

	_ = g.Wait()
	return stopped
}

// dropped traces a batch that was pulled but never started. Its rows are
// not counted in the result.
func (d *Dispatcher) dropped(exec *Executor, batch domain.Batch) {
	d.logger.Debug("dropping pulled batch after termination", "job_name", exec.jobName, "rows", len(batch))
}

// pull returns the next batch, or false once the pass has nothing left to
// admit. Source failures are recorded on the collector.
func (d *Dispatcher) pull(ctx context.Context, part *Partitioner, exec *Executor) (domain.Batch, bool) {
	batch, err := part.Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil, false
	}
	if err != nil {
		d.logger.Error("work source failed", "job_name", exec.jobName, "error", err)
		exec.collector.SourceFailed(err)
		return nil, false
	}
	return batch, true
}
