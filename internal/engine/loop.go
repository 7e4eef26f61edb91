// internal/engine/loop.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"periodic-engine/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type loopState int

const (
	awaitingPredicate loopState = iota
	iterating
	executing
	done
)

func (s loopState) String() string {
	switch s {
	case awaitingPredicate:
		return "awaiting-predicate"
	case iterating:
		return "iterating"
	case executing:
		return "executing"
	default:
		return "done"
	}
}

// LoopRun is a loop job whose first predicate value has been produced.
// Cycles run lazily while Results is consumed.
type LoopRun struct {
	engine    *Engine
	ctx       context.Context
	job       Job
	predicate domain.Predicate
	first     any
	started   atomic.Bool
	cycles    int64
	err       error
}

// Loop evaluates the predicate once and returns the run it starts. A
// predicate that fails to produce its first value is a configuration error
// and no cycle runs.
func (e *Engine) Loop(ctx context.Context, job Job, predicate domain.Predicate) (*LoopRun, error) {
	if predicate == nil {
		return nil, fmt.Errorf("%w: loop job %q needs a predicate", domain.ErrInvalidConfig, job.Name)
	}
	if err := e.prepare(&job); err != nil {
		return nil, err
	}

	first, err := evaluate(ctx, predicate, nil)
	if err != nil {
		return nil, err
	}
	return &LoopRun{
		engine:    e,
		ctx:       ctx,
		job:       job,
		predicate: predicate,
		first:     first,
	}, nil
}

// evaluate runs the predicate and classifies a malformed outcome as a
// configuration error.
func evaluate(ctx context.Context, p domain.Predicate, previous any) (any, error) {
	v, err := p.Evaluate(ctx, previous)
	if errors.Is(err, domain.ErrMalformedPredicate) && !errors.Is(err, domain.ErrInvalidConfig) {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	return v, err
}

// Results runs the loop, yielding one result per cycle tagged with the
// value that triggered it. The sequence can be consumed once; stopping
// early ends the loop after the current cycle.
func (r *LoopRun) Results() iter.Seq[*domain.JobResult] {
	return func(yield func(*domain.JobResult) bool) {
		if !r.started.CompareAndSwap(false, true) {
			return
		}

		value := r.first
		var carry any
		state := iterating
		if !IsTruthy(value) {
			state = done
		}

		for state != done {
			switch state {
			case awaitingPredicate:
				if r.job.Guard.Check(r.ctx) {
					state = done
					continue
				}
				next, err := evaluate(r.ctx, r.predicate, carry)
				if err != nil {
					r.err = err
					r.engine.logger.Error("loop predicate failed", "job_name", r.job.Name, "cycle", r.cycles, "error", err)
					state = done
					continue
				}
				value = next
				state = iterating
				if !IsTruthy(value) {
					state = done
				}

			case iterating:
				carry = value
				state = executing

			case executing:
				r.cycles++
				result := r.runCycle(carry)
				if !yield(result) || result.WasTerminated {
					state = done
					continue
				}
				state = awaitingPredicate
			}
		}
		r.engine.logger.Info("loop finished", "job_name", r.job.Name, "cycles", r.cycles)
	}
}

func (r *LoopRun) runCycle(carry any) *domain.JobResult {
	ctx, span := r.engine.tracer.Start(r.ctx, "engine.LoopCycle", trace.WithAttributes(
		attribute.String("job.name", r.job.Name),
		attribute.Int64("loop.cycle", r.cycles),
		attribute.String("loop.state", executing.String()),
	))
	defer span.End()

	return r.engine.runPass(ctx, r.job, carry).InLoop(carry)
}

// Cycles returns the number of cycles executed so far.
func (r *LoopRun) Cycles() int64 { return r.cycles }

// Err returns the predicate error that ended the loop, if any. It is only
// meaningful once Results has been fully consumed.
func (r *LoopRun) Err() error { return r.err }
