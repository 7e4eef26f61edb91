package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"periodic-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequencePredicate yields its values in order and records what it was
// called with.
type sequencePredicate struct {
	values   []any
	calls    int
	previous []any
}

func (p *sequencePredicate) Evaluate(_ context.Context, previous any) (any, error) {
	p.previous = append(p.previous, previous)
	if p.calls >= len(p.values) {
		return nil, domain.ErrMalformedPredicate
	}
	v := p.values[p.calls]
	p.calls++
	return v, nil
}

func collect(run *LoopRun) []*domain.JobResult {
	var out []*domain.JobResult
	for r := range run.Results() {
		out = append(out, r)
	}
	return out
}

func TestLoop_RunsWhileTruthy(t *testing.T) {
	pred := &sequencePredicate{values: []any{true, true, false}}
	run, err := newTestEngine().Loop(context.Background(), Job{
		Name:   "loop",
		Source: staticFactory(numberedRows(5)),
		Action: noopAction(),
		Config: testConfig(2, 1),
	}, pred)
	require.NoError(t, err)

	results := collect(run)
	require.NoError(t, run.Err())
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, int64(3), r.Batches)
		assert.Equal(t, int64(5), r.Total)
		assert.Equal(t, true, r.Loop)
	}
	assert.Equal(t, int64(2), run.Cycles())
}

func TestLoop_ThreadsCarry(t *testing.T) {
	pred := &sequencePredicate{values: []any{"page-2", "page-3", ""}}
	var opened []any
	source := domain.SourceFactoryFunc(func(_ context.Context, carry any) (domain.WorkSource, error) {
		opened = append(opened, carry)
		return &sliceSource{rows: numberedRows(1)}, nil
	})

	run, err := newTestEngine().Loop(context.Background(), Job{
		Name:   "carry",
		Source: source,
		Action: noopAction(),
		Config: testConfig(10, 1),
	}, pred)
	require.NoError(t, err)

	results := collect(run)
	require.Len(t, results, 2)
	assert.Equal(t, "page-2", results[0].Loop)
	assert.Equal(t, "page-3", results[1].Loop)
	assert.Equal(t, []any{"page-2", "page-3"}, opened)
	assert.Equal(t, []any{nil, "page-2", "page-3"}, pred.previous)
}

func TestLoop_FalsyFirstValueRunsNothing(t *testing.T) {
	for _, v := range []any{nil, false, 0, 0.0, ""} {
		t.Run(fmt.Sprintf("%T %v", v, v), func(t *testing.T) {
			run, err := newTestEngine().Loop(context.Background(), Job{
				Name:   "never",
				Source: staticFactory(numberedRows(3)),
				Action: noopAction(),
				Config: testConfig(1, 1),
			}, &sequencePredicate{values: []any{v}})
			require.NoError(t, err)
			assert.Empty(t, collect(run))
		})
	}
}

func TestLoop_MalformedFirstPredicate(t *testing.T) {
	called := false
	_, err := newTestEngine().Loop(context.Background(), Job{
		Name:   "malformed",
		Source: staticFactory(numberedRows(3)),
		Action: domain.ActionFunc(func(context.Context, domain.Batch) error {
			called = true
			return nil
		}),
		Config: testConfig(1, 1),
	}, &sequencePredicate{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.ErrorIs(t, err, domain.ErrMalformedPredicate)
	assert.False(t, called)
}

func TestLoop_MalformedLaterPredicate(t *testing.T) {
	run, err := newTestEngine().Loop(context.Background(), Job{
		Name:   "malformed-later",
		Source: staticFactory(numberedRows(3)),
		Action: noopAction(),
		Config: testConfig(1, 1),
	}, &sequencePredicate{values: []any{1}})
	require.NoError(t, err)

	assert.Len(t, collect(run), 1)
	assert.ErrorIs(t, run.Err(), domain.ErrMalformedPredicate)
}

func TestLoop_TerminationEndsAfterCurrentCycle(t *testing.T) {
	guard := NewGuard()
	pred := domain.PredicateFunc(func(context.Context, any) (any, error) { return true, nil })
	action := domain.ActionFunc(func(_ context.Context, b domain.Batch) error {
		if b[0]["id"].(int) == 2 {
			guard.Terminate()
		}
		return nil
	})

	run, err := newTestEngine().Loop(context.Background(), Job{
		Name:   "forever",
		Source: staticFactory(numberedRows(3)),
		Action: action,
		Config: testConfig(1, 1),
		Guard:  guard,
	}, pred)
	require.NoError(t, err)

	results := collect(run)
	require.Len(t, results, 1)
	assert.True(t, results[0].WasTerminated)
	assert.Equal(t, int64(2), results[0].Batches)
}

func TestLoop_FailingCycleDoesNotStopLoop(t *testing.T) {
	pred := &sequencePredicate{values: []any{1, 2, 0}}
	action := domain.ActionFunc(func(context.Context, domain.Batch) error {
		return errors.New("write conflict")
	})

	run, err := newTestEngine().Loop(context.Background(), Job{
		Name:   "failing",
		Source: staticFactory(numberedRows(2)),
		Action: action,
		Config: testConfig(10, 1),
	}, pred)
	require.NoError(t, err)

	results := collect(run)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, int64(2), r.FailedOperations)
	}
}

func TestLoop_ResultsIsSingleUse(t *testing.T) {
	run, err := newTestEngine().Loop(context.Background(), Job{
		Name:   "once",
		Source: staticFactory(numberedRows(1)),
		Action: noopAction(),
		Config: testConfig(1, 1),
	}, &sequencePredicate{values: []any{true, false}})
	require.NoError(t, err)

	assert.Len(t, collect(run), 1)
	assert.Empty(t, collect(run))
}

func TestLoop_StopConsumingEndsLoop(t *testing.T) {
	pred := domain.PredicateFunc(func(context.Context, any) (any, error) { return true, nil })
	run, err := newTestEngine().Loop(context.Background(), Job{
		Name:   "early-stop",
		Source: staticFactory(numberedRows(1)),
		Action: noopAction(),
		Config: testConfig(1, 1),
	}, pred)
	require.NoError(t, err)

	n := 0
	for range run.Results() {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(3), run.Cycles())
}

func TestLoop_RequiresPredicate(t *testing.T) {
	_, err := newTestEngine().Loop(context.Background(), Job{
		Name:   "no-predicate",
		Source: staticFactory(nil),
		Action: noopAction(),
		Config: testConfig(1, 1),
	}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
