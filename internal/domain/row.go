// internal/domain/row.go
package domain

import "context"

// Row is one unit of work produced by a WorkSource. Rows are treated as
// immutable once produced.
type Row map[string]any

// Batch is an ordered group of rows handed to an Action as one unit.
type Batch []Row

// WorkSource lazily produces rows. Next returns io.EOF once the source is exhausted.
type WorkSource interface {
	Next(ctx context.Context) (Row, error)
	Close() error
}

// SourceFactory opens a fresh WorkSource for every run. carry is nil for a
// plain run and holds the loop value that triggered the cycle in loop runs.
type SourceFactory interface {
	Open(ctx context.Context, carry any) (WorkSource, error)
}

// SourceFactoryFunc adapts a function to SourceFactory.
type SourceFactoryFunc func(ctx context.Context, carry any) (WorkSource, error)

// Open implements SourceFactory.
func (f SourceFactoryFunc) Open(ctx context.Context, carry any) (WorkSource, error) {
	return f(ctx, carry)
}

// Action is the side-effecting operation applied to a batch. In row commit
// mode it is also invoked with single-row batches.
type Action interface {
	Execute(ctx context.Context, batch Batch) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, batch Batch) error

// Execute implements Action.
func (f ActionFunc) Execute(ctx context.Context, batch Batch) error {
	return f(ctx, batch)
}

// Predicate produces the continuation value of a loop job. previous is the
// value produced by the prior evaluation, nil on the first one.
type Predicate interface {
	Evaluate(ctx context.Context, previous any) (any, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(ctx context.Context, previous any) (any, error)

// Evaluate implements Predicate.
func (f PredicateFunc) Evaluate(ctx context.Context, previous any) (any, error) {
	return f(ctx, previous)
}
