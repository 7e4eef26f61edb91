// Package static provides in-memory sources and predicates for job
// definitions that carry their own data.
package static

import (
	"context"
	"fmt"
	"io"
	"sync"

	"periodic-engine/internal/domain"
)

// NewSourceFactory returns a factory that serves spec.Rows on every open.
func NewSourceFactory(spec domain.SourceSpec) domain.SourceFactory {
	rows := spec.Rows
	return domain.SourceFactoryFunc(func(context.Context, any) (domain.WorkSource, error) {
		return &source{rows: rows}, nil
	})
}

type source struct {
	rows []domain.Row
	pos  int
}

func (s *source) Next(ctx context.Context) (domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}

func (s *source) Close() error { return nil }

// Predicate yields a fixed sequence of loop values.
type Predicate struct {
	mu     sync.Mutex
	values []any
	next   int
}

// NewPredicate returns a predicate over spec.Values. Evaluating past the
// last value is a malformed predicate.
func NewPredicate(spec domain.PredicateSpec) *Predicate {
	return &Predicate{values: spec.Values}
}

func (p *Predicate) Evaluate(context.Context, any) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next >= len(p.values) {
		return nil, fmt.Errorf("%w: static values exhausted after %d", domain.ErrMalformedPredicate, len(p.values))
	}
	v := p.values[p.next]
	p.next++
	return v, nil
}
