package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"periodic-engine/internal/domain"
)

// maxPrealloc bounds the capacity reserved up front for a batch.
const maxPrealloc = 1024

// SourceError wraps a failure of the work source.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source error: %v", e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Partitioner slices a WorkSource into ordered batches. It only holds the
// rows of the batch being built, so unbounded sources are never materialized.
type Partitioner struct {
	src  domain.WorkSource
	size int
	done bool
}

// NewPartitioner creates a partitioner. A size of zero or less puts the
// whole source into a single batch.
func NewPartitioner(src domain.WorkSource, size int) *Partitioner {
	return &Partitioner{src: src, size: size}
}

// Next returns the next batch, or io.EOF when the source is exhausted. An
// empty source yields io.EOF straight away. A source failure is returned as
// a *SourceError and ends the partitioner; rows of the unfinished batch are
// dropped.
func (p *Partitioner) Next(ctx context.Context) (domain.Batch, error) {
	if p.done {
		return nil, io.EOF
	}

	var batch domain.Batch
	if p.size > 0 {
		batch = make(domain.Batch, 0, min(p.size, maxPrealloc))
	}
	for p.size <= 0 || len(batch) < p.size {
		row, err := p.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			p.done = true
			break
		}
		if err != nil {
			p.done = true
			return nil, &SourceError{Err: err}
		}
		batch = append(batch, row)
	}

	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

// Drained reports whether the source has ended, so no further batch can
// come out of Next.
func (p *Partitioner) Drained() bool {
	return p.done
}
