package engine

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitioner_Next(t *testing.T) {
	p := NewPartitioner(&sliceSource{rows: numberedRows(5)}, 2)
	ctx := context.Background()

	var sizes []int
	for {
		b, err := p.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, len(b))
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)

	// exhausted partitioners stay exhausted
	_, err := p.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPartitioner_PullsLazily(t *testing.T) {
	src := &sliceSource{rows: numberedRows(100)}
	p := NewPartitioner(src, 10)

	_, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, src.pos)
}

func TestPartitioner_SourceError(t *testing.T) {
	p := NewPartitioner(&sliceSource{rows: numberedRows(5), failAt: 3}, 2)
	ctx := context.Background()

	_, err := p.Next(ctx)
	require.NoError(t, err)

	_, err = p.Next(ctx)
	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Contains(t, srcErr.Error(), "connection reset")

	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}
