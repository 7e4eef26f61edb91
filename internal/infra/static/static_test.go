package static

import (
	"context"
	"io"
	"testing"

	"periodic-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceFactory_ReopensFromStart(t *testing.T) {
	f := NewSourceFactory(domain.SourceSpec{Rows: []domain.Row{{"id": 1}, {"id": 2}}})
	ctx := context.Background()

	for range 2 {
		src, err := f.Open(ctx, nil)
		require.NoError(t, err)

		var n int
		for {
			_, err := src.Next(ctx)
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			n++
		}
		assert.Equal(t, 2, n)
		require.NoError(t, src.Close())
	}
}

func TestPredicate(t *testing.T) {
	p := NewPredicate(domain.PredicateSpec{Values: []any{"a", false}})
	ctx := context.Background()

	v, err := p.Evaluate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, err = p.Evaluate(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, false, v)

	_, err = p.Evaluate(ctx, false)
	assert.ErrorIs(t, err, domain.ErrMalformedPredicate)
}
