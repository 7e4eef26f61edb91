package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"periodic-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository()

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	require.NoError(t, repo.Save(ctx, &domain.JobDefinition{Name: "b"}))
	require.NoError(t, repo.Save(ctx, &domain.JobDefinition{Name: "a"}))

	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)

	require.NoError(t, repo.Delete(ctx, "a"))
	assert.ErrorIs(t, repo.Delete(ctx, "a"), domain.ErrJobNotFound)
}

func TestExecutionRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewExecutionRepository()
	end := time.Now()

	for i := 1; i <= 5; i++ {
		rec := domain.NewExecutionRecord(fmt.Sprintf("r%d", i), "run", "job", i, &domain.JobResult{}, end)
		require.NoError(t, repo.Save(ctx, rec))
	}

	page1, err := repo.ListByJobName(ctx, "job", 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "r5", page1[0].ID)
	assert.Equal(t, "r4", page1[1].ID)

	page3, err := repo.ListByJobName(ctx, "job", 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "r1", page3[0].ID)

	empty, err := repo.ListByJobName(ctx, "job", 4, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)

	rec, err := repo.Get(ctx, "job", "r3")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Cycle)

	_, err = repo.Get(ctx, "job", "nope")
	assert.ErrorIs(t, err, domain.ErrExecutionNotFound)
}

func TestExecutionRepository_RejectsInvalidRecord(t *testing.T) {
	err := NewExecutionRepository().Save(context.Background(), &domain.ExecutionRecord{ID: "x"})
	assert.Error(t, err)
}

func TestLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocker()

	held, err := l.Lock(ctx, "job")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "job")
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	other, err := l.Lock(ctx, "other")
	require.NoError(t, err)
	require.NoError(t, other.Unlock(ctx))

	require.NoError(t, held.Unlock(ctx))
	require.NoError(t, held.Unlock(ctx))

	again, err := l.Lock(ctx, "job")
	require.NoError(t, err)
	require.NoError(t, again.Unlock(ctx))
}

func TestSoleLeader(t *testing.T) {
	ctx := context.Background()
	m := NewSoleLeader()
	assert.False(t, m.IsLeader())

	lost, err := m.Campaign(ctx)
	require.NoError(t, err)
	assert.True(t, m.IsLeader())

	require.NoError(t, m.Resign(ctx))
	assert.False(t, m.IsLeader())
	_, open := <-lost
	assert.False(t, open)
}

func TestMembership(t *testing.T) {
	ctx := context.Background()
	m := NewMembership()
	assert.Empty(t, m.Nodes())

	require.NoError(t, m.Join(ctx, domain.Node{ID: "n1", HttpAddr: ":8080"}))
	assert.Equal(t, []domain.Node{{ID: "n1", HttpAddr: ":8080"}}, m.Nodes())

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		m.Watch(watchCtx)
		close(done)
	}()
	cancel()
	<-done

	require.NoError(t, m.Leave(ctx))
	assert.Empty(t, m.Nodes())
}
