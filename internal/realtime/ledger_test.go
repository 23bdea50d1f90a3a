package realtime_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
)

func TestLedger_NextVersionIsGapless(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := realtime.NewLedger()
	key := domain.NewEntityKey(domain.EntityCard, "c1")

	for want := int64(1); want <= 10; want++ {
		got, err := l.NextVersion(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	cur, err := l.CurrentVersion(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cur)
}

func TestLedger_UnseenIsZero(t *testing.T) {
	t.Parallel()

	cur, err := realtime.NewLedger().CurrentVersion(context.Background(), domain.NewEntityKey(domain.EntityColumn, "x"))
	require.NoError(t, err)
	assert.Zero(t, cur)
}

func TestLedger_Epoch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := realtime.NewLedger()
	first, err := l.Epoch(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	_, _ = l.NextVersion(ctx, domain.NewEntityKey(domain.EntityCard, "c1"))
	again, err := l.Epoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, again, "stable while the counters live")

	restarted, err := realtime.NewLedger().Epoch(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, restarted)
}

func TestLedger_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := realtime.NewLedger()
	card := domain.NewEntityKey(domain.EntityCard, "same")
	column := domain.NewEntityKey(domain.EntityColumn, "same")

	_, _ = l.NextVersion(ctx, card)
	_, _ = l.NextVersion(ctx, card)
	v, err := l.NextVersion(ctx, column)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestLedger_ConcurrentIncrements(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := realtime.NewLedger()
	key := domain.NewEntityKey(domain.EntityCard, "hot")

	const n = 200
	seen := make(chan int64, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := l.NextVersion(ctx, key)
			assert.NoError(t, err)
			seen <- v
		}()
	}
	wg.Wait()
	close(seen)

	got := make(map[int64]bool, n)
	for v := range seen {
		assert.False(t, got[v], "version %d handed out twice", v)
		got[v] = true
	}
	for v := int64(1); v <= n; v++ {
		assert.True(t, got[v], "missing version %d", v)
	}
}
