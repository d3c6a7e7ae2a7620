package journal

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryStore(t *testing.T) {
	t.Parallel()

	_, err := NewMemoryStore(0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	s, err := NewMemoryStore(3)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestMemoryStoreRecordAndRecent(t *testing.T) {
	t.Parallel()

	s, err := NewMemoryStore(3)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, s.Record(ctx, Exchange{Route: fmt.Sprintf("/r%d", i), Status: 200}))
	}

	// 容量3なので最古の/r1は上書きされる
	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "/r4", got[0].Route)
	assert.Equal(t, "/r3", got[1].Route)
	assert.Equal(t, "/r2", got[2].Route)

	for _, e := range got {
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	}

	limited, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "/r4", limited[0].Route)
}

func TestMemoryStorePrune(t *testing.T) {
	t.Parallel()

	s, err := NewMemoryStore(10)
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, Exchange{
			Route:     fmt.Sprintf("/r%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	deleted, err := s.Prune(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	got, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "/r4", got[0].Route)
	assert.Equal(t, "/r2", got[2].Route)

	// 削除後も追記できること
	require.NoError(t, s.Record(ctx, Exchange{Route: "/r5", CreatedAt: base.Add(5 * time.Hour)}))
	got, err = s.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "/r5", got[0].Route)
}

func TestMemoryStoreConcurrentRecord(t *testing.T) {
	t.Parallel()

	s, err := NewMemoryStore(1000)
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = s.Record(ctx, Exchange{Route: "/query"})
			}
		}()
	}
	wg.Wait()

	got, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 500)
}
