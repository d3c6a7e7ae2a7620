package journal

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler(t *testing.T) {
	t.Parallel()

	store, err := NewMemoryStore(10)
	require.NoError(t, err)

	_, err = NewScheduler(store, "not a schedule", time.Hour, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewScheduler(store, "0 3 * * *", 0, zerolog.Nop())
	assert.Error(t, err)

	s, err := NewScheduler(store, "0 3 * * *", time.Hour, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, s.NextRun().IsZero())
}

func TestSchedulerPruneOnce(t *testing.T) {
	t.Parallel()

	store, err := NewMemoryStore(10)
	require.NoError(t, err)
	ctx := context.Background()

	now := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	require.NoError(t, store.Record(ctx, Exchange{Route: "/old", CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.Record(ctx, Exchange{Route: "/new", CreatedAt: now.Add(-time.Hour)}))

	s, err := NewScheduler(store, "0 3 * * *", 24*time.Hour, zerolog.Nop())
	require.NoError(t, err)
	s.now = func() time.Time { return now }

	deleted, err := s.PruneOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	got, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/new", got[0].Route)
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	store, err := NewMemoryStore(10)
	require.NoError(t, err)

	s, err := NewScheduler(store, "*/5 * * * *", time.Hour, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return !s.NextRun().IsZero() }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run()がキャンセル後に戻らない")
	}
}
