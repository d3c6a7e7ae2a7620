package journal

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrInvalidCapacity は容量に0以下が指定されたことを表す。
var ErrInvalidCapacity = errors.New("容量は1以上である必要があります")

// MemoryStore は固定容量のリングバッファによるStore実装。
// 容量を超えると古い履歴から上書きされる。
type MemoryStore struct {
	mu    sync.RWMutex
	buf   []Exchange
	start int
	size  int
	now   func() time.Time
}

// NewMemoryStore は容量capacityのMemoryStoreを生成する。
func NewMemoryStore(capacity int) (*MemoryStore, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &MemoryStore{
		buf: make([]Exchange, capacity),
		now: time.Now,
	}, nil
}

// Record は履歴を1件保存する。
func (m *MemoryStore) Record(_ context.Context, e Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e = normalize(e, m.now())
	idx := (m.start + m.size) % len(m.buf)
	m.buf[idx] = e
	if m.size < len(m.buf) {
		m.size++
	} else {
		m.start = (m.start + 1) % len(m.buf)
	}
	return nil
}

// Recent は新しい順に最大limit件の履歴を返す。
func (m *MemoryStore) Recent(_ context.Context, limit int) ([]Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > m.size {
		limit = m.size
	}
	out := make([]Exchange, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (m.start + m.size - 1 - i) % len(m.buf)
		out = append(out, m.buf[idx])
	}
	return out, nil
}

// Prune はbeforeより前に記録された履歴を削除する。
func (m *MemoryStore) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]Exchange, 0, m.size)
	for i := 0; i < m.size; i++ {
		e := m.buf[(m.start+i)%len(m.buf)]
		if !e.CreatedAt.Before(before) {
			kept = append(kept, e)
		}
	}
	deleted := int64(m.size - len(kept))

	clear(m.buf)
	copy(m.buf, kept)
	m.start = 0
	m.size = len(kept)
	return deleted, nil
}

// Close は何もしない。
func (m *MemoryStore) Close() error {
	return nil
}
