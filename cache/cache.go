// cache/cache.go
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Cache 计分板缓存, payloads are encoded scoreboards keyed by game id.
type Cache interface {
	Get(ctx context.Context, gameID int64) ([]byte, bool, error)
	Set(ctx context.Context, gameID int64, data []byte) error
	Delete(ctx context.Context, gameIDs ...int64) error
}

const keyPrefix = "skullscore:scoreboard:"

func key(gameID int64) string {
	return keyPrefix + strconv.FormatInt(gameID, 10)
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is the in-process cache used when Redis is disabled.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[int64]entry
	now     func() time.Time
}

// NewMemory 创建内存缓存; ttl <= 0 keeps entries until deleted.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: make(map[int64]entry),
		now:     time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, gameID int64) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[gameID]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, gameID)
		m.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), e.data...), true, nil
}

func (m *Memory) Set(ctx context.Context, gameID int64, data []byte) error {
	e := entry{data: append([]byte(nil), data...)}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[gameID] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, gameIDs ...int64) error {
	m.mu.Lock()
	for _, id := range gameIDs {
		delete(m.entries, id)
	}
	m.mu.Unlock()
	return nil
}

// Len 当前条目数
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
