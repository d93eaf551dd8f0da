package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore 进程内缓存, Redis 未启用时使用
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
	streams map[string][]map[string]interface{}
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

var (
	_ Store           = (*MemoryStore)(nil)
	_ StreamPublisher = (*MemoryStore)(nil)
)

// NewMemoryStore 创建进程内缓存
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     time.Now,
		entries: make(map[string]memoryEntry),
		streams: make(map[string][]map[string]interface{}),
	}
}

// Get 获取缓存
func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return "", nil
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return "", nil
	}
	return entry.value, nil
}

// Set 设置缓存, ttl <= 0 表示不过期
func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

// Delete 删除缓存
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// XAdd 追加到 Stream
func (m *MemoryStore) XAdd(_ context.Context, stream string, values map[string]interface{}) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make(map[string]interface{}, len(values))
	for k, v := range values {
		copied[k] = v
	}
	m.streams[stream] = append(m.streams[stream], copied)
	return fmt.Sprintf("%d-0", len(m.streams[stream])), nil
}

// Stream 返回 Stream 中的全部消息
func (m *MemoryStore) Stream(stream string) []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]map[string]interface{}, len(m.streams[stream]))
	copy(out, m.streams[stream])
	return out
}
