package cache

import (
	"context"
	"sync"
	"time"
)

// IdempotencyStore 幂等键存储
// 用于防止重复下单、重复的表格 webhook 投递
type IdempotencyStore interface {
	// MarkProcessed 标记 key，返回 true 表示首次标记，false 表示已存在
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release 释放 key（处理失败时允许重试）
	Release(ctx context.Context, key string) error
	Close() error
}

// ==================== 内存实现 ====================

// cacheItem 内部结构，包含过期时间
type cacheItem struct {
	expiration int64
}

// MemoryStore 使用 sync.Map 保证并发安全
type MemoryStore struct {
	items sync.Map
	now   func() time.Time
}

// NewMemoryStore 创建内存幂等存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.now()
	item := cacheItem{expiration: now.Add(ttl).UnixNano()}

	actual, loaded := s.items.LoadOrStore(key, item)
	if !loaded {
		return true, nil
	}

	// 已过期则覆盖（懒删除）
	if now.UnixNano() > actual.(cacheItem).expiration {
		if s.items.CompareAndSwap(key, actual, item) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ IdempotencyStore = (*MemoryStore)(nil)
