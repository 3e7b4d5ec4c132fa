package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"trainvault-go/internal/model"
)

type memoryEntry struct {
	id        uint
	meta      model.FileMetadata
	expiresAt time.Time
}

// memoryCache 是进程内的有界 TTL 缓存。
// 容量满时淘汰最久未写入的条目；过期条目在读取时惰性剔除。
type memoryCache struct {
	mu         sync.Mutex
	entries    map[uint]*list.Element
	order      *list.List // 队首最老
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemory 创建有界 TTL 内存缓存。
func NewMemory(ttl time.Duration, maxEntries int) MetadataCache {
	return &memoryCache{
		entries:    make(map[uint]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *memoryCache) Get(ctx context.Context, id uint) (*model.FileMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if c.now().After(entry.expiresAt) {
		c.removeLocked(el)
		return nil, false
	}
	meta := entry.meta
	return &meta, true
}

func (c *memoryCache) Set(ctx context.Context, id uint, meta *model.FileMetadata) {
	if meta == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[id]; ok {
		c.removeLocked(el)
	}
	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}

	entry := &memoryEntry{id: id, meta: *meta, expiresAt: c.now().Add(c.ttl)}
	c.entries[id] = c.order.PushBack(entry)
}

func (c *memoryCache) Delete(ctx context.Context, id uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[id]; ok {
		c.removeLocked(el)
	}
}

func (c *memoryCache) removeLocked(el *list.Element) {
	entry := el.Value.(*memoryEntry)
	c.order.Remove(el)
	delete(c.entries, entry.id)
}
