package session

import "sync"

// Builder 负责构建一个新的会话。
type Builder func() (*Session, error)

// Cache 将配置指纹映射到可复用的会话。相同指纹的并发首次访问
// 被串行化，保证 builder 恰好执行一次；后续读取只持有短暂的映射锁。
type Cache struct {
	mu      sync.Mutex
	entries map[Fingerprint]*cacheEntry
}

type cacheEntry struct {
	once    sync.Once
	session *Session
	err     error
}

// NewCache 创建会话缓存。
func NewCache() *Cache {
	return &Cache{entries: make(map[Fingerprint]*cacheEntry)}
}

// GetOrCreate 返回指纹对应的会话；不存在时调用 builder 构建一次并缓存。
// 构建失败不会被缓存，下一次访问会重新尝试。
func (c *Cache) GetOrCreate(fp Fingerprint, builder Builder) (*Session, error) {
	c.mu.Lock()
	entry, ok := c.entries[fp]
	if !ok {
		entry = &cacheEntry{}
		c.entries[fp] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.session, entry.err = builder()
	})

	if entry.err != nil {
		c.mu.Lock()
		if c.entries[fp] == entry {
			delete(c.entries, fp)
		}
		c.mu.Unlock()
		return nil, entry.err
	}
	return entry.session, nil
}

// Len 返回当前缓存的会话数量。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
