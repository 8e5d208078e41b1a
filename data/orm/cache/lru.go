package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// LRU 带容量上限与逐条过期时间的泛型缓存
//
// 超过容量时驱逐最久未使用的条目；每个条目在写入时确定过期时刻，
// 未设置 TTL 的条目使用 LRUConfig.TTL，均为 0 时永不过期。
type LRU[K comparable, V any] struct {
	config LRUConfig

	items   map[K]*lruEntry[K, V]
	lruList *list.List // 最近使用的在前

	mu    sync.Mutex
	stats Stats
}

type lruEntry[K comparable, V any] struct {
	key        K
	value      V
	expiresAt  time.Time // 零值表示永不过期
	lruElement *list.Element
}

// LRUConfig LRU 配置
type LRUConfig struct {
	// Name 缓存名称（用于日志和统计）
	Name string

	// MaxSize 最大条目数，0 表示无限制
	MaxSize int

	// TTL 默认过期时间，0 表示永不过期
	TTL time.Duration

	// OnEvict 条目被移除时回调（驱逐、过期、删除）
	OnEvict func(key, value any)
}

// Stats 缓存统计信息
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Expires   int64
	Size      int
}

// NewLRU 创建 LRU 缓存
func NewLRU[K comparable, V any](config LRUConfig) *LRU[K, V] {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	return &LRU[K, V]{
		config:  config,
		items:   make(map[K]*lruEntry[K, V]),
		lruList: list.New(),
	}
}

// Get 获取未过期的值；命中时刷新 LRU 位置
func (c *LRU[K, V]) Get(key K) (value V, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		c.stats.Misses++
		return value, false
	}
	if entry.expired(time.Now()) {
		c.removeEntryUnsafe(entry)
		c.stats.Misses++
		c.stats.Expires++
		return value, false
	}

	c.lruList.MoveToFront(entry.lruElement)
	c.stats.Hits++
	return entry.value, true
}

// Set 使用默认 TTL 写入
func (c *LRU[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.config.TTL)
}

// SetWithTTL 写入并指定过期时间，ttl <= 0 表示永不过期
func (c *LRU[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if entry, exists := c.items[key]; exists {
		entry.value = value
		entry.expiresAt = expiresAt
		c.lruList.MoveToFront(entry.lruElement)
		return
	}

	if c.config.MaxSize > 0 && len(c.items) >= c.config.MaxSize {
		c.evictOldestUnsafe()
	}

	entry := &lruEntry[K, V]{key: key, value: value, expiresAt: expiresAt}
	entry.lruElement = c.lruList.PushFront(entry)
	c.items[key] = entry
	c.stats.Size = len(c.items)
}

// Delete 删除条目，返回是否存在
func (c *LRU[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		return false
	}
	c.removeEntryUnsafe(entry)
	return true
}

// DeleteFunc 删除所有满足条件的条目，返回删除数量
func (c *LRU[K, V]) DeleteFunc(match func(key K, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, entry := range c.items {
		if match(entry.key, entry.value) {
			c.removeEntryUnsafe(entry)
			removed++
		}
	}
	return removed
}

// Clear 清空缓存
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.OnEvict != nil {
		for _, entry := range c.items {
			c.config.OnEvict(entry.key, entry.value)
		}
	}
	c.items = make(map[K]*lruEntry[K, V])
	c.lruList = list.New()
	c.stats.Size = 0
}

// CleanExpired 清理过期条目，返回清理数量
func (c *LRU[K, V]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	cleaned := 0
	for _, entry := range c.items {
		if entry.expired(now) {
			c.removeEntryUnsafe(entry)
			cleaned++
		}
	}
	c.stats.Expires += int64(cleaned)
	return cleaned
}

// Stats 返回统计信息副本
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.items)
	return s
}

// Size 当前条目数（含尚未清理的过期条目）
func (c *LRU[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// HitRate 命中率
func (c *LRU[K, V]) HitRate() float64 {
	s := c.Stats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (e *lruEntry[K, V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (c *LRU[K, V]) evictOldestUnsafe() {
	oldest := c.lruList.Back()
	if oldest == nil {
		return
	}
	c.removeEntryUnsafe(oldest.Value.(*lruEntry[K, V]))
	c.stats.Evictions++
}

func (c *LRU[K, V]) removeEntryUnsafe(entry *lruEntry[K, V]) {
	if c.config.OnEvict != nil {
		c.config.OnEvict(entry.key, entry.value)
	}
	if entry.lruElement != nil {
		c.lruList.Remove(entry.lruElement)
	}
	delete(c.items, entry.key)
	c.stats.Size = len(c.items)
}

// String 返回缓存概况
func (c *LRU[K, V]) String() string {
	s := c.Stats()
	return fmt.Sprintf("LRU[%s]: size=%d/%d, hits=%d, misses=%d, hit_rate=%.2f%%, evictions=%d, expires=%d",
		c.config.Name, s.Size, c.config.MaxSize, s.Hits, s.Misses, c.HitRate()*100, s.Evictions, s.Expires)
}
