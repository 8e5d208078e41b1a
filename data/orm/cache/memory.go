package cache

import (
	"context"
	"strings"
	"time"

	"relmap/data/db"
)

// MemoryProvider 进程内缓存，基于 LRU
type MemoryProvider struct {
	lru *LRU[string, []db.Row]
}

// NewMemoryProvider 创建进程内缓存；maxSize 为 0 表示不限容量，ttl 为默认过期时间
func NewMemoryProvider(maxSize int, ttl time.Duration) *MemoryProvider {
	return &MemoryProvider{
		lru: NewLRU[string, []db.Row](LRUConfig{Name: "orm.query", MaxSize: maxSize, TTL: ttl}),
	}
}

func (p *MemoryProvider) Get(_ context.Context, key string) ([]db.Row, bool, error) {
	rows, ok := p.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return cloneRows(rows), true, nil
}

func (p *MemoryProvider) Set(_ context.Context, key string, rows []db.Row, ttl time.Duration) error {
	if ttl <= 0 {
		p.lru.Set(key, cloneRows(rows))
		return nil
	}
	p.lru.SetWithTTL(key, cloneRows(rows), ttl)
	return nil
}

func (p *MemoryProvider) Invalidate(_ context.Context, tables ...string) error {
	for _, table := range tables {
		prefix := TablePrefix(table)
		p.lru.DeleteFunc(func(key string, _ []db.Row) bool {
			return strings.HasPrefix(key, prefix)
		})
	}
	return nil
}

// Stats 返回 LRU 统计
func (p *MemoryProvider) Stats() Stats {
	return p.lru.Stats()
}

// 行在转换时会被读取，缓存中保存副本，避免调用方修改影响后续命中
func cloneRows(rows []db.Row) []db.Row {
	out := make([]db.Row, len(rows))
	for i, r := range rows {
		cp := make(db.Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
