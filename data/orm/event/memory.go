package event

import (
	"context"
	"sort"
	"sync"
)

// MemoryPublisher 进程内同步分发
type MemoryPublisher struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]subscription
}

type subscription struct {
	table   string // 空表示所有表
	handler Handler
}

// NewMemoryPublisher 创建进程内发布者
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{handlers: make(map[int]subscription)}
}

// Subscribe 订阅指定表的事件，table 为空时订阅全部；返回取消订阅函数
func (p *MemoryPublisher) Subscribe(table string, h Handler) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.handlers[id] = subscription{table: table, handler: h}
	return func() {
		p.mu.Lock()
		delete(p.handlers, id)
		p.mu.Unlock()
	}
}

// Publish 按订阅顺序调用处理函数
func (p *MemoryPublisher) Publish(ctx context.Context, evt Event) error {
	p.mu.RLock()
	ids := make([]int, 0, len(p.handlers))
	for id := range p.handlers {
		ids = append(ids, id)
	}
	subs := make([]subscription, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		subs = append(subs, p.handlers[id])
	}
	p.mu.RUnlock()

	for _, s := range subs {
		if s.table == "" || s.table == evt.Table {
			s.handler(ctx, evt)
		}
	}
	return nil
}
