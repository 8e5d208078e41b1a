package tx

import "sync"

// Queue 单条调用链上的事务上下文队列（先进先出）
//
// 队列随 context.Context 在调用链中传递，不同调用链互不共享。
// 任何移除操作使深度归零时队列被强制清空，最外层事务结束时管理器也会调用 Clear，
// 保证不会有残留的上下文泄漏到之后的调用中。
type Queue struct {
	mu    sync.Mutex
	items []*Context
}

// NewQueue 创建空队列
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue 入队
func (q *Queue) Enqueue(c *Context) {
	if c == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()
}

// Dequeue 取出队首；空队列返回 nil
func (q *Queue) Dequeue() *Context {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	c := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.clearIfEmptyLocked()
	return c
}

// Remove 移除指定上下文（事务结束时按身份移除，不要求严格 FIFO 顺序）
func (q *Queue) Remove(c *Context) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item == c {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.clearIfEmptyLocked()
			return true
		}
	}
	return false
}

// First 返回队首（最早开启的事务）
func (q *Queue) First() *Context {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Last 返回队尾（最近开启的事务）
func (q *Queue) Last() *Context {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[len(q.items)-1]
}

// Depth 返回队列长度
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear 清空队列
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

func (q *Queue) clearIfEmptyLocked() {
	if len(q.items) == 0 {
		q.items = nil
	}
}
