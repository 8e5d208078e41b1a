// Package event 提供实体变更通知
//
// 映射引擎在 Save/Delete 成功后产生 Event；处于事务中时，通知延迟到最外层事务
// 提交后发布，回滚时丢弃（见 tx.AfterCommit）。
package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Op 变更类型
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event 实体变更事件
type Event struct {
	ID        string    `json:"id"`
	Entity    string    `json:"entity"` // 实体名
	Table     string    `json:"table"`
	Op        Op        `json:"op"`
	Key       any       `json:"key,omitempty"`  // 主键值
	Data      any       `json:"data,omitempty"` // 持久化后的实体，删除时为空
	Timestamp time.Time `json:"timestamp"`
}

// New 创建事件
func New(entity, table string, op Op, key, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Entity:    entity,
		Table:     table,
		Op:        op,
		Key:       key,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// IPublisher 事件发布者
type IPublisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Handler 进程内事件处理函数
type Handler func(ctx context.Context, evt Event)
