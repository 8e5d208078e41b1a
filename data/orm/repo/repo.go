// Package repo 在映射引擎之上提供按实体类型参数化的仓储。
package repo

import (
	"context"
	"fmt"

	"relmap/data/orm"
	"relmap/data/orm/tx"
)

// Repo 基于 relmap/data/orm 的通用仓储实现。
// 约束：T 为已注册的结构体实体；实现 Validate() error 的实体在写入前校验。
type Repo[T any] struct {
	orm       orm.IOrm
	model     orm.IModel
	txm       *tx.Manager
	validator func(*T) error
}

// Option 仓储选项
type Option[T any] func(*Repo[T])

// WithTxManager 批量写入在同一事务中执行
func WithTxManager[T any](m *tx.Manager) Option[T] {
	return func(r *Repo[T]) { r.txm = m }
}

// WithValidator 写入前的额外校验，在实体自身的 Validate 之后执行
func WithValidator[T any](fn func(*T) error) Option[T] {
	return func(r *Repo[T]) { r.validator = fn }
}

// New 创建仓储实例；T 未注册或不是结构体实体时返回错误。
func New[T any](ormEngine orm.IOrm, opts ...Option[T]) (*Repo[T], error) {
	model, err := ormEngine.Model(new(T))
	if err != nil {
		return nil, err
	}
	if model.Meta().IsMap() {
		return nil, fmt.Errorf("%w: %s is a map entity", orm.ErrInvalidModel, model.Meta().Name)
	}
	r := &Repo[T]{orm: ormEngine, model: model}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// MustNew 同 New，失败时 panic
func MustNew[T any](ormEngine orm.IOrm, opts ...Option[T]) *Repo[T] {
	r, err := New[T](ormEngine, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Query 开始一次链式查询
func (r *Repo[T]) Query(ctx context.Context) *Query[T] {
	return &Query[T]{ctx: ctx, repo: r}
}

// Model 暴露底层模型
func (r *Repo[T]) Model() orm.IModel { return r.model }

// Orm 返回绑定的 ORM 引擎。
func (r *Repo[T]) Orm() orm.IOrm { return r.orm }

// atomically 配置了事务管理器时在事务中执行 fn
func (r *Repo[T]) atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.txm == nil {
		return fn(ctx)
	}
	return r.txm.Run(ctx, fn)
}

func (r *Repo[T]) validate(entity *T) error {
	if v, ok := any(entity).(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if r.validator != nil {
		return r.validator(entity)
	}
	return nil
}

// col 返回以表名限定并加引号的列名，关联查询时避免歧义
func (r *Repo[T]) col(name string) string {
	return r.orm.Registry().Naming().Wrap(r.model.Meta().Table + "." + name)
}

func typed[T any](vs []any) []*T {
	out := make([]*T, 0, len(vs))
	for _, v := range vs {
		if e, ok := v.(*T); ok {
			out = append(out, e)
		}
	}
	return out
}
