package repo

import (
	"context"
	"time"

	"relmap/data/orm"
)

// Query 链式查询，收集 orm.QueryOption 后交给模型执行
type Query[T any] struct {
	ctx  context.Context
	repo *Repo[T]
	opts []orm.QueryOption
}

func (q *Query[T]) Where(expr string, args ...any) *Query[T] {
	q.opts = append(q.opts, orm.WithWhere(expr, args...))
	return q
}

// Cond 追加由 where 包构建的条件
func (q *Query[T]) Cond(conds ...orm.Condition) *Query[T] {
	q.opts = append(q.opts, orm.WithCondition(conds...))
	return q
}

func (q *Query[T]) WhereMap(values map[string]any) *Query[T] {
	q.opts = append(q.opts, orm.WithWhereMap(values))
	return q
}

// Filters 按后缀运算符追加过滤条件
func (q *Query[T]) Filters(filters map[string]string) *Query[T] {
	q.opts = append(q.opts, orm.WithCondition(q.repo.filterConditions(filters)...))
	return q
}

func (q *Query[T]) With(relations ...string) *Query[T] {
	q.opts = append(q.opts, orm.WithRelations(relations...))
	return q
}

func (q *Query[T]) Order(column string, desc bool) *Query[T] {
	q.opts = append(q.opts, orm.WithOrderBy(column, desc))
	return q
}

func (q *Query[T]) Limit(limit int) *Query[T] {
	q.opts = append(q.opts, orm.WithLimit(limit))
	return q
}

func (q *Query[T]) Offset(offset int) *Query[T] {
	q.opts = append(q.opts, orm.WithOffset(offset))
	return q
}

func (q *Query[T]) Select(columns ...string) *Query[T] {
	q.opts = append(q.opts, orm.WithSelect(columns...))
	return q
}

func (q *Query[T]) GroupBy(columns ...string) *Query[T] {
	q.opts = append(q.opts, orm.WithGroupBy(columns...))
	return q
}

func (q *Query[T]) ForUpdate() *Query[T] {
	q.opts = append(q.opts, orm.WithForUpdate())
	return q
}

// Cached 经由查询缓存读取；id 为空时按语句与参数生成键
func (q *Query[T]) Cached(id string, ttl time.Duration) *Query[T] {
	q.opts = append(q.opts, orm.WithCache(id, ttl))
	return q
}

// First 返回第一条记录，无记录时返回 (nil, nil)
func (q *Query[T]) First() (*T, error) {
	v, err := q.repo.model.FindOne(q.ctx, q.opts...)
	if err != nil || v == nil {
		return nil, err
	}
	e, _ := v.(*T)
	return e, nil
}

func (q *Query[T]) Find() ([]*T, error) {
	vs, err := q.repo.model.Find(q.ctx, q.opts...)
	if err != nil {
		return nil, err
	}
	return typed[T](vs), nil
}

func (q *Query[T]) Count() (int64, error) {
	return q.repo.model.Count(q.ctx, q.opts...)
}

// Delete 按当前条件删除，不允许无条件删除
func (q *Query[T]) Delete() (int64, error) {
	return q.repo.model.DeleteWhere(q.ctx, q.opts...)
}
