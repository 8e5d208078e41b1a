package repo

import (
	"context"

	"relmap/data/orm/where"
)

// Save 新增或更新，返回持久化后的实体
func (r *Repo[T]) Save(ctx context.Context, entity *T) (*T, error) {
	if err := r.validate(entity); err != nil {
		return nil, err
	}
	v, err := r.model.Save(ctx, entity)
	if err != nil {
		return nil, err
	}
	saved, _ := v.(*T)
	return saved, nil
}

// Patch 按主键部分更新，只写入 values 中出现的列
func (r *Repo[T]) Patch(ctx context.Context, id any, values map[string]any) (*T, error) {
	pk, err := r.primaryKey()
	if err != nil {
		return nil, err
	}
	payload := make(map[string]any, len(values)+1)
	for k, v := range values {
		payload[k] = v
	}
	payload[pk] = id
	v, err := r.model.Save(ctx, payload)
	if err != nil {
		return nil, err
	}
	saved, _ := v.(*T)
	return saved, nil
}

// Delete 按主键删除，返回是否删除了记录
func (r *Repo[T]) Delete(ctx context.Context, id any) (bool, error) {
	n, err := r.model.Delete(ctx, id)
	return n > 0, err
}

// SaveAll 逐条保存；配置了事务管理器时任一失败整体回滚
func (r *Repo[T]) SaveAll(ctx context.Context, entities []*T) ([]*T, error) {
	if len(entities) == 0 {
		return []*T{}, nil
	}
	for _, e := range entities {
		if err := r.validate(e); err != nil {
			return nil, err
		}
	}
	out := make([]*T, 0, len(entities))
	err := r.atomically(ctx, func(ctx context.Context) error {
		for _, e := range entities {
			v, err := r.model.Save(ctx, e)
			if err != nil {
				return err
			}
			saved, _ := v.(*T)
			out = append(out, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteAll 按主键批量删除
func (r *Repo[T]) DeleteAll(ctx context.Context, ids ...any) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	pk, err := r.primaryKey()
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.atomically(ctx, func(ctx context.Context) error {
		var err error
		n, err = r.Query(ctx).Cond(where.In(r.col(pk), ids...)).Delete()
		return err
	})
	return n, err
}
