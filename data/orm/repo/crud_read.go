package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"relmap/data/orm"
	"relmap/data/orm/where"
	"relmap/errors"
)

// Get 根据主键获取，不存在时返回 NOT_FOUND
func (r *Repo[T]) Get(ctx context.Context, id any, relations ...string) (*T, error) {
	pk, err := r.primaryKey()
	if err != nil {
		return nil, err
	}
	e, err := r.Query(ctx).Cond(where.Equals(r.col(pk), id)).With(relations...).First()
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errors.Errorf(errors.ErrCodeNotFound, "%s %v not found", r.model.Meta().Name, id)
	}
	return e, nil
}

// List 偏移/限制列表，按主键升序
func (r *Repo[T]) List(ctx context.Context, offset, limit int) ([]*T, error) {
	q := r.Query(ctx)
	if pk, err := r.primaryKey(); err == nil {
		q.Order(pk, false)
	}
	if offset > 0 {
		q.Offset(offset)
	}
	if limit > 0 {
		q.Limit(limit)
	}
	return q.Find()
}

func (r *Repo[T]) ListAll(ctx context.Context) ([]*T, error) {
	return r.Query(ctx).Find()
}

// ListByIDs 按主键批量查询，空列表直接返回
func (r *Repo[T]) ListByIDs(ctx context.Context, ids ...any) ([]*T, error) {
	if len(ids) == 0 {
		return []*T{}, nil
	}
	pk, err := r.primaryKey()
	if err != nil {
		return nil, err
	}
	return r.Query(ctx).Cond(where.In(r.col(pk), ids...)).Find()
}

// Count 统计总数
func (r *Repo[T]) Count(ctx context.Context) (int64, error) {
	return r.Query(ctx).Count()
}

func (r *Repo[T]) Exists(ctx context.Context, id any) (bool, error) {
	pk, err := r.primaryKey()
	if err != nil {
		return false, err
	}
	n, err := r.Query(ctx).Cond(where.Equals(r.col(pk), id)).Count()
	return n > 0, err
}

func (r *Repo[T]) primaryKey() (string, error) {
	pk, ok := r.model.Meta().PrimaryKey()
	if !ok {
		return "", fmt.Errorf("%w: %s", orm.ErrNoPrimaryKey, r.model.Meta().Name)
	}
	return pk.Name, nil
}

// filterConditions 将后缀运算符形式的过滤参数转换为条件，未声明的列被忽略
func (r *Repo[T]) filterConditions(filters map[string]string) []orm.Condition {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]orm.Condition, 0, len(keys))
	for _, key := range keys {
		value := filters[key]
		field, op := splitFilterKey(key)
		if !r.isAllowedField(field) {
			continue
		}
		col := r.col(field)
		switch op {
		case "like":
			conds = append(conds, where.Like(col, "%"+value+"%"))
		case "gt":
			conds = append(conds, where.GT(col, value))
		case "gte":
			conds = append(conds, where.GTE(col, value))
		case "lt":
			conds = append(conds, where.LT(col, value))
		case "lte":
			conds = append(conds, where.LTE(col, value))
		case "ne":
			conds = append(conds, where.NotEquals(col, value))
		case "in", "not_in":
			parts := strings.Split(value, ",")
			vals := make([]any, len(parts))
			for i, p := range parts {
				vals[i] = strings.TrimSpace(p)
			}
			if op == "in" {
				conds = append(conds, where.In(col, vals...))
			} else {
				conds = append(conds, where.NotIn(col, vals...))
			}
		default:
			conds = append(conds, where.Equals(col, value))
		}
	}
	return conds
}

var filterSuffixes = []string{"_not_in", "_like", "_gte", "_lte", "_gt", "_lt", "_ne", "_in"}

// splitFilterKey 拆分 列名_运算符；列名本身可以包含下划线
func splitFilterKey(key string) (field, op string) {
	for _, s := range filterSuffixes {
		if strings.HasSuffix(key, s) && len(key) > len(s) {
			return strings.TrimSuffix(key, s), s[1:]
		}
	}
	return key, ""
}

// isAllowedField 字段必须是实体声明的列
func (r *Repo[T]) isAllowedField(field string) bool {
	_, ok := r.model.Meta().Column(field)
	return ok
}
