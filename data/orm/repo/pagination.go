package repo

import (
	"context"
	"math"
	"sort"
)

// ListPage 分页查询；Page 从 1 开始，Size 默认 20
func (r *Repo[T]) ListPage(ctx context.Context, options PageOptions) (*PagedResult[T], error) {
	page, size := options.Page, options.Size
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	total, err := r.Query(ctx).Filters(options.Filters).Count()
	if err != nil {
		return nil, err
	}

	q := r.Query(ctx).Filters(options.Filters).With(options.Relations...)
	r.applySorting(q, options.Sorts)
	if fields := r.safeFields(options.Fields); len(fields) > 0 {
		q.Select(fields...)
	}
	data, err := q.Offset((page - 1) * size).Limit(size).Find()
	if err != nil {
		return nil, err
	}

	return &PagedResult[T]{
		Data:       data,
		Total:      total,
		Page:       page,
		Size:       size,
		TotalPages: int(math.Ceil(float64(total) / float64(size))),
	}, nil
}

func (r *Repo[T]) applySorting(q *Query[T], sorts map[string]SortDirection) {
	fields := make([]string, 0, len(sorts))
	for f, dir := range sorts {
		if dir.IsValid() && r.isAllowedField(f) {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	for _, f := range fields {
		q.Order(r.model.Meta().Table+"."+f, sorts[f] == DESC)
	}
	if len(fields) == 0 {
		if pk, err := r.primaryKey(); err == nil {
			q.Order(r.model.Meta().Table+"."+pk, false)
		}
	}
}

func (r *Repo[T]) safeFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if r.isAllowedField(f) {
			out = append(out, r.model.Meta().Table+"."+f)
		}
	}
	return out
}
