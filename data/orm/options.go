package orm

import "time"

// Condition 表示基础查询条件，Expr 使用占位符 ?，Args 按占位符出现顺序排列。
type Condition struct {
	Expr string
	Args []any
}

// IsZero 条件是否为空
func (c Condition) IsZero() bool {
	return c.Expr == ""
}

// OrderBy 表示排序字段。
type OrderBy struct {
	Column string
	Desc   bool
}

// QueryOptions 描述查询的通用选项。
type QueryOptions struct {
	Where     []Condition
	WhereMap  map[string]any // 等值条件，由引擎按列名排序转换为 AND 链
	OrderBy   []OrderBy
	GroupBy   []string
	Limit     int
	Offset    int
	Select    []string
	Relations []string // 需要一并查询的关联属性（多对一或一对多）
	ForUpdate bool

	Cache    bool
	CacheID  string
	CacheTTL time.Duration
}

// QueryOption 用于配置 QueryOptions。
type QueryOption func(*QueryOptions)

// WithWhere 追加原始查询条件。
func WithWhere(expr string, args ...any) QueryOption {
	return WithCondition(Condition{Expr: expr, Args: args})
}

// WithCondition 追加由条件构建器生成的条件。条件只引用本实体的列，
// 与 WithRelations 同用时仍作用于根实体。
func WithCondition(conds ...Condition) QueryOption {
	return func(opts *QueryOptions) {
		for _, c := range conds {
			if !c.IsZero() {
				opts.Where = append(opts.Where, c)
			}
		}
	}
}

// WithWhereMap 追加等值条件，多次调用时合并，后者覆盖同名列。
func WithWhereMap(values map[string]any) QueryOption {
	return func(opts *QueryOptions) {
		if len(values) == 0 {
			return
		}
		if opts.WhereMap == nil {
			opts.WhereMap = make(map[string]any, len(values))
		}
		for k, v := range values {
			opts.WhereMap[k] = v
		}
	}
}

// WithGroupBy 追加分组字段。
func WithGroupBy(columns ...string) QueryOption {
	return func(opts *QueryOptions) {
		if len(columns) == 0 {
			return
		}
		opts.GroupBy = append(opts.GroupBy, columns...)
	}
}

// WithOrderBy 追加排序。
func WithOrderBy(column string, desc bool) QueryOption {
	return func(opts *QueryOptions) {
		if column == "" {
			return
		}
		opts.OrderBy = append(opts.OrderBy, OrderBy{Column: column, Desc: desc})
	}
}

// WithLimit 设置查询条数上限。
func WithLimit(limit int) QueryOption {
	return func(opts *QueryOptions) {
		if limit > 0 {
			opts.Limit = limit
		}
	}
}

// WithOffset 设置查询偏移。
func WithOffset(offset int) QueryOption {
	return func(opts *QueryOptions) {
		if offset > 0 {
			opts.Offset = offset
		}
	}
}

// WithSelect 指定返回列。
func WithSelect(columns ...string) QueryOption {
	return func(opts *QueryOptions) {
		if len(columns) == 0 {
			return
		}
		opts.Select = append(opts.Select, columns...)
	}
}

// WithRelations 一并查询指定的关联（单层 LEFT JOIN，支持多对一与一对多）。
// 此时 WithLimit/WithOffset 按根实体计数，一对多的子集合完整返回。
func WithRelations(properties ...string) QueryOption {
	return func(opts *QueryOptions) {
		if len(properties) == 0 {
			return
		}
		opts.Relations = append(opts.Relations, properties...)
	}
}

// WithForUpdate 标记需要行级锁。
func WithForUpdate() QueryOption {
	return func(opts *QueryOptions) {
		opts.ForUpdate = true
	}
}

// WithCache 启用查询结果缓存；id 为空时由 SQL 与参数生成缓存键，ttl 为 0 使用缓存默认值。
func WithCache(id string, ttl time.Duration) QueryOption {
	return func(opts *QueryOptions) {
		opts.Cache = true
		opts.CacheID = id
		opts.CacheTTL = ttl
	}
}

// CollectQueryOptions 聚合 QueryOption，方便适配器读取。
func CollectQueryOptions(options ...QueryOption) QueryOptions {
	var opts QueryOptions
	for _, opt := range options {
		if opt != nil {
			opt(&opts)
		}
	}
	return opts
}
