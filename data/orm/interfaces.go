package orm

import (
	"context"

	"relmap/data/db"
)

// IOrm 表示映射引擎入口。
type IOrm interface {
	// Capabilities 返回引擎在当前方言下支持的能力集合。
	Capabilities() Capabilities
	// Registry 返回实体元数据注册表。
	Registry() *Registry
	// Model 返回指定实体的操作入口；model 可以是实体名、类型或实例。
	// 未注册的实体返回 ErrMetadataNotFound。
	Model(model any) (IModel, error)
	// Executor 返回 ctx 对应的执行器：事务作用域内为事务连接，否则为连接池。
	Executor(ctx context.Context) db.IDatabase
	// Raw 返回底层连接池。
	Raw() any
}

// IModel 封装实体级别的基础操作。
//
// 结构体实体的返回值为 *T（Find 为 []*T 的 []any 形式），map 实体返回 map[string]any。
type IModel interface {
	Meta() *EntityMeta
	Capabilities() Capabilities

	// Save 主键存在时执行 UPDATE，否则执行 INSERT；返回持久化后的实体。
	Save(ctx context.Context, payload any) (any, error)
	Find(ctx context.Context, opts ...QueryOption) ([]any, error)
	// FindOne 无记录时返回 (nil, nil)。
	FindOne(ctx context.Context, opts ...QueryOption) (any, error)
	Count(ctx context.Context, opts ...QueryOption) (int64, error)
	// Delete 按主键删除实体，返回受影响行数。
	Delete(ctx context.Context, entity any) (int64, error)
	// DeleteWhere 按条件删除，不允许无条件删除。
	DeleteWhere(ctx context.Context, opts ...QueryOption) (int64, error)
}
