package orm

import "errors"

var (
	// ErrNotFound 表示记录未找到。
	ErrNotFound = errors.New("orm: record not found")
	// ErrUnsupported 表示当前适配器或方言不支持请求的能力。
	ErrUnsupported = errors.New("orm: capability unsupported")
	// ErrMetadataNotFound 表示请求的实体类型没有注册元数据。
	ErrMetadataNotFound = errors.New("orm: entity metadata not found")
	// ErrRelationColumn 表示关联的连接列不存在于声明的列中。
	ErrRelationColumn = errors.New("orm: relation join column not declared")
	// ErrInvalidModel 表示传入的模型无法映射（非结构体、缺少表名等）。
	ErrInvalidModel = errors.New("orm: invalid model")
	// ErrNoPrimaryKey 表示实体缺少主键，无法执行按主键的操作。
	ErrNoPrimaryKey = errors.New("orm: entity has no primary key")
	// ErrTypeConversion 表示结果值无法转换为字段类型。
	ErrTypeConversion = errors.New("orm: value type conversion failed")
	// ErrNoTransaction 表示要求存在事务但当前上下文中没有活动事务。
	ErrNoTransaction = errors.New("orm: no active transaction")
	// ErrRollbackOnly 表示事务已被参与方标记为只能回滚。
	ErrRollbackOnly = errors.New("orm: transaction marked rollback-only")
)
