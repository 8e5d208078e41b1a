// Package sql 按方言渲染映射引擎使用的参数化语句
//
// 构建器只产出 SQL 文本与参数（统一使用 ? 占位符，执行时由 IDatabase 按方言改写），
// 不持有连接，语句在哪个事务上执行由调用方决定。
// 表名/列名经过安全校验后按方言加引号；条件、排序与连接表达式由调用方保证安全。
package sql

import (
	"relmap/data/db/dialect"
)

// Builder 绑定方言的语句工厂，零值不可用
type Builder struct {
	dialect dialect.Dialect
}

// New 创建语句工厂
func New(d dialect.Dialect) *Builder {
	return &Builder{dialect: d}
}

// Dialect 返回使用的方言
func (b *Builder) Dialect() dialect.Dialect {
	return b.dialect
}

// Select 列为空时选择 *；列表达式原样输出
func (b *Builder) Select(columns ...string) *SelectBuilder {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	return &SelectBuilder{dialect: b.dialect, cols: columns}
}

// InsertInto 创建 INSERT 语句
func (b *Builder) InsertInto(table string) *InsertBuilder {
	return &InsertBuilder{dialect: b.dialect, table: table}
}

// Update 创建 UPDATE 语句
func (b *Builder) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{dialect: b.dialect, table: table}
}

// DeleteFrom 创建 DELETE 语句
func (b *Builder) DeleteFrom(table string) *DeleteBuilder {
	return &DeleteBuilder{dialect: b.dialect, table: table}
}
