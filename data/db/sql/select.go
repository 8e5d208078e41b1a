package sql

import (
	"strings"

	"relmap/data/db/dialect"
)

type join struct {
	clause string
	args   []any
}

// SelectBuilder 子句顺序固定：JOIN → WHERE → GROUP BY → ORDER BY → LIMIT → OFFSET → FOR UPDATE
type SelectBuilder struct {
	dialect dialect.Dialect

	cols     []string
	table    string
	fromArgs []any
	joins    []join
	where    predicates
	groupBy  []string
	orderBy  []string
	limit    int
	offset   int
	lock     bool
}

// From 表表达式原样输出（可带别名）；子查询的参数随 args 传入，排在所有参数之前
func (b *SelectBuilder) From(table string, args ...any) *SelectBuilder {
	b.table = table
	b.fromArgs = args
	return b
}

// Join kind 如 "LEFT"、"INNER"，为空按 INNER；target 为已渲染的表表达式
func (b *SelectBuilder) Join(kind, target, on string, args ...any) *SelectBuilder {
	if target == "" {
		return b
	}
	kind = strings.ToUpper(strings.TrimSpace(kind))
	if kind == "" {
		kind = "INNER"
	}
	clause := kind + " JOIN " + target
	if on != "" {
		clause += " ON " + on
	}
	b.joins = append(b.joins, join{clause: clause, args: args})
	return b
}

// Where 多次调用以 AND 连接
func (b *SelectBuilder) Where(cond string, args ...any) *SelectBuilder {
	b.where.add(cond, args)
	return b
}

func (b *SelectBuilder) GroupBy(exprs ...string) *SelectBuilder {
	b.groupBy = append(b.groupBy, exprs...)
	return b
}

// OrderBy 多次调用按顺序追加排序项
func (b *SelectBuilder) OrderBy(exprs ...string) *SelectBuilder {
	for _, e := range exprs {
		if e != "" {
			b.orderBy = append(b.orderBy, e)
		}
	}
	return b
}

func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = n
	return b
}

func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = n
	return b
}

// ForUpdate 方言不支持行锁时不输出
func (b *SelectBuilder) ForUpdate() *SelectBuilder {
	b.lock = b.dialect.SupportsForUpdate()
	return b
}

// Build 可重复调用，每次返回新的参数切片
func (b *SelectBuilder) Build() (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)
	args = append(args, b.fromArgs...)
	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(j.clause)
		args = append(args, j.args...)
	}

	b.where.writeTo(&sb)
	args = append(args, b.where.args...)

	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}
	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}
	if b.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}
	if b.offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, b.offset)
	}
	if b.lock {
		sb.WriteString(" FOR UPDATE")
	}
	return sb.String(), args
}
