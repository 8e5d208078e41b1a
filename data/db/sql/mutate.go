package sql

import (
	"sort"
	"strings"

	"relmap/data/db/dialect"
)

// UpdateBuilder UPDATE ... SET ... WHERE ...
type UpdateBuilder struct {
	dialect dialect.Dialect

	table string
	cols  []string
	vals  []any
	where predicates
}

func (b *UpdateBuilder) Set(column string, val any) *UpdateBuilder {
	b.cols = append(b.cols, column)
	b.vals = append(b.vals, val)
	return b
}

// SetMap 按列名排序追加，生成的语句与参数顺序稳定
func (b *UpdateBuilder) SetMap(values map[string]any) *UpdateBuilder {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Set(k, values[k])
	}
	return b
}

func (b *UpdateBuilder) Where(cond string, args ...any) *UpdateBuilder {
	b.where.add(cond, args)
	return b
}

func (b *UpdateBuilder) Build() (string, []any) {
	if len(b.cols) == 0 {
		panic("sql: update " + b.table + " without columns")
	}
	sets := make([]string, len(b.cols))
	for i, c := range b.cols {
		sets[i] = identifier(b.dialect, c, "update") + " = ?"
	}

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(identifier(b.dialect, b.table, "update"))
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(sets, ", "))
	b.where.writeTo(&sb)

	args := make([]any, 0, len(b.vals)+len(b.where.args))
	args = append(args, b.vals...)
	args = append(args, b.where.args...)
	return sb.String(), args
}

// DeleteBuilder DELETE FROM ... WHERE ... [LIMIT ?]
type DeleteBuilder struct {
	dialect dialect.Dialect

	table string
	where predicates
	limit int
}

func (b *DeleteBuilder) Where(cond string, args ...any) *DeleteBuilder {
	b.where.add(cond, args)
	return b
}

// Limit 方言不支持 DELETE ... LIMIT 时忽略
func (b *DeleteBuilder) Limit(n int) *DeleteBuilder {
	b.limit = n
	return b
}

func (b *DeleteBuilder) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(identifier(b.dialect, b.table, "delete"))
	b.where.writeTo(&sb)

	args := append([]any(nil), b.where.args...)
	if b.limit > 0 && b.dialect.SupportsDeleteLimit() {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}
	return sb.String(), args
}
