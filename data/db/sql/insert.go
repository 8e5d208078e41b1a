package sql

import (
	"strings"

	"relmap/data/db/dialect"
)

// InsertBuilder 单行或多行 INSERT
type InsertBuilder struct {
	dialect dialect.Dialect

	table     string
	columns   []string
	rows      [][]any
	returning []string
}

func (b *InsertBuilder) Columns(cols ...string) *InsertBuilder {
	b.columns = cols
	return b
}

// Values 追加一行，长度须与列数一致
func (b *InsertBuilder) Values(vals ...any) *InsertBuilder {
	if len(vals) > 0 {
		b.rows = append(b.rows, vals)
	}
	return b
}

// Returning 仅对支持 RETURNING 的方言生效
func (b *InsertBuilder) Returning(cols ...string) *InsertBuilder {
	if b.dialect.SupportsReturning() {
		b.returning = append(b.returning, cols...)
	}
	return b
}

func (b *InsertBuilder) Build() (string, []any) {
	if len(b.columns) == 0 || len(b.rows) == 0 {
		panic("sql: insert into " + b.table + " needs columns and at least one row")
	}

	placeholders := "(?" + strings.Repeat(", ?", len(b.columns)-1) + ")"
	tuples := make([]string, len(b.rows))
	args := make([]any, 0, len(b.rows)*len(b.columns))
	for i, row := range b.rows {
		if len(row) != len(b.columns) {
			panic("sql: insert into " + b.table + ": values do not match columns")
		}
		tuples[i] = placeholders
		args = append(args, row...)
	}

	q := "INSERT INTO " + identifier(b.dialect, b.table, "insert") +
		" (" + identifiers(b.dialect, b.columns, "insert") + ") VALUES " + strings.Join(tuples, ", ")
	if len(b.returning) > 0 {
		q += " RETURNING " + identifiers(b.dialect, b.returning, "insert")
	}
	return q, args
}
