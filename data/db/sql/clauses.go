package sql

import (
	"strings"

	"relmap/data/db/dialect"
)

// predicates 以 AND 连接的条件列表，参数按追加顺序保存
type predicates struct {
	exprs []string
	args  []any
}

func (p *predicates) add(expr string, args []any) {
	if expr == "" {
		return
	}
	p.exprs = append(p.exprs, expr)
	p.args = append(p.args, args...)
}

func (p *predicates) writeTo(sb *strings.Builder) {
	if len(p.exprs) == 0 {
		return
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(p.exprs, " AND "))
}

// identifier 校验并按方言加引号，已加引号的名称先去掉引号再校验。
//
// 名称来自实体元数据，非法值属于编程错误，直接 panic。
func identifier(d dialect.Dialect, name, stmt string) string {
	plain := name
	if q := d.QuoteChar(); q != 0 {
		plain = strings.ReplaceAll(name, string(q), "")
	}
	if !validIdentifier(plain) {
		panic("sql: unsafe identifier in " + stmt + ": " + name)
	}
	return d.QuoteIdentifier(name)
}

func identifiers(d dialect.Dialect, names []string, stmt string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = identifier(d, n, stmt)
	}
	return strings.Join(quoted, ", ")
}

// validIdentifier 接受 foo、schema.table 形式：每段以字母或下划线开头，其后为字母、数字或下划线
func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return false
		}
		for i, ch := range seg {
			switch {
			case ch == '_', ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
			case i > 0 && ch >= '0' && ch <= '9':
			default:
				return false
			}
		}
	}
	return true
}
