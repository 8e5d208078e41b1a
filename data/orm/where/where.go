// Package where 提供可组合的参数化查询条件构建函数
//
// 所有函数返回 orm.Condition：Expr 使用 ? 占位符，Args 与占位符出现顺序严格一致。
// 列参数可以是列名字符串，也可以是另一个 Condition（如聚合 Count("*")），
// 后者的表达式原样内联，其参数排在比较值之前。
//
// 构建函数不做输入校验，也不过滤 nil、""、0、false 等值：空 In 列表会生成
// 非法 SQL，错误在执行时由数据库返回。
package where

import (
	"sort"
	"strings"

	"relmap/data/orm"
)

// Column 列参数：列名或已有条件（原样内联）
type Column interface {
	string | orm.Condition
}

func column[C Column](col C) (string, []any) {
	switch c := any(col).(type) {
	case orm.Condition:
		return c.Expr, c.Args
	case string:
		return c, nil
	}
	return "", nil
}

func compare[C Column](col C, op string, args ...any) orm.Condition {
	expr, colArgs := column(col)
	return orm.Condition{
		Expr: expr + " " + op,
		Args: concat(colArgs, args),
	}
}

func concat(parts ...[]any) []any {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]any, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Equals col = ?
func Equals[C Column](col C, v any) orm.Condition { return compare(col, "= ?", v) }

// NotEquals col <> ?
func NotEquals[C Column](col C, v any) orm.Condition { return compare(col, "<> ?", v) }

// GT col > ?
func GT[C Column](col C, v any) orm.Condition { return compare(col, "> ?", v) }

// LT col < ?
func LT[C Column](col C, v any) orm.Condition { return compare(col, "< ?", v) }

// GTE col >= ?
func GTE[C Column](col C, v any) orm.Condition { return compare(col, ">= ?", v) }

// LTE col <= ?
func LTE[C Column](col C, v any) orm.Condition { return compare(col, "<= ?", v) }

// Between col BETWEEN ? AND ?
func Between[C Column](col C, lo, hi any) orm.Condition {
	return compare(col, "BETWEEN ? AND ?", lo, hi)
}

// In col IN (?, ?, …)，保留重复值与顺序
func In[C Column](col C, values ...any) orm.Condition {
	return compare(col, "IN ("+placeholders(len(values))+")", values...)
}

// NotIn col NOT IN (?, ?, …)
func NotIn[C Column](col C, values ...any) orm.Condition {
	return compare(col, "NOT IN ("+placeholders(len(values))+")", values...)
}

// Like col LIKE ?
func Like[C Column](col C, pattern any) orm.Condition { return compare(col, "LIKE ?", pattern) }

// IsNull col IS NULL
func IsNull[C Column](col C) orm.Condition { return compare(col, "IS NULL") }

// IsNotNull col IS NOT NULL
func IsNotNull[C Column](col C) orm.Condition { return compare(col, "IS NOT NULL") }

// Raw 原样透传 SQL 片段，调用方负责安全性
func Raw(sql string, args ...any) orm.Condition {
	return orm.Condition{Expr: sql, Args: concat(args)}
}

// Aggregate FN(col)，fn 统一转为大写
func Aggregate[C Column](fn string, col C) orm.Condition {
	expr, args := column(col)
	return orm.Condition{
		Expr: strings.ToUpper(fn) + "(" + expr + ")",
		Args: concat(args),
	}
}

// Count COUNT(col)，col 可为 "*"
func Count[C Column](col C) orm.Condition { return Aggregate("COUNT", col) }

// Sum SUM(col)
func Sum[C Column](col C) orm.Condition { return Aggregate("SUM", col) }

// Avg AVG(col)
func Avg[C Column](col C) orm.Condition { return Aggregate("AVG", col) }

// Min MIN(col)
func Min[C Column](col C) orm.Condition { return Aggregate("MIN", col) }

// Max MAX(col)
func Max[C Column](col C) orm.Condition { return Aggregate("MAX", col) }

// InSubquery col IN (<subquery>)
func InSubquery[C, S Column](col C, sub S) orm.Condition {
	subExpr, subArgs := column(sub)
	return compare(col, "IN ("+subExpr+")", subArgs...)
}

// NotInSubquery col NOT IN (<subquery>)
func NotInSubquery[C, S Column](col C, sub S) orm.Condition {
	subExpr, subArgs := column(sub)
	return compare(col, "NOT IN ("+subExpr+")", subArgs...)
}

// Exists EXISTS (<subquery>)；子查询已以 EXISTS/NOT EXISTS 开头时原样返回
func Exists[S Column](sub S) orm.Condition {
	return wrapExists("EXISTS", sub)
}

// NotExists NOT EXISTS (<subquery>)；子查询已以 EXISTS/NOT EXISTS 开头时原样返回
func NotExists[S Column](sub S) orm.Condition {
	return wrapExists("NOT EXISTS", sub)
}

func wrapExists[S Column](keyword string, sub S) orm.Condition {
	expr, args := column(sub)
	upper := strings.ToUpper(strings.TrimSpace(expr))
	if strings.HasPrefix(upper, "EXISTS") || strings.HasPrefix(upper, "NOT EXISTS") {
		return orm.Condition{Expr: expr, Args: concat(args)}
	}
	return orm.Condition{Expr: keyword + " (" + expr + ")", Args: concat(args)}
}

// And (c1 AND c2 AND …)，参数按顺序拼接，不做扁平化
func And(conds ...orm.Condition) orm.Condition { return join(" AND ", conds) }

// Or (c1 OR c2 OR …)
func Or(conds ...orm.Condition) orm.Condition { return join(" OR ", conds) }

// Not NOT (c)
func Not(cond orm.Condition) orm.Condition {
	return orm.Condition{Expr: "NOT (" + cond.Expr + ")", Args: concat(cond.Args)}
}

func join(sep string, conds []orm.Condition) orm.Condition {
	exprs := make([]string, len(conds))
	args := make([][]any, len(conds))
	for i, c := range conds {
		exprs[i] = c.Expr
		args[i] = c.Args
	}
	return orm.Condition{
		Expr: "(" + strings.Join(exprs, sep) + ")",
		Args: concat(args...),
	}
}

// FromMap 将等值映射转换为 And(Equals...)，按列名排序以保证 SQL 稳定；
// wrap 非 nil 时用于给列名加引号。
func FromMap(values map[string]any, wrap func(string) string) orm.Condition {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]orm.Condition, len(keys))
	for i, k := range keys {
		col := k
		if wrap != nil {
			col = wrap(k)
		}
		conds[i] = Equals(col, values[k])
	}
	return And(conds...)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
