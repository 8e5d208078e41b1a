package where

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"relmap/data/orm"
)

func TestComparisons(t *testing.T) {
	tests := []struct {
		name string
		cond orm.Condition
		expr string
		args []any
	}{
		{"equals", Equals("name", "ann"), "name = ?", []any{"ann"}},
		{"not equals", NotEquals("name", "ann"), "name <> ?", []any{"ann"}},
		{"gt", GT("age", 18), "age > ?", []any{18}},
		{"lt", LT("age", 65), "age < ?", []any{65}},
		{"gte", GTE("age", 18), "age >= ?", []any{18}},
		{"lte", LTE("age", 65), "age <= ?", []any{65}},
		{"between", Between("age", 18, 65), "age BETWEEN ? AND ?", []any{18, 65}},
		{"like", Like("name", "a%"), "name LIKE ?", []any{"a%"}},
		{"raw column", Equals("DATE(created_at)", "2024-01-01"), "DATE(created_at) = ?", []any{"2024-01-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expr, tt.cond.Expr)
			assert.Equal(t, tt.args, tt.cond.Args)
		})
	}
}

func TestNullChecks(t *testing.T) {
	c := IsNull("deleted_at")
	assert.Equal(t, "deleted_at IS NULL", c.Expr)
	assert.Empty(t, c.Args)

	c = IsNotNull("deleted_at")
	assert.Equal(t, "deleted_at IS NOT NULL", c.Expr)
	assert.Empty(t, c.Args)
}

func TestIn_PreservesDuplicatesAndOrder(t *testing.T) {
	c := In("status", "active", "active", "pending")
	assert.Equal(t, "status IN (?, ?, ?)", c.Expr)
	assert.Equal(t, 3, strings.Count(c.Expr, "?"))
	assert.Equal(t, []any{"active", "active", "pending"}, c.Args)

	c = NotIn("id", 3, 1)
	assert.Equal(t, "id NOT IN (?, ?)", c.Expr)
	assert.Equal(t, []any{3, 1}, c.Args)
}

func TestIn_EmptyIsNotValidated(t *testing.T) {
	c := In("id")
	assert.Equal(t, "id IN ()", c.Expr)
	assert.Empty(t, c.Args)
}

func TestFalsyValuesAreBound(t *testing.T) {
	for _, v := range []any{nil, "", 0, false} {
		c := Equals("x", v)
		assert.Equal(t, []any{v}, c.Args)
	}
}

func TestAggregates(t *testing.T) {
	assert.Equal(t, "COUNT(*)", Count("*").Expr)
	assert.Equal(t, "SUM(amount)", Sum("amount").Expr)
	assert.Equal(t, "AVG(score)", Avg("score").Expr)
	assert.Equal(t, "MIN(score)", Min("score").Expr)
	assert.Equal(t, "MAX(score)", Max("score").Expr)
	assert.Equal(t, "STDDEV(score)", Aggregate("stddev", "score").Expr)
	assert.Empty(t, Count("*").Args)

	having := GT(Count("*"), 5)
	assert.Equal(t, "COUNT(*) > ?", having.Expr)
	assert.Equal(t, []any{5}, having.Args)
}

func TestConditionAsColumnPrependsArgs(t *testing.T) {
	col := Raw("COALESCE(nickname, ?)", "anon")
	c := Equals(col, "bob")
	assert.Equal(t, "COALESCE(nickname, ?) = ?", c.Expr)
	assert.Equal(t, []any{"anon", "bob"}, c.Args)
}

func TestSubqueries(t *testing.T) {
	c := InSubquery("user_id", "SELECT id FROM users WHERE active = 1")
	assert.Equal(t, "user_id IN (SELECT id FROM users WHERE active = 1)", c.Expr)

	sub := Raw("SELECT id FROM users WHERE org_id = ?", 7)
	c = NotInSubquery("user_id", sub)
	assert.Equal(t, "user_id NOT IN (SELECT id FROM users WHERE org_id = ?)", c.Expr)
	assert.Equal(t, []any{7}, c.Args)

	assert.Equal(t, "EXISTS (SELECT 1 FROM t)", Exists("SELECT 1 FROM t").Expr)
	assert.Equal(t, "NOT EXISTS (SELECT 1 FROM t)", NotExists("SELECT 1 FROM t").Expr)
}

func TestExists_Idempotent(t *testing.T) {
	once := Exists("SELECT 1 FROM t")
	twice := Exists(once)
	assert.Equal(t, once.Expr, twice.Expr)

	assert.Equal(t, "NOT EXISTS (SELECT 1)", Exists("NOT EXISTS (SELECT 1)").Expr)
	assert.Equal(t, "  exists (SELECT 1)", NotExists("  exists (SELECT 1)").Expr)
}

func TestAnd_ConcatenatesInOrder(t *testing.T) {
	pairs := [][2]orm.Condition{
		{Equals("a", 1), In("b", 2, 3)},
		{IsNull("c"), Between("d", 4, 5)},
		{Raw("1 = 1"), Equals("e", nil)},
	}
	for _, p := range pairs {
		a, b := p[0], p[1]
		and := And(a, b)
		assert.Equal(t, "("+a.Expr+" AND "+b.Expr+")", and.Expr)
		assert.Equal(t, append(append([]any{}, a.Args...), b.Args...), and.Args)

		or := Or(a, b)
		assert.Equal(t, "("+a.Expr+" OR "+b.Expr+")", or.Expr)
		assert.Equal(t, len(a.Args)+len(b.Args), len(or.Args))
	}
}

func TestNestedComposition(t *testing.T) {
	c := And(
		Equals("status", "active"),
		Or(GT("age", 18), Not(IsNull("guardian_id"))),
	)
	assert.Equal(t, "(status = ? AND (age > ? OR NOT (guardian_id IS NULL)))", c.Expr)
	assert.Equal(t, []any{"active", 18}, c.Args)
}

func TestFromMap_SortedKeys(t *testing.T) {
	c := FromMap(map[string]any{"name": "x", "age": 3, "active": true}, nil)
	assert.Equal(t, "(active = ? AND age = ? AND name = ?)", c.Expr)
	assert.Equal(t, []any{true, 3, "x"}, c.Args)

	quoted := FromMap(map[string]any{"id": 1}, func(s string) string { return "`" + s + "`" })
	assert.Equal(t, "(`id` = ?)", quoted.Expr)
}
