package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relmap/data/db/dialect"
)

func TestSelect_ClauseOrder(t *testing.T) {
	q, args := New(dialect.New("mysql")).Select("`posts`.`id`", "`author`.`name` AS `author_name`").
		From("`posts`").
		Join("left", "`users` AS `author`", "`author`.`id` = `posts`.`author_id`").
		Where("`posts`.`status` = ?", "published").
		GroupBy("`posts`.`id`").
		OrderBy("`posts`.`id` DESC").
		Limit(10).
		Offset(20).
		ForUpdate().
		Build()

	assert.Equal(t,
		"SELECT `posts`.`id`, `author`.`name` AS `author_name` FROM `posts`"+
			" LEFT JOIN `users` AS `author` ON `author`.`id` = `posts`.`author_id`"+
			" WHERE `posts`.`status` = ? GROUP BY `posts`.`id` ORDER BY `posts`.`id` DESC"+
			" LIMIT ? OFFSET ? FOR UPDATE", q)
	assert.Equal(t, []any{"published", 10, 20}, args)
}

func TestSelect_JoinArgsPrecedeWhereArgs(t *testing.T) {
	q, args := New(dialect.New("")).Select("a.id").From("a").
		Join("", "b", "b.a_id = a.id AND b.kind = ?", "x").
		Where("a.n > ?", 1).
		Where("a.m < ?", 2).
		OrderBy("a.id", "", "a.n DESC").
		Build()
	assert.Equal(t, "SELECT a.id FROM a INNER JOIN b ON b.a_id = a.id AND b.kind = ? WHERE a.n > ? AND a.m < ? ORDER BY a.id, a.n DESC", q)
	assert.Equal(t, []any{"x", 1, 2}, args)
}

func TestSelect_DerivedTableArgsPrecedeJoinArgs(t *testing.T) {
	inner, iargs := New(dialect.New("mysql")).Select().From("`users`").
		Where("`name` = ?", "ann").OrderBy("`id` ASC").Limit(2).Build()
	q, args := New(dialect.New("mysql")).Select("`users`.`id`", "`posts`.`id` AS `posts_id`").
		From("("+inner+") AS `users`", iargs...).
		Join("left", "`posts` AS `posts`", "`posts`.`author_id` = `users`.`id` AND `posts`.`draft` = ?", false).
		OrderBy("`users`.`id` ASC").
		Build()

	assert.Equal(t,
		"SELECT `users`.`id`, `posts`.`id` AS `posts_id`"+
			" FROM (SELECT * FROM `users` WHERE `name` = ? ORDER BY `id` ASC LIMIT ?) AS `users`"+
			" LEFT JOIN `posts` AS `posts` ON `posts`.`author_id` = `users`.`id` AND `posts`.`draft` = ?"+
			" ORDER BY `users`.`id` ASC", q)
	assert.Equal(t, []any{"ann", 2, false}, args)
}

func TestSelect_BuildIsRepeatable(t *testing.T) {
	b := New(dialect.New("sqlite")).Select().From("t").Where("a = ?", 1).Limit(5)
	q1, a1 := b.Build()
	q2, a2 := b.Build()
	assert.Equal(t, q1, q2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, "SELECT * FROM t WHERE a = ? LIMIT ?", q1)
}

func TestSelect_ForUpdateIgnoredOnSQLite(t *testing.T) {
	q, _ := New(dialect.New("sqlite")).Select("id").From("t").ForUpdate().Build()
	assert.Equal(t, "SELECT id FROM t", q)
}

func TestInsert(t *testing.T) {
	q, args := New(dialect.New("mysql")).InsertInto("users").
		Columns("name", "email").Values("ann", "a@x").Values("bob", "b@x").Build()
	assert.Equal(t, "INSERT INTO `users` (`name`, `email`) VALUES (?, ?), (?, ?)", q)
	assert.Equal(t, []any{"ann", "a@x", "bob", "b@x"}, args)
}

func TestInsert_ReturningPostgresOnly(t *testing.T) {
	q, _ := New(dialect.New("postgres")).InsertInto("users").
		Columns("name").Values("ann").Returning("id").Build()
	assert.Equal(t, `INSERT INTO "users" ("name") VALUES (?) RETURNING "id"`, q)

	q, _ = New(dialect.New("mysql")).InsertInto("users").
		Columns("name").Values("ann").Returning("id").Build()
	assert.Equal(t, "INSERT INTO `users` (`name`) VALUES (?)", q)
}

func TestInsert_AcceptsQuotedIdentifiers(t *testing.T) {
	q, _ := New(dialect.New("mysql")).InsertInto("`users`").
		Columns("`name`").Values("ann").Build()
	assert.Equal(t, "INSERT INTO `users` (`name`) VALUES (?)", q)
}

func TestInsert_PanicsOnBadInput(t *testing.T) {
	b := New(dialect.New("mysql"))
	require.Panics(t, func() {
		b.InsertInto("users; DROP TABLE x").Columns("name").Values("ann").Build()
	})
	require.Panics(t, func() {
		b.InsertInto("users").Columns("name", "email").Values("ann").Build()
	})
	require.Panics(t, func() {
		b.InsertInto("users").Build()
	})
}

func TestUpdate_SetMapSorted(t *testing.T) {
	q, args := New(dialect.New("mysql")).Update("users").
		SetMap(map[string]any{"name": "x", "email": "e", "age": 3}).
		Where("`id` = ?", 7).
		Build()
	assert.Equal(t, "UPDATE `users` SET `age` = ?, `email` = ?, `name` = ? WHERE `id` = ?", q)
	assert.Equal(t, []any{3, "e", "x", 7}, args)
}

func TestUpdate_PanicsWithoutColumns(t *testing.T) {
	require.Panics(t, func() {
		New(dialect.New("mysql")).Update("users").Where("`id` = ?", 1).Build()
	})
}

func TestDelete_Limit(t *testing.T) {
	q, args := New(dialect.New("mysql")).DeleteFrom("users").
		Where("`id` = ?", 1).Limit(1).Build()
	assert.Equal(t, "DELETE FROM `users` WHERE `id` = ? LIMIT ?", q)
	assert.Equal(t, []any{1, 1}, args)

	q, args = New(dialect.New("postgres")).DeleteFrom("users").
		Where(`"id" = ?`, 1).Limit(1).Build()
	assert.Equal(t, `DELETE FROM "users" WHERE "id" = ?`, q)
	assert.Equal(t, []any{1}, args)
}

func TestValidIdentifier(t *testing.T) {
	for _, ok := range []string{"users", "app.users", "_x1", "T2"} {
		assert.True(t, validIdentifier(ok), ok)
	}
	for _, bad := range []string{"", "1abc", "a b", "a..b", "a;", "é"} {
		assert.False(t, validIdentifier(bad), bad)
	}
}
