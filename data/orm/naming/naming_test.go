package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"relmap/data/db/dialect"
)

func TestWrap(t *testing.T) {
	s := New(dialect.New("mysql"))
	tests := []struct {
		in, want string
	}{
		{"users", "`users`"},
		{"users.id", "`users`.`id`"},
		{"author.*", "`author`.*"},
		{"*", "*"},
		{"`already`", "`already`"},
		{"DATE(created_at)", "DATE(created_at)"},
		{"COUNT(*)", "COUNT(*)"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Wrap(tt.in), tt.in)
	}
}

func TestWrap_Idempotent(t *testing.T) {
	for _, d := range []string{"mysql", "postgres", "sqlite", ""} {
		s := New(dialect.New(d))
		for _, name := range []string{"users", "posts.author_id", "SUM(amount)"} {
			once := s.Wrap(name)
			assert.Equal(t, once, s.Wrap(once), "%s/%s", d, name)
		}
	}
}

func TestTableName(t *testing.T) {
	s := New(dialect.New(""))
	assert.Equal(t, "users", s.TableName("User"))
	assert.Equal(t, "blog_posts", s.TableName("BlogPost"))
	assert.Equal(t, "categories", s.TableName("Category"))
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "author_id", SnakeCase("AuthorID"))
	assert.Equal(t, "id", SnakeCase("ID"))
	assert.Equal(t, "http_server", SnakeCase("HTTPServer"))
	assert.Equal(t, "created_at", SnakeCase("CreatedAt"))
	assert.Equal(t, "line2_text", SnakeCase("Line2Text"))
	assert.Equal(t, "name", SnakeCase("name"))
}
