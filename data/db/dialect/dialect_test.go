package dialect

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestRebind_Postgres(t *testing.T) {
	d := New("postgres")
	q := "SELECT * FROM t WHERE a = ? AND b IN (?, ?)"
	got := d.Rebind(q)
	want := "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)"
	if got != want {
		t.Fatalf("Rebind mismatch\nwant: %s\ngot:  %s", want, got)
	}
}

func TestRebind_SkipsStringLiterals(t *testing.T) {
	d := New("pgx")
	got := d.Rebind("SELECT * FROM t WHERE note = 'what?' AND id = ?")
	assert.Equal(t, "SELECT * FROM t WHERE note = 'what?' AND id = $1", got)
}

func TestRebind_NoChangeForMySQLSQLite(t *testing.T) {
	tests := []struct {
		name string
		d    Dialect
	}{
		{"mysql", New("mysql")},
		{"sqlite", New("sqlite")},
		{"unknown", New("unknown")},
	}

	orig := "DELETE FROM t WHERE id = ? AND name = ?"
	for _, tt := range tests {
		if got := tt.d.Rebind(orig); got != orig {
			t.Fatalf("%s: expected no change, got %s", tt.name, got)
		}
	}
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`users`", New("mysql").QuoteIdentifier("users"))
	assert.Equal(t, "`app`.`users`", New("mysql").QuoteIdentifier("app.users"))
	assert.Equal(t, `"users"."id"`, New("postgres").QuoteIdentifier("users.id"))
	assert.Equal(t, `"t".*`, New("sqlite").QuoteIdentifier("t.*"))
	assert.Equal(t, "users", New("").QuoteIdentifier("users"))
}

func TestQuoteIdentifier_Idempotent(t *testing.T) {
	for _, name := range []string{"mysql", "postgres", "sqlite"} {
		d := New(name)
		once := d.QuoteIdentifier("created_at")
		assert.Equal(t, once, d.QuoteIdentifier(once), name)
	}
}

func TestSavepointSQL(t *testing.T) {
	d := New("mysql")
	assert.Equal(t, "SAVEPOINT sp_1", d.SavepointSQL("sp_1"))
	assert.Equal(t, "ROLLBACK TO SAVEPOINT sp_1", d.RollbackToSavepointSQL("sp_1"))
	assert.Equal(t, "RELEASE SAVEPOINT sp_1", d.ReleaseSavepointSQL("sp_1"))
}

func TestCapabilities(t *testing.T) {
	assert.True(t, New("mysql").SupportsDeleteLimit())
	assert.False(t, New("postgres").SupportsDeleteLimit())
	assert.True(t, New("postgres").SupportsForUpdate())
	assert.False(t, New("sqlite").SupportsForUpdate())
	assert.True(t, New("postgres").SupportsReturning())
	assert.False(t, New("mysql").SupportsReturning())
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		d    Dialect
		err  error
		want bool
	}{
		{"nil", New("mysql"), nil, false},
		{"mysql typed", New("mysql"), &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"mysql other", New("mysql"), &mysql.MySQLError{Number: 1045}, false},
		{"pq typed", New("postgres"), &pq.Error{Code: "23505"}, true},
		{"pgconn typed", New("postgres"), fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"pgconn fk", New("postgres"), &pgconn.PgError{Code: "23503"}, false},
		{"sqlite message", New("sqlite"), errors.New("UNIQUE constraint failed: users.email"), true},
		{"unknown message", New(""), errors.New("duplicate key value violates unique constraint"), true},
		{"unrelated", New("mysql"), errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.IsUniqueViolation(tt.err))
		})
	}
}
