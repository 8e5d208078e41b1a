package basic

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "relmap/data/db"
)

func newMock(t *testing.T, driver string) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return Wrap(raw, driver), mock
}

func TestDB_RebindPostgres(t *testing.T) {
	db, mock := newMock(t, "postgres")
	mock.ExpectQuery(`SELECT id FROM users WHERE id = $1 AND name = $2`).
		WithArgs(1, "ann").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	rows, err := db.Query(context.Background(), "SELECT id FROM users WHERE id = ? AND name = ?", 1, "ann")
	require.NoError(t, err)
	out, err := core.ScanMaps(rows)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_SavepointCommit(t *testing.T) {
	db, mock := newMock(t, "mysql")
	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT sp_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO t (a) VALUES (?)").WithArgs(1).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("RELEASE SAVEPOINT sp_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := db.Begin(ctx)
	require.NoError(t, err)

	nested, err := tx.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sp_1", nested.(core.ISavepoint).SavepointName())

	_, err = nested.Exec(ctx, "INSERT INTO t (a) VALUES (?)", 1)
	require.NoError(t, err)
	require.NoError(t, nested.Commit())
	assert.ErrorIs(t, nested.Commit(), sql.ErrTxDone)

	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_SavepointRollback(t *testing.T) {
	db, mock := newMock(t, "mysql")
	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT sp_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT sp_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SAVEPOINT sp_2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("RELEASE SAVEPOINT sp_2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := db.Begin(ctx)
	require.NoError(t, err)

	first, err := tx.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Rollback())

	second, err := tx.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, second.Commit())

	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_ConcurrentSavepointNamesUnique(t *testing.T) {
	const n = 8
	db, mock := newMock(t, "mysql")
	mock.MatchExpectationsInOrder(false)
	mock.ExpectBegin()
	for i := 1; i <= n; i++ {
		mock.ExpectExec(fmt.Sprintf("SAVEPOINT sp_%d", i)).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	ctx := context.Background()
	tx, err := db.Begin(ctx)
	require.NoError(t, err)

	names := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nested, err := tx.Begin(ctx)
			if assert.NoError(t, err) {
				names <- nested.(core.ISavepoint).SavepointName()
			}
		}()
	}
	wg.Wait()
	close(names)

	seen := make(map[string]bool, n)
	for name := range names {
		assert.False(t, seen[name], "duplicate savepoint %s", name)
		seen[name] = true
	}
	assert.Len(t, seen, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildDSN(t *testing.T) {
	dsn, err := BuildDSN(core.DBConfig{DSN: "file:x.db"})
	require.NoError(t, err)
	assert.Equal(t, "file:x.db", dsn)

	dsn, err = BuildDSN(core.DBConfig{Driver: "sqlite", Database: "/tmp/a.db"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.db", dsn)

	dsn, err = BuildDSN(core.DBConfig{Driver: "mysql", Username: "u", Password: "p", Database: "app"})
	require.NoError(t, err)
	assert.Contains(t, dsn, "u:p@tcp(127.0.0.1:3306)/app")
	assert.Contains(t, dsn, "parseTime=true")

	dsn, err = BuildDSN(core.DBConfig{Driver: "postgres", Host: "db", Database: "app", Username: "u"})
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 dbname=app user=u sslmode=disable", dsn)

	_, err = BuildDSN(core.DBConfig{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestSQLite_NestedSavepoints(t *testing.T) {
	ctx := context.Background()
	db, err := New(core.DBConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "sp.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.ExecDDL(ctx, `CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`))

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "kept")
	require.NoError(t, err)

	nested, err := tx.Begin(ctx)
	require.NoError(t, err)
	_, err = nested.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "discarded")
	require.NoError(t, err)
	require.NoError(t, nested.Rollback())
	require.NoError(t, tx.Commit())

	rows, err := core.QueryMaps(ctx, db, "SELECT name FROM items ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "kept", rows[0]["name"])
}
