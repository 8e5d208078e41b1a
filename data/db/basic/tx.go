package basic

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	core "relmap/data/db"
	"relmap/data/db/dialect"
)

// Tx 事务实现，委托给 *sql.Tx，同时实现 core.IDatabase 以便透传给需要 DB 的接口
//
// 在 Tx 上调用 Begin 会创建基于保存点的嵌套事务：
//   - Begin    → SAVEPOINT sp_n
//   - Commit   → RELEASE SAVEPOINT sp_n
//   - Rollback → ROLLBACK TO SAVEPOINT sp_n
//
// 保存点名在同一物理事务内单调递增。
type Tx struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect dialect.Dialect

	seq       *atomic.Int64 // 同一物理事务共享的保存点序号
	savepoint string        // 非空表示嵌套事务
	done      bool
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)}
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

// Begin 创建基于保存点的嵌套事务；保存点名在并发调用下也不重复，
// 但 *sql.Tx 上的语句仍按调用顺序串行执行
func (t *Tx) Begin(ctx context.Context) (core.ITransaction, error) {
	if t.done {
		return nil, sql.ErrTxDone
	}
	name := fmt.Sprintf("sp_%d", t.seq.Add(1))
	if _, err := t.tx.ExecContext(ctx, t.dialect.SavepointSQL(name)); err != nil {
		return nil, fmt.Errorf("basic: create savepoint %s: %w", name, err)
	}
	return &Tx{
		db:        t.db,
		tx:        t.tx,
		dialect:   t.dialect,
		seq:       t.seq,
		savepoint: name,
	}, nil
}

// BeginTx 嵌套事务无法单独设置隔离级别，opts 被忽略
func (t *Tx) BeginTx(ctx context.Context, _ *sql.TxOptions) (core.ITransaction, error) {
	return t.Begin(ctx)
}

func (t *Tx) Ping(ctx context.Context) error { return t.db.PingContext(ctx) }
func (t *Tx) Close() error                   { return nil }
func (t *Tx) Raw() any                       { return t.tx }

func (t *Tx) Commit() error {
	if t.savepoint == "" {
		return t.tx.Commit()
	}
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	_, err := t.tx.Exec(t.dialect.ReleaseSavepointSQL(t.savepoint))
	return err
}

func (t *Tx) Rollback() error {
	if t.savepoint == "" {
		return t.tx.Rollback()
	}
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	_, err := t.tx.Exec(t.dialect.RollbackToSavepointSQL(t.savepoint))
	return err
}

// SavepointName 实现 core.ISavepoint；物理事务返回空串
func (t *Tx) SavepointName() string {
	return t.savepoint
}

// GetDialectName 实现 core.IDialectNameProvider，便于在事务上下文中复用方言能力。
func (t *Tx) GetDialectName() string {
	return string(t.dialect.Name())
}
