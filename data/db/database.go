// Package db 提供通用的数据库抽象接口
//
// 设计目标：
// 1. 隔离具体的驱动与连接池实现，ORM 只依赖 IDatabase 执行参数化 SQL
// 2. 事务与嵌套事务（保存点）使用同一套接口
// 3. 便于单元测试（sqlmock / 内存 sqlite）
package db

import (
	"context"
	"database/sql"
	"time"
)

// IExecutor 执行参数化 SQL，占位符统一为 ?
type IExecutor interface {
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// IDatabase 连接池或事务：可执行语句，也可开启（嵌套）事务
type IDatabase interface {
	IExecutor

	// 在连接池上调用时开启新事务；在事务上调用时创建基于保存点的嵌套事务
	Begin(ctx context.Context) (ITransaction, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (ITransaction, error)

	Ping(ctx context.Context) error
	Close() error

	// Raw 返回底层 *sql.DB 或 *sql.Tx
	Raw() any
}

// IDialectNameProvider 可选接口：返回 driver 名（mysql、pgx、sqlite 等），
// 上层据此选择方言
type IDialectNameProvider interface {
	GetDialectName() string
}

// ITransaction 事务；嵌套事务的 Commit/Rollback 对应 RELEASE / ROLLBACK TO SAVEPOINT
type ITransaction interface {
	IDatabase
	Commit() error
	Rollback() error
}

// ISavepoint 可选接口：基于保存点的嵌套事务返回保存点名称，物理事务返回空串
type ISavepoint interface {
	SavepointName() string
}

// IRows 查询结果集
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
	Columns() ([]string, error)
}

// IRow 单行结果接口
type IRow interface {
	Scan(dest ...any) error
	Err() error
}

// DBConfig 数据库配置
type DBConfig struct {
	Driver   string `koanf:"driver"` // mysql, postgres, pgx, sqlite
	DSN      string `koanf:"dsn"`    // 完整连接串，设置后忽略 Host/Port 等字段
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// 连接池配置，零值表示使用 database/sql 默认值
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}
