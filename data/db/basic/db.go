// Package basic 基于 database/sql 的 IDatabase 实现
//
// 调用方必须确保所配置的 Driver 已通过空导入注册（例如 `_ "modernc.org/sqlite"`），
// basic 层只负责连接池、占位符改写与事务/保存点。
package basic

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"

	core "relmap/data/db"
	"relmap/data/db/dialect"
)

// DB 基于 database/sql 的最小实现，满足 core.IDatabase 抽象
type DB struct {
	db      *sql.DB
	driver  string
	dialect dialect.Dialect
}

// New 根据 core.DBConfig 创建基础数据库实例，并做一次可用性检查
func New(config core.DBConfig) (*DB, error) {
	driver := config.Driver
	if driver == "" {
		driver = "sqlite"
	}

	dsn, err := BuildDSN(config)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("basic: open %s: %w", driver, err)
	}

	// 连接池配置（可选）
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("basic: ping %s: %w", driver, err)
	}

	return Wrap(db, driver), nil
}

// Wrap 包装已打开的 *sql.DB（测试中常与 sqlmock 配合使用）
func Wrap(db *sql.DB, driver string) *DB {
	return &DB{db: db, driver: driver, dialect: dialect.New(driver)}
}

// BuildDSN 根据配置生成连接串；设置了 DSN 时直接使用
//
// sqlite 使用 Database 作为文件路径；mysql 通过驱动自带的 Config 生成 DSN；
// postgres 生成 key=value 形式的连接串。
func BuildDSN(config core.DBConfig) (string, error) {
	if config.DSN != "" {
		return config.DSN, nil
	}
	switch dialect.New(config.Driver).Name() {
	case dialect.NameSQLite, dialect.NameUnknown:
		if config.Database == "" {
			return "", fmt.Errorf("basic: database path is required for driver %q", config.Driver)
		}
		return config.Database, nil
	case dialect.NameMySQL:
		mc := mysql.NewConfig()
		mc.User = config.Username
		mc.Passwd = config.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(hostOrDefault(config.Host), strconv.Itoa(portOrDefault(config.Port, 3306)))
		mc.DBName = config.Database
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	case dialect.NamePostgres:
		parts := []string{
			"host=" + hostOrDefault(config.Host),
			"port=" + strconv.Itoa(portOrDefault(config.Port, 5432)),
		}
		if config.Database != "" {
			parts = append(parts, "dbname="+config.Database)
		}
		if config.Username != "" {
			parts = append(parts, "user="+config.Username)
		}
		if config.Password != "" {
			parts = append(parts, "password="+config.Password)
		}
		parts = append(parts, "sslmode=disable")
		return strings.Join(parts, " "), nil
	}
	return "", fmt.Errorf("basic: unsupported driver %q", config.Driver)
}

func hostOrDefault(host string) string {
	if host == "" {
		return "127.0.0.1"
	}
	return host
}

func portOrDefault(port, def int) int {
	if port <= 0 {
		return def
	}
	return port
}

func (d *DB) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := d.db.QueryContext(ctx, d.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: d.db.QueryRowContext(ctx, d.dialect.Rebind(query), args...)}
}

func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.dialect.Rebind(query), args...)
}

func (d *DB) Begin(ctx context.Context) (core.ITransaction, error) {
	return d.BeginTx(ctx, nil)
}

func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.ITransaction, error) {
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{db: d.db, tx: tx, dialect: d.dialect, seq: new(atomic.Int64)}, nil
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *DB) Close() error                   { return d.db.Close() }
func (d *DB) Raw() any                       { return d.db }

// GetDialectName 实现 core.IDialectNameProvider 接口，返回底层 driver 名
func (d *DB) GetDialectName() string {
	return d.driver
}

// ExecDDL 辅助：执行多条以分号分隔的 DDL（用于测试环境与示例建表）
func (d *DB) ExecDDL(ctx context.Context, stmts string) error {
	if d.db == nil {
		return fmt.Errorf("basic: db is nil")
	}
	for _, stmt := range strings.Split(stmts, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
