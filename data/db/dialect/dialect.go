package dialect

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	core "relmap/data/db"
)

// Name 标准化的数据库方言名称
type Name string

const (
	NameMySQL    Name = "mysql"
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

// Dialect 表示当前数据库的方言能力
//
// 目前只抽象 ORM 实际用到的能力：
//   - 标识符引号与占位符改写
//   - DELETE ... LIMIT、FOR UPDATE、INSERT ... RETURNING
//   - 保存点语句
//   - 唯一键/主键冲突错误识别
type Dialect struct {
	name Name
}

// New 根据字符串构造方言（大小写不敏感）
func New(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql":
		return Dialect{name: NameMySQL}
	case "sqlite", "sqlite3":
		return Dialect{name: NameSQLite}
	case "postgres", "postgresql", "pgx":
		return Dialect{name: NamePostgres}
	default:
		return Dialect{name: NameUnknown}
	}
}

// FromDatabase 从 IDatabase 实例推断方言
//
// 需要 IDatabase 可选实现 IDialectNameProvider 接口；否则返回 Unknown。
func FromDatabase(db core.IDatabase) Dialect {
	if db == nil {
		return Dialect{name: NameUnknown}
	}
	if p, ok := db.(core.IDialectNameProvider); ok {
		return New(p.GetDialectName())
	}
	return Dialect{name: NameUnknown}
}

// Name 返回标准化方言名
func (d Dialect) Name() Name {
	return d.name
}

// QuoteChar 返回标识符引号字符，未知方言返回 0
func (d Dialect) QuoteChar() byte {
	switch d.name {
	case NameMySQL:
		return '`'
	case NameSQLite, NamePostgres:
		return '"'
	default:
		return 0
	}
}

// IsQuoted 判断标识符中是否已包含本方言的引号字符
func (d Dialect) IsQuoted(name string) bool {
	q := d.QuoteChar()
	return q != 0 && strings.IndexByte(name, q) >= 0
}

// QuoteIdentifier 根据方言对标识符进行转义（如表名/列名）。
//
// 约定：
//   - 支持 schema.table、table.column 等带点形式，会对每一段分别加引号；
//   - MySQL 使用反引号 `name`，Postgres/SQLite 使用双引号 "name"；
//   - 已包含引号字符的名称原样返回，因此重复调用结果不变；
//   - Unknown 方言返回原始字符串，不做修改；
//   - 该方法不负责校验标识符语法，仅负责按方言加引号。
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" || d.QuoteChar() == 0 || d.IsQuoted(name) {
		return name
	}
	q := string(d.QuoteChar())
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "" || p == "*" {
			continue
		}
		parts[i] = q + p + q
	}
	return strings.Join(parts, ".")
}

// Rebind 将通用占位符 ? 转换为方言特定形式。
//
// 目前仅对 Postgres 做替换，将 ? 依次替换为 $1、$2...；其他方言保持原样。
// 单引号字符串字面量中的 ? 不会被替换。
func (d Dialect) Rebind(query string) string {
	if query == "" || d.name != NamePostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	argIndex := 1
	inLiteral := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inLiteral = !inLiteral
			sb.WriteByte(ch)
		case ch == '?' && !inLiteral:
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(argIndex))
			argIndex++
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}

// SupportsDeleteLimit 当前方言是否支持 DELETE ... LIMIT 语法
func (d Dialect) SupportsDeleteLimit() bool {
	switch d.name {
	case NameMySQL, NameSQLite:
		return true
	default:
		return false
	}
}

// SupportsForUpdate 当前方言是否支持 SELECT ... FOR UPDATE
func (d Dialect) SupportsForUpdate() bool {
	switch d.name {
	case NameMySQL, NamePostgres:
		return true
	default:
		return false
	}
}

// SupportsReturning 当前方言是否需要通过 INSERT ... RETURNING 取回自增主键。
//
// Postgres 驱动不支持 LastInsertId，只能依赖 RETURNING。
func (d Dialect) SupportsReturning() bool {
	return d.name == NamePostgres
}

// SavepointSQL 返回创建保存点的语句
func (d Dialect) SavepointSQL(name string) string {
	return "SAVEPOINT " + name
}

// RollbackToSavepointSQL 返回回滚到保存点的语句
func (d Dialect) RollbackToSavepointSQL(name string) string {
	return "ROLLBACK TO SAVEPOINT " + name
}

// ReleaseSavepointSQL 返回释放保存点的语句
func (d Dialect) ReleaseSavepointSQL(name string) string {
	return "RELEASE SAVEPOINT " + name
}

// IsUniqueViolation 判断错误是否为唯一键/主键冲突
//
// 优先识别驱动提供的结构化错误：
//   - MySQL: *mysql.MySQLError Number 1062 / 1586
//   - Postgres: *pq.Error 或 *pgconn.PgError SQLSTATE 23505
//   - SQLite: *sqlite.Error SQLITE_CONSTRAINT_UNIQUE / SQLITE_CONSTRAINT_PRIMARYKEY
//
// 无法识别时退化为错误消息关键字匹配。
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062 || myErr.Number == 1586
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	msg := strings.ToLower(err.Error())
	switch d.name {
	case NameMySQL:
		return strings.Contains(msg, "duplicate entry") ||
			strings.Contains(msg, "duplicate key")
	case NameSQLite:
		return strings.Contains(msg, "unique constraint failed")
	default:
		return strings.Contains(msg, "duplicate key") ||
			strings.Contains(msg, "unique constraint")
	}
}
