// Package tx 提供事务传播管理
//
// 事务作用域随 context.Context 沿调用链传递：方法体从 ctx 中取得执行器
// （见 Executor），无需感知外层是否已开启事务。每条调用链在最外层入口创建
// 自己的队列，彼此之间不会观察或移除对方的上下文。
package tx

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"relmap/data/db"
	"relmap/data/orm"
	apperrors "relmap/errors"
	"relmap/logging"
)

// Options 事务选项
type Options struct {
	Propagation Propagation
	Isolation   sql.IsolationLevel
	ReadOnly    bool
}

// Option 事务选项函数
type Option func(*Options)

// WithPropagation 设置传播行为
func WithPropagation(p Propagation) Option {
	return func(o *Options) { o.Propagation = p }
}

// WithIsolation 设置隔离级别（仅对新开启的物理事务生效）
func WithIsolation(level sql.IsolationLevel) Option {
	return func(o *Options) { o.Isolation = level }
}

// WithReadOnly 标记只读事务
func WithReadOnly() Option {
	return func(o *Options) { o.ReadOnly = true }
}

// Manager 事务管理器
type Manager struct {
	db       db.IDatabase
	logger   logging.Logger
	defaults Options
}

// ManagerOption 管理器选项
type ManagerOption func(*Manager)

// WithLogger 设置日志
func WithLogger(logger logging.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithDefaults 设置默认事务选项
func WithDefaults(opts ...Option) ManagerOption {
	return func(m *Manager) {
		for _, opt := range opts {
			opt(&m.defaults)
		}
	}
}

// NewManager 创建事务管理器，database 为连接池
func NewManager(database db.IDatabase, opts ...ManagerOption) *Manager {
	m := &Manager{
		db:       database,
		defaults: Options{Propagation: Required},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.ComponentLogger(m.logger, "tx")
	return m
}

// Database 返回连接池
func (m *Manager) Database() db.IDatabase {
	return m.db
}

// Run 按传播行为在事务中执行 fn
//
// fn 返回错误时回滚（嵌套作用域回滚到保存点），panic 时回滚后重新 panic。
// 加入已有事务的参与方失败时将作用域标记为只能回滚，作用域拥有者随后回滚并返回
// orm.ErrRollbackOnly。提交/回滚/保存点失败原样向上传播，不重试。
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) error {
	o := m.defaults
	for _, opt := range opts {
		opt(&o)
	}
	if o.Propagation == "" {
		o.Propagation = Required
	}

	q, ok := QueueFrom(ctx)
	if !ok {
		q = NewQueue()
		ctx = context.WithValue(ctx, queueKey{}, q)
		// 最外层入口结束时强制清空，无论内层是否正常出队
		defer q.Clear()
	}

	cur, active := Current(ctx)
	switch o.Propagation {
	case Required:
		if active {
			return m.join(ctx, cur, fn)
		}
		return m.begin(ctx, q, o, fn)
	case RequiresNew:
		return m.begin(ctx, q, o, fn)
	case Nested:
		if active {
			return m.savepoint(ctx, q, cur, o, fn)
		}
		return m.begin(ctx, q, o, fn)
	case Supports:
		if active {
			return m.join(ctx, cur, fn)
		}
		return fn(ctx)
	case Mandatory:
		if !active {
			return apperrors.WrapError(orm.ErrNoTransaction, apperrors.ErrCodeTransaction, "propagation MANDATORY requires an active transaction")
		}
		return m.join(ctx, cur, fn)
	}
	return fmt.Errorf("%w: propagation %s", orm.ErrUnsupported, o.Propagation)
}

// join 在已有作用域中执行
func (m *Manager) join(ctx context.Context, cur *Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cur.SetRollbackOnly()
			panic(r)
		}
	}()
	if err = fn(ctx); err != nil {
		cur.SetRollbackOnly()
	}
	return err
}

// begin 从连接池开启新的物理事务
func (m *Manager) begin(ctx context.Context, q *Queue, o Options, fn func(context.Context) error) error {
	t, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: o.Isolation, ReadOnly: o.ReadOnly})
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeDatabase, "begin transaction")
	}
	tc := &Context{
		ID:          uuid.NewString(),
		Propagation: o.Propagation,
		Isolation:   o.Isolation,
		ReadOnly:    o.ReadOnly,
		Tx:          t,
	}
	return m.execute(ctx, q, tc, fn)
}

// savepoint 在当前事务上创建保存点作用域
func (m *Manager) savepoint(ctx context.Context, q *Queue, cur *Context, o Options, fn func(context.Context) error) error {
	t, err := cur.Tx.Begin(ctx)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeDatabase, "create savepoint")
	}
	tc := &Context{
		ID:          uuid.NewString(),
		Propagation: o.Propagation,
		Isolation:   cur.Isolation,
		ReadOnly:    cur.ReadOnly,
		Tx:          t,
		parent:      cur,
	}
	if sp, ok := t.(db.ISavepoint); ok {
		tc.Savepoint = sp.SavepointName()
	}
	return m.execute(ctx, q, tc, fn)
}

func (m *Manager) execute(ctx context.Context, q *Queue, tc *Context, fn func(context.Context) error) (err error) {
	q.Enqueue(tc)
	defer q.Remove(tc)

	start := time.Now()
	log := m.logger.WithFields(
		logging.String("tx_id", tc.ID),
		logging.String("propagation", string(tc.Propagation)),
		logging.Int("depth", q.Depth()),
	)
	if tc.Savepoint != "" {
		log = log.WithFields(logging.String("savepoint", tc.Savepoint))
	}
	log.Debug(ctx, "transaction begin")

	scoped := withActive(ctx, tc)
	defer func() {
		if r := recover(); r != nil {
			if rbErr := tc.Tx.Rollback(); rbErr != nil {
				log.Error(ctx, "rollback after panic failed", logging.Error(rbErr))
			}
			log.Warn(ctx, "transaction rolled back after panic", logging.Any("panic", r))
			panic(r)
		}
	}()

	if err = fn(scoped); err != nil {
		if rbErr := tc.Tx.Rollback(); rbErr != nil {
			log.Error(ctx, "transaction rollback failed", logging.Error(rbErr))
			return stdErrors.Join(err, apperrors.WrapError(rbErr, apperrors.ErrCodeDatabase, "rollback transaction"))
		}
		log.Debug(ctx, "transaction rolled back", logging.Error(err), logging.Duration("elapsed", time.Since(start)))
		return err
	}

	if tc.IsRollbackOnly() {
		if rbErr := tc.Tx.Rollback(); rbErr != nil {
			return stdErrors.Join(
				apperrors.WrapError(orm.ErrRollbackOnly, apperrors.ErrCodeTransaction, "transaction marked rollback-only"),
				apperrors.WrapError(rbErr, apperrors.ErrCodeDatabase, "rollback transaction"),
			)
		}
		log.Debug(ctx, "transaction rolled back (rollback-only)")
		return apperrors.WrapError(orm.ErrRollbackOnly, apperrors.ErrCodeTransaction, "transaction marked rollback-only")
	}

	if err = tc.Tx.Commit(); err != nil {
		log.Error(ctx, "transaction commit failed", logging.Error(err))
		return apperrors.WrapError(err, apperrors.ErrCodeDatabase, "commit transaction")
	}
	log.Debug(ctx, "transaction committed", logging.Duration("elapsed", time.Since(start)))

	hooks := tc.takeHooks()
	if tc.parent != nil {
		tc.parent.inheritHooks(hooks)
		return nil
	}
	for _, hook := range hooks {
		hook(ctx)
	}
	return nil
}
