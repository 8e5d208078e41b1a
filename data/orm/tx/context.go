package tx

import (
	"context"
	"database/sql"
	"sync"

	"relmap/data/db"
)

// Propagation 事务传播行为
type Propagation string

const (
	// Required 存在活动事务时加入，否则开启新事务（默认）
	Required Propagation = "REQUIRED"
	// RequiresNew 挂起当前事务，使用连接池中的新连接开启独立事务
	RequiresNew Propagation = "REQUIRES_NEW"
	// Nested 存在活动事务时创建保存点，失败时回滚到保存点；否则开启新事务
	Nested Propagation = "NESTED"
	// Supports 存在活动事务时加入，否则以非事务方式执行
	Supports Propagation = "SUPPORTS"
	// Mandatory 必须存在活动事务，否则返回 orm.ErrNoTransaction
	Mandatory Propagation = "MANDATORY"
)

// Context 事务作用域
//
// 开启新事务或保存点时创建，随 context.Context 传递给方法体；
// 加入已有事务的参与方共享同一个 Context。
type Context struct {
	ID          string
	Propagation Propagation
	Isolation   sql.IsolationLevel
	ReadOnly    bool
	// Tx 事务连接（查询执行器）；嵌套作用域为保存点事务
	Tx db.ITransaction
	// Savepoint 嵌套作用域的保存点名称
	Savepoint string

	parent *Context

	mu           sync.Mutex
	rollbackOnly bool
	afterCommit  []func(context.Context)
}

// Database 返回本作用域的查询执行器
func (c *Context) Database() db.IDatabase {
	return c.Tx
}

// Parent 嵌套作用域返回外层作用域
func (c *Context) Parent() *Context {
	return c.parent
}

// SetRollbackOnly 标记作用域只能回滚
func (c *Context) SetRollbackOnly() {
	c.mu.Lock()
	c.rollbackOnly = true
	c.mu.Unlock()
}

// IsRollbackOnly 是否已被标记只能回滚
func (c *Context) IsRollbackOnly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollbackOnly
}

// AfterCommit 注册提交后回调
//
// 回调在物理事务（最外层）提交成功后按注册顺序执行；
// 嵌套作用域释放保存点时回调并入外层，回滚时丢弃。
func (c *Context) AfterCommit(fn func(context.Context)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.afterCommit = append(c.afterCommit, fn)
	c.mu.Unlock()
}

func (c *Context) takeHooks() []func(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hooks := c.afterCommit
	c.afterCommit = nil
	return hooks
}

func (c *Context) inheritHooks(hooks []func(context.Context)) {
	if len(hooks) == 0 {
		return
	}
	c.mu.Lock()
	c.afterCommit = append(c.afterCommit, hooks...)
	c.mu.Unlock()
}

type (
	activeKey struct{}
	queueKey  struct{}
)

// Current 返回 ctx 中当前生效的事务作用域
func Current(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(activeKey{}).(*Context)
	return c, ok && c != nil
}

// QueueFrom 返回 ctx 所在调用链的事务队列
func QueueFrom(ctx context.Context) (*Queue, bool) {
	if ctx == nil {
		return nil, false
	}
	q, ok := ctx.Value(queueKey{}).(*Queue)
	return q, ok && q != nil
}

// Executor 返回 ctx 对应的查询执行器：事务作用域内为事务连接，否则为 fallback
func Executor(ctx context.Context, fallback db.IDatabase) db.IDatabase {
	if c, ok := Current(ctx); ok {
		return c.Tx
	}
	return fallback
}

// AfterCommit 在当前事务提交后执行 fn；不在事务中时立即执行
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	if c, ok := Current(ctx); ok {
		c.AfterCommit(fn)
		return
	}
	fn(ctx)
}

func withActive(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, activeKey{}, c)
}
