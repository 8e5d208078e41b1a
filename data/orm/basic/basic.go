// Package basic 是基于 relmap/data/db 与 relmap/data/db/sql 的映射引擎。
//
// 引擎根据注册表中的实体元数据生成 SQL，经 ctx 中的事务执行器（或连接池）执行，
// 再通过结果转换器把扁平行还原为实体。每次调用都是无状态的，
// 事务状态只存在于 relmap/data/orm/tx 放入 ctx 的作用域中。
package basic

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	dbcore "relmap/data/db"
	"relmap/data/db/dialect"
	dbsql "relmap/data/db/sql"
	"relmap/data/orm"
	"relmap/data/orm/cache"
	"relmap/data/orm/event"
	"relmap/data/orm/naming"
	"relmap/data/orm/transform"
	"relmap/data/orm/tx"
	apperrors "relmap/errors"
	"relmap/logging"
)

// Orm 实现 orm.IOrm
type Orm struct {
	db          dbcore.IDatabase
	registry    *orm.Registry
	dialect     dialect.Dialect
	naming      naming.Strategy
	transformer *transform.Transformer
	cache       *cache.Cache
	publisher   event.IPublisher
	logger      logging.Logger
	logSQL      bool
	caps        orm.Capabilities

	stripUnknown bool
	plans        sync.Map // 关联查询的转换计划，键为 实体名|属性列表
}

// Option 引擎选项
type Option func(*Orm)

// WithCache 启用查询结果缓存
func WithCache(c *cache.Cache) Option {
	return func(o *Orm) { o.cache = c }
}

// WithPublisher 启用实体变更事件
func WithPublisher(p event.IPublisher) Option {
	return func(o *Orm) { o.publisher = p }
}

// WithLogger 设置日志
func WithLogger(logger logging.Logger) Option {
	return func(o *Orm) { o.logger = logger }
}

// WithLogSQL 是否以 debug 级别记录语句
func WithLogSQL(enabled bool) Option {
	return func(o *Orm) { o.logSQL = enabled }
}

// WithStripUnknown 丢弃结果中实体未声明的列
func WithStripUnknown() Option {
	return func(o *Orm) { o.stripUnknown = true }
}

// New 创建映射引擎；registry 为 nil 时使用按方言命名的空注册表
func New(db dbcore.IDatabase, registry *orm.Registry, opts ...Option) *Orm {
	d := dialect.FromDatabase(db)
	o := &Orm{
		db:      db,
		dialect: d,
		naming:  naming.New(d),
		logSQL:  true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if registry == nil {
		registry = orm.NewRegistry(o.naming)
	}
	o.registry = registry
	o.logger = logging.ComponentLogger(o.logger, "orm.basic")

	var topts []transform.Option
	if o.stripUnknown {
		topts = append(topts, transform.WithStripUnknown())
	}
	o.transformer = transform.New(registry, topts...)

	o.caps = orm.NewCapabilities(
		orm.CapabilityBasicCRUD,
		orm.CapabilityQuery,
		orm.CapabilityRelations,
		orm.CapabilityTransaction,
		orm.CapabilitySavepoint,
	)
	if d.SupportsForUpdate() {
		o.caps[orm.CapabilityForUpdate] = true
	}
	if d.SupportsReturning() {
		o.caps[orm.CapabilityReturning] = true
	}
	if o.cache != nil {
		o.caps[orm.CapabilityCache] = true
	}
	if o.publisher != nil {
		o.caps[orm.CapabilityEvents] = true
	}
	return o
}

func (o *Orm) Capabilities() orm.Capabilities { return o.caps }
func (o *Orm) Registry() *orm.Registry        { return o.registry }
func (o *Orm) Raw() any                       { return o.db }

// Dialect 返回引擎使用的方言
func (o *Orm) Dialect() dialect.Dialect { return o.dialect }

// Transformer 返回结果转换器
func (o *Orm) Transformer() *transform.Transformer { return o.transformer }

// Executor 返回 ctx 对应的执行器
func (o *Orm) Executor(ctx context.Context) dbcore.IDatabase {
	return tx.Executor(ctx, o.db)
}

// Model 返回实体的操作入口；未注册的实体返回 orm.ErrMetadataNotFound
func (o *Orm) Model(m any) (orm.IModel, error) {
	meta, err := o.registry.Lookup(m)
	if err != nil {
		return nil, err
	}
	return &model{orm: o, meta: meta}, nil
}

// MustModel 同 Model，失败时 panic
func (o *Orm) MustModel(m any) orm.IModel {
	mdl, err := o.Model(m)
	if err != nil {
		panic(err)
	}
	return mdl
}

func (o *Orm) builder() *dbsql.Builder {
	return dbsql.New(o.dialect)
}

func (o *Orm) query(ctx context.Context, query string, args []any) ([]dbcore.Row, error) {
	start := time.Now()
	rows, err := dbcore.QueryMaps(ctx, o.Executor(ctx), query, args...)
	o.logStatement(ctx, query, args, start, err)
	return rows, err
}

func (o *Orm) exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	start := time.Now()
	res, err := o.Executor(ctx).Exec(ctx, query, args...)
	o.logStatement(ctx, query, args, start, err)
	return res, err
}

func (o *Orm) queryRow(ctx context.Context, query string, args []any, dest ...any) error {
	start := time.Now()
	err := o.Executor(ctx).QueryRow(ctx, query, args...).Scan(dest...)
	o.logStatement(ctx, query, args, start, err)
	return err
}

func (o *Orm) logStatement(ctx context.Context, query string, args []any, start time.Time, err error) {
	if !o.logSQL {
		return
	}
	fields := []logging.Field{logging.SQL(query), logging.Args(args), logging.Duration("elapsed", time.Since(start))}
	if c, ok := tx.Current(ctx); ok {
		fields = append(fields, logging.String("tx_id", c.ID))
	}
	if err != nil {
		fields = append(fields, logging.Error(err))
	}
	o.logger.Debug(ctx, "sql", fields...)
}

// plan 返回（并缓存）带关联的转换计划
func (o *Orm) plan(meta *orm.EntityMeta, relations transform.RelationMap) (*transform.Plan, error) {
	props := make([]string, 0, len(relations))
	for p := range relations {
		props = append(props, p)
	}
	sort.Strings(props)
	key := meta.Name + "|" + strings.Join(props, ",")
	if p, ok := o.plans.Load(key); ok {
		return p.(*transform.Plan), nil
	}
	p, err := o.transformer.Compile(meta, relations)
	if err != nil {
		return nil, err
	}
	o.plans.Store(key, p)
	return p, nil
}

// afterWrite 写入成功后失效缓存并发布事件；事务中延迟到最外层提交之后
func (o *Orm) afterWrite(ctx context.Context, meta *orm.EntityMeta, op event.Op, key, data any) {
	if o.cache == nil && o.publisher == nil {
		return
	}
	tables := o.dependentTables(meta)
	var evt event.Event
	if o.publisher != nil {
		evt = event.New(meta.Name, meta.Table, op, key, data)
	}
	tx.AfterCommit(ctx, func(ctx context.Context) {
		if o.cache != nil {
			if err := o.cache.Invalidate(ctx, tables...); err != nil {
				o.logger.Warn(ctx, "cache invalidation failed", logging.String("table", meta.Table), logging.Error(err))
			}
		}
		if o.publisher != nil {
			if err := o.publisher.Publish(ctx, evt); err != nil {
				o.logger.Warn(ctx, "publish event failed",
					logging.String("table", meta.Table), logging.String("op", string(op)), logging.Error(err))
			}
		}
	})
}

// dependentTables 返回写入 meta 后需要失效的表：自身以及关联到它的实体表
func (o *Orm) dependentTables(meta *orm.EntityMeta) []string {
	tables := []string{meta.Table}
	seen := map[string]bool{meta.Table: true}
	for _, other := range o.registry.Entities() {
		for _, rel := range other.Relations {
			if rel.Target == meta.Name && !seen[other.Table] {
				seen[other.Table] = true
				tables = append(tables, other.Table)
			}
		}
	}
	return tables
}

// wrapDBError 唯一键冲突映射为 DUPLICATE，其余按数据库错误包装
func (o *Orm) wrapDBError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	if o.dialect.IsUniqueViolation(err) {
		return apperrors.Duplicate(ctx, err, operation)
	}
	return apperrors.FromDatabase(ctx, err, operation)
}
