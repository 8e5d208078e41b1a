// Package app 根据配置组装连接池、缓存、事件发布、事务管理器与映射引擎
package app

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"relmap/config"
	dbbasic "relmap/data/db/basic"
	"relmap/data/orm"
	"relmap/data/orm/basic"
	"relmap/data/orm/cache"
	"relmap/data/orm/event"
	"relmap/data/orm/tx"
	"relmap/logging"
)

// App 组装完成的运行时
type App struct {
	DB        *dbbasic.DB
	Orm       *basic.Orm
	Tx        *tx.Manager
	Cache     *cache.Cache     // 未启用时为 nil
	Publisher event.IPublisher // 未启用时为 nil

	logger  logging.Logger
	closers []func() error
}

type options struct {
	logger   logging.Logger
	registry *orm.Registry
	models   []any
	redis    redis.UniversalClient
	nats     *nats.Conn
}

// Option 组装选项
type Option func(*options)

// WithLogger 指定日志；未指定时按 log.level 创建标准日志
func WithLogger(logger logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegistry 使用已有的注册表
func WithRegistry(r *orm.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithModels 注册实体
func WithModels(models ...any) Option {
	return func(o *options) { o.models = append(o.models, models...) }
}

// WithRedisClient 使用已有的 Redis 客户端（不随 App 关闭）
func WithRedisClient(c redis.UniversalClient) Option {
	return func(o *options) { o.redis = c }
}

// WithNATSConn 使用已有的 NATS 连接（不随 App 关闭）
func WithNATSConn(c *nats.Conn) Option {
	return func(o *options) { o.nats = c }
}

// Open 按配置组装运行时；任一步骤失败时释放已创建的资源
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NewStdLogger("[relmap] ").WithLevel(logging.ParseLevel(cfg.Log.Level))
	}

	a := &App{logger: logging.ComponentLogger(o.logger, "app")}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.DB, err = dbbasic.New(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.DB.Close)

	if a.Cache, err = a.openCache(cfg.ORM.Cache, o); err != nil {
		return nil, err
	}
	if a.Publisher, err = a.openPublisher(cfg.ORM.Events, o); err != nil {
		return nil, err
	}

	engineOpts := []basic.Option{basic.WithLogger(o.logger), basic.WithLogSQL(cfg.ORM.LogSQL)}
	if cfg.ORM.StripUnknown {
		engineOpts = append(engineOpts, basic.WithStripUnknown())
	}
	if a.Cache != nil {
		engineOpts = append(engineOpts, basic.WithCache(a.Cache))
	}
	if a.Publisher != nil {
		engineOpts = append(engineOpts, basic.WithPublisher(a.Publisher))
	}
	a.Orm = basic.New(a.DB, o.registry, engineOpts...)
	for _, m := range o.models {
		if _, err = a.Orm.Registry().RegisterModel(m); err != nil {
			return nil, err
		}
	}

	var defaults []tx.Option
	if p := strings.ToUpper(cfg.ORM.Tx.Propagation); p != "" {
		defaults = append(defaults, tx.WithPropagation(tx.Propagation(p)))
	}
	if cfg.ORM.Tx.ReadOnly {
		defaults = append(defaults, tx.WithReadOnly())
	}
	a.Tx = tx.NewManager(a.DB, tx.WithLogger(o.logger), tx.WithDefaults(defaults...))

	a.logger.Info(ctx, "relmap ready",
		logging.String("driver", string(a.Orm.Dialect().Name())),
		logging.String("cache", cfg.ORM.Cache.Driver),
		logging.String("events", cfg.ORM.Events.Driver),
	)
	return a, nil
}

func (a *App) openCache(cfg config.CacheConfig, o *options) (*cache.Cache, error) {
	var provider cache.IProvider
	switch cfg.Driver {
	case "":
		return nil, nil
	case "memory":
		provider = cache.NewMemoryProvider(cfg.MaxSize, cfg.TTL)
	case "redis":
		client := o.redis
		if client == nil {
			c := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Username: cfg.Redis.Username,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			a.closers = append(a.closers, c.Close)
			client = c
		}
		provider = cache.NewRedisProvider(cache.RedisConfig{Client: client, TTL: cfg.TTL, ScanCount: cfg.Redis.ScanCount})
	default:
		return nil, fmt.Errorf("app: unknown cache driver %q", cfg.Driver)
	}
	return cache.New(provider, cache.WithTTL(cfg.TTL), cache.WithLogger(o.logger)), nil
}

func (a *App) openPublisher(cfg config.EventsConfig, o *options) (event.IPublisher, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "memory":
		return event.NewMemoryPublisher(), nil
	case "nats":
		p, err := event.NewNATSPublisher(event.NATSConfig{
			URL:           cfg.URL,
			SubjectPrefix: cfg.SubjectPrefix,
			Conn:          o.nats,
			Logger:        o.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("app: connect nats: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	default:
		return nil, fmt.Errorf("app: unknown events driver %q", cfg.Driver)
	}
}

// Close 按创建的逆序释放资源
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return stdErrors.Join(errs...)
}
