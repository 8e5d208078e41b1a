// Package cache 提供查询结果缓存
//
// 缓存的是查询返回的扁平行（db.Row），而非转换后的实体，
// 因此同一份缓存可被不同的关联转换计划复用。键按表名分区，
// 通过映射引擎写入某表时，该表下的全部条目失效。
package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"relmap/data/db"
	"relmap/logging"
)

// KeyPrefix 缓存键前缀
const KeyPrefix = "relmap:cache:"

// IProvider 缓存存储
type IProvider interface {
	// Get 读取条目；未命中返回 (nil, false, nil)
	Get(ctx context.Context, key string) ([]db.Row, bool, error)
	// Set 写入条目，ttl <= 0 使用提供者默认值
	Set(ctx context.Context, key string, rows []db.Row, ttl time.Duration) error
	// Invalidate 删除指定表的所有条目
	Invalidate(ctx context.Context, tables ...string) error
}

// Key 由表名、SQL 与参数生成缓存键：relmap:cache:<table>:<hash>
func Key(table, query string, args []any) string {
	h := xxhash.New()
	_, _ = h.WriteString(query)
	for _, a := range args {
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(fmt.Sprintf("%T:%v", a, a))
	}
	return TablePrefix(table) + strconv.FormatUint(h.Sum64(), 16)
}

// KeyWithID 使用调用方指定的缓存 ID 生成键
func KeyWithID(table, id string) string {
	return TablePrefix(table) + "id:" + id
}

// TablePrefix 返回表的键前缀
func TablePrefix(table string) string {
	return KeyPrefix + table + ":"
}

// Cache 在 IProvider 之上合并并发的相同查询
type Cache struct {
	provider IProvider
	ttl      time.Duration
	group    singleflight.Group
	logger   logging.Logger
}

// Option 缓存选项
type Option func(*Cache)

// WithTTL 设置默认过期时间
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithLogger 设置日志
func WithLogger(logger logging.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New 创建缓存
func New(provider IProvider, opts ...Option) *Cache {
	c := &Cache{provider: provider}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.ComponentLogger(c.logger, "orm.cache")
	return c
}

// Provider 返回底层存储
func (c *Cache) Provider() IProvider {
	return c.provider
}

// GetOrLoad 命中时返回缓存行，否则调用 load 并写入缓存
//
// 同一键上并发的未命中只执行一次 load。读写缓存失败只记录日志，不影响查询结果。
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func() ([]db.Row, error)) ([]db.Row, error) {
	rows, ok, err := c.provider.Get(ctx, key)
	if err != nil {
		c.logger.Warn(ctx, "cache get failed", logging.String("key", key), logging.Error(err))
	} else if ok {
		c.logger.Debug(ctx, "cache hit", logging.String("key", key))
		return rows, nil
	}

	if ttl <= 0 {
		ttl = c.ttl
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		rows, err := load()
		if err != nil {
			return nil, err
		}
		if err := c.provider.Set(ctx, key, rows, ttl); err != nil {
			c.logger.Warn(ctx, "cache set failed", logging.String("key", key), logging.Error(err))
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]db.Row), nil
}

// Invalidate 使表的缓存失效
func (c *Cache) Invalidate(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	if err := c.provider.Invalidate(ctx, tables...); err != nil {
		return err
	}
	c.logger.Debug(ctx, "cache invalidated", logging.String("tables", strings.Join(tables, ",")))
	return nil
}
