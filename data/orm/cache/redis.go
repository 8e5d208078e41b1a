package cache

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"relmap/data/db"
)

// redisClient go-redis 命令的子集，便于测试替换
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisConfig Redis 缓存配置
type RedisConfig struct {
	Client   redis.UniversalClient
	Addr     string `koanf:"addr"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`

	// TTL 默认过期时间，0 表示不过期
	TTL time.Duration `koanf:"ttl"`
	// ScanCount 失效时每批 SCAN 的数量
	ScanCount int64 `koanf:"scan_count"`
}

// RedisProvider 以 msgpack 编码保存结果行
type RedisProvider struct {
	client    redisClient
	ttl       time.Duration
	scanCount int64
}

// NewRedisProvider 创建 Redis 缓存；未提供 Client 时按 Addr 创建连接
func NewRedisProvider(cfg RedisConfig) *RedisProvider {
	var cl redisClient
	if cfg.Client != nil {
		cl = cfg.Client
	} else {
		cl = redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
	}
	return newRedisProvider(cl, cfg.TTL, cfg.ScanCount)
}

func newRedisProvider(cl redisClient, ttl time.Duration, scanCount int64) *RedisProvider {
	if scanCount <= 0 {
		scanCount = 100
	}
	return &RedisProvider{client: cl, ttl: ttl, scanCount: scanCount}
}

func (p *RedisProvider) Get(ctx context.Context, key string) ([]db.Row, bool, error) {
	data, err := p.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rows, err := decodeRows(data)
	if err != nil {
		return nil, false, err
	}
	return rows, true, nil
}

func (p *RedisProvider) Set(ctx context.Context, key string, rows []db.Row, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = p.ttl
	}
	data, err := encodeRows(rows)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, key, data, ttl).Err()
}

// Invalidate 按表前缀 SCAN 并删除
func (p *RedisProvider) Invalidate(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		match := TablePrefix(table) + "*"
		var cursor uint64
		for {
			keys, next, err := p.client.Scan(ctx, cursor, match, p.scanCount).Result()
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				if err := p.client.Del(ctx, keys...).Err(); err != nil {
					return err
				}
			}
			if next == 0 {
				break
			}
			cursor = next
		}
	}
	return nil
}

func encodeRows(rows []db.Row) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRows(data []byte) ([]db.Row, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	// 整数统一解码为 int64/uint64，浮点为 float64
	dec.UseLooseInterfaceDecoding(true)
	var rows []db.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}
