// Package config 加载 relmap 的运行配置
//
// 优先级（由低到高）：内置默认值 < relmap.yaml < RELMAP_ 前缀环境变量。
// 环境变量以双下划线表示层级，例如 RELMAP_DATABASE__MAX_OPEN_CONNS -> database.max_open_conns。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"relmap/data/db"
)

const (
	// FileName 默认配置文件名
	FileName = "relmap.yaml"
	// EnvPrefix 环境变量前缀
	EnvPrefix = "RELMAP_"
)

// Config 顶层配置
type Config struct {
	Database db.DBConfig `koanf:"database"`
	ORM      ORMConfig   `koanf:"orm"`
	Log      LogConfig   `koanf:"log"`
}

// ORMConfig 映射引擎配置
type ORMConfig struct {
	LogSQL       bool         `koanf:"log_sql"`
	StripUnknown bool         `koanf:"strip_unknown"`
	Cache        CacheConfig  `koanf:"cache"`
	Events       EventsConfig `koanf:"events"`
	Tx           TxConfig     `koanf:"tx"`
}

// CacheConfig 查询缓存；Driver 为空表示不启用
type CacheConfig struct {
	Driver  string        `koanf:"driver"` // memory, redis
	MaxSize int           `koanf:"max_size"`
	TTL     time.Duration `koanf:"ttl"`
	Redis   RedisConfig   `koanf:"redis"`
}

// RedisConfig Redis 连接参数
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	ScanCount int64  `koanf:"scan_count"`
}

// EventsConfig 实体变更事件；Driver 为空表示不启用
type EventsConfig struct {
	Driver        string `koanf:"driver"` // memory, nats
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// TxConfig 事务默认值
type TxConfig struct {
	Propagation string `koanf:"propagation"`
	ReadOnly    bool   `koanf:"read_only"`
}

// LogConfig 日志
type LogConfig struct {
	Level string `koanf:"level"`
}

// Defaults 内置默认值
func Defaults() map[string]any {
	return map[string]any{
		"database.driver":           "sqlite",
		"database.database":         "relmap.db",
		"orm.log_sql":               false,
		"orm.cache.max_size":        10000,
		"orm.cache.ttl":             "5m",
		"orm.cache.redis.addr":      "127.0.0.1:6379",
		"orm.events.url":            "nats://127.0.0.1:4222",
		"orm.events.subject_prefix": "relmap",
		"orm.tx.propagation":        "REQUIRED",
		"log.level":                 "info",
	}
}

// Load 加载配置；path 为空时尝试当前目录下的 relmap.yaml，文件不存在不视为错误
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = FileName
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey RELMAP_ORM__CACHE__DRIVER -> orm.cache.driver
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	switch c.ORM.Cache.Driver {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("config: unknown cache driver %q", c.ORM.Cache.Driver)
	}
	switch c.ORM.Events.Driver {
	case "", "memory", "nats":
	default:
		return fmt.Errorf("config: unknown events driver %q", c.ORM.Events.Driver)
	}
	switch strings.ToUpper(c.ORM.Tx.Propagation) {
	case "", "REQUIRED", "REQUIRES_NEW", "NESTED", "SUPPORTS", "MANDATORY":
	default:
		return fmt.Errorf("config: unknown propagation %q", c.ORM.Tx.Propagation)
	}
	return nil
}
