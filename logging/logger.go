// Package logging 提供统一的日志接口抽象
//
// 数据层（orm/tx/cache）只依赖 Logger 接口，具体输出由应用层注入；
// 未注入时使用全局 Logger。
package logging

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Level 日志级别
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String 返回级别的标签形式
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel 解析配置中的级别字符串，无法识别时返回 InfoLevel
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger 日志接口
type Logger interface {
	// Debug 调试日志
	Debug(ctx context.Context, msg string, fields ...Field)

	// Info 信息日志
	Info(ctx context.Context, msg string, fields ...Field)

	// Warn 警告日志
	Warn(ctx context.Context, msg string, fields ...Field)

	// Error 错误日志
	Error(ctx context.Context, msg string, fields ...Field)

	// WithFields 添加字段，返回新的Logger
	WithFields(fields ...Field) Logger
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

// 字段构造函数
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

// Duration 以 time.Duration 作为字段值，格式化输出
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Component 标记日志来源组件，例如 "orm.basic"、"orm.tx"
func Component(name string) Field {
	return Field{Key: "component", Value: name}
}

// SQL 记录语句文本
func SQL(query string) Field {
	return Field{Key: "sql", Value: query}
}

// Args 记录绑定参数个数。参数值可能包含敏感数据，默认不输出原值。
func Args(args []any) Field {
	return Field{Key: "args", Value: len(args)}
}

// StdLogger 标准库log实现
type StdLogger struct {
	prefix string
	level  Level
	fields []Field
	out    *log.Logger
}

// NewStdLogger 创建标准库Logger，默认输出 Debug 及以上级别
func NewStdLogger(prefix string) *StdLogger {
	return &StdLogger{
		prefix: prefix,
		level:  DebugLevel,
		fields: make([]Field, 0),
	}
}

// WithLevel 返回设置了最低输出级别的副本
func (l *StdLogger) WithLevel(level Level) *StdLogger {
	cp := l.clone()
	cp.level = level
	return cp
}

// WithOutput 返回使用指定 *log.Logger 输出的副本，nil 表示使用 log 包默认输出
func (l *StdLogger) WithOutput(out *log.Logger) *StdLogger {
	cp := l.clone()
	cp.out = out
	return cp
}

func (l *StdLogger) clone() *StdLogger {
	fields := make([]Field, len(l.fields))
	copy(fields, l.fields)
	return &StdLogger{prefix: l.prefix, level: l.level, fields: fields, out: l.out}
}

func (l *StdLogger) format(msg string, fields ...Field) string {
	var sb strings.Builder
	if l.prefix != "" {
		sb.WriteString(l.prefix)
		sb.WriteByte(' ')
	}
	sb.WriteString(msg)
	for _, f := range l.fields {
		sb.WriteString(" " + f.Key + "=" + formatValue(f.Value))
	}
	for _, f := range fields {
		sb.WriteString(" " + f.Key + "=" + formatValue(f.Value))
	}
	return sb.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		if val == nil {
			return "<nil>"
		}
		return val.Error()
	case time.Duration:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func (l *StdLogger) emit(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	line := l.format(msg, fields...)
	if l.out != nil {
		l.out.Println("["+level.String()+"]", line)
		return
	}
	log.Println("["+level.String()+"]", line)
}

func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.emit(DebugLevel, msg, fields)
}

func (l *StdLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.emit(InfoLevel, msg, fields)
}

func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.emit(WarnLevel, msg, fields)
}

func (l *StdLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.emit(ErrorLevel, msg, fields)
}

func (l *StdLogger) WithFields(fields ...Field) Logger {
	cp := l.clone()
	cp.fields = append(cp.fields, fields...)
	return cp
}

// NoopLogger 空日志实现（用于测试）
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (l *NoopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) WithFields(fields ...Field) Logger                      { return l }

// 全局Logger
var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewStdLogger("").WithLevel(InfoLevel)
)

// SetLogger 设置全局Logger
func SetLogger(logger Logger) {
	if logger == nil {
		logger = NewNoopLogger()
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetLogger 获取全局Logger
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// ComponentLogger 返回带 component 字段的 Logger；logger 为 nil 时基于全局 Logger
func ComponentLogger(logger Logger, name string) Logger {
	if logger == nil {
		logger = GetLogger()
	}
	return logger.WithFields(Component(name))
}
