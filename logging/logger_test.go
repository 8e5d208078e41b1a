package logging

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"
)

func captureLogger(level Level) (*StdLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewStdLogger("test").WithLevel(level).WithOutput(log.New(&buf, "", 0)), &buf
}

// TestFormatValue 测试值格式化
func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "字符串", value: "test", want: "test"},
		{name: "错误", value: errors.New("error message"), want: "error message"},
		{name: "整数", value: 123, want: "123"},
		{name: "布尔值", value: true, want: "true"},
		{name: "时长", value: 1500 * time.Millisecond, want: "1.5s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(tt.value); got != tt.want {
				t.Errorf("formatValue() = %s, 期望 %s", got, tt.want)
			}
		})
	}
}

// TestStdLogger_Levels 测试级别过滤
func TestStdLogger_Levels(t *testing.T) {
	logger, buf := captureLogger(WarnLevel)
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message", Bool("critical", true))
	logger.Error(ctx, "error message", Error(errors.New("boom")))

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("低于阈值的日志不应输出: %s", output)
	}
	for _, want := range []string{"[WARN]", "critical=true", "[ERROR]", "error=boom"} {
		if !strings.Contains(output, want) {
			t.Errorf("输出不包含 %s: %s", want, output)
		}
	}
}

// TestStdLogger_SQLFields 测试 SQL 相关字段
func TestStdLogger_SQLFields(t *testing.T) {
	logger, buf := captureLogger(DebugLevel)

	logger.WithFields(Component("orm.basic")).Debug(context.Background(), "exec",
		SQL("SELECT * FROM users WHERE id = ?"),
		Args([]any{1, "secret"}),
		Duration("elapsed", 2*time.Millisecond),
	)

	output := buf.String()
	for _, want := range []string{"component=orm.basic", "sql=SELECT * FROM users WHERE id = ?", "args=2", "elapsed=2ms"} {
		if !strings.Contains(output, want) {
			t.Errorf("输出不包含 %s: %s", want, output)
		}
	}
	if strings.Contains(output, "secret") {
		t.Error("参数值不应出现在日志中")
	}
}

// TestStdLogger_WithFields_Immutable 测试WithFields不改变原Logger
func TestStdLogger_WithFields_Immutable(t *testing.T) {
	logger := NewStdLogger("test")
	withFields := logger.WithFields(String("key", "value")).(*StdLogger)

	if len(logger.fields) != 0 {
		t.Error("WithFields改变了原Logger的fields")
	}
	if len(withFields.fields) != 1 {
		t.Errorf("新Logger的fields数量 = %d, 期望 1", len(withFields.fields))
	}
}

// TestParseLevel 测试级别解析
func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		" WARN ":  WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"":        InfoLevel,
		"verbose": InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, 期望 %v", in, got, want)
		}
	}
}

// TestGlobalLogger 测试全局Logger
func TestGlobalLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	testLogger := NewNoopLogger()
	SetLogger(testLogger)
	if GetLogger() != testLogger {
		t.Error("全局Logger未正确设置")
	}

	SetLogger(nil)
	if _, ok := GetLogger().(*NoopLogger); !ok {
		t.Error("设置nil时应退化为NoopLogger")
	}

	if ComponentLogger(nil, "orm.tx") == nil {
		t.Error("ComponentLogger不应返回nil")
	}
}
