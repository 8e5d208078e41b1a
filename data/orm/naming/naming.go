// Package naming 定义实体到表/列的命名规则以及标识符加引号策略
package naming

import (
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"

	"relmap/data/db/dialect"
)

// Strategy 命名策略
type Strategy interface {
	// Wrap 为标识符加引号；幂等，已含引号字符的名称原样返回，
	// 非普通标识符的表达式（如 DATE(created_at)、COUNT(*)）原样内联。
	Wrap(identifier string) string
	// TableName 由实体类型名推导表名
	TableName(typeName string) string
	// ColumnName 由字段名推导列名
	ColumnName(fieldName string) string
}

type defaultStrategy struct {
	dialect dialect.Dialect
}

// New 返回基于方言的默认命名策略：
//   - 表名：类型名复数化后转下划线（BlogPost → blog_posts）
//   - 列名：字段名转下划线（AuthorID → author_id）
func New(d dialect.Dialect) Strategy {
	return defaultStrategy{dialect: d}
}

func (s defaultStrategy) Wrap(identifier string) string {
	if identifier == "" || identifier == "*" || s.dialect.IsQuoted(identifier) {
		return identifier
	}
	if !IsPlainIdentifier(identifier) {
		return identifier
	}
	return s.dialect.QuoteIdentifier(identifier)
}

func (s defaultStrategy) TableName(typeName string) string {
	return inflect.Underscore(inflect.Pluralize(typeName))
}

func (s defaultStrategy) ColumnName(fieldName string) string {
	return SnakeCase(fieldName)
}

// IsPlainIdentifier 判断是否为普通（可加引号的）标识符，允许 a.b 与 t.* 形式
func IsPlainIdentifier(name string) bool {
	if name == "" {
		return false
	}
	parts := strings.Split(name, ".")
	for i, part := range parts {
		if part == "*" && i == len(parts)-1 && i > 0 {
			continue
		}
		if part == "" {
			return false
		}
		for j, r := range part {
			if r == '_' || unicode.IsLetter(r) {
				continue
			}
			if j > 0 && unicode.IsDigit(r) {
				continue
			}
			return false
		}
	}
	return true
}

// SnakeCase 将驼峰名转换为下划线形式，连续大写视为一个缩写词
func SnakeCase(s string) string {
	runes := []rune(s)
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sb.WriteByte('_')
				}
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
