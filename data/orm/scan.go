package orm

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"relmap/data/db/dialect"
	"relmap/data/orm/naming"
)

var dialectless = dialect.New("")

var (
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	extraType   = reflect.TypeOf(map[string]any(nil))
)

// Scan 根据结构体标签生成实体元数据
//
// 支持的 orm 标签（分号分隔）：
//
//	column:x  primaryKey  autoIncrement  nullable  type:date
//	manyToOne  oneToMany  joinColumn:x  target:X  property:x
//	extra  -
//
// 未声明 column 时依次回退到 gorm 的 column:、db 标签、json 标签与下划线命名。
// 未声明主键时名为 id 的列视为主键，整数类型同时视为自增。
func Scan(model any, ns naming.Strategy) (*EntityMeta, error) {
	if ns == nil {
		ns = naming.New(dialectless)
	}
	t := modelType(model)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T is not a struct", ErrInvalidModel, model)
	}

	meta := &EntityMeta{Name: t.Name(), Type: t}
	if table, ok := tryGetTableName(t); ok {
		meta.Table = table
	} else {
		meta.Table = ns.TableName(t.Name())
	}

	var walk func(reflect.Type, []int) error
	walk = func(cur reflect.Type, prefix []int) error {
		for i := 0; i < cur.NumField(); i++ {
			f := cur.Field(i)
			// 跳过未导出字段
			if f.PkgPath != "" {
				continue
			}
			index := append(append([]int(nil), prefix...), i)
			tag := parseTag(f.Tag.Get("orm"))
			if tag.has("-") {
				continue
			}

			if f.Anonymous && f.Type.Kind() == reflect.Struct && !isScalarField(f.Type) {
				// 内嵌结构体，递归展开
				if err := walk(f.Type, index); err != nil {
					return err
				}
				continue
			}

			switch {
			case tag.has("extra"):
				if f.Type != extraType {
					return fmt.Errorf("%w: %s.%s extra field must be map[string]any", ErrInvalidModel, t.Name(), f.Name)
				}
				meta.ExtraIndex = index
			case tag.has("manyToOne"), tag.has("oneToMany"):
				meta.Relations = append(meta.Relations, scanRelation(t, f, index, tag, ns))
			case isScalarField(f.Type):
				meta.Columns = append(meta.Columns, scanColumn(f, index, tag, ns))
			}
		}
		return nil
	}
	if err := walk(t, nil); err != nil {
		return nil, err
	}

	if _, ok := meta.PrimaryKey(); !ok {
		for i := range meta.Columns {
			c := &meta.Columns[i]
			if c.Name != "id" {
				continue
			}
			c.PrimaryKey = true
			c.AutoIncrement = isIntegerKind(meta.Type.FieldByIndex(c.Index).Type)
			break
		}
	}
	return meta, nil
}

func scanColumn(f reflect.StructField, index []int, tag tagOptions, ns naming.Strategy) ColumnMeta {
	col := ColumnMeta{
		Name:          tag.value("column"),
		Field:         f.Name,
		Type:          SemanticType(tag.value("type")),
		Nullable:      tag.has("nullable") || f.Type.Kind() == reflect.Ptr,
		PrimaryKey:    tag.has("primaryKey"),
		AutoIncrement: tag.has("autoIncrement"),
		Index:         index,
	}

	gorm := parseTag(f.Tag.Get("gorm"))
	if col.Name == "" {
		col.Name = gorm.value("column")
	}
	if col.Name == "" {
		if dbTag := f.Tag.Get("db"); dbTag != "" && dbTag != "-" {
			col.Name = dbTag
		} else if jsonTag := strings.Split(f.Tag.Get("json"), ",")[0]; jsonTag != "" && jsonTag != "-" {
			col.Name = jsonTag
		} else {
			col.Name = ns.ColumnName(f.Name)
		}
	}
	col.PrimaryKey = col.PrimaryKey || gorm.has("primaryKey")
	col.AutoIncrement = col.AutoIncrement || gorm.has("autoIncrement")
	if col.Type == "" {
		col.Type = inferSemanticType(f.Type)
	}
	return col
}

func scanRelation(owner reflect.Type, f reflect.StructField, index []int, tag tagOptions, ns naming.Strategy) RelationMeta {
	rel := RelationMeta{
		Property:   tag.value("property"),
		Field:      f.Name,
		Kind:       RelationManyToOne,
		JoinColumn: tag.value("joinColumn"),
		Target:     tag.value("target"),
		Index:      index,
	}
	if tag.has("oneToMany") {
		rel.Kind = RelationOneToMany
	}
	if rel.Property == "" {
		rel.Property = ns.ColumnName(f.Name)
	}
	if rel.Target == "" {
		et := f.Type
		for et.Kind() == reflect.Ptr || et.Kind() == reflect.Slice {
			et = et.Elem()
		}
		rel.Target = et.Name()
	}
	if rel.JoinColumn == "" {
		if rel.Kind == RelationManyToOne {
			rel.JoinColumn = rel.Property + "_id"
		} else {
			rel.JoinColumn = ns.ColumnName(owner.Name()) + "_id"
		}
	}
	return rel
}

// isScalarField 判断字段能否直接映射为一列：基础类型、time.Time 以及实现 sql.Scanner 的类型
func isScalarField(t reflect.Type) bool {
	if reflect.PointerTo(t).Implements(scannerType) {
		return true
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType || reflect.PointerTo(t).Implements(scannerType) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func inferSemanticType(t reflect.Type) SemanticType {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return TypeDate
	}
	switch t.Kind() {
	case reflect.Bool:
		return TypeBoolean
	case reflect.String:
		return TypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return TypeNumber
	default:
		return TypeCustom
	}
}

func isIntegerKind(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// tryGetTableName 尝试调用类型上的 TableName()（值或指针接收者）
func tryGetTableName(t reflect.Type) (string, bool) {
	if m, ok := reflect.New(t).Interface().(interface{ TableName() string }); ok {
		if name := m.TableName(); name != "" {
			return name, true
		}
	}
	return "", false
}

// tagOptions 解析后的标签：key → value（无值的开关项 value 为空串）
type tagOptions map[string]string

func parseTag(tag string) tagOptions {
	opts := make(tagOptions)
	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, ":")
		opts[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return opts
}

func (o tagOptions) has(key string) bool {
	_, ok := o[strings.ToLower(key)]
	return ok
}

func (o tagOptions) value(key string) string {
	return o[strings.ToLower(key)]
}
