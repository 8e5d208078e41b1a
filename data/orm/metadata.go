package orm

import (
	"reflect"
)

// SemanticType 列的语义类型，决定结果转换时的取值规则
type SemanticType string

const (
	TypeString  SemanticType = "string"
	TypeNumber  SemanticType = "number"
	TypeBoolean SemanticType = "boolean"
	TypeDate    SemanticType = "date"
	TypeCustom  SemanticType = "custom"
)

// ColumnMeta 描述一列；元数据收集完成后不再修改。
type ColumnMeta struct {
	Name          string       // 列名
	Field         string       // 对应的结构体字段名
	Type          SemanticType // 语义类型
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	Index         []int // 字段索引路径（reflect.Value.FieldByIndex），map 实体为空
}

// RelationKind 关联类型。
type RelationKind string

const (
	// RelationManyToOne 多对一：拥有方持有外键列。
	RelationManyToOne RelationKind = "many_to_one"
	// RelationOneToMany 一对多：外键位于目标实体，仅用于读取嵌套集合。
	RelationOneToMany RelationKind = "one_to_many"
)

// RelationMeta 描述拥有方上的一条关联。
//
// Target 是目标实体的注册名，在首次使用时经 Registry 解析，
// 因此两个实体可以相互引用而不受注册顺序影响。
type RelationMeta struct {
	Property   string       // 拥有方上的关联属性名，同时作为结果集前缀
	Field      string       // 对应的结构体字段名
	Kind       RelationKind // 关联类型
	JoinColumn string       // 多对一：拥有方外键列；一对多：目标方外键列
	Target     string       // 目标实体名
	Index      []int        // 关联字段索引路径
}

// EntityMeta 实体元数据，每个实体类型恰好一份。
//
// Type 为 nil 时实体以 map[string]any 表示（手工构造的元数据常见）。
type EntityMeta struct {
	Name       string
	Type       reflect.Type
	Table      string
	Columns    []ColumnMeta
	Relations  []RelationMeta
	ExtraIndex []int // 保存未知列的 map[string]any 字段，可为空
}

// PrimaryKey 返回主键列
func (m *EntityMeta) PrimaryKey() (ColumnMeta, bool) {
	for _, c := range m.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return ColumnMeta{}, false
}

// Column 按列名查找列
func (m *EntityMeta) Column(name string) (ColumnMeta, bool) {
	for _, c := range m.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnMeta{}, false
}

// ColumnByField 按字段名查找列
func (m *EntityMeta) ColumnByField(field string) (ColumnMeta, bool) {
	for _, c := range m.Columns {
		if c.Field == field {
			return c, true
		}
	}
	return ColumnMeta{}, false
}

// Relation 按属性名查找关联
func (m *EntityMeta) Relation(property string) (RelationMeta, bool) {
	for _, r := range m.Relations {
		if r.Property == property {
			return r, true
		}
	}
	return RelationMeta{}, false
}

// ColumnNames 按声明顺序返回所有列名
func (m *EntityMeta) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// IsMap 实体是否以 map[string]any 表示
func (m *EntityMeta) IsMap() bool {
	return m.Type == nil
}

// New 创建一个新的实体实例：结构体实体返回 *T，map 实体返回 map[string]any
func (m *EntityMeta) New() any {
	if m.IsMap() {
		return make(map[string]any)
	}
	return reflect.New(m.Type).Interface()
}
