// Package transform 把扁平结果行转换为实体实例
//
// 嵌套关联通过 RelationMap 声明：结果行中以 "<属性>_" 为前缀的列属于对应关联，
// 可以多层嵌套（posts_comments_content）。RelationMap 先编译为前缀树，
// 转换时按最长前缀精确匹配（区分大小写），不从列名文本中猜测分隔符。
// 以 OwnColumnPrefix 开头的列总是属于本实体，用于与关联前缀同名的本表列（如 author_id）。
package transform

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"relmap/data/db"
	"relmap/data/orm"
	apperrors "relmap/errors"
)

// Row 扁平结果行
type Row = db.Row

// OwnColumnPrefix 本实体列的保留别名前缀，先于关联前缀匹配
const OwnColumnPrefix = "__own_"

// QueryResult 查询结果
type QueryResult struct {
	Results []Row
}

// Relation 描述一条待重建的关联：目标实体与其下层关联
//
// Model 可以是实体名、类型、实例或 *orm.EntityMeta；为 nil 时按拥有方元数据中
// 同名关联的 Target 解析。
type Relation struct {
	Model     any
	Relations RelationMap
}

// RelationMap 属性名 → 关联
type RelationMap map[string]Relation

// Rel 便捷构造 Relation
func Rel(model any, nested ...RelationMap) Relation {
	r := Relation{Model: model}
	for _, n := range nested {
		if r.Relations == nil {
			r.Relations = make(RelationMap, len(n))
		}
		for k, v := range n {
			r.Relations[k] = v
		}
	}
	return r
}

// Option 转换器选项
type Option func(*Transformer)

// WithStripUnknown 丢弃实体上未声明的列，而不是保存到 extra 字段
func WithStripUnknown() Option {
	return func(t *Transformer) { t.stripUnknown = true }
}

// Transformer 结果转换器，无内部可变状态，可并发使用
type Transformer struct {
	registry     *orm.Registry
	stripUnknown bool
}

// New 创建转换器；registry 为 nil 时只能传入 *orm.EntityMeta 作为模型
func New(registry *orm.Registry, opts ...Option) *Transformer {
	if registry == nil {
		registry = orm.NewRegistry(nil)
	}
	t := &Transformer{registry: registry}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ToEntity 把第一行转换为实体；无结果时返回 nil
func (t *Transformer) ToEntity(model any, qr QueryResult) (any, error) {
	if len(qr.Results) == 0 {
		return nil, nil
	}
	plan, err := t.Compile(model, nil)
	if err != nil {
		return nil, err
	}
	return plan.root.build(qr.Results[0], t.stripUnknown)
}

// ToEntities 逐行转换；无结果时返回空切片
func (t *Transformer) ToEntities(model any, qr QueryResult) ([]any, error) {
	plan, err := t.Compile(model, nil)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(qr.Results))
	for _, row := range qr.Results {
		v, err := plan.root.build(row, t.stripUnknown)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Transform 恰好一行时返回单个实体，否则返回切片
func (t *Transformer) Transform(model any, qr QueryResult) (any, error) {
	if len(qr.Results) == 1 {
		return t.ToEntity(model, qr)
	}
	return t.ToEntities(model, qr)
}

// TransformNested 重建嵌套关联；无结果返回 nil，只有一个根实体时返回单个实体，否则返回切片
func (t *Transformer) TransformNested(model any, qr QueryResult, relations RelationMap) (any, error) {
	plan, err := t.Compile(model, relations)
	if err != nil {
		return nil, err
	}
	roots, err := plan.Transform(qr)
	if err != nil {
		return nil, err
	}
	switch len(roots) {
	case 0:
		return nil, nil
	case 1:
		return roots[0], nil
	}
	return roots, nil
}

// Compile 把 RelationMap 编译为可复用的转换计划
func (t *Transformer) Compile(model any, relations RelationMap) (*Plan, error) {
	meta, err := t.registry.Lookup(model)
	if err != nil {
		return nil, err
	}
	root, err := t.compileNode(meta, relations)
	if err != nil {
		return nil, err
	}
	return &Plan{root: root, stripUnknown: t.stripUnknown}, nil
}

func (t *Transformer) compileNode(meta *orm.EntityMeta, relations RelationMap) (*node, error) {
	n := &node{
		meta:    meta,
		columns: make(map[string]orm.ColumnMeta, len(meta.Columns)),
	}
	for _, c := range meta.Columns {
		n.columns[c.Name] = c
	}

	props := make([]string, 0, len(relations))
	for p := range relations {
		props = append(props, p)
	}
	// 最长前缀优先，同长按字典序，保证匹配确定
	sort.Slice(props, func(i, j int) bool {
		if len(props[i]) != len(props[j]) {
			return len(props[i]) > len(props[j])
		}
		return props[i] < props[j]
	})

	for _, prop := range props {
		rel := relations[prop]
		relMeta, declared := meta.Relation(prop)

		var target *orm.EntityMeta
		var err error
		switch {
		case rel.Model != nil:
			target, err = t.registry.Lookup(rel.Model)
		case declared:
			target, err = t.registry.ResolveTarget(relMeta)
		default:
			err = fmt.Errorf("%w: relation %s.%s has no target", orm.ErrMetadataNotFound, meta.Name, prop)
		}
		if err != nil {
			return nil, err
		}

		childNode, err := t.compileNode(target, rel.Relations)
		if err != nil {
			return nil, err
		}
		e := &edge{property: prop, prefix: prop + "_", node: childNode}
		if declared {
			e.kind = relMeta.Kind
			e.joinColumn = relMeta.JoinColumn
			e.index = relMeta.Index
		}
		if e.index == nil && !meta.IsMap() {
			e.index = findField(meta.Type, prop)
			if e.index == nil {
				return nil, fmt.Errorf("%w: %s has no field for relation %s", orm.ErrInvalidModel, meta.Name, prop)
			}
		}
		n.edges = append(n.edges, e)
	}
	return n, nil
}

// findField 按属性名查找结构体字段：字段名忽略大小写或下划线形式相同
func findField(t reflect.Type, prop string) []int {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		if strings.EqualFold(f.Name, prop) || strings.EqualFold(f.Name, strings.ReplaceAll(prop, "_", "")) {
			return f.Index
		}
	}
	return nil
}

// Plan 编译后的转换计划，可重复使用
type Plan struct {
	root         *node
	stripUnknown bool
}

// Meta 返回根实体元数据
func (p *Plan) Meta() *orm.EntityMeta {
	return p.root.meta
}

// Transform 转换全部结果行并按主键（无主键时按列值指纹）去重，返回根实体列表
func (p *Plan) Transform(qr QueryResult) ([]any, error) {
	g := newGroup(p.root)
	for _, row := range qr.Results {
		if err := g.add(row, true, p.stripUnknown); err != nil {
			return nil, err
		}
	}
	return g.materialize()
}

type node struct {
	meta    *orm.EntityMeta
	columns map[string]orm.ColumnMeta
	edges   []*edge // 按前缀长度降序
}

type edge struct {
	property   string
	prefix     string
	node       *node
	kind       orm.RelationKind
	joinColumn string
	index      []int // 拥有方字段索引；map 实体为空
}

// partition 将行拆分为本实体的列与各关联的子行
func (n *node) partition(row Row) (Row, map[*edge]Row) {
	own := make(Row, len(row))
	var subs map[*edge]Row
	for key, v := range row {
		if len(key) > len(OwnColumnPrefix) && strings.HasPrefix(key, OwnColumnPrefix) {
			own[key[len(OwnColumnPrefix):]] = v
			continue
		}
		matched := false
		for _, e := range n.edges {
			if len(key) > len(e.prefix) && strings.HasPrefix(key, e.prefix) {
				if subs == nil {
					subs = make(map[*edge]Row, len(n.edges))
				}
				sub := subs[e]
				if sub == nil {
					sub = make(Row)
					subs[e] = sub
				}
				sub[key[len(e.prefix):]] = v
				matched = true
				break
			}
		}
		if !matched {
			own[key] = v
		}
	}
	return own, subs
}

// build 由本实体的列构造实例：结构体实体返回 *T，map 实体返回 map[string]any
func (n *node) build(own Row, strip bool) (any, error) {
	meta := n.meta
	if meta.IsMap() {
		out := make(map[string]any, len(own))
		for key, v := range own {
			col, known := n.columns[key]
			if !known {
				if !strip || len(n.columns) == 0 {
					out[key] = v
				}
				continue
			}
			cv, err := convertValue(col, v)
			if err != nil {
				return nil, conversionError(meta, key, err)
			}
			out[key] = cv
		}
		return out, nil
	}

	ptr := reflect.New(meta.Type)
	elem := ptr.Elem()
	var extra map[string]any
	for key, v := range own {
		col, known := n.columns[key]
		if !known {
			if strip || meta.ExtraIndex == nil {
				continue
			}
			if extra == nil {
				extra = make(map[string]any)
			}
			extra[key] = normalize(v)
			continue
		}
		if err := setField(fieldByIndexAlloc(elem, col.Index), col, v); err != nil {
			return nil, conversionError(meta, key, err)
		}
	}
	if extra != nil {
		fieldByIndexAlloc(elem, meta.ExtraIndex).Set(reflect.ValueOf(extra))
	}
	return ptr.Interface(), nil
}

func conversionError(meta *orm.EntityMeta, column string, err error) error {
	return apperrors.WrapError(
		fmt.Errorf("%w: %s.%s: %v", orm.ErrTypeConversion, meta.Name, column, err),
		apperrors.ErrCodeInvalidInput,
		"invalid column value",
	)
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// group 收集同一层级、同一父实体下的去重实例
type group struct {
	node  *node
	order []*instance
	byKey map[string]*instance
}

type instance struct {
	value    any
	own      Row
	children map[*edge]*group
}

func newGroup(n *node) *group {
	return &group{node: n, byKey: make(map[string]*instance)}
}

func (g *group) add(row Row, root bool, strip bool) error {
	own, subs := g.node.partition(row)
	if !root && allNil(own) && subsAllNil(subs) {
		// LEFT JOIN 未匹配：关联保持未设置
		return nil
	}

	key := g.identity(own)
	inst, ok := g.byKey[key]
	if !ok {
		v, err := g.node.build(own, strip)
		if err != nil {
			return err
		}
		inst = &instance{value: v, own: own, children: make(map[*edge]*group)}
		g.byKey[key] = inst
		g.order = append(g.order, inst)
	}

	for _, e := range g.node.edges {
		sub, ok := subs[e]
		if !ok {
			continue
		}
		cg := inst.children[e]
		if cg == nil {
			cg = newGroup(e.node)
			inst.children[e] = cg
		}
		if err := cg.add(sub, false, strip); err != nil {
			return err
		}
	}
	return nil
}

// identity 主键值优先，否则使用本实体列值的指纹
func (g *group) identity(own Row) string {
	if pk, ok := g.node.meta.PrimaryKey(); ok {
		if v, ok := own[pk.Name]; ok && v != nil {
			return fmt.Sprintf("pk:%v", normalize(v))
		}
	}
	keys := make([]string, 0, len(own))
	for k := range own {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%#v;", k, normalize(own[k]))
	}
	return fmt.Sprintf("fp:%016x", xxhash.Sum64String(sb.String()))
}

func (g *group) materialize() ([]any, error) {
	out := make([]any, 0, len(g.order))
	for _, inst := range g.order {
		for _, e := range g.node.edges {
			cg, ok := inst.children[e]
			if !ok {
				continue
			}
			children, err := cg.materialize()
			if err != nil {
				return nil, err
			}
			if len(children) == 0 {
				continue
			}
			if err := g.assign(inst, e, cg, children); err != nil {
				return nil, err
			}
		}
		out = append(out, inst.value)
	}
	return out, nil
}

// assign 把子实例写入父实例：切片字段收集全部，指针/结构体字段取第一个，
// any 字段与 map 实体在多个子实例时保存 []any
func (g *group) assign(inst *instance, e *edge, cg *group, children []any) error {
	if err := g.backfillJoinColumn(inst, e, cg); err != nil {
		return err
	}

	if m, ok := inst.value.(map[string]any); ok {
		if len(children) == 1 {
			m[e.property] = children[0]
		} else {
			m[e.property] = children
		}
		return nil
	}

	field := fieldByIndexAlloc(reflect.ValueOf(inst.value).Elem(), e.index)
	ft := field.Type()
	switch ft.Kind() {
	case reflect.Slice:
		slice := reflect.MakeSlice(ft, 0, len(children))
		for _, c := range children {
			cv, err := childValue(c, ft.Elem())
			if err != nil {
				return fmt.Errorf("%s.%s: %w", g.node.meta.Name, e.property, err)
			}
			slice = reflect.Append(slice, cv)
		}
		field.Set(slice)
	case reflect.Interface:
		if len(children) == 1 {
			field.Set(reflect.ValueOf(children[0]))
		} else {
			field.Set(reflect.ValueOf(children))
		}
	default:
		cv, err := childValue(children[0], ft)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", g.node.meta.Name, e.property, err)
		}
		field.Set(cv)
	}
	return nil
}

// backfillJoinColumn 多对一关联：拥有方缺少外键列时用子实体主键补齐
func (g *group) backfillJoinColumn(inst *instance, e *edge, cg *group) error {
	if e.kind != orm.RelationManyToOne || e.joinColumn == "" || len(cg.order) == 0 {
		return nil
	}
	if v, ok := inst.own[e.joinColumn]; ok && v != nil {
		return nil
	}
	pk, ok := cg.node.meta.PrimaryKey()
	if !ok {
		return nil
	}
	pkVal := cg.order[0].own[pk.Name]
	if pkVal == nil {
		return nil
	}
	col, ok := g.node.columns[e.joinColumn]
	if !ok {
		return nil
	}
	inst.own[e.joinColumn] = pkVal
	if m, ok := inst.value.(map[string]any); ok {
		cv, err := convertValue(col, pkVal)
		if err != nil {
			return conversionError(g.node.meta, e.joinColumn, err)
		}
		m[e.joinColumn] = cv
		return nil
	}
	field := fieldByIndexAlloc(reflect.ValueOf(inst.value).Elem(), col.Index)
	if err := setField(field, col, pkVal); err != nil {
		return conversionError(g.node.meta, e.joinColumn, err)
	}
	return nil
}

// childValue 把子实例（*T 或 map）适配为目标字段/元素类型
func childValue(child any, target reflect.Type) (reflect.Value, error) {
	cv := reflect.ValueOf(child)
	switch {
	case cv.Type().AssignableTo(target):
		return cv, nil
	case cv.Kind() == reflect.Ptr && cv.Elem().Type().AssignableTo(target):
		return cv.Elem(), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot assign %s to %s", orm.ErrInvalidModel, cv.Type(), target)
}

func allNil(row Row) bool {
	for _, v := range row {
		if v != nil {
			return false
		}
	}
	return true
}

func subsAllNil(subs map[*edge]Row) bool {
	for _, sub := range subs {
		if !allNil(sub) {
			return false
		}
	}
	return true
}

// One 转换为 *T；无结果时返回 nil
func One[T any](t *Transformer, qr QueryResult) (*T, error) {
	v, err := t.ToEntity((*T)(nil), qr)
	if err != nil || v == nil {
		return nil, err
	}
	return v.(*T), nil
}

// Many 转换为 []*T
func Many[T any](t *Transformer, qr QueryResult) ([]*T, error) {
	vs, err := t.ToEntities((*T)(nil), qr)
	if err != nil {
		return nil, err
	}
	return typed[T](vs), nil
}

// Nested 重建嵌套关联并返回去重后的根实体 []*T
func Nested[T any](t *Transformer, qr QueryResult, relations RelationMap) ([]*T, error) {
	plan, err := t.Compile((*T)(nil), relations)
	if err != nil {
		return nil, err
	}
	vs, err := plan.Transform(qr)
	if err != nil {
		return nil, err
	}
	return typed[T](vs), nil
}

func typed[T any](vs []any) []*T {
	out := make([]*T, len(vs))
	for i, v := range vs {
		out[i] = v.(*T)
	}
	return out
}
