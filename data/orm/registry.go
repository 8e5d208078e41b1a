package orm

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"relmap/data/orm/naming"
)

// Registry 实体元数据注册表
//
// 每个 Go 类型恰好对应一份 EntityMeta；注册完成后只读，可并发查询。
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*EntityMeta
	byName map[string]*EntityMeta
	naming naming.Strategy
}

// NewRegistry 创建注册表；ns 为 nil 时使用无方言的默认命名策略
func NewRegistry(ns naming.Strategy) *Registry {
	if ns == nil {
		ns = naming.New(dialectless)
	}
	return &Registry{
		byType: make(map[reflect.Type]*EntityMeta),
		byName: make(map[string]*EntityMeta),
		naming: ns,
	}
}

// Register 注册一份元数据
//
// 对结构体实体补齐列/关联的字段索引，并校验多对一关联的连接列存在于拥有方的列中。
// 同一类型重复注册时保留首次注册的结果。
func (r *Registry) Register(meta *EntityMeta) error {
	if meta == nil || meta.Name == "" {
		return fmt.Errorf("%w: entity name is required", ErrInvalidModel)
	}
	if meta.Table == "" {
		return fmt.Errorf("%w: table name is required for %s", ErrInvalidModel, meta.Name)
	}
	if err := fillIndexes(meta); err != nil {
		return err
	}
	for _, rel := range meta.Relations {
		if rel.Kind != RelationManyToOne {
			continue
		}
		if _, ok := meta.Column(rel.JoinColumn); !ok {
			return fmt.Errorf("%w: %s.%s joins on %q", ErrRelationColumn, meta.Name, rel.Property, rel.JoinColumn)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if meta.Type != nil {
		if _, ok := r.byType[meta.Type]; ok {
			return nil
		}
	}
	if existing, ok := r.byName[meta.Name]; ok && existing.Type != meta.Type {
		return fmt.Errorf("%w: entity name %s already registered", ErrInvalidModel, meta.Name)
	}
	if meta.Type != nil {
		r.byType[meta.Type] = meta
	}
	r.byName[meta.Name] = meta
	return nil
}

// RegisterModel 扫描结构体标签并注册
func (r *Registry) RegisterModel(model any) (*EntityMeta, error) {
	if t := modelType(model); t != nil {
		r.mu.RLock()
		meta, ok := r.byType[t]
		r.mu.RUnlock()
		if ok {
			return meta, nil
		}
	}
	meta, err := Scan(model, r.naming)
	if err != nil {
		return nil, err
	}
	if err := r.Register(meta); err != nil {
		return nil, err
	}
	return r.Lookup(model)
}

// MustRegister 批量注册模型，失败时 panic（用于初始化阶段）
func (r *Registry) MustRegister(models ...any) {
	for _, m := range models {
		if _, err := r.RegisterModel(m); err != nil {
			panic(err)
		}
	}
}

// Lookup 查找元数据
//
// model 可以是实体名（string）、reflect.Type、*EntityMeta、T、*T 或 []T。
func (r *Registry) Lookup(model any) (*EntityMeta, error) {
	switch v := model.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil model", ErrMetadataNotFound)
	case string:
		return r.LookupName(v)
	case *EntityMeta:
		return v, nil
	}

	t := modelType(model)
	r.mu.RLock()
	meta, ok := r.byType[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrMetadataNotFound, t)
	}
	return meta, nil
}

// LookupName 按实体名查找元数据
func (r *Registry) LookupName(name string) (*EntityMeta, error) {
	r.mu.RLock()
	meta, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMetadataNotFound, name)
	}
	return meta, nil
}

// ResolveTarget 解析关联的目标实体
//
// 一对多关联在这里校验目标实体上存在连接列（注册拥有方时目标可能尚未注册）。
func (r *Registry) ResolveTarget(rel RelationMeta) (*EntityMeta, error) {
	target, err := r.LookupName(rel.Target)
	if err != nil {
		return nil, err
	}
	if rel.Kind == RelationOneToMany {
		if _, ok := target.Column(rel.JoinColumn); !ok {
			return nil, fmt.Errorf("%w: %s joins on %q", ErrRelationColumn, target.Name, rel.JoinColumn)
		}
	}
	return target, nil
}

// Entities 按实体名排序返回全部已注册元数据
func (r *Registry) Entities() []*EntityMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*EntityMeta, 0, len(r.byName))
	for _, m := range r.byName {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Naming 返回注册表使用的命名策略
func (r *Registry) Naming() naming.Strategy {
	return r.naming
}

func modelType(model any) reflect.Type {
	var t reflect.Type
	if rt, ok := model.(reflect.Type); ok {
		t = rt
	} else {
		t = reflect.TypeOf(model)
	}
	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice) {
		t = t.Elem()
	}
	return t
}

func fillIndexes(meta *EntityMeta) error {
	if meta.Type == nil {
		return nil
	}
	if meta.Type.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %s is not a struct", ErrInvalidModel, meta.Type)
	}
	for i := range meta.Columns {
		c := &meta.Columns[i]
		if c.Index != nil {
			continue
		}
		f, ok := meta.Type.FieldByName(c.Field)
		if !ok {
			return fmt.Errorf("%w: %s has no field %q for column %s", ErrInvalidModel, meta.Name, c.Field, c.Name)
		}
		c.Index = f.Index
	}
	for i := range meta.Relations {
		rel := &meta.Relations[i]
		if rel.Index != nil {
			continue
		}
		f, ok := meta.Type.FieldByName(rel.Field)
		if !ok {
			return fmt.Errorf("%w: %s has no field %q for relation %s", ErrInvalidModel, meta.Name, rel.Field, rel.Property)
		}
		rel.Index = f.Index
	}
	return nil
}
