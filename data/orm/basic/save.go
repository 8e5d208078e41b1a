package basic

import (
	"context"
	"database/sql/driver"
	"fmt"
	"reflect"

	"relmap/data/orm"
	"relmap/data/orm/event"
	"relmap/data/orm/transform"
	"relmap/data/orm/where"
	apperrors "relmap/errors"
)

// record 从载荷中提取的待写入列
type record struct {
	columns []string
	values  map[string]any
	pk      orm.ColumnMeta
	pkValue any
	hasPK   bool
	target  reflect.Value // 可寻址的结构体载荷，用于回写生成的主键
}

// Save 主键存在时执行 UPDATE，否则执行 INSERT，返回重新查询后的实体
//
// 结构体载荷写入全部列；map 载荷只写入出现且已声明的列。非自增主键在 UPDATE
// 未命中任何行时改为 INSERT。唯一键冲突返回 DUPLICATE_ERROR。
func (m *model) Save(ctx context.Context, payload any) (any, error) {
	rec, err := m.extract(payload)
	if err != nil {
		return nil, err
	}

	if rec.hasPK {
		found, err := m.update(ctx, rec)
		if err != nil {
			return nil, err
		}
		if !found && !rec.pk.AutoIncrement {
			return m.insert(ctx, rec, true)
		}
		if !found {
			return nil, apperrors.WrapError(orm.ErrNotFound, apperrors.ErrCodeNotFound,
				fmt.Sprintf("%s %v not found", m.meta.Name, rec.pkValue))
		}
		saved, err := m.refetch(ctx, rec)
		if err != nil {
			return nil, err
		}
		m.orm.afterWrite(ctx, m.meta, event.OpUpdate, rec.pkValue, saved)
		return saved, nil
	}
	return m.insert(ctx, rec, false)
}

// update 返回是否存在对应记录
func (m *model) update(ctx context.Context, rec record) (bool, error) {
	ns := m.orm.naming
	b := m.orm.builder().Update(m.meta.Table)
	n := 0
	for _, col := range rec.columns {
		if col == rec.pk.Name {
			continue
		}
		b.Set(col, rec.values[col])
		n++
	}
	if n == 0 {
		// 只有主键：无列可更新，按存在性处理
		cnt, err := m.Count(ctx, orm.WithWhere(ns.Wrap(rec.pk.Name)+" = ?", rec.pkValue))
		return cnt > 0, err
	}
	b.Where(ns.Wrap(rec.pk.Name)+" = ?", rec.pkValue)

	q, args := b.Build()
	res, err := m.orm.exec(ctx, q, args)
	if err != nil {
		return false, m.orm.wrapDBError(ctx, err, "update "+m.meta.Table)
	}
	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		return true, nil
	}
	// 部分驱动在值未变化时返回 0，需按主键确认
	cnt, err := m.Count(ctx, orm.WithWhere(ns.Wrap(rec.pk.Name)+" = ?", rec.pkValue))
	return cnt > 0, err
}

func (m *model) insert(ctx context.Context, rec record, withPK bool) (any, error) {
	cols := make([]string, 0, len(rec.columns))
	vals := make([]any, 0, len(rec.columns))
	for _, col := range rec.columns {
		if col == rec.pk.Name && !withPK {
			continue
		}
		cols = append(cols, col)
		vals = append(vals, rec.values[col])
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s has no columns to insert", orm.ErrInvalidModel, m.meta.Name)
	}

	b := m.orm.builder().InsertInto(m.meta.Table).Columns(cols...).Values(vals...)
	generated := rec.pk.Name != "" && !withPK && rec.pk.AutoIncrement

	switch {
	case generated && m.orm.dialect.SupportsReturning():
		q, args := b.Returning(rec.pk.Name).Build()
		var id any
		if err := m.orm.queryRow(ctx, q, args, &id); err != nil {
			return nil, m.orm.wrapDBError(ctx, err, "insert "+m.meta.Table)
		}
		rec.pkValue, rec.hasPK = id, true
	default:
		q, args := b.Build()
		res, err := m.orm.exec(ctx, q, args)
		if err != nil {
			return nil, m.orm.wrapDBError(ctx, err, "insert "+m.meta.Table)
		}
		if generated {
			if id, err := res.LastInsertId(); err == nil && id > 0 {
				rec.pkValue, rec.hasPK = id, true
			}
		}
	}
	if withPK {
		rec.hasPK = true
	}

	var saved any
	var err error
	if rec.hasPK {
		m.assignPK(rec)
		saved, err = m.refetch(ctx, rec)
	} else {
		// 主键未知时回显载荷
		row := make(transform.Row, len(rec.values))
		for k, v := range rec.values {
			row[k] = v
		}
		saved, err = m.orm.transformer.ToEntity(m.meta, transform.QueryResult{Results: []transform.Row{row}})
	}
	if err != nil {
		return nil, err
	}
	m.orm.afterWrite(ctx, m.meta, event.OpInsert, rec.pkValue, saved)
	return saved, nil
}

func (m *model) refetch(ctx context.Context, rec record) (any, error) {
	saved, err := m.FindOne(ctx, orm.WithWhere(m.orm.naming.Wrap(rec.pk.Name)+" = ?", rec.pkValue))
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, apperrors.WrapError(orm.ErrNotFound, apperrors.ErrCodeNotFound,
			fmt.Sprintf("%s %v not found after save", m.meta.Name, rec.pkValue))
	}
	return saved, nil
}

// assignPK 把生成的主键回写到结构体载荷
func (m *model) assignPK(rec record) {
	if !rec.target.IsValid() || rec.pk.Index == nil {
		return
	}
	f, ok := fieldByIndex(rec.target, rec.pk.Index, true)
	if !ok || !f.CanSet() {
		return
	}
	v := reflect.ValueOf(rec.pkValue)
	if !v.IsValid() {
		return
	}
	switch {
	case v.Type().AssignableTo(f.Type()):
		f.Set(v)
	case v.Type().ConvertibleTo(f.Type()) && v.Kind() != reflect.String:
		f.Set(v.Convert(f.Type()))
	}
}

// Delete 按主键删除实体；entity 可以是实体（结构体或 map）或主键值
func (m *model) Delete(ctx context.Context, entity any) (int64, error) {
	pk, ok := m.meta.PrimaryKey()
	if !ok {
		return 0, fmt.Errorf("%w: %s", orm.ErrNoPrimaryKey, m.meta.Name)
	}

	var key any
	switch v := entity.(type) {
	case map[string]any:
		key = v[pk.Name]
	default:
		rv := reflect.ValueOf(entity)
		if rv.Kind() == reflect.Ptr && !rv.IsNil() {
			rv = rv.Elem()
		}
		if rv.IsValid() && !m.meta.IsMap() && rv.Type() == m.meta.Type {
			if f, ok := fieldByIndex(rv, pk.Index, false); ok {
				key = valueOf(f)
			}
		} else {
			key = entity
		}
	}
	if key == nil {
		return 0, fmt.Errorf("%w: delete %s without primary key value", orm.ErrInvalidModel, m.meta.Name)
	}

	ns := m.orm.naming
	q, args := m.orm.builder().DeleteFrom(m.meta.Table).Where(ns.Wrap(pk.Name)+" = ?", key).Build()
	res, err := m.orm.exec(ctx, q, args)
	if err != nil {
		return 0, m.orm.wrapDBError(ctx, err, "delete "+m.meta.Table)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		m.orm.afterWrite(ctx, m.meta, event.OpDelete, key, nil)
	}
	return affected, nil
}

// DeleteWhere 按条件删除，不允许无条件删除
func (m *model) DeleteWhere(ctx context.Context, opts ...orm.QueryOption) (int64, error) {
	qo := orm.CollectQueryOptions(opts...)
	if len(qo.Where) == 0 && len(qo.WhereMap) == 0 {
		return 0, fmt.Errorf("%w: delete without where is not allowed", orm.ErrUnsupported)
	}

	b := m.orm.builder().DeleteFrom(m.meta.Table)
	for _, w := range qo.Where {
		b.Where(w.Expr, w.Args...)
	}
	if len(qo.WhereMap) > 0 {
		c := where.FromMap(qo.WhereMap, m.orm.naming.Wrap)
		b.Where(c.Expr, c.Args...)
	}
	if qo.Limit > 0 {
		b.Limit(qo.Limit)
	}

	q, args := b.Build()
	res, err := m.orm.exec(ctx, q, args)
	if err != nil {
		return 0, m.orm.wrapDBError(ctx, err, "delete "+m.meta.Table)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		m.orm.afterWrite(ctx, m.meta, event.OpDelete, nil, nil)
	}
	return affected, nil
}

// extract 按元数据从载荷中取出列值
func (m *model) extract(payload any) (record, error) {
	rec := record{values: make(map[string]any)}
	rec.pk, _ = m.meta.PrimaryKey()

	if data, ok := payload.(map[string]any); ok {
		for _, col := range m.meta.Columns {
			if v, ok := data[col.Name]; ok {
				rec.columns = append(rec.columns, col.Name)
				rec.values[col.Name] = v
			}
		}
		m.fillJoinColumnsFromMap(&rec, data)
		if v, ok := rec.values[rec.pk.Name]; ok && rec.pk.Name != "" && v != nil {
			rec.pkValue, rec.hasPK = v, true
		}
		return rec, nil
	}

	if m.meta.IsMap() {
		return rec, fmt.Errorf("%w: %s expects map[string]any, got %T", orm.ErrInvalidModel, m.meta.Name, payload)
	}
	rv := reflect.ValueOf(payload)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return rec, fmt.Errorf("%w: nil %s", orm.ErrInvalidModel, m.meta.Name)
		}
		rv = rv.Elem()
		rec.target = rv
	}
	if !rv.IsValid() || rv.Type() != m.meta.Type {
		return rec, fmt.Errorf("%w: %s expects %v, got %T", orm.ErrInvalidModel, m.meta.Name, m.meta.Type, payload)
	}

	for _, col := range m.meta.Columns {
		f, ok := fieldByIndex(rv, col.Index, false)
		if !ok {
			continue
		}
		v := valueOf(f)
		rec.columns = append(rec.columns, col.Name)
		rec.values[col.Name] = v
		if col.PrimaryKey && v != nil && !f.IsZero() {
			rec.pkValue, rec.hasPK = v, true
		}
	}
	m.fillJoinColumnsFromStruct(&rec, rv)
	return rec, nil
}

// fillJoinColumnsFromStruct 多对一关联对象已设置而外键列为空时，以关联对象主键填充
func (m *model) fillJoinColumnsFromStruct(rec *record, rv reflect.Value) {
	for _, rel := range m.meta.Relations {
		if rel.Kind != orm.RelationManyToOne || rel.Index == nil {
			continue
		}
		if !isZero(rec.values[rel.JoinColumn]) {
			continue
		}
		f, ok := fieldByIndex(rv, rel.Index, false)
		if !ok || f.IsZero() {
			continue
		}
		target, err := m.orm.registry.ResolveTarget(rel)
		if err != nil || target.IsMap() {
			continue
		}
		tpk, ok := target.PrimaryKey()
		if !ok {
			continue
		}
		obj := reflect.Indirect(f)
		if obj.Type() != target.Type {
			continue
		}
		if pf, ok := fieldByIndex(obj, tpk.Index, false); ok && !pf.IsZero() {
			m.setValue(rec, rel.JoinColumn, valueOf(pf))
		}
	}
}

func (m *model) fillJoinColumnsFromMap(rec *record, data map[string]any) {
	for _, rel := range m.meta.Relations {
		if rel.Kind != orm.RelationManyToOne || !isZero(rec.values[rel.JoinColumn]) {
			continue
		}
		obj, ok := data[rel.Property].(map[string]any)
		if !ok {
			continue
		}
		target, err := m.orm.registry.ResolveTarget(rel)
		if err != nil {
			continue
		}
		if tpk, ok := target.PrimaryKey(); ok && !isZero(obj[tpk.Name]) {
			m.setValue(rec, rel.JoinColumn, obj[tpk.Name])
		}
	}
}

func (m *model) setValue(rec *record, col string, v any) {
	if _, ok := m.meta.Column(col); !ok {
		return
	}
	if _, exists := rec.values[col]; !exists {
		rec.columns = append(rec.columns, col)
	}
	rec.values[col] = v
}

// fieldByIndex 按索引路径取字段；途经 nil 内嵌指针时 alloc 为 true 则分配，否则返回 false
func fieldByIndex(v reflect.Value, index []int, alloc bool) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Ptr {
			if v.IsNil() {
				if !alloc || !v.CanSet() {
					return reflect.Value{}, false
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct || x >= v.NumField() {
			return reflect.Value{}, false
		}
		v = v.Field(x)
	}
	return v, true
}

// valueOf 取字段值作为语句参数，nil 指针为 NULL，非 nil 指针解引用
func valueOf(f reflect.Value) any {
	if f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return nil
		}
		if _, ok := f.Interface().(driver.Valuer); !ok {
			f = f.Elem()
		}
	}
	return f.Interface()
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}
