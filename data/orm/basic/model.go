package basic

import (
	"context"
	"fmt"
	"strings"

	dbsql "relmap/data/db/sql"
	"relmap/data/orm"
	"relmap/data/orm/cache"
	"relmap/data/orm/transform"
	"relmap/data/orm/tx"
	"relmap/data/orm/where"
)

// model 实现 orm.IModel
type model struct {
	orm  *Orm
	meta *orm.EntityMeta
}

func (m *model) Meta() *orm.EntityMeta          { return m.meta }
func (m *model) Capabilities() orm.Capabilities { return m.orm.caps }

// Find 查询多条记录
func (m *model) Find(ctx context.Context, opts ...orm.QueryOption) ([]any, error) {
	qo := orm.CollectQueryOptions(opts...)
	return m.find(ctx, qo)
}

// FindOne 查询单条记录，无记录返回 (nil, nil)
//
// 强制 LIMIT 1；关联查询时限制作用于根实体，子集合完整返回。
func (m *model) FindOne(ctx context.Context, opts ...orm.QueryOption) (any, error) {
	qo := orm.CollectQueryOptions(opts...)
	qo.Limit = 1
	out, err := m.find(ctx, qo)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

// Count 统计数量（忽略 Select/OrderBy/Limit/Offset）
func (m *model) Count(ctx context.Context, opts ...orm.QueryOption) (int64, error) {
	qo := orm.CollectQueryOptions(opts...)
	b := m.orm.builder().Select("COUNT(*)").From(m.orm.naming.Wrap(m.meta.Table))
	m.applyWhere(b, qo)

	q, args := b.Build()
	var count int64
	if err := m.orm.queryRow(ctx, q, args, &count); err != nil {
		return 0, m.orm.wrapDBError(ctx, err, "count "+m.meta.Table)
	}
	return count, nil
}

func (m *model) find(ctx context.Context, qo orm.QueryOptions) ([]any, error) {
	if qo.ForUpdate && !m.orm.dialect.SupportsForUpdate() {
		return nil, fmt.Errorf("%w: FOR UPDATE on %s", orm.ErrUnsupported, m.orm.dialect.Name())
	}

	sel, err := m.selection(qo)
	if err != nil {
		return nil, err
	}
	relations := sel.relations

	var b *dbsql.SelectBuilder
	if len(relations) == 0 {
		b = m.rootQuery(qo, sel.columns...)
	} else {
		b = m.joinedQuery(qo, sel)
	}

	q, args := b.Build()
	rows, err := m.load(ctx, qo, q, args)
	if err != nil {
		return nil, m.orm.wrapDBError(ctx, err, "find "+m.meta.Table)
	}

	qr := transform.QueryResult{Results: rows}
	if len(relations) == 0 {
		return m.orm.transformer.ToEntities(m.meta, qr)
	}
	plan, err := m.orm.plan(m.meta, relations)
	if err != nil {
		return nil, err
	}
	return plan.Transform(qr)
}

// rootQuery 只查询本表：条件、分组、排序、分页与行锁按原样作用于本表
func (m *model) rootQuery(qo orm.QueryOptions, columns ...string) *dbsql.SelectBuilder {
	b := m.orm.builder().Select(columns...).From(m.orm.naming.Wrap(m.meta.Table))
	m.applyWhere(b, qo)
	if len(qo.GroupBy) > 0 {
		b.GroupBy(m.wrapAll(qo.GroupBy)...)
	}
	if len(qo.OrderBy) > 0 {
		b.OrderBy(m.orderBy(qo.OrderBy, false))
	}
	if qo.Limit > 0 {
		b.Limit(qo.Limit)
	}
	if qo.Offset > 0 {
		b.Offset(qo.Offset)
	}
	if qo.ForUpdate {
		b.ForUpdate()
	}
	return b
}

// joinedQuery 关联查询：根实体先在派生表中筛选（别名仍为本表名），再 LEFT JOIN 关联。
//
// 条件只能引用本表列（可不加表名）；LIMIT/OFFSET 与行锁作用于根实体而非连接后的行；
// 分组与外层排序中的本表列自动加表名。未指定排序而分页时按主键排序。
func (m *model) joinedQuery(qo orm.QueryOptions, sel selection) *dbsql.SelectBuilder {
	orders := qo.OrderBy
	paged := qo.Limit > 0 || qo.Offset > 0
	if paged && len(orders) == 0 {
		if pk, ok := m.meta.PrimaryKey(); ok {
			orders = []orm.OrderBy{{Column: pk.Name}}
		}
	}

	inner := m.orm.builder().Select().From(m.orm.naming.Wrap(m.meta.Table))
	m.applyWhere(inner, qo)
	if paged && len(orders) > 0 {
		inner.OrderBy(m.orderBy(orders, false))
	}
	if qo.Limit > 0 {
		inner.Limit(qo.Limit)
	}
	if qo.Offset > 0 {
		inner.Offset(qo.Offset)
	}
	if qo.ForUpdate {
		inner.ForUpdate()
	}
	iq, iargs := inner.Build()

	b := m.orm.builder().Select(sel.columns...).
		From("("+iq+") AS "+m.orm.naming.Wrap(m.meta.Table), iargs...)
	for _, j := range sel.joins {
		b.Join("LEFT", j.target, j.on)
	}
	if len(qo.GroupBy) > 0 {
		cols := make([]string, len(qo.GroupBy))
		for i, c := range qo.GroupBy {
			cols[i] = m.qualify(c)
		}
		b.GroupBy(cols...)
	}
	if len(orders) > 0 {
		b.OrderBy(m.orderBy(orders, true))
	}
	return b
}

// load 执行查询；启用缓存且不在事务中、未加锁时经由缓存
func (m *model) load(ctx context.Context, qo orm.QueryOptions, q string, args []any) ([]transform.Row, error) {
	_, inTx := tx.Current(ctx)
	if !qo.Cache || m.orm.cache == nil || qo.ForUpdate || inTx {
		return m.orm.query(ctx, q, args)
	}
	key := cache.Key(m.meta.Table, q, args)
	if qo.CacheID != "" {
		key = cache.KeyWithID(m.meta.Table, qo.CacheID)
	}
	return m.orm.cache.GetOrLoad(ctx, key, qo.CacheTTL, func() ([]transform.Row, error) {
		return m.orm.query(ctx, q, args)
	})
}

type join struct {
	target string
	on     string
}

type selection struct {
	columns   []string
	joins     []join
	relations transform.RelationMap
}

// selection 计算选取列与关联连接；每个关联追加 LEFT JOIN，关联列以 <属性>_<列> 为别名
func (m *model) selection(qo orm.QueryOptions) (selection, error) {
	ns := m.orm.naming
	if len(qo.Relations) == 0 {
		return selection{columns: m.wrapAll(qo.Select)}, nil
	}

	table := m.meta.Table
	sel := selection{relations: make(transform.RelationMap, len(qo.Relations))}
	var prefixes []string
	var joined []string

	for _, prop := range qo.Relations {
		if _, dup := sel.relations[prop]; dup {
			continue
		}
		rel, ok := m.meta.Relation(prop)
		if !ok {
			return selection{}, fmt.Errorf("%w: %s has no relation %q", orm.ErrMetadataNotFound, m.meta.Name, prop)
		}
		target, err := m.orm.registry.ResolveTarget(rel)
		if err != nil {
			return selection{}, err
		}

		var on string
		switch rel.Kind {
		case orm.RelationOneToMany:
			pk, ok := m.meta.PrimaryKey()
			if !ok {
				return selection{}, fmt.Errorf("%w: %s", orm.ErrNoPrimaryKey, m.meta.Name)
			}
			on = ns.Wrap(prop+"."+rel.JoinColumn) + " = " + ns.Wrap(table+"."+pk.Name)
		default:
			tpk, ok := target.PrimaryKey()
			if !ok {
				return selection{}, fmt.Errorf("%w: %s", orm.ErrNoPrimaryKey, target.Name)
			}
			on = ns.Wrap(prop+"."+tpk.Name) + " = " + ns.Wrap(table+"."+rel.JoinColumn)
		}
		sel.joins = append(sel.joins, join{target: ns.Wrap(target.Table) + " AS " + ns.Wrap(prop), on: on})

		for _, c := range target.Columns {
			joined = append(joined, ns.Wrap(prop+"."+c.Name)+" AS "+ns.Wrap(prop+"_"+c.Name))
		}
		prefixes = append(prefixes, prop+"_")
		sel.relations[prop] = transform.Rel(target)
	}

	own := qo.Select
	if len(own) == 0 {
		own = m.meta.ColumnNames()
	}
	for _, c := range own {
		// 与关联前缀冲突的本表列（如 author_id）使用保留别名，避免与关联列混淆
		if m.isColumn(c) && hasAnyPrefix(c, prefixes) {
			sel.columns = append(sel.columns, ns.Wrap(table+"."+c)+" AS "+ns.Wrap(transform.OwnColumnPrefix+c))
			continue
		}
		sel.columns = append(sel.columns, m.qualify(c))
	}
	sel.columns = append(sel.columns, joined...)
	return sel, nil
}

// applyWhere 条件总是作用于单独的本表（关联查询时位于派生表内）
func (m *model) applyWhere(b *dbsql.SelectBuilder, qo orm.QueryOptions) {
	for _, w := range qo.Where {
		b.Where(w.Expr, w.Args...)
	}
	if len(qo.WhereMap) > 0 {
		c := where.FromMap(qo.WhereMap, m.orm.naming.Wrap)
		b.Where(c.Expr, c.Args...)
	}
}

func (m *model) orderBy(orders []orm.OrderBy, qualified bool) string {
	wrap := m.orm.naming.Wrap
	if qualified {
		wrap = m.qualify
	}
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.Column == "" {
			continue
		}
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		parts = append(parts, wrap(o.Column)+dir)
	}
	return strings.Join(parts, ", ")
}

// qualify 普通列名前加本表名，表达式与已限定的名称原样包装
func (m *model) qualify(col string) string {
	if strings.Contains(col, ".") || !m.isColumn(col) {
		return m.orm.naming.Wrap(col)
	}
	return m.orm.naming.Wrap(m.meta.Table + "." + col)
}

func (m *model) isColumn(name string) bool {
	_, ok := m.meta.Column(name)
	return ok
}

func (m *model) wrapAll(cols []string) []string {
	if len(cols) == 0 {
		return nil
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = m.orm.naming.Wrap(c)
	}
	return out
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
