package orm

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type baseEntity struct {
	ID        int64     `orm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `orm:"column:created_at"`
}

type scanUser struct {
	baseEntity
	Name   string
	Email  *string        `db:"email_address"`
	Active bool           `json:"is_active,omitempty"`
	Score  float64        `gorm:"column:total_score"`
	Note   sql.NullString `orm:"nullable"`
	Posts  []*scanPost    `orm:"oneToMany;target:scanPost;joinColumn:author_id"`
	Extra  map[string]any `orm:"extra"`
	secret string
	Skip   string `orm:"-"`
}

type scanPost struct {
	ID       int64
	Title    string
	AuthorID int64
	Author   *scanUser `orm:"manyToOne;joinColumn:author_id"`
}

func (scanPost) TableName() string { return "blog_posts" }

func TestScan_Columns(t *testing.T) {
	meta, err := Scan(&scanUser{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "scanUser", meta.Name)
	assert.Equal(t, "scan_users", meta.Table)
	assert.Equal(t,
		[]string{"id", "created_at", "name", "email_address", "is_active", "total_score", "note"},
		meta.ColumnNames())

	pk, ok := meta.PrimaryKey()
	require.True(t, ok)
	assert.Equal(t, "id", pk.Name)
	assert.True(t, pk.AutoIncrement)
	assert.Equal(t, []int{0, 0}, pk.Index)

	email, _ := meta.Column("email_address")
	assert.True(t, email.Nullable)
	assert.Equal(t, TypeString, email.Type)

	created, _ := meta.Column("created_at")
	assert.Equal(t, TypeDate, created.Type)

	active, _ := meta.Column("is_active")
	assert.Equal(t, TypeBoolean, active.Type)

	note, _ := meta.Column("note")
	assert.Equal(t, TypeCustom, note.Type)
	assert.True(t, note.Nullable)

	assert.NotNil(t, meta.ExtraIndex)
	_, ok = meta.Column("secret")
	assert.False(t, ok)
	_, ok = meta.Column("skip")
	assert.False(t, ok)
}

func TestScan_Relations(t *testing.T) {
	meta, err := Scan(scanPost{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "blog_posts", meta.Table)

	pk, ok := meta.PrimaryKey()
	require.True(t, ok)
	assert.Equal(t, "id", pk.Name)
	assert.True(t, pk.AutoIncrement)

	rel, ok := meta.Relation("author")
	require.True(t, ok)
	assert.Equal(t, RelationManyToOne, rel.Kind)
	assert.Equal(t, "author_id", rel.JoinColumn)
	assert.Equal(t, "scanUser", rel.Target)

	users, err := Scan(scanUser{}, nil)
	require.NoError(t, err)
	posts, ok := users.Relation("posts")
	require.True(t, ok)
	assert.Equal(t, RelationOneToMany, posts.Kind)
}

func TestScan_RejectsNonStruct(t *testing.T) {
	_, err := Scan(42, nil)
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestRegistry_LookupForms(t *testing.T) {
	r := NewRegistry(nil)
	r.MustRegister(&scanUser{}, &scanPost{})

	for _, key := range []any{scanPost{}, &scanPost{}, []scanPost{}, reflect.TypeOf(scanPost{}), "scanPost"} {
		meta, err := r.Lookup(key)
		require.NoError(t, err)
		assert.Equal(t, "blog_posts", meta.Table)
	}

	_, err := r.Lookup(struct{ X int }{})
	assert.ErrorIs(t, err, ErrMetadataNotFound)
	_, err = r.LookupName("Nope")
	assert.ErrorIs(t, err, ErrMetadataNotFound)
	_, err = r.Lookup(nil)
	assert.ErrorIs(t, err, ErrMetadataNotFound)
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	first, err := r.RegisterModel(&scanPost{})
	require.NoError(t, err)
	second, err := r.RegisterModel(scanPost{})
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, r.Entities(), 1)
}

func TestRegistry_RejectsMissingJoinColumn(t *testing.T) {
	r := NewRegistry(nil)
	err := r.Register(&EntityMeta{
		Name:    "Comment",
		Table:   "comments",
		Columns: []ColumnMeta{{Name: "id", PrimaryKey: true}},
		Relations: []RelationMeta{
			{Property: "post", Kind: RelationManyToOne, JoinColumn: "post_id", Target: "Post"},
		},
	})
	assert.ErrorIs(t, err, ErrRelationColumn)
}

func TestRegistry_ResolveTargetLazily(t *testing.T) {
	r := NewRegistry(nil)
	// 拥有方先于目标注册
	require.NoError(t, r.Register(&EntityMeta{
		Name:  "Comment",
		Table: "comments",
		Columns: []ColumnMeta{
			{Name: "id", PrimaryKey: true},
			{Name: "post_id"},
		},
		Relations: []RelationMeta{
			{Property: "post", Kind: RelationManyToOne, JoinColumn: "post_id", Target: "Post"},
		},
	}))
	comment, err := r.LookupName("Comment")
	require.NoError(t, err)

	_, err = r.ResolveTarget(comment.Relations[0])
	assert.ErrorIs(t, err, ErrMetadataNotFound)

	require.NoError(t, r.Register(&EntityMeta{
		Name:    "Post",
		Table:   "posts",
		Columns: []ColumnMeta{{Name: "id", PrimaryKey: true}, {Name: "title"}},
	}))
	post, err := r.ResolveTarget(comment.Relations[0])
	require.NoError(t, err)
	assert.Equal(t, "posts", post.Table)
	assert.True(t, post.IsMap())
	assert.IsType(t, map[string]any{}, post.New())
}

func TestRegistry_FillsIndexesForHandBuiltStructMeta(t *testing.T) {
	r := NewRegistry(nil)
	meta := &EntityMeta{
		Name:  "scanPost",
		Type:  reflect.TypeOf(scanPost{}),
		Table: "posts",
		Columns: []ColumnMeta{
			{Name: "id", Field: "ID", PrimaryKey: true},
			{Name: "author_id", Field: "AuthorID"},
		},
		Relations: []RelationMeta{
			{Property: "author", Field: "Author", Kind: RelationManyToOne, JoinColumn: "author_id", Target: "scanUser"},
		},
	}
	require.NoError(t, r.Register(meta))
	assert.Equal(t, []int{0}, meta.Columns[0].Index)
	assert.Equal(t, []int{3}, meta.Relations[0].Index)

	bad := &EntityMeta{
		Name:    "broken",
		Type:    reflect.TypeOf(scanPost{}),
		Table:   "x",
		Columns: []ColumnMeta{{Name: "nope", Field: "Nope"}},
	}
	assert.ErrorIs(t, NewRegistry(nil).Register(bad), ErrInvalidModel)
}

func TestCollectQueryOptions(t *testing.T) {
	opts := CollectQueryOptions(
		WithWhere("a = ?", 1),
		WithCondition(Condition{}, Condition{Expr: "b = ?", Args: []any{2}}),
		WithWhereMap(map[string]any{"x": 1}),
		WithWhereMap(map[string]any{"x": 2, "y": 3}),
		WithOrderBy("id", true),
		WithLimit(0),
		WithLimit(10),
		WithOffset(5),
		WithRelations("author"),
		WithCache("", time.Minute),
		nil,
	)
	assert.Len(t, opts.Where, 2)
	assert.Equal(t, map[string]any{"x": 2, "y": 3}, opts.WhereMap)
	assert.Equal(t, []OrderBy{{Column: "id", Desc: true}}, opts.OrderBy)
	assert.Equal(t, 10, opts.Limit)
	assert.Equal(t, 5, opts.Offset)
	assert.Equal(t, []string{"author"}, opts.Relations)
	assert.True(t, opts.Cache)
	assert.Equal(t, time.Minute, opts.CacheTTL)
}

func TestCapabilities(t *testing.T) {
	caps := NewCapabilities(CapabilityQuery, CapabilitySavepoint)
	assert.True(t, caps.Supports(CapabilityQuery))
	assert.False(t, caps.Supports(CapabilityForUpdate))
	assert.False(t, Capabilities(nil).Supports(CapabilityQuery))
}
