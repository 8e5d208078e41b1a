package repo

import (
	"context"
	stdErrors "errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	dbcore "relmap/data/db"
	dbbasic "relmap/data/db/basic"
	"relmap/data/orm"
	"relmap/data/orm/basic"
	"relmap/data/orm/tx"
	"relmap/data/orm/where"
	"relmap/errors"
)

type Author struct {
	ID    int64
	Name  string
	Books []*Book `orm:"oneToMany"`
}

type Book struct {
	ID       int64
	Title    string
	Pages    int
	AuthorID int64
	Author   *Author `orm:"manyToOne"`
}

func (b *Book) Validate() error {
	if b.Title == "" {
		return errors.NewError(errors.ErrCodeValidation, "title is required")
	}
	return nil
}

type fixture struct {
	authors *Repo[Author]
	books   *Repo[Book]
	db      *dbbasic.DB
}

func setup(t *testing.T, opts ...Option[Book]) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := dbbasic.New(dbcore.DBConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "repo.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.ExecDDL(ctx, `CREATE TABLE authors (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`))
	require.NoError(t, db.ExecDDL(ctx, `CREATE TABLE books (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT NOT NULL, pages INTEGER, author_id INTEGER)`))

	registry := orm.NewRegistry(nil)
	registry.MustRegister(&Author{}, &Book{})
	engine := basic.New(db, registry, basic.WithLogSQL(false))

	return fixture{
		authors: MustNew[Author](engine),
		books:   MustNew[Book](engine, opts...),
		db:      db,
	}
}

func seed(t *testing.T, f fixture) *Author {
	t.Helper()
	ctx := context.Background()
	a, err := f.authors.Save(ctx, &Author{Name: "le guin"})
	require.NoError(t, err)
	_, err = f.books.SaveAll(ctx, []*Book{
		{Title: "a wizard of earthsea", Pages: 183, Author: a},
		{Title: "the dispossessed", Pages: 387, Author: a},
		{Title: "the lathe of heaven", Pages: 184, Author: a},
	})
	require.NoError(t, err)
	return a
}

func TestNew_RejectsUnregistered(t *testing.T) {
	engine := basic.New(dbbasic.Wrap(nil, "sqlite"), orm.NewRegistry(nil))
	_, err := New[Author](engine)
	assert.ErrorIs(t, err, orm.ErrMetadataNotFound)
}

func TestRepo_CRUD(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := seed(t, f)

	n, err := f.books.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	book, err := f.books.Get(ctx, int64(1), "author")
	require.NoError(t, err)
	require.NotNil(t, book.Author)
	assert.Equal(t, "le guin", book.Author.Name)
	assert.Equal(t, a.ID, book.AuthorID)

	_, err = f.books.Get(ctx, int64(99))
	assert.True(t, errors.IsNotFound(err))

	ok, err := f.books.Exists(ctx, int64(2))
	require.NoError(t, err)
	assert.True(t, ok)

	patched, err := f.books.Patch(ctx, int64(2), map[string]any{"pages": 400})
	require.NoError(t, err)
	assert.Equal(t, 400, patched.Pages)
	assert.Equal(t, "the dispossessed", patched.Title)

	list, err := f.books.ListByIDs(ctx, int64(1), int64(3))
	require.NoError(t, err)
	assert.Len(t, list, 2)

	page, err := f.books.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(2), page[0].ID)

	deleted, err := f.books.Delete(ctx, int64(3))
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = f.books.Delete(ctx, int64(3))
	require.NoError(t, err)
	assert.False(t, deleted)

	removed, err := f.books.DeleteAll(ctx, int64(1), int64(2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestRepo_Validation(t *testing.T) {
	errShort := stdErrors.New("too short")
	f := setup(t, WithValidator(func(b *Book) error {
		if b.Pages < 10 {
			return errShort
		}
		return nil
	}))
	ctx := context.Background()

	_, err := f.books.Save(ctx, &Book{Pages: 100})
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeValidation))

	_, err = f.books.Save(ctx, &Book{Title: "pamphlet", Pages: 2})
	assert.ErrorIs(t, err, errShort)
}

func TestRepo_QueryAndFilters(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	seed(t, f)

	got, err := f.books.Query(ctx).
		Filters(map[string]string{"pages_lt": "200", "title_like": "the", "bogus": "x"}).
		Find()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "the lathe of heaven", got[0].Title)

	got, err = f.books.Query(ctx).Filters(map[string]string{"id_in": "1, 3"}).Order("id", true).Find()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)

	first, err := f.books.Query(ctx).Cond(where.GT("pages", 1000)).First()
	require.NoError(t, err)
	assert.Nil(t, first)

	author, err := f.authors.Query(ctx).With("books").WhereMap(map[string]any{"name": "le guin"}).First()
	require.NoError(t, err)
	assert.Len(t, author.Books, 3)
}

func TestRepo_QueryWithRelationsUsesRootColumns(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := seed(t, f)
	other, err := f.authors.Save(ctx, &Author{Name: "butler"})
	require.NoError(t, err)
	_, err = f.books.Save(ctx, &Book{Title: "kindred", Pages: 264, Author: other})
	require.NoError(t, err)

	authors, err := f.authors.Query(ctx).With("books").Order("id", true).Find()
	require.NoError(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, "butler", authors[0].Name)
	assert.Len(t, authors[0].Books, 1)
	assert.Len(t, authors[1].Books, 3)

	first, err := f.authors.Query(ctx).With("books").Order("id", false).First()
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, a.ID, first.ID)
	assert.Len(t, first.Books, 3)

	books, err := f.books.Query(ctx).With("author").Cond(where.GT("pages", 200)).Order("pages", true).Limit(1).Find()
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "the dispossessed", books[0].Title)
	require.NotNil(t, books[0].Author)
	assert.Equal(t, a.ID, books[0].Author.ID)
}

func TestRepo_ListPage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	seed(t, f)

	res, err := f.books.ListPage(ctx, PageOptions{
		Page:      2,
		Size:      2,
		Sorts:     map[string]SortDirection{"pages": DESC},
		Relations: []string{"author"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Total)
	assert.Equal(t, 2, res.TotalPages)
	require.Len(t, res.Data, 1)
	assert.Equal(t, 183, res.Data[0].Pages)
	require.NotNil(t, res.Data[0].Author)

	res, err = f.books.ListPage(ctx, PageOptions{Filters: map[string]string{"pages_gte": "184"}, Fields: []string{"id", "title", "nope"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 20, res.Size)
	require.Len(t, res.Data, 2)
	assert.Zero(t, res.Data[0].Pages, "only selected fields are loaded")
}

func TestRepo_SaveAllRollsBackInTransaction(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	books := MustNew[Book](f.books.Orm(), WithTxManager[Book](tx.NewManager(f.db)))

	_, err := books.SaveAll(ctx, []*Book{
		{Title: "kept?", Pages: 10},
		{ID: 42, Title: "missing", Pages: 10},
	})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	n, err := books.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSplitFilterKey(t *testing.T) {
	tests := []struct {
		key, field, op string
	}{
		{"name", "name", ""},
		{"author_id", "author_id", ""},
		{"author_id_in", "author_id", "in"},
		{"author_id_not_in", "author_id", "not_in"},
		{"pages_gte", "pages", "gte"},
		{"_in", "_in", ""},
	}
	for _, tt := range tests {
		field, op := splitFilterKey(tt.key)
		assert.Equal(t, tt.field, field, tt.key)
		assert.Equal(t, tt.op, op, tt.key)
	}
}
