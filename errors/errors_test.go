package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relmap/data/orm"
)

func TestFromDatabase(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, FromDatabase(ctx, nil, "find users"))

	raw := errors.New("connection refused")
	wrapped := FromDatabase(ctx, raw, "find users")
	require.Error(t, wrapped)
	assert.ErrorIs(t, wrapped, raw)
	assert.Equal(t, ErrCodeDatabase, CodeOf(wrapped))
	assert.Contains(t, wrapped.Error(), "find users")

	assert.True(t, IsNotFound(FromDatabase(ctx, fmt.Errorf("scan: %w", sql.ErrNoRows), "find users")))

	dup := Duplicate(ctx, errors.New("UNIQUE constraint failed"), "insert users")
	assert.True(t, IsDuplicate(dup))
	assert.Same(t, dup, FromDatabase(ctx, dup, "save"))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		err  error
		code ErrorCode
	}{
		{orm.ErrNotFound, ErrCodeNotFound},
		{fmt.Errorf("lookup: %w", orm.ErrMetadataNotFound), ErrCodeMetadata},
		{orm.ErrRelationColumn, ErrCodeMetadata},
		{orm.ErrTypeConversion, ErrCodeInvalidInput},
		{orm.ErrUnsupported, ErrCodeInvalidInput},
		{orm.ErrRollbackOnly, ErrCodeTransaction},
		{orm.ErrNoTransaction, ErrCodeTransaction},
		{context.DeadlineExceeded, ErrCodeTimeout},
	}
	for _, tt := range tests {
		got := Normalize(tt.err)
		assert.Equal(t, tt.code, CodeOf(got), tt.err.Error())
		assert.ErrorIs(t, got, tt.err)
	}

	plain := errors.New("plain")
	assert.Same(t, plain, Normalize(plain))
	assert.Nil(t, Normalize(nil))

	app := NewError(ErrCodeValidation, "title is required")
	assert.Equal(t, app, Normalize(app))
}

func TestAppError_IsAndContext(t *testing.T) {
	err := WrapError(errors.New("x"), ErrCodeNotFound, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, errors.Is(err, ErrDatabase))

	withCtx := ErrNotFound.WithContext("id", 7)
	assert.Equal(t, 7, withCtx.Details()["id"])
	assert.Nil(t, ErrNotFound.Details())

	outer := WrapError(err, ErrCodeDatabase, "outer")
	assert.True(t, IsErrorCode(outer, ErrCodeNotFound))
	assert.Equal(t, ErrCodeDatabase, CodeOf(outer))
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("raw")))
}

func TestErrorf(t *testing.T) {
	err := Errorf(ErrCodeNotFound, "%s %v not found", "Book", 3)
	assert.Equal(t, "[NOT_FOUND] Book 3 not found", err.Error())
}
