package errors

import (
	"context"
	"database/sql"
	stdErrors "errors"

	"relmap/data/orm"
	"relmap/logging"
)

// Normalize 将数据层哨兵错误映射为 AppError；已是 AppError 或无法识别的错误原样返回
func Normalize(err error) error {
	if mapped, ok := classify(err); ok {
		return mapped
	}
	return err
}

// FromDatabase 驱动或引擎返回的错误：已识别的按 Normalize 映射，
// 已是 AppError 的原样返回，其余包装为 DATABASE_ERROR 并记录警告
func FromDatabase(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	if mapped, ok := classify(err); ok {
		return mapped
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return err
	}
	logging.GetLogger().Warn(ctx, "database operation failed",
		logging.String("op", op), logging.Error(err))
	return WrapError(err, ErrCodeDatabase, op)
}

// Duplicate 唯一键冲突
func Duplicate(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	logging.GetLogger().Debug(ctx, "unique constraint violated",
		logging.String("op", op), logging.Error(err))
	return WrapError(err, ErrCodeDuplicate, op+": duplicate key")
}

func classify(err error) (error, bool) {
	if err == nil {
		return nil, false
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return err, false
	}

	var code ErrorCode
	var msg string
	switch {
	case stdErrors.Is(err, orm.ErrNotFound), stdErrors.Is(err, sql.ErrNoRows):
		code, msg = ErrCodeNotFound, "记录未找到"
	case stdErrors.Is(err, orm.ErrMetadataNotFound), stdErrors.Is(err, orm.ErrRelationColumn),
		stdErrors.Is(err, orm.ErrInvalidModel), stdErrors.Is(err, orm.ErrNoPrimaryKey):
		code, msg = ErrCodeMetadata, "实体元数据错误"
	case stdErrors.Is(err, orm.ErrTypeConversion), stdErrors.Is(err, orm.ErrUnsupported):
		code, msg = ErrCodeInvalidInput, "无效的输入或不支持的操作"
	case stdErrors.Is(err, orm.ErrRollbackOnly), stdErrors.Is(err, orm.ErrNoTransaction),
		stdErrors.Is(err, sql.ErrTxDone):
		code, msg = ErrCodeTransaction, "事务错误"
	case stdErrors.Is(err, context.DeadlineExceeded), stdErrors.Is(err, context.Canceled):
		code, msg = ErrCodeTimeout, "操作超时或已取消"
	default:
		return err, false
	}
	return WrapError(err, code, msg), true
}
