// Package errors 提供带错误码的应用错误
//
// 数据层内部使用哨兵错误（见 relmap/data/orm），在对外边界（仓储、事务、映射引擎）
// 转换为 AppError，上层按 ErrorCode 统一处理。
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCode 错误代码类型
type ErrorCode string

const (
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeDuplicate    ErrorCode = "DUPLICATE_ERROR"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"

	// 数据层
	ErrCodeDatabase    ErrorCode = "DATABASE_ERROR"
	ErrCodeMetadata    ErrorCode = "METADATA_ERROR"
	ErrCodeTransaction ErrorCode = "TRANSACTION_ERROR"
)

// IError 错误接口
type IError interface {
	error
	Code() ErrorCode
	Message() string
	Cause() error
	Details() map[string]any
	// WithContext 返回附加了详情的副本，原错误不变
	WithContext(key string, value any) IError
}

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{code: code, message: message}
}

// Errorf 按格式创建新错误
func Errorf(code ErrorCode, format string, args ...any) IError {
	return &AppError{code: code, message: fmt.Sprintf(format, args...)}
}

// WrapError 包装错误，err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{code: code, message: message, cause: err}
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *AppError) Code() ErrorCode { return e.code }

func (e *AppError) Message() string { return e.message }

func (e *AppError) Cause() error { return e.cause }

// Details 未设置时返回 nil
func (e *AppError) Details() map[string]any { return e.details }

// Is 同错误码的 AppError 视为相同
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t != nil && e.code == t.code
}

func (e *AppError) Unwrap() error { return e.cause }

func (e *AppError) WithContext(key string, value any) IError {
	details := make(map[string]any, len(e.details)+1)
	for k, v := range e.details {
		details[k] = v
	}
	details[key] = value
	return &AppError{code: e.code, message: e.message, cause: e.cause, details: details}
}

// 按错误码比较的哨兵，配合 errors.Is 使用
var (
	ErrNotFound    = NewError(ErrCodeNotFound, "记录未找到")
	ErrDuplicate   = NewError(ErrCodeDuplicate, "数据重复")
	ErrDatabase    = NewError(ErrCodeDatabase, "数据库错误")
	ErrMetadata    = NewError(ErrCodeMetadata, "实体元数据错误")
	ErrTransaction = NewError(ErrCodeTransaction, "事务错误")
)

// IsNotFound 检查是否为未找到错误
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrCodeNotFound)
}

// IsDuplicate 检查是否为唯一键冲突
func IsDuplicate(err error) bool {
	return IsErrorCode(err, ErrCodeDuplicate)
}

// IsErrorCode 错误链上任一层 AppError 带有指定错误码
func IsErrorCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stdErrors.As(err, &appErr) {
			return false
		}
		if appErr.code == code {
			return true
		}
		err = appErr.cause
	}
	return false
}

// CodeOf 最外层 AppError 的错误码，非 AppError 视为内部错误
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}

// Is 透传标准库 errors.Is，调用方只需导入本包
func Is(err, target error) bool {
	return stdErrors.Is(err, target)
}

// As 透传标准库 errors.As
func As(err error, target any) bool {
	return stdErrors.As(err, target)
}
