package errors

import (
	"context"
	"fmt"
	"runtime"

	"auditz/logging"
)

// Wrap 包装错误并以 Debug 级别记录包装位置
func Wrap(ctx context.Context, err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	logging.GetLogger().Debug(ctx, "错误包装: "+msg, logging.String("location", fmt.Sprintf("%s:%d", file, line)))
	return WrapError(err, code, msg)
}

// WrapWithLog 包装错误并记录警告日志
func WrapWithLog(ctx context.Context, logger logging.Logger, err error, code ErrorCode, msg string, fields ...logging.Field) error {
	if err == nil {
		return nil
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	all := append([]logging.Field{
		logging.Error(err),
		logging.String("error_code", string(code)),
	}, fields...)
	logger.Warn(ctx, msg, all...)
	return WrapError(err, code, msg)
}

// WrapDatabaseError 包装存储层错误，已是 AppError 的保持错误码不变
func WrapDatabaseError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	err = Normalize(err)
	if appErr, ok := err.(IError); ok {
		return WrapError(appErr, appErr.Code(), operation)
	}
	return Wrap(ctx, err, ErrCodeDatabase, "数据库操作失败: "+operation)
}

// WrapLookupError 旧记录解析失败
func WrapLookupError(err error, model string) error {
	if err == nil {
		return nil
	}
	return WrapError(err, ErrCodeLookup, "解析旧记录失败").WithContext("model", model)
}

// WrapSinkError 修订记录落地失败，data 写入已经生效
func WrapSinkError(err error, table string, count int) error {
	if err == nil {
		return nil
	}
	return WrapError(err, ErrCodeRevisionSink, fmt.Sprintf("写入 %d 条修订记录失败", count)).
		WithContext("table", table)
}

// NewValidationError 创建验证错误
func NewValidationError(msg string) error {
	return NewError(ErrCodeValidation, msg)
}

// NewInvalidInput 创建非法调用错误
func NewInvalidInput(format string, args ...any) error {
	return Errorf(ErrCodeInvalidInput, format, args...)
}
