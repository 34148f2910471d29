// Package errors 审计层的错误码体系
package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误代码类型
type ErrorCode string

const (
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"

	// ErrCodeConfig 模型审计配置非法
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"
	// ErrCodeLookup 写入前解析旧记录失败，写入被中止
	ErrCodeLookup ErrorCode = "LOOKUP_ERROR"
	// ErrCodeRevisionSink 写入已提交，但修订记录未能落地
	ErrCodeRevisionSink ErrorCode = "REVISION_SINK_ERROR"

	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeQueue    ErrorCode = "QUEUE_ERROR"
	ErrCodeNetwork  ErrorCode = "NETWORK_ERROR"
)

// IError 错误接口
type IError interface {
	error

	Code() ErrorCode
	Message() string
	Cause() error
	Details() map[string]any
	Stack() string

	// WithContext 返回附加了一条详情的副本
	WithContext(key string, value any) IError
}

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	stack   string
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{code: code, message: message, stack: captureStack()}
}

// WrapError 包装错误，err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return &AppError{code: code, message: message, cause: err, stack: captureStack()}
}

// Errorf 以格式化消息创建错误
func Errorf(code ErrorCode, format string, args ...any) IError {
	return &AppError{code: code, message: fmt.Sprintf(format, args...), stack: captureStack()}
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *AppError) Code() ErrorCode { return e.code }
func (e *AppError) Message() string { return e.message }
func (e *AppError) Cause() error    { return e.cause }
func (e *AppError) Stack() string   { return e.stack }

func (e *AppError) Details() map[string]any {
	out := make(map[string]any, len(e.details))
	for k, v := range e.details {
		out[k] = v
	}
	return out
}

// Is 同码即相等，否则比较 cause
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}
	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}
	return false
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func (e *AppError) WithContext(key string, value any) IError {
	details := e.Details()
	details[key] = value
	return &AppError{code: e.code, message: e.message, cause: e.cause, details: details, stack: e.stack}
}

var (
	ErrInvalidInput = NewError(ErrCodeInvalidInput, "无效的输入参数")
	ErrNotFound     = NewError(ErrCodeNotFound, "资源未找到")
	ErrLookup       = NewError(ErrCodeLookup, "旧记录解析失败")
	ErrRevisionSink = NewError(ErrCodeRevisionSink, "修订记录写入失败")
	ErrConfig       = NewError(ErrCodeConfig, "审计配置错误")
	ErrDatabase     = NewError(ErrCodeDatabase, "数据库错误")
)

func IsNotFound(err error) bool     { return IsErrorCode(err, ErrCodeNotFound) }
func IsLookup(err error) bool       { return IsErrorCode(err, ErrCodeLookup) }
func IsRevisionSink(err error) bool { return IsErrorCode(err, ErrCodeRevisionSink) }
func IsInvalidInput(err error) bool { return IsErrorCode(err, ErrCodeInvalidInput) }
func IsValidationError(err error) bool {
	return IsErrorCode(err, ErrCodeValidation)
}

// IsErrorCode 检查错误链上最外层 AppError 的错误码
func IsErrorCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code == code
	}
	return false
}

// GetErrorCode 获取错误代码，非 AppError 一律视为内部错误
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}

func captureStack() string {
	var pcs [24]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return b.String()
}
