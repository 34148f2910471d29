package errors

import (
	"context"
	"database/sql"
	stdErrors "errors"
)

// Normalize 将基础设施层错误规范化为 AppError
//
// 已经是 IError 的原样返回；未识别的错误保持原样，由调用方决定是否包装。
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(IError); ok {
		return err
	}

	switch {
	case stdErrors.Is(err, sql.ErrNoRows):
		return WrapError(err, ErrCodeNotFound, "记录不存在")
	case stdErrors.Is(err, context.DeadlineExceeded):
		return WrapError(err, ErrCodeTimeout, "操作超时")
	case stdErrors.Is(err, context.Canceled):
		return WrapError(err, ErrCodeTimeout, "操作已取消")
	case stdErrors.Is(err, sql.ErrConnDone), stdErrors.Is(err, sql.ErrTxDone):
		return WrapError(err, ErrCodeDatabase, "数据库连接不可用")
	}
	return err
}
