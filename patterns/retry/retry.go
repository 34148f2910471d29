package retry

import (
	"context"
	"math"
	"time"
)

// Operation 可重试的操作函数类型，attempt 从 1 开始
type Operation func(ctx context.Context, attempt int) error

// Config 重试配置
type Config struct {
	MaxAttempts   int           // 最大尝试次数（包括首次）
	InitialDelay  time.Duration // 初始退避延迟
	BackoffFactor float64       // 退避倍数（指数退避）
	MaxDelay      time.Duration // 最大延迟

	// Retryable 为 nil 时所有错误都重试
	Retryable func(error) bool
}

// DefaultConfig 返回默认配置
//
// 默认值：
//   - MaxAttempts: 3
//   - InitialDelay: 50ms
//   - BackoffFactor: 2.0
//   - MaxDelay: 1s
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      1 * time.Second,
	}
}

// Do 执行带重试的操作
//
// 返回最后一次执行的错误；不可重试的错误立即返回。
// MaxAttempts 小于 1 时按 1 次处理。
func Do(ctx context.Context, op Operation, cfg Config) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}

		if attempt < attempts {
			select {
			case <-time.After(cfg.Backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// Backoff 第 attempt 次失败后的等待时间
func (c Config) Backoff(attempt int) time.Duration {
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := time.Duration(float64(c.InitialDelay) * math.Pow(factor, float64(attempt-1)))
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}
