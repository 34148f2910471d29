package audited

import (
	"context"

	"auditz/errors"
	"auditz/logging"
	"auditz/patterns/retry"
)

// RetrySink 写入失败时按退避策略重试，只重试数据库、队列与网络错误
type RetrySink struct {
	Sink   IRevisionSink
	Config retry.Config
	Logger logging.Logger
}

var (
	_ IRevisionSink   = (*RetrySink)(nil)
	_ IRevisionReader = (*RetrySink)(nil)
	_ IMigrator       = (*RetrySink)(nil)
)

// WithRetry 包装写入器；attempts 不大于 1 时原样返回
func WithRetry(sink IRevisionSink, cfg retry.Config) IRevisionSink {
	if cfg.MaxAttempts <= 1 {
		return sink
	}
	return &RetrySink{Sink: sink, Config: cfg}
}

// Transient 可重试的错误码
func Transient(err error) bool {
	switch errors.GetErrorCode(err) {
	case errors.ErrCodeDatabase, errors.ErrCodeQueue, errors.ErrCodeNetwork:
		return true
	}
	return false
}

func (s *RetrySink) Append(ctx context.Context, revisions ...Revision) error {
	cfg := s.Config
	if cfg.Retryable == nil {
		cfg.Retryable = Transient
	}
	return retry.Do(ctx, func(ctx context.Context, attempt int) error {
		err := s.Sink.Append(ctx, revisions...)
		if err != nil && attempt < cfg.MaxAttempts && cfg.Retryable(err) {
			s.logger().Warn(ctx, "revision append failed, retrying",
				logging.Int("attempt", attempt),
				logging.Int("revisions", len(revisions)),
				logging.Error(err))
		}
		return err
	}, cfg)
}

func (s *RetrySink) List(ctx context.Context, q RevisionQuery) ([]Revision, error) {
	r, ok := s.Sink.(IRevisionReader)
	if !ok {
		return nil, errors.NewInvalidInput("修订写入器 %T 不支持查询", s.Sink)
	}
	return r.List(ctx, q)
}

func (s *RetrySink) Migrate(ctx context.Context) error {
	if m, ok := s.Sink.(IMigrator); ok {
		return m.Migrate(ctx)
	}
	return nil
}

func (s *RetrySink) logger() logging.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.GetLogger()
}

// RetryProvider 为数据源创建的每个写入器加上重试
type RetryProvider struct {
	Provider ISinkProvider
	Config   retry.Config
}

func (p RetryProvider) RevisionSink(policy RevisionsEnabled) (IRevisionSink, error) {
	sink, err := p.Provider.RevisionSink(policy)
	if err != nil {
		return nil, err
	}
	return WithRetry(sink, p.Config), nil
}
