// Package cli auditz 命令行：为修订表建表、查询修订轨迹、查看模型审计配置
package cli

import (
	"context"
	"sync"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"auditz/config"
	"auditz/data/db/basic"
	"auditz/di"
	"auditz/domain/audited"
	"auditz/errors"
	"auditz/logging"
	"auditz/patterns/retry"
	"auditz/revisions/natsjetstream"
	"auditz/revisions/redisstreams"
	revsql "auditz/revisions/sql"
)

// Sources 按配置注册的修订数据源，连接在首次解析时建立
type Sources struct {
	*di.Container

	mu      sync.Mutex
	closers []func() error
}

// OpenSources 注册 db；配置了地址时再注册 redis、nats
func OpenSources(cfg *config.Config, logger logging.Logger) (*Sources, error) {
	s := &Sources{Container: di.New()}
	withRetry := retryWrapper(cfg.Sources.Retry)

	if err := s.RegisterFactory(cfg.Sources.DB, func(context.Context) (any, error) {
		database, err := basic.New(cfg.Database)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeDatabase, "打开数据库失败")
		}
		s.onClose(database.Close)
		return withRetry(revsql.Provider{DB: database}), nil
	}); err != nil {
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		if err := s.RegisterFactory(cfg.Sources.Redis, func(context.Context) (any, error) {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Username: cfg.Redis.Username,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			s.onClose(client.Close)
			return withRetry(redisstreams.Provider{Client: client, Prefix: cfg.Redis.Prefix, MaxLen: cfg.Redis.MaxLen}), nil
		}); err != nil {
			return nil, err
		}
	}

	if cfg.NATS.URL != "" {
		if err := s.RegisterFactory(cfg.Sources.NATS, func(context.Context) (any, error) {
			conn, err := nats.Connect(cfg.NATS.URL)
			if err != nil {
				return nil, errors.WrapError(err, errors.ErrCodeNetwork, "连接 nats 失败")
			}
			s.onClose(func() error { conn.Close(); return nil })
			return withRetry(natsjetstream.Provider{Conn: conn, Stream: cfg.NATS.Stream, Prefix: cfg.NATS.SubjectPrefix}), nil
		}); err != nil {
			return nil, err
		}
	}

	logger.Debug(context.Background(), "revision data sources registered", logging.Strings("sources", s.Names()))
	return s, nil
}

// retryWrapper attempts 大于 1 时给数据源加上写入重试
func retryWrapper(rc config.RetryConfig) func(audited.ISinkProvider) audited.ISinkProvider {
	return func(p audited.ISinkProvider) audited.ISinkProvider {
		if rc.Attempts <= 1 {
			return p
		}
		rcfg := retry.DefaultConfig()
		rcfg.MaxAttempts = rc.Attempts
		rcfg.InitialDelay = rc.Delay
		if rc.MaxDelay > 0 {
			rcfg.MaxDelay = rc.MaxDelay
		}
		return audited.RetryProvider{Provider: p, Config: rcfg}
	}
}

func (s *Sources) onClose(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, fn)
}

// Close 按建立的相反顺序关闭连接，返回第一个错误
func (s *Sources) Close() error {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
