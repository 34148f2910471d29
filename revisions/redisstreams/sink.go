// Package redisstreams 把修订记录追加到 Redis Stream，每个审计模型一个 stream
package redisstreams

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"auditz/data/query"
	"auditz/data/store"
	"auditz/domain/audited"
	"auditz/errors"
	"auditz/logging"
)

// client go-redis 中用到的命令子集，便于测试替换
type client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRange(ctx context.Context, stream, start, stop string) *redis.XMessageSliceCmd
	Close() error
}

// Config Redis Streams 写入器配置
type Config struct {
	Client   redis.UniversalClient
	Addr     string
	Username string
	Password string
	DB       int
	// StreamPrefix stream 名前缀，stream 名为 前缀 + 模型名
	StreamPrefix string
	// MaxLen 每个 stream 近似保留的条数，0 表示不裁剪
	MaxLen int64
	Logger logging.Logger
}

// Sink Redis Streams 修订写入器
type Sink struct {
	cfg       Config
	client    client
	ownClient bool
	logger    logging.Logger
}

var (
	_ audited.IRevisionSink   = (*Sink)(nil)
	_ audited.IRevisionReader = (*Sink)(nil)
)

func New(cfg Config) (*Sink, error) {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "revisions:"
	}

	var cl client
	var own bool
	if cfg.Client != nil {
		cl = cfg.Client
	} else if cfg.Addr != "" {
		cl = redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
		own = true
	}
	if cl == nil {
		return nil, errors.NewError(errors.ErrCodeConfig, "redis client not configured")
	}
	return newSink(cfg, cl, own), nil
}

func newSink(cfg Config, cl client, own bool) *Sink {
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "revisions.redisstreams"))
	}
	return &Sink{cfg: cfg, client: cl, ownClient: own, logger: cfg.Logger}
}

// Append 逐条 XADD，Redis Streams 不支持一次追加多条
func (s *Sink) Append(ctx context.Context, revisions ...audited.Revision) error {
	for _, r := range revisions {
		values, err := encodeRevision(r)
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeInvalidInput, "修订记录无法序列化")
		}
		args := &redis.XAddArgs{Stream: s.streamName(r.TableName), Values: values}
		if s.cfg.MaxLen > 0 {
			args.MaxLen = s.cfg.MaxLen
			args.Approx = true
		}
		if err := s.client.XAdd(ctx, args).Err(); err != nil {
			return errors.Wrap(ctx, err, errors.ErrCodeQueue, "xadd "+args.Stream)
		}
	}
	return nil
}

// List 读取整个 stream 后按行、动作过滤，必须指定 TableName
func (s *Sink) List(ctx context.Context, q audited.RevisionQuery) ([]audited.Revision, error) {
	if q.TableName == "" {
		return nil, errors.NewInvalidInput("redis streams 修订查询需要 table_name")
	}
	stream := s.streamName(q.TableName)
	entries, err := s.client.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		return nil, errors.Wrap(ctx, err, errors.ErrCodeQueue, "xrange "+stream)
	}

	out := make([]audited.Revision, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		r, err := decodeRevision(entry)
		if err != nil {
			s.logger.Warn(ctx, "decode revision entry failed",
				logging.String("stream", stream), logging.String("entry", entry.ID), logging.Error(err))
			continue
		}
		if q.Action != "" && r.Action != q.Action {
			continue
		}
		if q.RowID != nil && !query.Equal(r.RowID, q.RowID) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Close 只关闭自己创建的客户端
func (s *Sink) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}

func (s *Sink) streamName(table string) string {
	return s.cfg.StreamPrefix + table
}

func encodeRevision(r audited.Revision) (map[string]any, error) {
	values := map[string]any{
		"id":           r.ID,
		"action":       string(r.Action),
		"table_name":   r.TableName,
		"ip":           r.IP,
		"ip_forwarded": r.IPForwarded,
	}
	for key, v := range map[string]any{"row_id": r.RowID, "user": r.User, "old": r.Old, "new": r.New} {
		if row, ok := v.(store.Row); ok && row == nil {
			v = nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		values[key] = string(b)
	}
	ts := r.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	values["created_at"] = ts.UnixNano()
	return values, nil
}

func decodeRevision(entry redis.XMessage) (audited.Revision, error) {
	str := func(key string) string {
		s, _ := entry.Values[key].(string)
		return s
	}

	r := audited.Revision{
		ID:          str("id"),
		Action:      audited.Action(str("action")),
		TableName:   str("table_name"),
		IP:          str("ip"),
		IPForwarded: str("ip_forwarded"),
	}
	if r.ID == "" {
		r.ID = entry.ID
	}

	var err error
	if r.RowID, err = decodeJSON(str("row_id")); err != nil {
		return r, fmt.Errorf("row_id: %w", err)
	}
	if r.User, err = decodeJSON(str("user")); err != nil {
		return r, fmt.Errorf("user: %w", err)
	}
	if r.Old, err = decodeRow(str("old")); err != nil {
		return r, fmt.Errorf("old: %w", err)
	}
	if r.New, err = decodeRow(str("new")); err != nil {
		return r, fmt.Errorf("new: %w", err)
	}

	switch v := entry.Values["created_at"].(type) {
	case int64:
		r.CreatedAt = time.Unix(0, v).UTC()
	case string:
		if ns, err := strconv.ParseInt(v, 10, 64); err == nil {
			r.CreatedAt = time.Unix(0, ns).UTC()
		}
	}
	return r, nil
}

func decodeJSON(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	return store.DecodeJSON([]byte(raw))
}

func decodeRow(raw string) (store.Row, error) {
	v, err := decodeJSON(raw)
	if err != nil || v == nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return store.Row(m), nil
}

// Provider 把 Redis 注册为修订数据源，stream 前缀带上修订表名
type Provider struct {
	Client redis.UniversalClient
	Prefix string
	MaxLen int64
}

func (p Provider) RevisionSink(policy audited.RevisionsEnabled) (audited.IRevisionSink, error) {
	prefix := p.Prefix
	if prefix == "" {
		prefix = "auditz:"
	}
	name := policy.Name
	if name == "" {
		name = "revisions"
	}
	sink, err := New(Config{Client: p.Client, StreamPrefix: prefix + name + ":", MaxLen: p.MaxLen})
	if err != nil {
		return nil, err
	}
	return sink, nil
}
