// Package natsjetstream 把修订记录发布到 JetStream，主题为 前缀.模型名.动作
//
// 只写不读，审计轨迹查询需要另配一个可读的写入器（见 audited.MultiSink）。
package natsjetstream

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"auditz/domain/audited"
	"auditz/errors"
	"auditz/logging"
)

// jetStream nats.JetStreamContext 中用到的方法
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// Config JetStream 写入器配置
type Config struct {
	URL           string
	Conn          *nats.Conn
	Stream        string
	SubjectPrefix string
	Logger        logging.Logger

	// 可选：流参数
	Retention string        // limits|interest|workqueue（默认 limits）
	MaxAge    time.Duration // 0 表示不过期
	MaxBytes  int64         // 0 表示不设置
	Replicas  int           // 0 表示默认
}

// Sink JetStream 修订写入器
type Sink struct {
	cfg      Config
	logger   logging.Logger
	conn     *nats.Conn
	js       jetStream
	ownsConn bool
}

var (
	_ audited.IRevisionSink = (*Sink)(nil)
	_ audited.IMigrator     = (*Sink)(nil)
)

// New 未提供 Conn 时按 URL 建立连接
func New(cfg Config) (*Sink, error) {
	conn, own := cfg.Conn, false
	if conn == nil {
		url := cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		c, err := nats.Connect(url)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeNetwork, "连接 nats 失败")
		}
		conn, own = c, true
	}
	js, err := conn.JetStream()
	if err != nil {
		if own {
			conn.Close()
		}
		return nil, errors.WrapError(err, errors.ErrCodeQueue, "jetstream 不可用")
	}
	s := newSink(cfg, js)
	s.conn, s.ownsConn = conn, own
	return s, nil
}

func newSink(cfg Config, js jetStream) *Sink {
	if cfg.Stream == "" {
		cfg.Stream = "AUDITZ_REVISIONS"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "auditz.revisions"
	}
	cfg.SubjectPrefix = strings.TrimSuffix(cfg.SubjectPrefix, ".")
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "revisions.nats"))
	}
	return &Sink{cfg: cfg, logger: cfg.Logger, js: js}
}

// Append 逐条发布，修订 id 作为 JetStream 去重 id
func (s *Sink) Append(ctx context.Context, revisions ...audited.Revision) error {
	for _, r := range revisions {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now()
		}
		data, err := json.Marshal(r)
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeInvalidInput, "修订记录无法序列化")
		}
		subject := s.subjectName(r.TableName, r.Action)
		opts := []nats.PubOpt{nats.Context(ctx)}
		if r.ID != "" {
			opts = append(opts, nats.MsgId(r.ID))
		}
		ack, err := s.js.Publish(subject, data, opts...)
		if err != nil {
			return errors.Wrap(ctx, err, errors.ErrCodeQueue, "publish "+subject)
		}
		if ack != nil && ack.Duplicate {
			s.logger.Debug(ctx, "duplicate revision ignored by stream",
				logging.String("subject", subject), logging.String("id", r.ID))
		}
	}
	return nil
}

// Migrate 确保流存在
func (s *Sink) Migrate(ctx context.Context) error {
	_, err := s.js.StreamInfo(s.cfg.Stream, nats.Context(ctx))
	if err == nil {
		return nil
	}
	if !stdErrors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return errors.Wrap(ctx, err, errors.ErrCodeQueue, "stream info "+s.cfg.Stream)
	}

	retention := nats.LimitsPolicy
	switch strings.ToLower(s.cfg.Retention) {
	case "interest":
		retention = nats.InterestPolicy
	case "workqueue":
		retention = nats.WorkQueuePolicy
	}
	sc := &nats.StreamConfig{
		Name:      s.cfg.Stream,
		Subjects:  []string{s.cfg.SubjectPrefix + ".>"},
		Retention: retention,
		MaxAge:    s.cfg.MaxAge,
	}
	if s.cfg.MaxBytes > 0 {
		sc.MaxBytes = s.cfg.MaxBytes
	}
	if s.cfg.Replicas > 0 {
		sc.Replicas = s.cfg.Replicas
	}
	if _, err := s.js.AddStream(sc, nats.Context(ctx)); err != nil {
		return errors.Wrap(ctx, err, errors.ErrCodeQueue, "add stream "+s.cfg.Stream)
	}
	s.logger.Info(ctx, "revision stream created",
		logging.String("stream", s.cfg.Stream), logging.Strings("subjects", sc.Subjects))
	return nil
}

// Close 只关闭自己建立的连接
func (s *Sink) Close() error {
	if s.ownsConn && s.conn != nil {
		s.conn.Close()
	}
	return nil
}

// subjectName 模型名中的主题分隔符与通配符替换为 _
func (s *Sink) subjectName(table string, action audited.Action) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, table)
	if token == "" {
		token = "_"
	}
	return s.cfg.SubjectPrefix + "." + token + "." + string(action)
}

// Provider 把 NATS 连接注册为修订数据源，主题前缀带上修订表名
type Provider struct {
	Conn   *nats.Conn
	Stream string
	Prefix string
}

func (p Provider) RevisionSink(policy audited.RevisionsEnabled) (audited.IRevisionSink, error) {
	if p.Conn == nil {
		return nil, errors.NewError(errors.ErrCodeConfig, "revision data source has no nats connection")
	}
	prefix := p.Prefix
	if prefix == "" {
		prefix = "auditz"
	}
	name := policy.Name
	if name == "" {
		name = "revisions"
	}
	sink, err := New(Config{Conn: p.Conn, Stream: p.Stream, SubjectPrefix: prefix + "." + name})
	if err != nil {
		return nil, err
	}
	return sink, nil
}
