// Package config 加载 auditz 的运行配置
//
// 优先级：内置默认值 < YAML 配置文件 < AUDITZ_ 前缀的环境变量
// （AUDITZ_DATABASE_DSN 覆盖 database.dsn）。models 下每个键是模型名，
// 值是该模型的审计选项，原样交给 audited.ConfigFromMap。
package config

import (
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	core "auditz/data/db"
	"auditz/domain/audited"
	"auditz/errors"
	"auditz/logging"
	"auditz/validation"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "AUDITZ"

// Config 运行配置
type Config struct {
	Database core.DBConfig  `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Log      LogConfig      `mapstructure:"log"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Models   map[string]any `mapstructure:"models"`
}

// RedisConfig Redis Streams 修订数据源
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// NATSConfig JetStream 修订数据源
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	Stream        string `mapstructure:"stream"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// LogConfig 日志
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Prefix string `mapstructure:"prefix"`
}

// SourcesConfig 数据源名称，对应模型 revisions.dataSource
type SourcesConfig struct {
	DB    string `mapstructure:"db"`
	Redis string `mapstructure:"redis"`
	NATS  string `mapstructure:"nats"`

	// Retry 修订写入失败（数据库、队列、网络错误）时的重试，attempts 为 1 表示不重试
	Retry RetryConfig `mapstructure:"retry"`
}

// RetryConfig 修订写入重试
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

var drivers = []string{"sqlite", "postgres"}

// Load 读取配置，path 为空时在当前目录与 /etc/auditz 查找 auditz.yaml
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("auditz")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/auditz")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.WrapError(err, errors.ErrCodeConfig, "读取配置文件失败")
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv 对 Unmarshal 不生效，嵌套键需要显式绑定
	for _, key := range v.AllKeys() {
		if strings.HasPrefix(key, "models.") {
			continue
		}
		if err := v.BindEnv(key); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeConfig, "绑定环境变量失败")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfig, "解析配置失败")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:auditz.db?_pragma=busy_timeout(5000)")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 0)
	v.SetDefault("database.conn_max_lifetime", 0)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "auditz:")
	v.SetDefault("redis.max_len", 0)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.stream", "AUDITZ_REVISIONS")
	v.SetDefault("nats.subject_prefix", "auditz")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.prefix", "[auditz]")

	v.SetDefault("sources.db", "db")
	v.SetDefault("sources.redis", "redis")
	v.SetDefault("sources.nats", "nats")
	v.SetDefault("sources.retry.attempts", 1)
	v.SetDefault("sources.retry.delay", 50*time.Millisecond)
	v.SetDefault("sources.retry.max_delay", time.Second)
}

// Validate 校验连接参数与每个模型的审计选项
func (c *Config) Validate() error {
	checks := []error{
		validation.ValidateEnum(c.Database.Driver, "database.driver", drivers),
		validation.ValidateRequired(c.Database.DSN, "database.dsn"),
		validation.ValidateIntRange(c.Database.MaxOpenConns, "database.max_open_conns", 0, 1000),
		validation.ValidateIntRange(c.Database.MaxIdleConns, "database.max_idle_conns", 0, 1000),
		validation.ValidateNonNegative(int64(c.Database.ConnMaxLifetime), "database.conn_max_lifetime"),
		validation.ValidateIntRange(c.Redis.DB, "redis.db", 0, 15),
		validation.ValidateNonNegative(c.Redis.MaxLen, "redis.max_len"),
		validation.ValidateSubject(c.NATS.SubjectPrefix, "nats.subject_prefix"),
		validation.ValidateIntRange(c.Sources.Retry.Attempts, "sources.retry.attempts", 1, 10),
		validation.ValidateNonNegative(int64(c.Sources.Retry.Delay), "sources.retry.delay"),
		validation.ValidateEnum(c.Log.Level, "log.level", []string{"debug", "info", "warn", "warning", "error"}),
	}
	for _, err := range checks {
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeConfig, "配置无效")
		}
	}
	for key := range c.Models {
		name, cfg, err := c.Model(key)
		if err != nil {
			return err
		}
		if err := validation.ValidateIdentifier(name, "models."+key+".model"); err != nil {
			return errors.WrapError(err, errors.ErrCodeConfig, "配置无效")
		}
		if p, ok := cfg.RevisionPolicy(); ok && p.Name != "" {
			if err := validation.ValidateIdentifier(p.Name, "models."+key+".revisions.name"); err != nil {
				return errors.WrapError(err, errors.ErrCodeConfig, "配置无效")
			}
		}
	}
	return nil
}

// modelKey 模型选项中给出规范模型名的键，不交给 audited.ConfigFromMap
const modelKey = "model"

func (c *Config) lookup(name string) (string, any, bool) {
	if raw, ok := c.Models[strings.ToLower(name)]; ok {
		return strings.ToLower(name), raw, true
	}
	for k, v := range c.Models {
		if strings.EqualFold(k, name) {
			return k, v, true
		}
	}
	return "", nil, false
}

// Model 已配置模型的规范名与审计配置，未配置的模型返回 InvalidInput
//
// 配置键经过 viper 都是小写，规范名取 models.<key>.model，缺省为首字母大写的键；
// 修订记录的 table_name 使用规范名。
func (c *Config) Model(name string) (string, audited.Config, error) {
	key, raw, ok := c.lookup(name)
	if !ok {
		return "", audited.Config{}, errors.NewInvalidInput("未配置模型 %s", name)
	}
	canonical := canonicalName(key)
	if raw == nil {
		return canonical, audited.DefaultConfig(), nil
	}
	opts, isMap := raw.(map[string]any)
	if !isMap {
		return "", audited.Config{}, errors.Errorf(errors.ErrCodeConfig, "models.%s 必须是对象", key)
	}
	if v, has := opts[modelKey]; has {
		s, isString := v.(string)
		if !isString || s == "" {
			return "", audited.Config{}, errors.Errorf(errors.ErrCodeConfig, "models.%s.model 必须是模型名", key)
		}
		canonical = s
		rest := make(map[string]any, len(opts)-1)
		for k, v := range opts {
			if k != modelKey {
				rest[k] = v
			}
		}
		opts = rest
	}
	cfg, err := audited.ConfigFromMap(opts)
	if err != nil {
		return "", audited.Config{}, errors.WrapError(err, errors.ErrCodeConfig, "models."+key)
	}
	return canonical, cfg, nil
}

// ModelConfig 模型的审计配置，模型名大小写不敏感，未配置时返回默认值
func (c *Config) ModelConfig(name string) (audited.Config, error) {
	_, cfg, err := c.Model(name)
	if errors.IsInvalidInput(err) {
		return audited.DefaultConfig(), nil
	}
	return cfg, err
}

// ModelNames 配置中出现的模型的规范名（已排序）
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for k := range c.Models {
		name, _, err := c.Model(k)
		if err != nil {
			name = canonicalName(k)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func canonicalName(key string) string {
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + key[1:]
}

// Logger 按配置创建标准输出 Logger
func (c *Config) Logger() logging.Logger {
	l := logging.NewStdLogger(c.Log.Prefix)
	l.SetLevel(logging.ParseLevel(c.Log.Level))
	return l
}
