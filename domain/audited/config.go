package audited

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"auditz/data/orm"
	"auditz/errors"
)

// FieldName 审计字段名，FieldDisabled 表示不创建也不写入该字段
type FieldName string

// FieldDisabled 配置文件中写 false 即得到该值
const FieldDisabled FieldName = "-"

// Enabled 字段是否参与建模与写入
func (f FieldName) Enabled() bool {
	return f != "" && f != FieldDisabled
}

func (f FieldName) String() string { return string(f) }

// Scrub 软删除时需要清空的字段：All 为全部非主键字段，否则为 Fields 列表
type Scrub struct {
	All    bool
	Fields []string
}

// Enabled 是否需要清空字段
func (s Scrub) Enabled() bool {
	return s.All || len(s.Fields) > 0
}

// RevisionPolicy 修订记录策略：RevisionsDisabled 或 RevisionsEnabled
type RevisionPolicy interface {
	revisionPolicy()
}

// RevisionsDisabled 不记录修订
type RevisionsDisabled struct{}

// RevisionsEnabled 记录修订
type RevisionsEnabled struct {
	// Name 修订表（模型）名
	Name string
	// IDType 修订表 row_id 列类型，应与被审计模型主键一致
	IDType orm.FieldType
	// DataSource 修订写入器在数据源容器中的名称
	DataSource string
	// AutoUpdate 初始化时自动建表
	AutoUpdate bool
}

func (RevisionsDisabled) revisionPolicy() {}
func (RevisionsEnabled) revisionPolicy()  {}

// DefaultRevisions 默认修订策略
func DefaultRevisions() RevisionsEnabled {
	return RevisionsEnabled{Name: "revisions", IDType: orm.FieldNumber, DataSource: "db", AutoUpdate: true}
}

func (r RevisionsEnabled) withDefaults() RevisionsEnabled {
	d := DefaultRevisions()
	if r.Name == "" {
		r.Name = d.Name
	}
	if r.IDType == "" {
		r.IDType = d.IDType
	}
	if r.DataSource == "" {
		r.DataSource = d.DataSource
	}
	return r
}

// Config 模型审计配置，New 之后不再变化
type Config struct {
	CreatedAt FieldName
	UpdatedAt FieldName
	DeletedAt FieldName
	CreatedBy FieldName
	UpdatedBy FieldName
	DeletedBy FieldName

	SoftDelete bool
	Scrub      Scrub
	// UnknownUser 没有已认证 actor 时写入 *By 字段与修订记录的用户
	UnknownUser any
	// RemoteCtx 兼容旧配置保留的键名
	RemoteCtx string
	// Required createdAt/updatedAt 是否必填
	Required        bool
	ValidateUpsert  bool
	SilenceWarnings bool

	Revisions RevisionPolicy
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		CreatedAt:   "createdAt",
		UpdatedAt:   "updatedAt",
		DeletedAt:   "deletedAt",
		CreatedBy:   "createdBy",
		UpdatedBy:   "updatedBy",
		DeletedBy:   "deletedBy",
		SoftDelete:  true,
		UnknownUser: 0,
		RemoteCtx:   "remoteCtx",
		Required:    true,
		Revisions:   DefaultRevisions(),
	}
}

// RevisionPolicy 启用时返回修订配置
func (c Config) RevisionPolicy() (RevisionsEnabled, bool) {
	switch p := c.Revisions.(type) {
	case RevisionsEnabled:
		return p, true
	case *RevisionsEnabled:
		if p != nil {
			return *p, true
		}
	}
	return RevisionsEnabled{}, false
}

// normalize 空字段名回落到默认名，修订策略补齐默认值
func (c Config) normalize() Config {
	d := DefaultConfig()
	fill := func(f *FieldName, def FieldName) {
		if *f == "" {
			*f = def
		}
	}
	fill(&c.CreatedAt, d.CreatedAt)
	fill(&c.UpdatedAt, d.UpdatedAt)
	fill(&c.DeletedAt, d.DeletedAt)
	fill(&c.CreatedBy, d.CreatedBy)
	fill(&c.UpdatedBy, d.UpdatedBy)
	fill(&c.DeletedBy, d.DeletedBy)
	if c.RemoteCtx == "" {
		c.RemoteCtx = d.RemoteCtx
	}
	if p, ok := c.RevisionPolicy(); ok {
		c.Revisions = p.withDefaults()
	} else {
		c.Revisions = RevisionsDisabled{}
	}
	return c
}

// fileConfig 配置文件的形状，revisions 与 unknownUser 的类型取决于取值
type fileConfig struct {
	CreatedAt FieldName `mapstructure:"createdAt"`
	UpdatedAt FieldName `mapstructure:"updatedAt"`
	DeletedAt FieldName `mapstructure:"deletedAt"`
	CreatedBy FieldName `mapstructure:"createdBy"`
	UpdatedBy FieldName `mapstructure:"updatedBy"`
	DeletedBy FieldName `mapstructure:"deletedBy"`

	SoftDelete      bool   `mapstructure:"softDelete"`
	Scrub           Scrub  `mapstructure:"scrub"`
	UnknownUser     any    `mapstructure:"unknownUser"`
	RemoteCtx       string `mapstructure:"remoteCtx"`
	Required        bool   `mapstructure:"required"`
	ValidateUpsert  bool   `mapstructure:"validateUpsert"`
	SilenceWarnings bool   `mapstructure:"silenceWarnings"`
	Revisions       any    `mapstructure:"revisions"`
}

type fileRevisions struct {
	Name       string `mapstructure:"name"`
	IDType     string `mapstructure:"idType"`
	DataSource string `mapstructure:"dataSource"`
	AutoUpdate bool   `mapstructure:"autoUpdate"`
}

var (
	fieldNameType = reflect.TypeOf(FieldName(""))
	scrubType     = reflect.TypeOf(Scrub{})
)

// decodeHook 处理 false|"name" 形式的字段名与 bool|list 形式的 scrub
func decodeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	switch to {
	case fieldNameType:
		switch v := data.(type) {
		case bool:
			if v {
				return "", nil
			}
			return string(FieldDisabled), nil
		case string:
			if strings.EqualFold(v, "false") {
				return string(FieldDisabled), nil
			}
		}
	case scrubType:
		switch v := data.(type) {
		case bool:
			return Scrub{All: v}, nil
		case string:
			switch strings.ToLower(v) {
			case "true":
				return Scrub{All: true}, nil
			case "false", "":
				return Scrub{}, nil
			}
			return Scrub{Fields: splitList(v)}, nil
		case []string:
			return Scrub{Fields: v}, nil
		case []any:
			fields := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("scrub: expected field name, got %T", item)
				}
				fields = append(fields, s)
			}
			return Scrub{Fields: fields}, nil
		}
	}
	return data, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       decodeHook,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// ConfigFromMap 把配置文件中的模型选项合并到默认配置
//
//	revisions: false | true | {name, idType, dataSource, autoUpdate}
//	scrub:     false | true | [field, ...]
//	createdBy: false | "author"
func ConfigFromMap(opts map[string]any) (Config, error) {
	d := DefaultConfig()
	fc := fileConfig{
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		DeletedAt:       d.DeletedAt,
		CreatedBy:       d.CreatedBy,
		UpdatedBy:       d.UpdatedBy,
		DeletedBy:       d.DeletedBy,
		SoftDelete:      d.SoftDelete,
		RemoteCtx:       d.RemoteCtx,
		Required:        d.Required,
		ValidateUpsert:  d.ValidateUpsert,
		SilenceWarnings: d.SilenceWarnings,
	}
	if err := decode(opts, &fc); err != nil {
		return Config{}, errors.WrapError(err, errors.ErrCodeConfig, "解析审计配置失败")
	}

	cfg := Config{
		CreatedAt:       fc.CreatedAt,
		UpdatedAt:       fc.UpdatedAt,
		DeletedAt:       fc.DeletedAt,
		CreatedBy:       fc.CreatedBy,
		UpdatedBy:       fc.UpdatedBy,
		DeletedBy:       fc.DeletedBy,
		SoftDelete:      fc.SoftDelete,
		Scrub:           fc.Scrub,
		UnknownUser:     fc.UnknownUser,
		RemoteCtx:       fc.RemoteCtx,
		Required:        fc.Required,
		ValidateUpsert:  fc.ValidateUpsert,
		SilenceWarnings: fc.SilenceWarnings,
	}
	if cfg.UnknownUser == nil {
		cfg.UnknownUser = d.UnknownUser
	}

	policy, err := revisionPolicyFrom(fc.Revisions)
	if err != nil {
		return Config{}, err
	}
	cfg.Revisions = policy
	return cfg.normalize(), nil
}

func revisionPolicyFrom(v any) (RevisionPolicy, error) {
	switch t := v.(type) {
	case nil:
		return DefaultRevisions(), nil
	case bool:
		if t {
			return DefaultRevisions(), nil
		}
		return RevisionsDisabled{}, nil
	case string:
		switch strings.ToLower(t) {
		case "true":
			return DefaultRevisions(), nil
		case "false", "":
			return RevisionsDisabled{}, nil
		}
	case map[string]any:
		var fr fileRevisions
		if err := decode(t, &fr); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeConfig, "解析 revisions 配置失败")
		}
		p := RevisionsEnabled{Name: fr.Name, DataSource: fr.DataSource, AutoUpdate: fr.AutoUpdate}
		if fr.IDType != "" {
			ft, ok := orm.ParseFieldType(fr.IDType)
			if !ok {
				return nil, errors.Errorf(errors.ErrCodeConfig, "revisions.idType 不支持 %q", fr.IDType)
			}
			p.IDType = ft
		}
		return p.withDefaults(), nil
	}
	return nil, errors.Errorf(errors.ErrCodeConfig, "revisions 只能是 bool 或对象，得到 %T", v)
}
