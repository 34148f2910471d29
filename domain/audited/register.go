package audited

import (
	"context"
	"sync"

	"auditz/data/orm"
	"auditz/logging"
)

// MixinName 在 orm.Registry 中注册的 mixin 名
const MixinName = "Auditz"

// settingConfig 模型设置中保存解析后配置的键
const settingConfig = "auditz"

// DefineMixin 注册审计 mixin：解析模型的审计配置并补充审计字段
//
// 之后可用 ConfigFor 取回配置交给 New。
func DefineMixin(r *orm.Registry) {
	r.DefineMixin(MixinName, func(meta *orm.ModelMeta, opts map[string]any) error {
		cfg, err := ConfigFromMap(opts)
		if err != nil {
			return err
		}
		if !cfg.SilenceWarnings {
			for _, w := range configWarnings(meta, cfg) {
				logging.GetLogger().Warn(context.Background(), w, logging.String("model", meta.Name))
			}
		}
		Annotate(meta, cfg)
		meta.SetSetting(settingConfig, cfg)
		return nil
	})
}

// ConfigFor 取回 mixin 为模型解析的配置
func ConfigFor(meta *orm.ModelMeta) (Config, bool) {
	cfg, ok := meta.Settings[settingConfig].(Config)
	return cfg, ok
}

var registerOnce sync.Once

// Register 注册审计 mixin
//
// Deprecated: 使用 DefineMixin。
func Register(r *orm.Registry) {
	registerOnce.Do(func() {
		logging.GetLogger().Warn(context.Background(), "audited.Register is deprecated, use audited.DefineMixin")
	})
	DefineMixin(r)
}
