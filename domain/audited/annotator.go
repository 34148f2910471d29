package audited

import (
	"fmt"

	"auditz/data/orm"
)

// SettingValidateUpsert 模型设置中控制 upsert 校验的键
const SettingValidateUpsert = "validateUpsert"

// Annotate 为模型补充审计字段，已存在的字段保持原样，返回新增的字段名
func Annotate(meta *orm.ModelMeta, cfg Config) []string {
	cfg = cfg.normalize()
	actorType := actorFieldType(cfg.UnknownUser)

	var added []string
	define := func(name FieldName, f orm.FieldMeta) {
		if !name.Enabled() {
			return
		}
		f.Name = string(name)
		if meta.DefineField(f) {
			added = append(added, f.Name)
		}
	}

	define(cfg.CreatedAt, orm.FieldMeta{Type: orm.FieldDate, Required: cfg.Required, DefaultNow: true})
	define(cfg.UpdatedAt, orm.FieldMeta{Type: orm.FieldDate, Required: cfg.Required})
	define(cfg.CreatedBy, orm.FieldMeta{Type: actorType})
	define(cfg.UpdatedBy, orm.FieldMeta{Type: actorType})
	if cfg.SoftDelete {
		// 默认读路径都带 deletedAt IS NULL
		define(cfg.DeletedAt, orm.FieldMeta{Type: orm.FieldDate, Index: true})
		define(cfg.DeletedBy, orm.FieldMeta{Type: actorType})
	}

	meta.SetSetting(SettingValidateUpsert, cfg.ValidateUpsert)
	return added
}

// actorFieldType *By 字段类型跟随 unknownUser
func actorFieldType(unknownUser any) orm.FieldType {
	if _, ok := unknownUser.(string); ok {
		return orm.FieldString
	}
	return orm.FieldNumber
}

// configWarnings 在 Annotate 覆盖模型设置之前检查配置冲突
func configWarnings(meta *orm.ModelMeta, cfg Config) []string {
	var warnings []string
	if meta.Setting(SettingValidateUpsert) && !cfg.ValidateUpsert {
		warnings = append(warnings, fmt.Sprintf("%s settings.validateUpsert was overridden to false", meta.PluralName()))
	}
	if cfg.ValidateUpsert && cfg.Required {
		warnings = append(warnings, fmt.Sprintf("upserts for %s will fail when validation is turned on and time stamps are required", meta.PluralName()))
	}
	if cfg.SoftDelete && !cfg.DeletedAt.Enabled() {
		warnings = append(warnings, fmt.Sprintf("%s has softDelete without a deletedAt field, deleted rows stay visible to reads", meta.PluralName()))
	}
	return warnings
}
