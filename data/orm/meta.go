// Package orm 行模型的元信息：字段、主键、表名与模型注册表
package orm

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// FieldType 字段的逻辑类型，由 dialect 映射为列类型
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "boolean"
	FieldDate   FieldType = "date"
	FieldJSON   FieldType = "json"
)

// ParseFieldType 解析配置里的类型名（Number、String、Date 等，大小写不敏感）
func ParseFieldType(s string) (FieldType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text", "uuid":
		return FieldString, true
	case "number", "int", "integer", "bigint":
		return FieldNumber, true
	case "float", "double":
		return FieldFloat, true
	case "boolean", "bool":
		return FieldBool, true
	case "date", "datetime", "timestamp":
		return FieldDate, true
	case "json", "object":
		return FieldJSON, true
	}
	return "", false
}

// FieldMeta 描述字段元信息
type FieldMeta struct {
	Name       string
	Column     string
	Type       FieldType
	PrimaryKey bool
	// Required 创建时必须有值（DefaultNow 的字段由存储补齐）
	Required bool
	// DefaultNow 创建时缺省取当前时间
	DefaultNow bool
	Index      bool
}

// ColumnName 返回列名，未显式设置时使用字段名
func (f FieldMeta) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// ModelMeta 描述模型级别元信息
type ModelMeta struct {
	Name   string
	Table  string
	Fields []FieldMeta
	// Settings 模型级设置，例如 validateUpsert
	Settings map[string]any
}

// NewModelMeta 创建带 number 主键 id 的模型
func NewModelMeta(name string, fields ...FieldMeta) *ModelMeta {
	m := &ModelMeta{Name: name, Settings: map[string]any{}}
	m.DefineField(FieldMeta{Name: "id", Type: FieldNumber, PrimaryKey: true})
	for _, f := range fields {
		m.DefineField(f)
	}
	return m
}

// Field 按字段名查找
func (m *ModelMeta) Field(name string) (FieldMeta, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldMeta{}, false
}

func (m *ModelMeta) HasField(name string) bool {
	_, ok := m.Field(name)
	return ok
}

// DefineField 添加字段；同名字段已存在时不做修改并返回 false
func (m *ModelMeta) DefineField(f FieldMeta) bool {
	if f.Name == "" || m.HasField(f.Name) {
		return false
	}
	if f.Type == "" {
		f.Type = FieldString
	}
	m.Fields = append(m.Fields, f)
	return true
}

// IDName 主键字段名，未声明主键时为 id
func (m *ModelMeta) IDName() string {
	for _, f := range m.Fields {
		if f.PrimaryKey {
			return f.Name
		}
	}
	return "id"
}

// FieldNames 按声明顺序返回字段名
func (m *ModelMeta) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// PluralName 模型名的复数形式
func (m *ModelMeta) PluralName() string {
	return inflection.Plural(m.Name)
}

// TableName 显式表名，否则为小写复数模型名
func (m *ModelMeta) TableName() string {
	if m.Table != "" {
		return m.Table
	}
	return strings.ToLower(m.PluralName())
}

// Setting 读取布尔型模型设置
func (m *ModelMeta) Setting(key string) bool {
	v, ok := m.Settings[key].(bool)
	return ok && v
}

// SetSetting 写入模型设置
func (m *ModelMeta) SetSetting(key string, value any) {
	if m.Settings == nil {
		m.Settings = map[string]any{}
	}
	m.Settings[key] = value
}
