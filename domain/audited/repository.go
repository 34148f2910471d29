// Package audited 行级审计层：审计字段、写前写后拦截、软删除路由与修订记录
//
// Model 包装一个 store.IRowStore：读路径默认排除已软删除的行，删除类操作改写为带
// deletedAt 的更新，每次写入前解析旧版本，写入后向 IRevisionSink 追加修订记录。
package audited

import (
	"context"
	"time"

	"auditz/data/orm"
	"auditz/data/store"
)

// Action 修订动作
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Revision 一次行级写入的不可变审计记录
//
// create 的 Old 为 nil，delete 的 New 为 nil，update 两者都有。
type Revision struct {
	ID          string    `json:"id"`
	Action      Action    `json:"action"`
	TableName   string    `json:"table_name"`
	RowID       any       `json:"row_id"`
	Old         store.Row `json:"old"`
	New         store.Row `json:"new"`
	User        any       `json:"user"`
	IP          string    `json:"ip"`
	IPForwarded string    `json:"ip_forwarded"`
	CreatedAt   time.Time `json:"created_at"`
}

// RevisionQuery 修订查询条件，零值字段不参与过滤
type RevisionQuery struct {
	TableName string
	RowID     any
	Action    Action
	Offset    int
	Limit     int
}

// IRevisionSink 修订记录写入器
type IRevisionSink interface {
	// Append 追加一批修订记录，实现应尽量整批写入
	Append(ctx context.Context, revisions ...Revision) error
}

// IRevisionReader 按行查询修订轨迹，结果按 CreatedAt 升序
type IRevisionReader interface {
	List(ctx context.Context, q RevisionQuery) ([]Revision, error)
}

// IMigrator 支持自动建表的写入器
type IMigrator interface {
	Migrate(ctx context.Context) error
}

// ISinkProvider 数据源按修订策略创建写入器，例如 SQL 数据源按 Name 与 IDType 建表
type ISinkProvider interface {
	RevisionSink(policy RevisionsEnabled) (IRevisionSink, error)
}

// RevisionSchema 修订表结构，row_id 的类型来自 IDType
func RevisionSchema(policy RevisionsEnabled) *orm.ModelMeta {
	policy = policy.withDefaults()
	meta := &orm.ModelMeta{Name: policy.Name, Table: policy.Name}
	meta.DefineField(orm.FieldMeta{Name: "id", Type: orm.FieldString, PrimaryKey: true})
	meta.DefineField(orm.FieldMeta{Name: "action", Type: orm.FieldString, Required: true})
	meta.DefineField(orm.FieldMeta{Name: "table_name", Type: orm.FieldString, Required: true, Index: true})
	meta.DefineField(orm.FieldMeta{Name: "row_id", Type: policy.IDType, Index: true})
	meta.DefineField(orm.FieldMeta{Name: "old", Type: orm.FieldJSON})
	meta.DefineField(orm.FieldMeta{Name: "new", Type: orm.FieldJSON})
	// user 可能是数字或字符串，按 JSON 存储保留类型
	meta.DefineField(orm.FieldMeta{Name: "user", Type: orm.FieldJSON})
	meta.DefineField(orm.FieldMeta{Name: "ip", Type: orm.FieldString})
	meta.DefineField(orm.FieldMeta{Name: "ip_forwarded", Type: orm.FieldString})
	meta.DefineField(orm.FieldMeta{Name: "created_at", Type: orm.FieldDate, Required: true})
	return meta
}

// MultiSink 依次写入多个写入器，任一失败即返回
type MultiSink []IRevisionSink

func (m MultiSink) Append(ctx context.Context, revisions ...Revision) error {
	for _, s := range m {
		if err := s.Append(ctx, revisions...); err != nil {
			return err
		}
	}
	return nil
}

// List 使用第一个可查询的写入器
func (m MultiSink) List(ctx context.Context, q RevisionQuery) ([]Revision, error) {
	for _, s := range m {
		if r, ok := s.(IRevisionReader); ok {
			return r.List(ctx, q)
		}
	}
	return nil, nil
}

// Migrate 迁移所有支持建表的写入器
func (m MultiSink) Migrate(ctx context.Context) error {
	for _, s := range m {
		if mg, ok := s.(IMigrator); ok {
			if err := mg.Migrate(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
