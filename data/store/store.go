// Package store 行存储协作者：审计层只通过 IRowStore 读写模型数据
package store

import (
	"context"
	"time"

	"auditz/data/orm"
	"auditz/data/query"
)

// Row 一行数据，键为字段名
type Row map[string]any

// Clone 浅拷贝
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Has 键存在（值可以为 nil）
func (r Row) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// IRowStore 模型的物理存储
//
// 实现不感知软删除：已标记删除的行对 IRowStore 依旧可见，过滤由审计层完成。
type IRowStore interface {
	Meta() *orm.ModelMeta

	// FindByID 行不存在时返回 nil, nil
	FindByID(ctx context.Context, id any) (Row, error)
	Find(ctx context.Context, filter query.Filter) ([]Row, error)
	Count(ctx context.Context, where query.Where) (int64, error)

	// Create 返回持久化后的行（含生成的主键与默认值）
	Create(ctx context.Context, data Row) (Row, error)
	// UpdateAll 按条件更新，返回受影响行数
	UpdateAll(ctx context.Context, where query.Where, data Row) (int64, error)
	// UpdateAttributes 更新单行并返回更新后的行，行不存在时返回 NotFound
	UpdateAttributes(ctx context.Context, id any, data Row) (Row, error)
	DeleteAll(ctx context.Context, where query.Where) (int64, error)
}

// Option 存储构造选项
type Option func(*options)

type options struct {
	now func() time.Time
	ids idGenerator
}

type idGenerator interface {
	NextID() (int64, error)
}

// WithClock 替换 DefaultNow 字段使用的时钟
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator 替换 number 主键生成器
func WithIDGenerator(ids idGenerator) Option {
	return func(o *options) { o.ids = ids }
}
