package audited

import (
	"auditz/data/query"
	"auditz/data/store"
	"auditz/httpx"
)

// WriteOptions 单次写入的选项
type WriteOptions struct {
	// Delete 本次写入是删除（软删除时为带 deletedAt 的更新）
	Delete bool
	// SkipUpdatedAt 不写入 updatedAt/updatedBy（或 deletedAt/deletedBy）
	SkipUpdatedAt bool
	// Deleted 条件不追加 deletedAt IS NULL
	Deleted bool
}

// WriteOption 写入选项
type WriteOption func(*WriteOptions)

// SkipUpdatedAt 本次写入不刷新时间戳与操作人
func SkipUpdatedAt() WriteOption {
	return func(o *WriteOptions) { o.SkipUpdatedAt = true }
}

// IncludeDeleted 批量更新同样作用于已软删除的行
func IncludeDeleted() WriteOption {
	return func(o *WriteOptions) { o.Deleted = true }
}

func asDelete() WriteOption {
	return func(o *WriteOptions) { o.Delete = true }
}

func applyWriteOptions(opts []WriteOption) WriteOptions {
	var o WriteOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WriteContext 在写前与写后钩子之间传递的单次调用状态
type WriteContext struct {
	IsNewInstance bool
	// Instance 实例级写入的整行（create、save、实例删除）
	Instance store.Row
	// Data 更新补丁；非 nil 时写前钩子改写的是 Data
	Data  store.Row
	Where query.Where

	Options WriteOptions

	Actor       httpx.Actor
	CurrentUser any

	// OldInstance 与 OldInstances 至多一个非空
	OldInstance  store.Row
	OldInstances []store.Row
}

// payload 写前钩子盖章的目标
func (wc *WriteContext) payload() store.Row {
	if wc.Data != nil {
		return wc.Data
	}
	return wc.Instance
}

// targetID 旧记录解析使用的行 ID：实例 → 补丁 → 条件等值 → 路由参数
func (wc *WriteContext) targetID(idName string) any {
	if id := wc.Instance[idName]; id != nil {
		return id
	}
	if id := wc.Data[idName]; id != nil {
		return id
	}
	if id, ok := wc.Where.EqualityValue(idName); ok && id != nil {
		return id
	}
	return wc.Actor.RouteID()
}
