package audited

import (
	"context"
	"time"

	"github.com/google/uuid"

	"auditz/data/orm"
	"auditz/data/query"
	"auditz/data/store"
	"auditz/errors"
	"auditz/httpx"
	"auditz/logging"
)

// interceptor 写前/写后钩子
type interceptor struct {
	meta    *orm.ModelMeta
	cfg     Config
	base    store.IRowStore
	sink    IRevisionSink
	actors  httpx.IActorSource
	clock   *monotonicClock
	logger  logging.Logger
	metrics IMetrics
}

func (i *interceptor) revisionsEnabled() bool {
	_, ok := i.cfg.RevisionPolicy()
	return ok && i.sink != nil
}

// currentUser 已认证 actor 的用户，否则 unknownUser
func (i *interceptor) currentUser(a httpx.Actor, ok bool) any {
	if ok && a.Authenticated() {
		return a.UserID
	}
	return i.cfg.UnknownUser
}

// beforeSave 解析 actor 与旧记录，并在写入内容上盖章
func (i *interceptor) beforeSave(ctx context.Context, wc *WriteContext) error {
	start := time.Now()
	defer func() { i.metrics.ObserveHook(phaseBeforeSave, time.Since(start)) }()

	actor, ok := i.actors.Actor(ctx)
	wc.Actor = actor
	wc.CurrentUser = i.currentUser(actor, ok)

	if i.revisionsEnabled() && !wc.IsNewInstance {
		if err := i.resolveOld(ctx, wc); err != nil {
			i.logger.Error(ctx, "解析旧记录失败，写入中止",
				logging.String("model", i.meta.Name), logging.Error(err))
			return errors.WrapLookupError(err, i.meta.Name)
		}
	}

	payload := wc.payload()
	if payload == nil {
		// 物理删除没有写入内容
		return nil
	}

	if wc.IsNewInstance {
		if i.cfg.CreatedBy.Enabled() {
			payload[i.cfg.CreatedBy.String()] = wc.CurrentUser
		}
	} else {
		delete(payload, i.cfg.CreatedAt.String())
		delete(payload, i.cfg.CreatedBy.String())
	}

	if wc.Options.SkipUpdatedAt {
		return nil
	}
	keyAt, keyBy := i.cfg.UpdatedAt, i.cfg.UpdatedBy
	if i.cfg.SoftDelete && wc.Options.Delete {
		keyAt, keyBy = i.cfg.DeletedAt, i.cfg.DeletedBy
	}
	if keyAt.Enabled() {
		payload[keyAt.String()] = i.clock.Now()
	}
	if keyBy.Enabled() {
		payload[keyBy.String()] = wc.CurrentUser
	}
	return nil
}

// resolveOld 按 ID 解析单行旧版本，否则按条件解析旧版本集合；都包含已软删除的行
func (i *interceptor) resolveOld(ctx context.Context, wc *WriteContext) error {
	if id := wc.targetID(i.meta.IDName()); id != nil {
		row, err := i.base.FindByID(ctx, id)
		if err != nil {
			return err
		}
		wc.OldInstance = row
		return nil
	}

	rows, err := i.base.Find(ctx, query.WhereFilter(wc.Where))
	if err != nil {
		return err
	}
	switch len(rows) {
	case 0:
	case 1:
		wc.OldInstance = rows[0]
	default:
		wc.OldInstances = rows
	}
	return nil
}

// afterSave 按写入类型生成修订记录并交给写入器
//
// saved 为实例级写入后的行，affected 为底层写入影响的行数。
func (i *interceptor) afterSave(ctx context.Context, wc *WriteContext, saved store.Row, affected int64) error {
	if !i.revisionsEnabled() {
		return nil
	}
	start := time.Now()
	defer func() { i.metrics.ObserveHook(phaseAfterSave, time.Since(start)) }()

	revisions, err := i.revisions(ctx, wc, saved, affected)
	if err != nil {
		i.metrics.SinkFailed(i.meta.Name)
		return err
	}
	if len(revisions) == 0 {
		return nil
	}

	if err := i.sink.Append(ctx, revisions...); err != nil {
		i.metrics.SinkFailed(i.meta.Name)
		i.logger.Error(ctx, "修订记录写入失败，数据写入已生效",
			logging.String("model", i.meta.Name),
			logging.Int("revisions", len(revisions)),
			logging.Error(err))
		return errors.WrapSinkError(err, i.meta.Name, len(revisions))
	}
	i.metrics.RevisionsWritten(i.meta.Name, revisions[0].Action, len(revisions))
	return nil
}

func (i *interceptor) revisions(ctx context.Context, wc *WriteContext, saved store.Row, affected int64) ([]Revision, error) {
	idName := i.meta.IDName()

	if wc.IsNewInstance {
		if saved == nil {
			return nil, nil
		}
		return []Revision{i.revision(ctx, wc, ActionCreate, saved[idName], nil, saved)}, nil
	}

	if affected == 0 {
		i.skip(ctx, wc, "no_rows", "写入未影响任何行，跳过修订记录")
		return nil, nil
	}

	if wc.Options.Delete {
		switch {
		case wc.OldInstance != nil:
			return []Revision{i.revision(ctx, wc, ActionDelete, wc.OldInstance[idName], wc.OldInstance, nil)}, nil
		case len(wc.OldInstances) > 0:
			out := make([]Revision, 0, len(wc.OldInstances))
			for _, old := range wc.OldInstances {
				out = append(out, i.revision(ctx, wc, ActionDelete, old[idName], old, nil))
			}
			return out, nil
		}
		i.skip(ctx, wc, "no_old_instance", "删除缺少旧记录，跳过修订记录")
		return nil, nil
	}

	switch {
	case wc.OldInstance != nil:
		id := wc.OldInstance[idName]
		current := saved
		if current == nil {
			// 按 ID 的批量更新没有返回行，重新读取
			row, err := i.base.FindByID(ctx, id)
			if err != nil {
				return nil, errors.WrapError(err, errors.ErrCodeRevisionSink, "读取更新后的行失败")
			}
			current = row
		}
		if current == nil {
			i.skip(ctx, wc, "no_new_instance", "更新后的行不存在，跳过修订记录")
			return nil, nil
		}
		return []Revision{i.revision(ctx, wc, ActionUpdate, id, wc.OldInstance, current)}, nil

	case len(wc.OldInstances) > 0:
		ids := make([]any, len(wc.OldInstances))
		for n, old := range wc.OldInstances {
			ids[n] = old[idName]
		}
		rows, err := i.base.Find(ctx, query.WhereFilter(query.In(idName, ids...)))
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeRevisionSink, "读取更新后的行失败")
		}
		byID := make(map[string]store.Row, len(rows))
		for _, row := range rows {
			byID[query.Key(row[idName])] = row
		}
		out := make([]Revision, 0, len(wc.OldInstances))
		for _, old := range wc.OldInstances {
			current, ok := byID[query.Key(old[idName])]
			if !ok {
				i.skip(ctx, wc, "no_new_instance", "更新后的行不存在，跳过该行修订记录")
				continue
			}
			out = append(out, i.revision(ctx, wc, ActionUpdate, old[idName], old, current))
		}
		return out, nil
	}

	i.skip(ctx, wc, "no_old_instance", "更新缺少旧记录，跳过修订记录")
	return nil, nil
}

func (i *interceptor) revision(_ context.Context, wc *WriteContext, action Action, rowID any, old, current store.Row) Revision {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Revision{
		ID:          id.String(),
		Action:      action,
		TableName:   i.meta.Name,
		RowID:       rowID,
		Old:         old.Clone(),
		New:         current.Clone(),
		User:        wc.CurrentUser,
		IP:          wc.Actor.NetworkIP(),
		IPForwarded: wc.Actor.IPForwarded,
		CreatedAt:   i.clock.Now(),
	}
}

func (i *interceptor) skip(ctx context.Context, wc *WriteContext, reason, msg string) {
	i.metrics.AuditSkipped(i.meta.Name, reason)
	i.logger.Debug(ctx, msg,
		logging.String("model", i.meta.Name),
		logging.String("reason", reason),
		logging.Bool("delete", wc.Options.Delete),
		logging.String("where", wc.Where.String()))
}
