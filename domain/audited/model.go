package audited

import (
	"context"
	"fmt"

	"auditz/data/orm"
	"auditz/data/query"
	"auditz/data/store"
	"auditz/di"
	"auditz/errors"
	"auditz/httpx"
	"auditz/logging"
)

// Model 带审计字段、软删除与修订记录的模型
//
// 读操作默认排除已软删除的行；删除类操作在 softDelete 开启时改写为更新。
// 修订写入失败时数据写入已经生效，返回值仍是写入结果，错误码为 ErrCodeRevisionSink。
type Model struct {
	base     store.IRowStore
	meta     *orm.ModelMeta
	cfg      Config
	hooks    *interceptor
	sink     IRevisionSink
	logger   logging.Logger
	scrubbed store.Row
}

// New 为 base 装配审计行为：补充审计字段、解析修订写入器，必要时为其建表
//
// 模型的审计字段由 Annotate 添加；SQL 存储需要在 Migrate 之前调用 Annotate。
func New(ctx context.Context, base store.IRowStore, cfg Config, opts ...Option) (*Model, error) {
	if base == nil || base.Meta() == nil {
		return nil, errors.NewError(errors.ErrCodeConfig, "audited model requires a row store")
	}
	o := modelOptions{
		logger:  logging.GetLogger(),
		metrics: noopMetrics{},
		actors:  httpx.ContextActorSource{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg = cfg.normalize()
	meta := base.Meta()

	var logger logging.Logger = o.logger.WithFields(logging.String("model", meta.Name))
	if cfg.SilenceWarnings {
		logger = logging.NewLevelLogger(logger, logging.ErrorLevel)
	}
	// 经过 DefineMixin 的模型已在注册时报告过
	if _, viaMixin := ConfigFor(meta); !viaMixin {
		for _, w := range configWarnings(meta, cfg) {
			logger.Warn(ctx, w)
		}
	}
	if added := Annotate(meta, cfg); len(added) > 0 {
		logger.Debug(ctx, "补充审计字段", logging.Strings("fields", added))
	}

	sink, err := resolveSink(ctx, cfg, o, logger)
	if err != nil {
		return nil, err
	}

	m := &Model{
		base:     base,
		meta:     meta,
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		scrubbed: scrubbedFields(meta, cfg),
	}
	m.hooks = &interceptor{
		meta:    meta,
		cfg:     cfg,
		base:    base,
		sink:    sink,
		actors:  o.actors,
		clock:   newMonotonicClock(o.clock),
		logger:  logger,
		metrics: o.metrics,
	}
	return m, nil
}

func resolveSink(ctx context.Context, cfg Config, o modelOptions, logger logging.Logger) (IRevisionSink, error) {
	policy, ok := cfg.RevisionPolicy()
	if !ok {
		return nil, nil
	}

	sink := o.sink
	if sink == nil {
		if o.dataSources == nil {
			return nil, errors.Errorf(errors.ErrCodeConfig,
				"revisions enabled but neither a sink nor data source %q is available", policy.DataSource)
		}
		var err error
		if sink, err = SinkFor(ctx, o.dataSources, policy); err != nil {
			return nil, err
		}
	}

	if policy.AutoUpdate {
		if m, ok := sink.(IMigrator); ok {
			if err := m.Migrate(ctx); err != nil {
				logger.Error(ctx, "修订表迁移失败", logging.String("revisions", policy.Name), logging.Error(err))
			}
		}
	}
	return sink, nil
}

// SinkFor 从数据源容器解析策略对应的修订写入器
//
// 数据源可以直接是 IRevisionSink，也可以是按策略创建写入器的 ISinkProvider。
func SinkFor(ctx context.Context, sources *di.Container, policy RevisionsEnabled) (IRevisionSink, error) {
	policy = policy.withDefaults()
	v, err := sources.Resolve(ctx, policy.DataSource)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfig, "解析修订数据源失败")
	}
	switch t := v.(type) {
	case ISinkProvider:
		sink, err := t.RevisionSink(policy)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeConfig, "创建修订写入器失败")
		}
		return sink, nil
	case IRevisionSink:
		return t, nil
	}
	return nil, errors.Errorf(errors.ErrCodeConfig, "data source %q (%T) cannot store revisions", policy.DataSource, v)
}

// scrubbedFields 软删除时置空的字段，主键与 deletedAt/deletedBy 除外
func scrubbedFields(meta *orm.ModelMeta, cfg Config) store.Row {
	out := store.Row{}
	if !cfg.SoftDelete || !cfg.Scrub.Enabled() {
		return out
	}
	names := cfg.Scrub.Fields
	if cfg.Scrub.All {
		names = meta.FieldNames()
	}
	idName := meta.IDName()
	for _, name := range names {
		if name == idName || name == cfg.DeletedAt.String() || name == cfg.DeletedBy.String() {
			continue
		}
		if meta.HasField(name) {
			out[name] = nil
		}
	}
	return out
}

func (m *Model) Meta() *orm.ModelMeta { return m.meta }
func (m *Model) Config() Config       { return m.cfg }

// Sink 修订写入器，未启用修订时为 nil
func (m *Model) Sink() IRevisionSink { return m.sink }

// scope 未显式要求包含已删除行时追加 deletedAt IS NULL
func (m *Model) scope(where query.Where, includeDeleted bool) query.Where {
	if !m.cfg.SoftDelete || includeDeleted || !m.cfg.DeletedAt.Enabled() {
		return where
	}
	return where.Conjoin(query.IsNull(m.cfg.DeletedAt.String()))
}

// checkWhere 在触达存储之前拒绝非法条件
func (m *Model) checkWhere(where query.Where) error {
	if err := where.Validate(); err != nil {
		return errors.WrapError(err, errors.ErrCodeInvalidInput, "非法的查询条件")
	}
	for _, f := range where.Fields() {
		if !m.meta.HasField(f) {
			return errors.NewInvalidInput("%s 没有字段 %s", m.meta.Name, f)
		}
	}
	return nil
}

func (m *Model) isDeleted(row store.Row) bool {
	return m.cfg.SoftDelete && m.cfg.DeletedAt.Enabled() && row[m.cfg.DeletedAt.String()] != nil
}

func (m *Model) requireID(id any, op string) error {
	if id == nil {
		return errors.NewInvalidInput("%s.%s 需要 %s", m.meta.Name, op, m.meta.IDName())
	}
	return nil
}

// FindByID 行不存在（或已软删除且未要求包含）时返回 nil, nil
func (m *Model) FindByID(ctx context.Context, id any, includeDeleted bool) (store.Row, error) {
	if err := m.requireID(id, "FindByID"); err != nil {
		return nil, err
	}
	row, err := m.base.FindByID(ctx, id)
	if err != nil || row == nil {
		return nil, err
	}
	if !includeDeleted && m.isDeleted(row) {
		return nil, nil
	}
	return row, nil
}

func (m *Model) Find(ctx context.Context, filter query.Filter) ([]store.Row, error) {
	if err := m.checkWhere(filter.Where); err != nil {
		return nil, err
	}
	filter.Where = m.scope(filter.Where, filter.Deleted)
	return m.base.Find(ctx, filter)
}

func (m *Model) Count(ctx context.Context, filter query.Filter) (int64, error) {
	if err := m.checkWhere(filter.Where); err != nil {
		return 0, err
	}
	return m.base.Count(ctx, m.scope(filter.Where, filter.Deleted))
}

// FindOrCreate 返回第一条匹配的行，没有时以 data 创建；created 表示是否新建
func (m *Model) FindOrCreate(ctx context.Context, filter query.Filter, data store.Row, opts ...WriteOption) (row store.Row, created bool, err error) {
	filter.Limit = 1
	rows, err := m.Find(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	if len(rows) > 0 {
		return rows[0], false, nil
	}
	row, err = m.Create(ctx, data, opts...)
	return row, row != nil, err
}

// Create 新建一行，createdBy 取当前用户
func (m *Model) Create(ctx context.Context, data store.Row, opts ...WriteOption) (store.Row, error) {
	wc := &WriteContext{IsNewInstance: true, Instance: data.Clone(), Options: applyWriteOptions(opts)}
	if wc.Instance == nil {
		wc.Instance = store.Row{}
	}
	if err := m.hooks.beforeSave(ctx, wc); err != nil {
		return nil, err
	}
	row, err := m.base.Create(ctx, wc.Instance)
	if err != nil {
		return nil, err
	}
	return row, m.hooks.afterSave(ctx, wc, row, 1)
}

// Save 没有主键时新建，否则整行更新已存在的行（不存在返回 NotFound）
func (m *Model) Save(ctx context.Context, instance store.Row, opts ...WriteOption) (store.Row, error) {
	if instance[m.meta.IDName()] == nil {
		return m.Create(ctx, instance, opts...)
	}
	return m.save(ctx, instance, applyWriteOptions(opts))
}

// Upsert 按主键存在与否更新或新建
func (m *Model) Upsert(ctx context.Context, data store.Row, opts ...WriteOption) (store.Row, error) {
	id := data[m.meta.IDName()]
	if id == nil {
		return m.Create(ctx, data, opts...)
	}
	existing, err := m.base.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return m.Create(ctx, data, opts...)
	}

	o := applyWriteOptions(opts)
	if m.meta.Setting(SettingValidateUpsert) {
		return m.saveValidated(ctx, data, o)
	}
	return m.save(ctx, data, o)
}

func (m *Model) saveValidated(ctx context.Context, data store.Row, o WriteOptions) (store.Row, error) {
	wc := &WriteContext{Instance: data.Clone(), Options: o}
	if err := m.hooks.beforeSave(ctx, wc); err != nil {
		return nil, err
	}
	for _, f := range m.meta.Fields {
		if f.Required && !f.PrimaryKey && wc.Instance[f.Name] == nil {
			return nil, errors.NewValidationError(fmt.Sprintf("%s.%s 不能为空", m.meta.Name, f.Name))
		}
	}
	return m.write(ctx, wc)
}

func (m *Model) save(ctx context.Context, instance store.Row, o WriteOptions) (store.Row, error) {
	wc := &WriteContext{Instance: instance.Clone(), Options: o}
	if err := m.hooks.beforeSave(ctx, wc); err != nil {
		return nil, err
	}
	return m.write(ctx, wc)
}

func (m *Model) write(ctx context.Context, wc *WriteContext) (store.Row, error) {
	row, err := m.base.UpdateAttributes(ctx, wc.Instance[m.meta.IDName()], wc.Instance)
	if err != nil {
		return nil, err
	}
	return row, m.hooks.afterSave(ctx, wc, row, 1)
}

// UpdateAttributes 更新单行的部分字段并返回更新后的行
func (m *Model) UpdateAttributes(ctx context.Context, id any, data store.Row, opts ...WriteOption) (store.Row, error) {
	if err := m.requireID(id, "UpdateAttributes"); err != nil {
		return nil, err
	}
	wc := &WriteContext{
		Data:    data.Clone(),
		Where:   query.Eq(m.meta.IDName(), id),
		Options: applyWriteOptions(opts),
	}
	if wc.Data == nil {
		wc.Data = store.Row{}
	}
	delete(wc.Data, m.meta.IDName())

	if err := m.hooks.beforeSave(ctx, wc); err != nil {
		return nil, err
	}
	row, err := m.base.UpdateAttributes(ctx, id, wc.Data)
	if err != nil {
		return nil, err
	}
	return row, m.hooks.afterSave(ctx, wc, row, 1)
}

// UpdateAll 按条件批量更新，返回受影响行数
func (m *Model) UpdateAll(ctx context.Context, where query.Where, data store.Row, opts ...WriteOption) (int64, error) {
	o := applyWriteOptions(opts)
	if err := m.checkWhere(where); err != nil {
		return 0, err
	}
	effective := m.scope(where, o.Deleted)
	wc := &WriteContext{Data: data.Clone(), Where: effective, Options: o}
	if wc.Data == nil {
		wc.Data = store.Row{}
	}

	if err := m.hooks.beforeSave(ctx, wc); err != nil {
		return 0, err
	}
	n, err := m.base.UpdateAll(ctx, effective, wc.Data)
	if err != nil {
		return 0, err
	}
	return n, m.hooks.afterSave(ctx, wc, nil, n)
}

// Update 同 UpdateAll
func (m *Model) Update(ctx context.Context, where query.Where, data store.Row, opts ...WriteOption) (int64, error) {
	return m.UpdateAll(ctx, where, data, opts...)
}

// DestroyAll 删除匹配的行；softDelete 开启时为置 deletedAt 的批量更新，已删除的行不受影响
func (m *Model) DestroyAll(ctx context.Context, where query.Where) (int64, error) {
	if err := m.checkWhere(where); err != nil {
		return 0, err
	}
	if m.cfg.SoftDelete {
		return m.UpdateAll(ctx, where, m.scrubbed.Clone(), asDelete())
	}
	return m.deleteAll(ctx, where)
}

func (m *Model) Remove(ctx context.Context, where query.Where) (int64, error) {
	return m.DestroyAll(ctx, where)
}

func (m *Model) DeleteAll(ctx context.Context, where query.Where) (int64, error) {
	return m.DestroyAll(ctx, where)
}

// DestroyByID 删除单行
func (m *Model) DestroyByID(ctx context.Context, id any) (int64, error) {
	if err := m.requireID(id, "DestroyByID"); err != nil {
		return 0, err
	}
	return m.DestroyAll(ctx, query.Eq(m.meta.IDName(), id))
}

func (m *Model) RemoveByID(ctx context.Context, id any) (int64, error) {
	return m.DestroyByID(ctx, id)
}

func (m *Model) DeleteByID(ctx context.Context, id any) (int64, error) {
	return m.DestroyByID(ctx, id)
}

// Destroy 删除实例；softDelete 开启时只更新该实例自身，不检查是否已删除
func (m *Model) Destroy(ctx context.Context, instance store.Row) (int64, error) {
	id := instance[m.meta.IDName()]
	if err := m.requireID(id, "Destroy"); err != nil {
		return 0, err
	}
	if !m.cfg.SoftDelete {
		return m.deleteAll(ctx, query.Eq(m.meta.IDName(), id))
	}

	wc := &WriteContext{
		Instance: instance.Clone(),
		Data:     m.scrubbed.Clone(),
		Options:  WriteOptions{Delete: true},
	}
	if err := m.hooks.beforeSave(ctx, wc); err != nil {
		return 0, err
	}
	if _, err := m.base.UpdateAttributes(ctx, id, wc.Data); err != nil {
		return 0, err
	}
	return 1, m.hooks.afterSave(ctx, wc, nil, 1)
}

func (m *Model) RemoveInstance(ctx context.Context, instance store.Row) (int64, error) {
	return m.Destroy(ctx, instance)
}

func (m *Model) DeleteInstance(ctx context.Context, instance store.Row) (int64, error) {
	return m.Destroy(ctx, instance)
}

// deleteAll 物理删除，旧记录在删除前解析
func (m *Model) deleteAll(ctx context.Context, where query.Where) (int64, error) {
	wc := &WriteContext{Where: where, Options: WriteOptions{Delete: true}}
	if err := m.hooks.beforeSave(ctx, wc); err != nil {
		return 0, err
	}
	n, err := m.base.DeleteAll(ctx, where)
	if err != nil {
		return 0, err
	}
	return n, m.hooks.afterSave(ctx, wc, nil, n)
}
