package audited

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"auditz/codegen/snowflake"
	core "auditz/data/db"
	"auditz/data/db/basic"
	"auditz/data/orm"
	"auditz/data/query"
	"auditz/data/store"
	"auditz/errors"
	"auditz/httpx"
	"auditz/logging"
)

var baseTime = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func bookMeta() *orm.ModelMeta {
	return orm.NewModelMeta("Book",
		orm.FieldMeta{Name: "name", Type: orm.FieldString},
		orm.FieldMeta{Name: "type", Type: orm.FieldString},
	)
}

type fixture struct {
	model *Model
	base  *store.MemoryStore
	sink  *MemorySink
}

func newFixture(t *testing.T, cfg Config, opts ...Option) fixture {
	t.Helper()
	base := store.NewMemoryStore(bookMeta(), store.WithIDGenerator(snowflake.NewSequence()))
	sink := NewMemorySink()
	all := append([]Option{
		WithSink(sink),
		WithLogger(logging.NewNoopLogger()),
		WithClock(func() time.Time { return baseTime }),
	}, opts...)
	m, err := New(context.Background(), base, cfg, all...)
	require.NoError(t, err)
	return fixture{model: m, base: base, sink: sink}
}

func asUser(id any) context.Context {
	return httpx.WithUser(context.Background(), id)
}

func (f fixture) seed(t *testing.T, ctx context.Context, rows ...store.Row) []store.Row {
	t.Helper()
	out := make([]store.Row, len(rows))
	for i, r := range rows {
		created, err := f.model.Create(ctx, r)
		require.NoError(t, err)
		out[i] = created
	}
	return out
}

func TestModel_CreateStampsAndEmitsCreateRevision(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := asUser(7)

	row, err := f.model.Create(ctx, store.Row{"name": "book 1", "type": "fiction", "createdBy": 99})
	require.NoError(t, err)
	assert.Equal(t, 7, row["createdBy"], "createdBy 取当前用户")
	assert.Equal(t, 7, row["updatedBy"])
	assert.Equal(t, baseTime, row["updatedAt"])
	assert.NotNil(t, row["createdAt"])

	revs := f.sink.Revisions()
	require.Len(t, revs, 1)
	rev := revs[0]
	assert.Equal(t, ActionCreate, rev.Action)
	assert.Equal(t, "Book", rev.TableName)
	assert.Equal(t, row["id"], rev.RowID)
	assert.Nil(t, rev.Old)
	assert.Equal(t, 7, rev.User)
	assert.Equal(t, httpx.LoopbackIP, rev.IP)
	assert.Equal(t, "", rev.IPForwarded)
	assert.NotEmpty(t, rev.ID)

	stored, err := f.model.FindByID(ctx, row["id"], true)
	require.NoError(t, err)
	assert.Equal(t, stored, rev.New, "回读的行与 create 修订的 new 一致")
}

func TestModel_UnknownUserWithoutActor(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	row, err := f.model.Create(context.Background(), store.Row{"name": "a"})
	require.NoError(t, err)
	assert.Equal(t, 0, row["createdBy"])
	assert.Equal(t, 0, f.sink.Revisions()[0].User)
}

func TestModel_UpdateKeepsCreatedFields(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	created := f.seed(t, asUser(7), store.Row{"name": "book 1", "type": "fiction"})[0]
	f.sink.Reset()

	updated, err := f.model.UpdateAttributes(asUser(9), created["id"], store.Row{
		"name":      "book 1 (2nd)",
		"createdBy": 1,
		"createdAt": baseTime.Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 9, updated["updatedBy"])
	assert.Equal(t, 7, updated["createdBy"])
	assert.Equal(t, created["createdAt"], updated["createdAt"])

	revs := f.sink.Revisions()
	require.Len(t, revs, 1)
	assert.Equal(t, ActionUpdate, revs[0].Action)
	assert.Equal(t, created, revs[0].Old)
	assert.Equal(t, updated, revs[0].New)
	assert.Equal(t, 9, revs[0].User)
}

func TestModel_BulkUpdatePairsByIdentity(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := asUser(7)
	rows := f.seed(t, ctx,
		store.Row{"name": "a", "type": "fiction"},
		store.Row{"name": "b", "type": "poetry"},
		store.Row{"name": "c", "type": "fiction"},
		store.Row{"name": "d", "type": "fiction"},
	)
	f.sink.Reset()

	n, err := f.model.UpdateAll(asUser(9), query.Eq("type", "fiction"), store.Row{"type": "classic", "createdBy": 3})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	revs := f.sink.Revisions()
	require.Len(t, revs, 3)
	seen := map[any]bool{}
	for _, rev := range revs {
		assert.Equal(t, ActionUpdate, rev.Action)
		assert.Equal(t, rev.RowID, rev.Old["id"])
		assert.Equal(t, rev.RowID, rev.New["id"])
		assert.Equal(t, rev.Old["name"], rev.New["name"], "按主键配对")
		assert.Equal(t, "fiction", rev.Old["type"])
		assert.Equal(t, "classic", rev.New["type"])
		assert.Equal(t, 7, rev.New["createdBy"])
		seen[rev.RowID] = true
	}
	assert.False(t, seen[rows[1]["id"]])
}

func TestModel_UpdatedAtStrictlyIncreases(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := asUser(1)
	rows := f.seed(t, ctx, store.Row{"name": "a"}, store.Row{"name": "b"})

	last := map[any]time.Time{}
	for _, r := range rows {
		last[r["id"]] = r["updatedAt"].(time.Time)
	}
	for i := 0; i < 3; i++ {
		_, err := f.model.UpdateAll(ctx, query.Where{}, store.Row{"type": "x"})
		require.NoError(t, err)
		for _, r := range rows {
			got, err := f.model.FindByID(ctx, r["id"], false)
			require.NoError(t, err)
			at := got["updatedAt"].(time.Time)
			assert.True(t, at.After(last[r["id"]]), "第 %d 次批量更新后 updatedAt 递增", i)
			last[r["id"]] = at
		}
	}
}

func TestModel_SkipUpdatedAt(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	row := f.seed(t, asUser(1), store.Row{"name": "a"})[0]

	updated, err := f.model.UpdateAttributes(asUser(2), row["id"], store.Row{"name": "b"}, SkipUpdatedAt())
	require.NoError(t, err)
	assert.Equal(t, row["updatedAt"], updated["updatedAt"])
	assert.Equal(t, 1, updated["updatedBy"])
}

func TestModel_MaskedDestroyAll(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	rows := f.seed(t, asUser(7),
		store.Row{"name": "a", "type": "fiction"},
		store.Row{"name": "b", "type": "fiction"},
		store.Row{"name": "c", "type": "poetry"},
	)
	f.sink.Reset()

	n, err := f.model.DestroyAll(asUser(9), query.Eq("type", "fiction"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	revs := f.sink.Revisions()
	require.Len(t, revs, 2)
	byID := map[any]store.Row{rows[0]["id"]: rows[0], rows[1]["id"]: rows[1]}
	for _, rev := range revs {
		assert.Equal(t, ActionDelete, rev.Action)
		assert.Nil(t, rev.New)
		assert.Equal(t, byID[rev.RowID], rev.Old, "old 为删除前快照")
	}

	raw, err := f.base.FindByID(context.Background(), rows[0]["id"])
	require.NoError(t, err)
	require.NotNil(t, raw, "软删除不移除行")
	assert.Equal(t, 9, raw["deletedBy"])
	assert.NotNil(t, raw["deletedAt"])
	assert.Equal(t, "a", raw["name"], "未开启 scrub 时保留字段")

	// 再次删除不会重复标记
	f.sink.Reset()
	n, err = f.model.DestroyAll(asUser(9), query.Eq("type", "fiction"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Empty(t, f.sink.Revisions())
}

func TestModel_ReadsExcludeDeletedUnlessAsked(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := asUser(1)
	rows := f.seed(t, ctx, store.Row{"name": "a", "type": "x"}, store.Row{"name": "b", "type": "x"})
	_, err := f.model.DestroyByID(ctx, rows[0]["id"])
	require.NoError(t, err)

	found, err := f.model.Find(ctx, query.Filter{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "b", found[0]["name"])

	found, err = f.model.Find(ctx, query.Filter{Where: query.Eq("type", "x"), Deleted: true})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	n, err := f.model.Count(ctx, query.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = f.model.Count(ctx, query.Filter{Deleted: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := f.model.FindByID(ctx, rows[0]["id"], false)
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = f.model.FindByID(ctx, rows[0]["id"], true)
	require.NoError(t, err)
	assert.NotNil(t, got)

	row, created, err := f.model.FindOrCreate(ctx, query.WhereFilter(query.Eq("name", "a")), store.Row{"name": "a"})
	require.NoError(t, err)
	assert.True(t, created, "已删除的行对 findOrCreate 不可见")
	assert.NotEqual(t, rows[0]["id"], row["id"])

	row, created, err = f.model.FindOrCreate(ctx, query.Filter{Where: query.Eq("name", "a"), Deleted: true}, store.Row{"name": "a"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rows[0]["id"], row["id"])

	// update 同样不作用于已删除的行
	n, err = f.model.UpdateAll(ctx, query.Eq("type", "x"), store.Row{"type": "y"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestModel_ScrubAllNullsNonKeyFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scrub = Scrub{All: true}
	f := newFixture(t, cfg)
	row := f.seed(t, asUser(7), store.Row{"name": "a", "type": "fiction"})[0]

	n, err := f.model.DestroyByID(asUser(9), row["id"])
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	raw, err := f.base.FindByID(context.Background(), row["id"])
	require.NoError(t, err)
	for _, field := range []string{"name", "type", "updatedAt", "updatedBy"} {
		assert.Nil(t, raw[field], field)
	}
	assert.Equal(t, row["id"], raw["id"])
	assert.NotNil(t, raw["deletedAt"])
	assert.Equal(t, 9, raw["deletedBy"])
	// createdAt/createdBy 不可被任何更新覆盖
	assert.Equal(t, row["createdAt"], raw["createdAt"])
	assert.Equal(t, 7, raw["createdBy"])

	revs := f.sink.Revisions()
	last := revs[len(revs)-1]
	assert.Equal(t, ActionDelete, last.Action)
	assert.Equal(t, "a", last.Old["name"])
}

func TestModel_ScrubList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scrub = Scrub{Fields: []string{"name", "id", "deletedAt", "missing"}}
	f := newFixture(t, cfg)
	assert.Equal(t, store.Row{"name": nil}, f.model.scrubbed)

	row := f.seed(t, asUser(1), store.Row{"name": "a", "type": "t"})[0]
	_, err := f.model.Destroy(asUser(2), row)
	require.NoError(t, err)

	raw, _ := f.base.FindByID(context.Background(), row["id"])
	assert.Nil(t, raw["name"])
	assert.Equal(t, "t", raw["type"])
	assert.Equal(t, 2, raw["deletedBy"])
}

func TestModel_DestroyInstance(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	row := f.seed(t, asUser(1), store.Row{"name": "a"})[0]
	f.sink.Reset()

	n, err := f.model.DeleteInstance(asUser(3), row)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	revs := f.sink.Revisions()
	require.Len(t, revs, 1)
	assert.Equal(t, ActionDelete, revs[0].Action)
	assert.Equal(t, row, revs[0].Old)

	_, err = f.model.Destroy(asUser(3), store.Row{"name": "no id"})
	assert.True(t, errors.IsInvalidInput(err))

	_, err = f.model.Destroy(asUser(3), store.Row{"id": int64(404)})
	assert.True(t, errors.IsNotFound(err))
}

func TestModel_DestroyByIDOfDeletedRowEmitsNothing(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := asUser(1)
	row := f.seed(t, ctx, store.Row{"name": "a"})[0]
	_, err := f.model.RemoveByID(ctx, row["id"])
	require.NoError(t, err)
	f.sink.Reset()

	n, err := f.model.DeleteByID(ctx, row["id"])
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Empty(t, f.sink.Revisions())
}

func TestModel_PhysicalDeleteWhenSoftDeleteDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SoftDelete = false
	f := newFixture(t, cfg)
	ctx := asUser(1)
	assert.False(t, f.model.Meta().HasField("deletedAt"))

	rows := f.seed(t, ctx,
		store.Row{"name": "a", "type": "fiction"},
		store.Row{"name": "b", "type": "fiction"},
	)
	f.sink.Reset()

	n, err := f.model.Remove(ctx, query.Eq("type", "fiction"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := f.base.Count(context.Background(), query.Where{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), left)

	revs := f.sink.Revisions()
	require.Len(t, revs, 2)
	assert.Equal(t, rows[0], revs[0].Old)
	assert.Nil(t, revs[0].New)
}

// countingStore 记录底层调用次数
type countingStore struct {
	store.IRowStore
	calls   int
	findErr error
}

func (c *countingStore) FindByID(ctx context.Context, id any) (store.Row, error) {
	c.calls++
	if c.findErr != nil {
		return nil, c.findErr
	}
	return c.IRowStore.FindByID(ctx, id)
}

func (c *countingStore) Find(ctx context.Context, filter query.Filter) ([]store.Row, error) {
	c.calls++
	if c.findErr != nil {
		return nil, c.findErr
	}
	return c.IRowStore.Find(ctx, filter)
}

func (c *countingStore) UpdateAll(ctx context.Context, where query.Where, data store.Row) (int64, error) {
	c.calls++
	return c.IRowStore.UpdateAll(ctx, where, data)
}

func (c *countingStore) DeleteAll(ctx context.Context, where query.Where) (int64, error) {
	c.calls++
	return c.IRowStore.DeleteAll(ctx, where)
}

func newCounting(t *testing.T) (*Model, *countingStore) {
	t.Helper()
	base := &countingStore{IRowStore: store.NewMemoryStore(bookMeta())}
	m, err := New(context.Background(), base, DefaultConfig(),
		WithSink(NewMemorySink()), WithLogger(logging.NewNoopLogger()))
	require.NoError(t, err)
	return m, base
}

func TestModel_InvalidWhereRejectedBeforeStorage(t *testing.T) {
	m, base := newCounting(t)
	ctx := context.Background()

	_, err := m.DestroyAll(ctx, query.Where{Op: "like", Field: "name", Value: "a%"})
	assert.True(t, errors.IsInvalidInput(err))

	_, err = m.DestroyAll(ctx, query.Eq("colour", "red"))
	assert.True(t, errors.IsInvalidInput(err))

	_, err = m.UpdateAll(ctx, query.Eq("bad name", 1), store.Row{"name": "x"})
	assert.True(t, errors.IsInvalidInput(err))

	_, err = m.Find(ctx, query.WhereFilter(query.Where{Op: query.OpEq, Field: "name;drop"}))
	assert.True(t, errors.IsInvalidInput(err))

	assert.Equal(t, 0, base.calls, "非法条件不触达存储")

	// 非对象的原始条件在解析阶段被拒绝
	_, err = query.Parse("type = fiction")
	assert.ErrorIs(t, err, query.ErrInvalidWhere)
}

func TestModel_LookupFailureAbortsWrite(t *testing.T) {
	m, base := newCounting(t)
	base.findErr = stdErrors.New("connection refused")

	_, err := m.UpdateAll(context.Background(), query.Eq("type", "fiction"), store.Row{"name": "x"})
	require.Error(t, err)
	assert.True(t, errors.IsLookup(err))
	assert.Equal(t, 1, base.calls, "只有解析旧记录的一次读取，没有写入")

	_, err = m.DestroyByID(context.Background(), 1)
	assert.True(t, errors.IsLookup(err))
}

type failingSink struct{ err error }

func (s failingSink) Append(context.Context, ...Revision) error { return s.err }

func TestModel_SinkFailureSurfacesAfterCommit(t *testing.T) {
	base := store.NewMemoryStore(bookMeta())
	m, err := New(context.Background(), base, DefaultConfig(),
		WithSink(failingSink{err: stdErrors.New("disk full")}), WithLogger(logging.NewNoopLogger()))
	require.NoError(t, err)

	row, err := m.Create(asUser(1), store.Row{"name": "a"})
	require.Error(t, err)
	assert.True(t, errors.IsRevisionSink(err))
	require.NotNil(t, row, "数据写入已生效")

	stored, err := base.FindByID(context.Background(), row["id"])
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestModel_ZeroRowBulkUpdateSkipsRevisions(t *testing.T) {
	logger := logging.NewRecordingLogger()
	f := newFixture(t, DefaultConfig(), WithLogger(logger))

	n, err := f.model.UpdateAll(asUser(1), query.Eq("type", "none"), store.Row{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Empty(t, f.sink.Revisions())

	debug := logger.ByLevel(logging.DebugLevel)
	require.NotEmpty(t, debug)
	reason, _ := debug[len(debug)-1].Field("reason")
	assert.Equal(t, "no_rows", reason)
}

func TestModel_BulkUpdateByIDRereadsRow(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	row := f.seed(t, asUser(1), store.Row{"name": "a", "type": "x"})[0]
	f.sink.Reset()

	n, err := f.model.Update(asUser(2), query.And(query.Eq("id", row["id"]), query.Eq("type", "x")), store.Row{"name": "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	revs := f.sink.Revisions()
	require.Len(t, revs, 1)
	assert.Equal(t, "a", revs[0].Old["name"])
	assert.Equal(t, "b", revs[0].New["name"])
}

func TestModel_RouteIDFallback(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	rows := f.seed(t, asUser(1), store.Row{"name": "a", "type": "x"}, store.Row{"name": "b", "type": "x"})
	f.sink.Reset()

	actor := httpx.Actor{UserID: 5, IP: "10.1.1.1", IPForwarded: "198.51.100.7"}.WithRouteID(rows[1]["id"])
	ctx := httpx.WithActor(context.Background(), actor)

	_, err := f.model.UpdateAll(ctx, query.Eq("name", "b"), store.Row{"type": "y"})
	require.NoError(t, err)

	revs := f.sink.Revisions()
	require.Len(t, revs, 1)
	assert.Equal(t, rows[1]["id"], revs[0].RowID)
	assert.Equal(t, "10.1.1.1", revs[0].IP)
	assert.Equal(t, "198.51.100.7", revs[0].IPForwarded)
	assert.Equal(t, 5, revs[0].User)
}

func TestModel_UpsertKeepsCreatedFields(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	row := f.seed(t, asUser(7), store.Row{"name": "a"})[0]

	up := row.Clone()
	up["name"] = "b"
	up["createdBy"] = 100
	up["createdAt"] = baseTime.Add(-24 * time.Hour)
	saved, err := f.model.Upsert(asUser(8), up)
	require.NoError(t, err)
	assert.Equal(t, "b", saved["name"])
	assert.Equal(t, 7, saved["createdBy"])
	assert.Equal(t, row["createdAt"], saved["createdAt"])
	assert.Equal(t, 8, saved["updatedBy"])

	fresh, err := f.model.Upsert(asUser(8), store.Row{"id": int64(900), "name": "new"})
	require.NoError(t, err)
	assert.Equal(t, int64(900), fresh["id"])
	assert.Equal(t, 8, fresh["createdBy"])

	revs := f.sink.Revisions()
	assert.Equal(t, ActionUpdate, revs[len(revs)-2].Action)
	assert.Equal(t, ActionCreate, revs[len(revs)-1].Action)
}

func TestModel_UpsertWithValidationFailsOnRequiredTimestamps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ValidateUpsert = true
	f := newFixture(t, cfg)
	row := f.seed(t, asUser(1), store.Row{"name": "a"})[0]

	_, err := f.model.Upsert(asUser(1), row)
	assert.True(t, errors.IsValidationError(err), "createdAt 被剥离后必填校验失败")
}

func TestModel_SaveRequiresExistingRow(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	_, err := f.model.Save(asUser(1), store.Row{"id": int64(77), "name": "ghost"})
	assert.True(t, errors.IsNotFound(err))

	row, err := f.model.Save(asUser(1), store.Row{"name": "real"})
	require.NoError(t, err)
	row["name"] = "renamed"
	saved, err := f.model.Save(asUser(2), row)
	require.NoError(t, err)
	assert.Equal(t, "renamed", saved["name"])
	assert.Equal(t, 1, saved["createdBy"])
}

func TestModel_RevisionsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Revisions = RevisionsDisabled{}
	base := store.NewMemoryStore(bookMeta())
	m, err := New(context.Background(), base, cfg, WithLogger(logging.NewNoopLogger()))
	require.NoError(t, err)
	assert.Nil(t, m.Sink())

	row, err := m.Create(asUser(3), store.Row{"name": "a"})
	require.NoError(t, err)
	assert.Equal(t, 3, row["createdBy"])

	_, err = m.DestroyAll(asUser(3), query.Where{})
	require.NoError(t, err)
}

func TestModel_DefaultSnowflakeIDs(t *testing.T) {
	base := store.NewMemoryStore(bookMeta())
	sink := NewMemorySink()
	m, err := New(context.Background(), base, DefaultConfig(), WithSink(sink), WithLogger(logging.NewNoopLogger()))
	require.NoError(t, err)
	ctx := asUser(1)

	names := map[any]string{}
	for n := 0; n < 50; n++ {
		row, err := m.Create(ctx, store.Row{"name": fmt.Sprintf("book %d", n), "type": "fiction"})
		require.NoError(t, err, "第 %d 次创建", n)
		names[row["id"]] = row["name"].(string)
	}
	require.Len(t, names, 50)
	sink.Reset()

	affected, err := m.UpdateAll(ctx, query.Eq("type", "fiction"), store.Row{"type": "classic"})
	require.NoError(t, err)
	assert.Equal(t, int64(50), affected)

	revs := sink.Revisions()
	require.Len(t, revs, 50)
	for _, rev := range revs {
		assert.Equal(t, rev.RowID, rev.New["id"])
		assert.Equal(t, names[rev.RowID], rev.Old["name"])
		assert.Equal(t, names[rev.RowID], rev.New["name"])
	}
}

func TestModel_BulkUpdatePairsByIdentityOnSQLite(t *testing.T) {
	database, err := basic.New(core.DBConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	meta := bookMeta()
	Annotate(meta, DefaultConfig())
	base := store.NewSQLStore(database, meta)
	require.NoError(t, base.Migrate(context.Background()))

	sink := NewMemorySink()
	m, err := New(context.Background(), base, DefaultConfig(), WithSink(sink), WithLogger(logging.NewNoopLogger()))
	require.NoError(t, err)
	ctx := asUser(1)

	names := map[string]string{}
	for _, name := range []string{"a", "b", "c"} {
		row, err := m.Create(ctx, store.Row{"name": name, "type": "poetry"})
		require.NoError(t, err)
		names[query.Key(row["id"])] = name
	}
	sink.Reset()

	_, err = m.UpdateAll(ctx, query.Eq("type", "poetry"), store.Row{"type": "fiction"})
	require.NoError(t, err)

	revs := sink.Revisions()
	require.Len(t, revs, 3)
	for _, rev := range revs {
		want := names[query.Key(rev.RowID)]
		assert.Equal(t, want, rev.Old["name"])
		assert.Equal(t, want, rev.New["name"])
		assert.True(t, query.Equal(rev.RowID, rev.New["id"]))
	}
}
