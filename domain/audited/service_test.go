package audited

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditz/codegen/snowflake"
	"auditz/data/orm"
	"auditz/data/query"
	"auditz/data/store"
	"auditz/errors"
	"auditz/logging"
)

func TestService_AuditTrailAndRestore(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	svc := NewService(f.model, nil)
	ctx := asUser(4)

	rows := f.seed(t, ctx, store.Row{"name": "a"}, store.Row{"name": "b"})
	id := rows[0]["id"]
	_, err := f.model.UpdateAttributes(ctx, id, store.Row{"name": "a2"})
	require.NoError(t, err)
	_, err = f.model.DestroyByID(ctx, id)
	require.NoError(t, err)

	deleted, err := svc.ListDeleted(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, id, deleted[0]["id"])

	restored, err := svc.Restore(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, restored["deletedAt"])
	assert.Nil(t, restored["deletedBy"])

	_, err = svc.Restore(ctx, id)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeConflict))
	_, err = svc.Restore(ctx, int64(12345))
	assert.True(t, errors.IsNotFound(err))

	trail, err := svc.AuditTrail(ctx, id, 0, 0)
	require.NoError(t, err)
	actions := make([]Action, len(trail))
	for i, r := range trail {
		actions[i] = r.Action
		assert.Equal(t, id, r.RowID)
	}
	assert.Equal(t, []Action{ActionCreate, ActionUpdate, ActionDelete, ActionUpdate}, actions)

	page, err := svc.AuditTrail(ctx, id, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ActionUpdate, page[0].Action)

	n, err := f.model.Count(ctx, query.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "恢复后重新可见")
}

func TestService_WithoutReader(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Revisions = RevisionsDisabled{}
	m, err := New(context.Background(), store.NewMemoryStore(bookMeta()), cfg)
	require.NoError(t, err)

	trail, err := NewService(m, nil).AuditTrail(context.Background(), 1, 0, 0)
	require.NoError(t, err)
	assert.Nil(t, trail)
}

func TestMemorySink_List(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySink()
	require.NoError(t, s.Append(ctx,
		Revision{ID: "1", Action: ActionCreate, TableName: "Book", RowID: int64(1), New: store.Row{"name": "a"}},
		Revision{ID: "2", Action: ActionCreate, TableName: "Book", RowID: int64(2)},
		Revision{ID: "3", Action: ActionUpdate, TableName: "Book", RowID: 1},
		Revision{ID: "4", Action: ActionCreate, TableName: "Author", RowID: int64(1)},
	))

	got, err := s.List(ctx, RevisionQuery{TableName: "Book", RowID: float64(1)})
	require.NoError(t, err)
	require.Len(t, got, 2, "row_id 跨数值类型比较")
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)

	got, err = s.List(ctx, RevisionQuery{Action: ActionCreate, Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)

	got[0].TableName = "mutated"
	all := s.Revisions()
	all[0].New["name"] = "mutated"
	again := s.Revisions()
	assert.Equal(t, "Book", again[1].TableName)
	assert.Equal(t, "a", again[0].New["name"], "返回值与内部状态隔离")
}

func TestMultiSink(t *testing.T) {
	ctx := context.Background()
	a, b := NewMemorySink(), &migratingSink{}
	multi := MultiSink{a, b}

	require.NoError(t, multi.Append(ctx, Revision{ID: "x", TableName: "Book"}))
	assert.Len(t, a.Revisions(), 1)
	assert.Len(t, b.Revisions(), 1)

	got, err := multi.List(ctx, RevisionQuery{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, multi.Migrate(ctx))
	assert.True(t, b.migrated)
}

func TestDefineMixin(t *testing.T) {
	r := orm.NewRegistry()
	Register(r)
	Register(r)
	require.True(t, r.HasMixin(MixinName))

	meta := bookMeta()
	require.NoError(t, r.Apply(MixinName, meta, map[string]any{
		"softDelete": false,
		"createdBy":  "author",
		"revisions":  false,
	}))
	assert.True(t, meta.HasField("author"))
	assert.False(t, meta.HasField("deletedAt"))

	cfg, ok := ConfigFor(meta)
	require.True(t, ok)
	assert.Equal(t, FieldName("author"), cfg.CreatedBy)

	m, err := New(context.Background(), store.NewMemoryStore(meta), cfg)
	require.NoError(t, err)
	row, err := m.Create(asUser(11), store.Row{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, 11, row["author"])

	err = r.Apply(MixinName, bookMeta(), map[string]any{"revisions": 1})
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeConfig))
}

// findRecorder 记录最后一次 Find 的参数
type findRecorder struct {
	*store.MemoryStore
	last query.Filter
}

func (r *findRecorder) Find(ctx context.Context, filter query.Filter) ([]store.Row, error) {
	r.last = filter
	return r.MemoryStore.Find(ctx, filter)
}

func TestService_ListDeletedPagesInStore(t *testing.T) {
	base := &findRecorder{MemoryStore: store.NewMemoryStore(bookMeta(), store.WithIDGenerator(snowflake.NewSequence()))}
	m, err := New(context.Background(), base, DefaultConfig(),
		WithSink(NewMemorySink()), WithLogger(logging.NewNoopLogger()))
	require.NoError(t, err)
	svc := NewService(m, nil)
	ctx := asUser(1)

	var ids []any
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		row, err := m.Create(ctx, store.Row{"name": name})
		require.NoError(t, err)
		ids = append(ids, row["id"])
	}
	for _, i := range []int{0, 2, 3} {
		_, err := m.DestroyByID(ctx, ids[i])
		require.NoError(t, err)
	}

	page, err := svc.ListDeleted(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c", page[0]["name"])
	assert.Equal(t, 1, base.last.Limit)
	assert.Equal(t, 1, base.last.Offset)
	assert.Contains(t, base.last.Where.String(), "deletedAt is not null")

	all, err := svc.ListDeleted(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := svc.ListDeleted(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}
