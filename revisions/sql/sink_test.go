package sql

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"auditz/codegen/snowflake"
	core "auditz/data/db"
	"auditz/data/db/basic"
	"auditz/data/orm"
	"auditz/data/store"
	"auditz/di"
	"auditz/domain/audited"
	"auditz/errors"
	"auditz/httpx"
	"auditz/logging"
)

var at = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newSQLite(t *testing.T) core.IDatabase {
	t.Helper()
	database, err := basic.New(core.DBConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestSink_AppendAndList(t *testing.T) {
	ctx := context.Background()
	sink := New(newSQLite(t), audited.RevisionsEnabled{Name: "book_revisions"})
	require.NoError(t, sink.Migrate(ctx))
	require.NoError(t, sink.Migrate(ctx), "重复建表")

	require.NoError(t, sink.Append(ctx,
		audited.Revision{
			ID: "r1", Action: audited.ActionCreate, TableName: "Book", RowID: int64(1),
			New: store.Row{"name": "a"}, User: 7, IP: "10.0.0.5", CreatedAt: at,
		},
		audited.Revision{
			ID: "r2", Action: audited.ActionUpdate, TableName: "Book", RowID: int64(1),
			Old: store.Row{"name": "a"}, New: store.Row{"name": "b"}, User: "alice",
			IPForwarded: "203.0.113.9", CreatedAt: at.Add(time.Microsecond),
		},
		audited.Revision{
			ID: "r3", Action: audited.ActionCreate, TableName: "Author", RowID: int64(1), CreatedAt: at,
		},
	))

	got, err := sink.List(ctx, audited.RevisionQuery{TableName: "Book", RowID: int64(1)})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, audited.ActionCreate, got[0].Action)
	assert.Equal(t, int64(1), got[0].RowID)
	assert.Nil(t, got[0].Old)
	assert.Equal(t, store.Row{"name": "a"}, got[0].New)
	assert.Equal(t, int64(7), got[0].User, "整数用户 id 还原")
	assert.Equal(t, "10.0.0.5", got[0].IP)
	assert.True(t, got[0].CreatedAt.Equal(at))

	assert.Equal(t, "r2", got[1].ID)
	assert.Equal(t, "alice", got[1].User)
	assert.Equal(t, store.Row{"name": "a"}, got[1].Old)
	assert.Equal(t, "203.0.113.9", got[1].IPForwarded)

	got, err = sink.List(ctx, audited.RevisionQuery{Action: audited.ActionCreate, Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r3", got[0].ID, "同一时间按 id 排序")
}

func TestSink_AppendBatches(t *testing.T) {
	ctx := context.Background()
	sink := New(newSQLite(t), audited.RevisionsEnabled{})
	require.NoError(t, sink.Migrate(ctx))
	assert.Equal(t, "revisions", sink.Table())

	revs := make([]audited.Revision, batchSize*2+50)
	for i := range revs {
		revs[i] = audited.Revision{
			ID:        fmt.Sprintf("r%04d", i),
			Action:    audited.ActionDelete,
			TableName: "Book",
			RowID:     int64(i),
			CreatedAt: at,
		}
	}
	require.NoError(t, sink.Append(ctx, revs...))
	require.NoError(t, sink.Append(ctx))

	got, err := sink.List(ctx, audited.RevisionQuery{TableName: "Book"})
	require.NoError(t, err)
	assert.Len(t, got, len(revs))
}

func TestSink_StringRowIDs(t *testing.T) {
	ctx := context.Background()
	sink := New(newSQLite(t), audited.RevisionsEnabled{IDType: orm.FieldString})
	require.NoError(t, sink.Migrate(ctx))
	require.NoError(t, sink.Append(ctx, audited.Revision{
		ID: "r1", Action: audited.ActionCreate, TableName: "Tag", RowID: "tag-1", CreatedAt: at,
	}))

	got, err := sink.List(ctx, audited.RevisionQuery{RowID: "tag-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tag-1", got[0].RowID)
}

func TestSink_PostgresRollsBackFailedBatch(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	sink := New(basic.Wrap(sqlDB, "postgres"), audited.RevisionsEnabled{})
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "revisions" \("id", "action", "table_name", "row_id", "old", "new", "user", "ip", "ip_forwarded", "created_at"\) VALUES \(\$1, .*\$10\)`).
		WithArgs("r1", "create", "Book", int64(1), nil, `{"name":"a"}`, "7", "", "", at).
		WillReturnError(stdErrors.New("connection reset"))
	mock.ExpectRollback()

	err = sink.Append(context.Background(), audited.Revision{
		ID: "r1", Action: audited.ActionCreate, TableName: "Book", RowID: int64(1),
		New: store.Row{"name": "a"}, User: 7, CreatedAt: at,
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDatabase, errors.GetErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvider_ResolvedAsDataSource(t *testing.T) {
	ctx := context.Background()
	database := newSQLite(t)
	sources := di.New()
	require.NoError(t, sources.RegisterInstance("db", Provider{DB: database}))

	meta := orm.NewModelMeta("Book", orm.FieldMeta{Name: "name", Type: orm.FieldString})
	m, err := audited.New(ctx, store.NewMemoryStore(meta), audited.DefaultConfig(),
		audited.WithDataSources(sources),
		audited.WithLogger(logging.NewNoopLogger()))
	require.NoError(t, err)

	sink, ok := m.Sink().(*Sink)
	require.True(t, ok)
	assert.Equal(t, "revisions", sink.Table())

	row, err := m.Create(httpx.WithUser(ctx, 3), store.Row{"name": "a"})
	require.NoError(t, err)

	trail, err := audited.NewService(m, nil).AuditTrail(ctx, row["id"], 0, 0)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, audited.ActionCreate, trail[0].Action)
	assert.Equal(t, int64(3), trail[0].User)
	assert.Equal(t, "a", trail[0].New["name"])

	_, err = Provider{}.RevisionSink(audited.RevisionsEnabled{})
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeConfig))
}

func TestSink_LargeIDsRoundTrip(t *testing.T) {
	ctx := context.Background()
	id, err := snowflake.Default().NextID()
	require.NoError(t, err)

	sink := New(newSQLite(t), audited.RevisionsEnabled{Name: "book_revisions"})
	require.NoError(t, sink.Migrate(ctx))

	created := store.Row{"id": id, "name": "a", "price": 1.5, "tags": []any{id + 1, "x"}}
	require.NoError(t, sink.Append(ctx, audited.Revision{
		ID: "r1", Action: audited.ActionCreate, TableName: "Book", RowID: id,
		New: created, User: id + 2, CreatedAt: at,
	}))

	got, err := sink.List(ctx, audited.RevisionQuery{TableName: "Book", RowID: id})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].RowID)
	assert.Equal(t, created, got[0].New)
	assert.Equal(t, id+2, got[0].User)

	none, err := sink.List(ctx, audited.RevisionQuery{TableName: "Book", RowID: id + 1})
	require.NoError(t, err)
	assert.Empty(t, none)
}
