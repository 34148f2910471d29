package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditz/data/db/dialect"
)

func sqliteBuilder() ISql {
	return NewWithDialect(nil, dialect.New("sqlite"))
}

func TestSelectBuilder(t *testing.T) {
	q, args, err := sqliteBuilder().Select("id", "name").From("widgets").
		Where(`"deletedAt" IS NULL`).
		Where(`"id" IN (?, ?)`, 1, 2).
		OrderBy("id", true).
		Limit(10).Offset(5).
		Build()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "name" FROM "widgets" WHERE "deletedAt" IS NULL AND "id" IN (?, ?) ORDER BY "id" DESC LIMIT ? OFFSET ?`, q)
	assert.Equal(t, []any{1, 2, 10, 5}, args)
}

func TestSelectBuilder_CountAndOffsetWithoutLimit(t *testing.T) {
	q, _, err := sqliteBuilder().Select("COUNT(*)").From("widgets").Build()
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "widgets"`, q)

	q, _, err = sqliteBuilder().Select().From("widgets").Offset(3).Build()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "widgets" LIMIT -1 OFFSET ?`, q)

	q, _, err = NewWithDialect(nil, dialect.New("postgres")).Select().From("widgets").Offset(3).Build()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "widgets" OFFSET ?`, q)
}

func TestSelectBuilder_UnsafeIdentifiers(t *testing.T) {
	_, _, err := sqliteBuilder().Select("id").From("widgets; drop").Build()
	assert.Error(t, err)

	_, _, err = sqliteBuilder().Select("na me").From("widgets").Build()
	assert.Error(t, err)

	_, _, err = sqliteBuilder().Select("id").From("widgets").OrderBy("1=1", false).Build()
	assert.Error(t, err)
}

func TestInsertBuilder_MultiRow(t *testing.T) {
	q, args, err := sqliteBuilder().InsertInto("revisions").
		Columns("id", "action").
		Values("a", "create").
		Values("b", "delete").
		Build()
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "revisions" ("id", "action") VALUES (?, ?), (?, ?)`, q)
	assert.Equal(t, []any{"a", "create", "b", "delete"}, args)

	_, _, err = sqliteBuilder().InsertInto("revisions").Columns("id", "action").Values("a").Build()
	assert.Error(t, err)

	_, _, err = sqliteBuilder().InsertInto("revisions").Columns("id").Build()
	assert.Error(t, err)
}

func TestUpdateBuilder(t *testing.T) {
	q, args, err := sqliteBuilder().Update("widgets").
		Set("name", "x").
		Set("updatedAt", "now").
		Where(`"id" = ?`, 9).
		Build()
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "widgets" SET "name" = ?, "updatedAt" = ? WHERE "id" = ?`, q)
	assert.Equal(t, []any{"x", "now", 9}, args)

	_, _, err = sqliteBuilder().Update("widgets").Build()
	assert.Error(t, err)
}

func TestDeleteBuilder(t *testing.T) {
	q, args, err := sqliteBuilder().DeleteFrom("widgets").Where(`"id" = ?`, 1).Build()
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "widgets" WHERE "id" = ?`, q)
	assert.Equal(t, []any{1}, args)
}

func TestCreateTableBuilder(t *testing.T) {
	stmts, err := sqliteBuilder().CreateTable("revisions").
		Column("id", "TEXT", "PRIMARY KEY").
		Column("row_id", "INTEGER").
		Index("revisions_table_row_idx", "table_name", "row_id").
		Build()
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS \"revisions\" (\n  \"id\" TEXT PRIMARY KEY,\n  \"row_id\" INTEGER\n)", stmts[0])
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "revisions_table_row_idx" ON "revisions" ("table_name", "row_id")`, stmts[1])

	_, err = sqliteBuilder().CreateTable("x").Build()
	assert.Error(t, err)
}

func TestIsSafeIdentifier(t *testing.T) {
	assert.True(t, isSafeIdentifier("public.revisions"))
	assert.True(t, isSafeIdentifier("_x1"))
	assert.False(t, isSafeIdentifier("1x"))
	assert.False(t, isSafeIdentifier("a..b"))
	assert.False(t, isSafeIdentifier(""))
}
