package basic

import (
	"context"
	"database/sql"
	"errors"

	core "auditz/data/db"
	"auditz/data/db/dialect"
)

var errNestedTx = errors.New("basic.Tx: nested transactions are not supported")

// Tx 委托给 *sql.Tx，同时满足 core.IDatabase 以便透传给行存储
type Tx struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect dialect.Dialect
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *Tx) Begin(context.Context) (core.ITransaction, error) { return nil, errNestedTx }

func (t *Tx) Ping(ctx context.Context) error { return t.db.PingContext(ctx) }
func (t *Tx) Close() error                   { return nil }

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

func (t *Tx) GetDialectName() string {
	return string(t.dialect.Name())
}
