package sql

import (
	"context"
	"database/sql"
	"strings"
)

type deleteBuilder struct {
	*sqlImpl

	table     string
	whereExpr []string
	whereArgs []any
}

func (b *deleteBuilder) Where(cond string, args ...any) IDeleteBuilder {
	if cond != "" {
		b.whereExpr = append(b.whereExpr, cond)
		b.whereArgs = append(b.whereArgs, args...)
	}
	return b
}

func (b *deleteBuilder) Build() (string, []any, error) {
	table, err := b.Quote(b.table)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(table)
	if len(b.whereExpr) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.whereExpr, " AND "))
	}
	args := make([]any, len(b.whereArgs))
	copy(args, b.whereArgs)
	return sb.String(), args, nil
}

func (b *deleteBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.db.Exec(ctx, q, args...)
}
