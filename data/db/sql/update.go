package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type updateBuilder struct {
	*sqlImpl

	table     string
	setCols   []string
	setArgs   []any
	whereExpr []string
	whereArgs []any
}

func (b *updateBuilder) Set(col string, val any) IUpdateBuilder {
	b.setCols = append(b.setCols, col)
	b.setArgs = append(b.setArgs, val)
	return b
}

func (b *updateBuilder) Where(cond string, args ...any) IUpdateBuilder {
	if cond != "" {
		b.whereExpr = append(b.whereExpr, cond)
		b.whereArgs = append(b.whereArgs, args...)
	}
	return b
}

func (b *updateBuilder) Build() (string, []any, error) {
	if len(b.setCols) == 0 {
		return "", nil, fmt.Errorf("sql: update %s without columns", b.table)
	}
	table, err := b.Quote(b.table)
	if err != nil {
		return "", nil, err
	}
	cols, err := b.quoteAll(b.setCols)
	if err != nil {
		return "", nil, err
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(table)
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(sets, ", "))

	args := make([]any, 0, len(b.setArgs)+len(b.whereArgs))
	args = append(args, b.setArgs...)
	if len(b.whereExpr) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.whereExpr, " AND "))
		args = append(args, b.whereArgs...)
	}
	return sb.String(), args, nil
}

func (b *updateBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.db.Exec(ctx, q, args...)
}
