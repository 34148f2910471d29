package sql

import (
	"context"
	"strings"

	core "auditz/data/db"
	"auditz/data/db/dialect"
)

type selectBuilder struct {
	*sqlImpl

	cols   []string
	table  string
	where  []string
	args   []any
	orders []string
	limit  int
	offset int
	err    error
}

func (b *selectBuilder) From(table string) ISelectBuilder {
	b.table = table
	return b
}

func (b *selectBuilder) Where(cond string, args ...any) ISelectBuilder {
	if cond != "" {
		b.where = append(b.where, cond)
		b.args = append(b.args, args...)
	}
	return b
}

func (b *selectBuilder) OrderBy(column string, desc bool) ISelectBuilder {
	q, err := b.Quote(column)
	if err != nil {
		b.err = err
		return b
	}
	if desc {
		q += " DESC"
	}
	b.orders = append(b.orders, q)
	return b
}

func (b *selectBuilder) Limit(n int) ISelectBuilder {
	b.limit = n
	return b
}

func (b *selectBuilder) Offset(n int) ISelectBuilder {
	b.offset = n
	return b
}

func (b *selectBuilder) Build() (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	table, err := b.Quote(b.table)
	if err != nil {
		return "", nil, err
	}
	cols := make([]string, len(b.cols))
	for i, c := range b.cols {
		if isExpression(c) {
			cols[i] = c
			continue
		}
		if cols[i], err = b.Quote(c); err != nil {
			return "", nil, err
		}
	}
	if len(cols) == 0 {
		cols = []string{"*"}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(table)

	args := make([]any, 0, len(b.args)+2)
	args = append(args, b.args...)
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	if len(b.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orders, ", "))
	}
	if b.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}
	if b.offset > 0 {
		if b.limit <= 0 && b.dialect.Name() != dialect.NamePostgres {
			// sqlite 要求 OFFSET 之前必须有 LIMIT
			sb.WriteString(" LIMIT -1")
		}
		sb.WriteString(" OFFSET ?")
		args = append(args, b.offset)
	}
	return sb.String(), args, nil
}

func (b *selectBuilder) Query(ctx context.Context) (core.IRows, error) {
	q, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.db.Query(ctx, q, args...)
}
