package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type insertBuilder struct {
	*sqlImpl

	table   string
	columns []string
	rows    [][]any
}

func (b *insertBuilder) Columns(cols ...string) IInsertBuilder {
	b.columns = cols
	return b
}

// Values 追加一行，多次调用生成多行 INSERT
func (b *insertBuilder) Values(vals ...any) IInsertBuilder {
	if len(vals) > 0 {
		b.rows = append(b.rows, vals)
	}
	return b
}

func (b *insertBuilder) Build() (string, []any, error) {
	if len(b.columns) == 0 {
		return "", nil, fmt.Errorf("sql: insert into %s without columns", b.table)
	}
	if len(b.rows) == 0 {
		return "", nil, fmt.Errorf("sql: insert into %s without rows", b.table)
	}
	table, err := b.Quote(b.table)
	if err != nil {
		return "", nil, err
	}
	cols, err := b.quoteAll(b.columns)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(") VALUES ")

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	args := make([]any, 0, len(b.rows)*len(cols))
	for i, row := range b.rows {
		if len(row) != len(cols) {
			return "", nil, fmt.Errorf("sql: row %d has %d values, want %d", i, len(row), len(cols))
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholder)
		args = append(args, row...)
	}
	return sb.String(), args, nil
}

func (b *insertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.db.Exec(ctx, q, args...)
}
