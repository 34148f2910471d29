package sql

import (
	"context"
	"fmt"
	"strings"
)

type columnDef struct {
	name        string
	typ         string
	constraints []string
}

type indexDef struct {
	name    string
	columns []string
}

type createTableBuilder struct {
	*sqlImpl

	table   string
	columns []columnDef
	indexes []indexDef
}

func (b *createTableBuilder) Column(name, typ string, constraints ...string) ICreateTableBuilder {
	b.columns = append(b.columns, columnDef{name: name, typ: typ, constraints: constraints})
	return b
}

func (b *createTableBuilder) Index(name string, columns ...string) ICreateTableBuilder {
	b.indexes = append(b.indexes, indexDef{name: name, columns: columns})
	return b
}

func (b *createTableBuilder) Build() ([]string, error) {
	if len(b.columns) == 0 {
		return nil, fmt.Errorf("sql: create table %s without columns", b.table)
	}
	table, err := b.Quote(b.table)
	if err != nil {
		return nil, err
	}

	defs := make([]string, len(b.columns))
	for i, c := range b.columns {
		name, err := b.Quote(c.name)
		if err != nil {
			return nil, err
		}
		def := name + " " + c.typ
		if len(c.constraints) > 0 {
			def += " " + strings.Join(c.constraints, " ")
		}
		defs[i] = def
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", table, strings.Join(defs, ",\n  "))}
	for _, idx := range b.indexes {
		name, err := b.Quote(idx.name)
		if err != nil {
			return nil, err
		}
		cols, err := b.quoteAll(idx.columns)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, strings.Join(cols, ", ")))
	}
	return stmts, nil
}

func (b *createTableBuilder) Exec(ctx context.Context) error {
	stmts, err := b.Build()
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", strings.SplitN(stmt, "\n", 2)[0], err)
		}
	}
	return nil
}
