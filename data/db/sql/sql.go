// Package sql 基于方言的 SQL 语句构建
//
// 所有表名、列名都会经过 isSafeIdentifier 校验并按方言加引号，
// 值一律以 ? 占位，由 basic.DB 在执行前按方言改写。
package sql

import (
	"context"
	"database/sql"
	"fmt"

	core "auditz/data/db"
	"auditz/data/db/dialect"
)

// ISql 语句构建入口
type ISql interface {
	Select(columns ...string) ISelectBuilder
	InsertInto(table string) IInsertBuilder
	Update(table string) IUpdateBuilder
	DeleteFrom(table string) IDeleteBuilder
	CreateTable(table string) ICreateTableBuilder

	// Quote 校验并转义标识符
	Quote(name string) (string, error)
	Dialect() dialect.Dialect
}

type ISelectBuilder interface {
	From(table string) ISelectBuilder
	Where(cond string, args ...any) ISelectBuilder
	OrderBy(column string, desc bool) ISelectBuilder
	Limit(n int) ISelectBuilder
	Offset(n int) ISelectBuilder
	Build() (string, []any, error)
	Query(ctx context.Context) (core.IRows, error)
}

type IInsertBuilder interface {
	Columns(cols ...string) IInsertBuilder
	Values(vals ...any) IInsertBuilder
	Build() (string, []any, error)
	Exec(ctx context.Context) (sql.Result, error)
}

type IUpdateBuilder interface {
	Set(column string, val any) IUpdateBuilder
	Where(cond string, args ...any) IUpdateBuilder
	Build() (string, []any, error)
	Exec(ctx context.Context) (sql.Result, error)
}

type IDeleteBuilder interface {
	Where(cond string, args ...any) IDeleteBuilder
	Build() (string, []any, error)
	Exec(ctx context.Context) (sql.Result, error)
}

type ICreateTableBuilder interface {
	Column(name, typ string, constraints ...string) ICreateTableBuilder
	Index(name string, columns ...string) ICreateTableBuilder
	// Build 返回建表语句及建索引语句，均带 IF NOT EXISTS
	Build() ([]string, error)
	Exec(ctx context.Context) error
}

type sqlImpl struct {
	db      core.IDatabase
	dialect dialect.Dialect
}

// New 绑定数据库创建构建器，方言从 db 推断
func New(db core.IDatabase) ISql {
	return &sqlImpl{db: db, dialect: dialect.FromDatabase(db)}
}

// NewWithDialect 仅用于构建语句（db 可为 nil）
func NewWithDialect(db core.IDatabase, d dialect.Dialect) ISql {
	return &sqlImpl{db: db, dialect: d}
}

func (s *sqlImpl) Dialect() dialect.Dialect { return s.dialect }

func (s *sqlImpl) Quote(name string) (string, error) {
	if !isSafeIdentifier(name) {
		return "", fmt.Errorf("sql: unsafe identifier %q", name)
	}
	return s.dialect.QuoteIdentifier(name), nil
}

func (s *sqlImpl) Select(columns ...string) ISelectBuilder {
	return &selectBuilder{sqlImpl: s, cols: columns}
}

func (s *sqlImpl) InsertInto(table string) IInsertBuilder {
	return &insertBuilder{sqlImpl: s, table: table}
}

func (s *sqlImpl) Update(table string) IUpdateBuilder {
	return &updateBuilder{sqlImpl: s, table: table}
}

func (s *sqlImpl) DeleteFrom(table string) IDeleteBuilder {
	return &deleteBuilder{sqlImpl: s, table: table}
}

func (s *sqlImpl) CreateTable(table string) ICreateTableBuilder {
	return &createTableBuilder{sqlImpl: s, table: table}
}

// quoteAll 逐个转义，遇到第一个非法标识符即返回错误
func (s *sqlImpl) quoteAll(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		q, err := s.Quote(n)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}
