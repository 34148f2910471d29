// Package db 行存储与修订表共用的数据库抽象
//
// 行存储、SQL 修订写入器与 CLI 都只依赖这里的接口，
// 便于在测试中替换为 sqlite 内存库或 sqlmock。
package db

import (
	"context"
	"database/sql"
)

// IDatabase 通用数据库接口
type IDatabase interface {
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	Begin(ctx context.Context) (ITransaction, error)

	Ping(ctx context.Context) error
	Close() error
}

// IDialectNameProvider 可选接口：返回底层 driver 名（sqlite、postgres）
type IDialectNameProvider interface {
	GetDialectName() string
}

// ITransaction 事务接口
type ITransaction interface {
	IDatabase

	Commit() error
	Rollback() error
}

// IRows 查询结果集
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
	Columns() ([]string, error)
}

// IRow 单行结果
type IRow interface {
	Scan(dest ...any) error
}

// DBConfig 数据库配置
type DBConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres
	DSN    string `mapstructure:"dsn"`

	MaxOpenConns    int `mapstructure:"max_open_conns"`
	MaxIdleConns    int `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"` // 秒
}

// InTx 在事务中执行 fn，fn 返回错误时回滚
func InTx(ctx context.Context, database IDatabase, fn func(tx ITransaction) error) error {
	tx, err := database.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
