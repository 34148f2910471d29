package basic

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	core "auditz/data/db"
	"auditz/data/db/dialect"
)

// DB 基于 database/sql 的最小实现
type DB struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// New 按配置打开数据库
//
// 调用方负责空导入驱动：sqlite 使用 modernc.org/sqlite，postgres 使用 github.com/lib/pq。
func New(config core.DBConfig) (*DB, error) {
	driver := config.Driver
	if driver == "" {
		driver = "sqlite"
	}

	sqlDB, err := sql.Open(driver, config.DSN)
	if err != nil {
		return nil, err
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return Wrap(sqlDB, driver), nil
}

// Wrap 包装已打开的 *sql.DB（sqlmock 测试也走这里）
func Wrap(sqlDB *sql.DB, driver string) *DB {
	return &DB{db: sqlDB, dialect: dialect.New(driver)}
}

func (d *DB) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := d.db.QueryContext(ctx, d.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return d.db.QueryRowContext(ctx, d.dialect.Rebind(query), args...)
}

func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.dialect.Rebind(query), args...)
}

func (d *DB) Begin(ctx context.Context) (core.ITransaction, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{db: d.db, tx: tx, dialect: d.dialect}, nil
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *DB) Close() error                   { return d.db.Close() }

// GetDialectName 实现 core.IDialectNameProvider
func (d *DB) GetDialectName() string {
	return string(d.dialect.Name())
}
