package store

import (
	"context"
	"fmt"
	"time"

	"auditz/codegen/snowflake"
	core "auditz/data/db"
	"auditz/data/db/dialect"
	dbsql "auditz/data/db/sql"
	"auditz/data/orm"
	"auditz/data/query"
	"auditz/errors"
)

// SQLStore 基于 IDatabase 的行存储，一个模型对应一张表
type SQLStore struct {
	db   core.IDatabase
	sql  dbsql.ISql
	meta *orm.ModelMeta
	opts options
}

var _ IRowStore = (*SQLStore)(nil)

func NewSQLStore(database core.IDatabase, meta *orm.ModelMeta, opts ...Option) *SQLStore {
	o := options{now: func() time.Time { return time.Now().UTC() }, ids: snowflake.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &SQLStore{db: database, sql: dbsql.New(database), meta: meta, opts: o}
}

func (s *SQLStore) Meta() *orm.ModelMeta { return s.meta }

// Migrate 按模型字段建表（已存在则跳过）
//
// 必填只在 Create 时校验，列上不加 NOT NULL：软删除的 scrub 会把 updatedAt 等字段置空。
func (s *SQLStore) Migrate(ctx context.Context) error {
	d := s.sql.Dialect()
	b := s.sql.CreateTable(s.meta.TableName())
	for _, f := range s.meta.Fields {
		var constraints []string
		if f.PrimaryKey {
			constraints = append(constraints, "PRIMARY KEY")
		}
		b.Column(f.ColumnName(), d.ColumnType(f.Type), constraints...)
		if f.Index {
			b.Index(s.meta.TableName()+"_"+f.ColumnName()+"_idx", f.ColumnName())
		}
	}
	if err := b.Exec(ctx); err != nil {
		return errors.WrapDatabaseError(ctx, err, "migrate "+s.meta.TableName())
	}
	return nil
}

// column 字段名到已转义列名
func (s *SQLStore) column(field string) string {
	name := field
	if f, ok := s.meta.Field(field); ok {
		name = f.ColumnName()
	}
	return s.sql.Dialect().QuoteIdentifier(name)
}

func (s *SQLStore) columns() []string {
	cols := make([]string, len(s.meta.Fields))
	for i, f := range s.meta.Fields {
		cols[i] = f.ColumnName()
	}
	return cols
}

func (s *SQLStore) idColumn() string {
	return s.column(s.meta.IDName())
}

func (s *SQLStore) FindByID(ctx context.Context, id any) (Row, error) {
	rows, err := s.Find(ctx, query.Filter{Where: query.Eq(s.meta.IDName(), id), Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *SQLStore) Find(ctx context.Context, filter query.Filter) ([]Row, error) {
	if err := validateWhere(s.meta, filter.Where); err != nil {
		return nil, err
	}
	b := s.sql.Select(s.columns()...).From(s.meta.TableName())
	if expr, args := filter.Where.SQL(s.column); expr != "" {
		b.Where(expr, args...)
	}
	for _, o := range filter.Order {
		f, ok := s.meta.Field(o.Field)
		if !ok {
			return nil, errors.NewInvalidInput("%s 没有字段 %s", s.meta.Name, o.Field)
		}
		b.OrderBy(f.ColumnName(), o.Desc)
	}
	if filter.Limit > 0 {
		b.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		b.Offset(filter.Offset)
	}

	rs, err := b.Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "find "+s.meta.Name)
	}
	defer rs.Close()

	var out []Row
	for rs.Next() {
		dest := make([]any, len(s.meta.Fields))
		ptrs := make([]any, len(dest))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "scan "+s.meta.Name)
		}
		row := make(Row, len(dest))
		for i, f := range s.meta.Fields {
			row[f.Name] = fromColumnValue(f.Type, dest[i])
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "iterate "+s.meta.Name)
	}
	return out, nil
}

func (s *SQLStore) Count(ctx context.Context, where query.Where) (int64, error) {
	if err := validateWhere(s.meta, where); err != nil {
		return 0, err
	}
	b := s.sql.Select("COUNT(*)").From(s.meta.TableName())
	if expr, args := where.SQL(s.column); expr != "" {
		b.Where(expr, args...)
	}
	q, args, err := b.Build()
	if err != nil {
		return 0, errors.WrapError(err, errors.ErrCodeInvalidInput, "count "+s.meta.Name)
	}
	var n int64
	if err := s.db.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "count "+s.meta.Name)
	}
	return n, nil
}

func (s *SQLStore) Create(ctx context.Context, data Row) (Row, error) {
	row, err := prepareCreate(s.meta, data, s.opts)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(row))
	vals := make([]any, 0, len(row))
	for _, f := range s.meta.Fields {
		v, ok := row[f.Name]
		if !ok {
			continue
		}
		cv, err := toColumnValue(f.Type, v)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, fmt.Sprintf("%s.%s", s.meta.Name, f.Name))
		}
		cols = append(cols, f.ColumnName())
		vals = append(vals, cv)
	}

	if _, err := s.sql.InsertInto(s.meta.TableName()).Columns(cols...).Values(vals...).Exec(ctx); err != nil {
		if s.sql.Dialect().IsUniqueViolation(err) {
			return nil, errors.WrapError(err, errors.ErrCodeConflict, s.meta.Name+" 主键冲突")
		}
		return nil, errors.WrapDatabaseError(ctx, err, "create "+s.meta.Name)
	}
	return s.FindByID(ctx, row[s.meta.IDName()])
}

func (s *SQLStore) update(data Row) (dbsql.IUpdateBuilder, error) {
	patch := knownFields(s.meta, data)
	if len(patch) == 0 {
		return nil, nil
	}
	b := s.sql.Update(s.meta.TableName())
	for _, f := range s.meta.Fields {
		v, ok := patch[f.Name]
		if !ok {
			continue
		}
		cv, err := toColumnValue(f.Type, v)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, fmt.Sprintf("%s.%s", s.meta.Name, f.Name))
		}
		b.Set(f.ColumnName(), cv)
	}
	return b, nil
}

func (s *SQLStore) UpdateAll(ctx context.Context, where query.Where, data Row) (int64, error) {
	if err := validateWhere(s.meta, where); err != nil {
		return 0, err
	}
	b, err := s.update(data)
	if err != nil {
		return 0, err
	}
	if b == nil {
		return s.Count(ctx, where)
	}
	if expr, args := where.SQL(s.column); expr != "" {
		b.Where(expr, args...)
	}
	res, err := b.Exec(ctx)
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "update "+s.meta.Name)
	}
	return res.RowsAffected()
}

func (s *SQLStore) UpdateAttributes(ctx context.Context, id any, data Row) (Row, error) {
	b, err := s.update(data)
	if err != nil {
		return nil, err
	}
	if b != nil {
		res, err := b.Where(s.idColumn()+" = ?", id).Exec(ctx)
		if err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "update "+s.meta.Name)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, errors.Errorf(errors.ErrCodeNotFound, "%s %v 不存在", s.meta.Name, id)
		}
	}
	row, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.Errorf(errors.ErrCodeNotFound, "%s %v 不存在", s.meta.Name, id)
	}
	return row, nil
}

func (s *SQLStore) DeleteAll(ctx context.Context, where query.Where) (int64, error) {
	if err := validateWhere(s.meta, where); err != nil {
		return 0, err
	}
	b := s.sql.DeleteFrom(s.meta.TableName())
	if expr, args := where.SQL(s.column); expr != "" {
		b.Where(expr, args...)
	}
	res, err := b.Exec(ctx)
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "delete "+s.meta.Name)
	}
	return res.RowsAffected()
}

// Dialect 当前方言
func (s *SQLStore) Dialect() dialect.Dialect {
	return s.sql.Dialect()
}
