// Package sql 修订记录表：每个审计模型的每次写入追加一行
//
// 表结构来自 audited.RevisionSchema，row_id 列类型由 revisions.idType 决定，
// old/new/user 以 JSON 文本存储。
package sql

import (
	"context"
	"encoding/json"
	"time"

	core "auditz/data/db"
	dbsql "auditz/data/db/sql"
	"auditz/data/orm"
	"auditz/data/query"
	"auditz/data/store"
	"auditz/domain/audited"
	"auditz/errors"
)

// batchSize 单条 INSERT 的最大行数
const batchSize = 200

// Sink SQL 修订写入器
type Sink struct {
	db   core.IDatabase
	meta *orm.ModelMeta
	rows *store.SQLStore
}

var (
	_ audited.IRevisionSink   = (*Sink)(nil)
	_ audited.IRevisionReader = (*Sink)(nil)
	_ audited.IMigrator       = (*Sink)(nil)
)

func New(database core.IDatabase, policy audited.RevisionsEnabled) *Sink {
	meta := audited.RevisionSchema(policy)
	return &Sink{
		db:   database,
		meta: meta,
		rows: store.NewSQLStore(database, meta),
	}
}

// Table 修订表名
func (s *Sink) Table() string { return s.meta.TableName() }

// Migrate 建表（已存在则跳过）
func (s *Sink) Migrate(ctx context.Context) error {
	return s.rows.Migrate(ctx)
}

// Append 在一个事务内分批插入
func (s *Sink) Append(ctx context.Context, revisions ...audited.Revision) error {
	if len(revisions) == 0 {
		return nil
	}
	cols := s.meta.FieldNames()
	return core.InTx(ctx, s.db, func(tx core.ITransaction) error {
		b := dbsql.New(tx)
		for start := 0; start < len(revisions); start += batchSize {
			end := min(start+batchSize, len(revisions))
			ins := b.InsertInto(s.Table()).Columns(cols...)
			for _, r := range revisions[start:end] {
				vals, err := columnValues(r)
				if err != nil {
					return errors.WrapError(err, errors.ErrCodeInvalidInput, "修订记录无法序列化")
				}
				ins.Values(vals...)
			}
			if _, err := ins.Exec(ctx); err != nil {
				return errors.WrapDatabaseError(ctx, err, "insert "+s.Table())
			}
		}
		return nil
	})
}

// columnValues 顺序与 RevisionSchema 的字段一致
func columnValues(r audited.Revision) ([]any, error) {
	old, err := jsonValue(r.Old)
	if err != nil {
		return nil, err
	}
	current, err := jsonValue(r.New)
	if err != nil {
		return nil, err
	}
	user, err := jsonValue(r.User)
	if err != nil {
		return nil, err
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return []any{
		r.ID,
		string(r.Action),
		r.TableName,
		r.RowID,
		old,
		current,
		user,
		r.IP,
		r.IPForwarded,
		createdAt.UTC(),
	}, nil
}

func jsonValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case store.Row:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// List 按 created_at、id 升序
func (s *Sink) List(ctx context.Context, q audited.RevisionQuery) ([]audited.Revision, error) {
	var clauses []query.Where
	if q.TableName != "" {
		clauses = append(clauses, query.Eq("table_name", q.TableName))
	}
	if q.RowID != nil {
		clauses = append(clauses, query.Eq("row_id", q.RowID))
	}
	if q.Action != "" {
		clauses = append(clauses, query.Eq("action", string(q.Action)))
	}

	rows, err := s.rows.Find(ctx, query.Filter{
		Where:  query.And(clauses...),
		Order:  []query.Order{{Field: "created_at"}, {Field: "id"}},
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]audited.Revision, len(rows))
	for i, row := range rows {
		out[i] = toRevision(row)
	}
	return out, nil
}

func toRevision(row store.Row) audited.Revision {
	r := audited.Revision{
		ID:        asString(row["id"]),
		Action:    audited.Action(asString(row["action"])),
		TableName: asString(row["table_name"]),
		RowID:     row["row_id"],
		Old:       asRow(row["old"]),
		New:       asRow(row["new"]),
		User:      row["user"],
		IP:        asString(row["ip"]),
	}
	r.IPForwarded = asString(row["ip_forwarded"])
	if t, ok := row["created_at"].(time.Time); ok {
		r.CreatedAt = t
	}
	return r
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asRow(v any) store.Row {
	if m, ok := v.(map[string]any); ok {
		return store.Row(m)
	}
	return nil
}

// Provider 把数据库注册为修订数据源，按策略创建 Sink
type Provider struct {
	DB core.IDatabase
}

func (p Provider) RevisionSink(policy audited.RevisionsEnabled) (audited.IRevisionSink, error) {
	if p.DB == nil {
		return nil, errors.NewError(errors.ErrCodeConfig, "revision data source has no database")
	}
	return New(p.DB, policy), nil
}
