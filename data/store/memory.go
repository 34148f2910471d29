package store

import (
	"context"
	"sync"
	"time"

	"auditz/codegen/snowflake"
	"auditz/data/orm"
	"auditz/data/query"
	"auditz/errors"
)

// MemoryStore 进程内行存储，按插入顺序保存
type MemoryStore struct {
	mu   sync.RWMutex
	meta *orm.ModelMeta
	rows []Row
	opts options
}

var _ IRowStore = (*MemoryStore)(nil)

func NewMemoryStore(meta *orm.ModelMeta, opts ...Option) *MemoryStore {
	o := options{now: func() time.Time { return time.Now().UTC() }, ids: snowflake.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{meta: meta, opts: o}
}

func (s *MemoryStore) Meta() *orm.ModelMeta { return s.meta }

func (s *MemoryStore) indexOf(id any) int {
	idName := s.meta.IDName()
	for i, r := range s.rows {
		if query.Equal(r[idName], id) {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) FindByID(ctx context.Context, id any) (Row, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.rows[i].Clone(), nil
	}
	return nil, nil
}

func (s *MemoryStore) Find(ctx context.Context, filter query.Filter) ([]Row, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := validateWhere(s.meta, filter.Where); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []Row
	for _, r := range s.rows {
		if filter.Where.Match(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()

	sortRows(out, filter.Order)
	return paginate(out, filter.Offset, filter.Limit), nil
}

func (s *MemoryStore) Count(ctx context.Context, where query.Where) (int64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	if err := validateWhere(s.meta, where); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, r := range s.rows {
		if where.Match(r) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Create(ctx context.Context, data Row) (Row, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	row, err := prepareCreate(s.meta, data, s.opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(row[s.meta.IDName()]) >= 0 {
		return nil, errors.Errorf(errors.ErrCodeConflict, "%s 主键 %v 已存在", s.meta.Name, row[s.meta.IDName()])
	}
	s.rows = append(s.rows, row)
	return row.Clone(), nil
}

func (s *MemoryStore) UpdateAll(ctx context.Context, where query.Where, data Row) (int64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	if err := validateWhere(s.meta, where); err != nil {
		return 0, err
	}
	patch := knownFields(s.meta, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.rows {
		if !where.Match(r) {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
		n++
	}
	return n, nil
}

func (s *MemoryStore) UpdateAttributes(ctx context.Context, id any, data Row) (Row, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	patch := knownFields(s.meta, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return nil, errors.Errorf(errors.ErrCodeNotFound, "%s %v 不存在", s.meta.Name, id)
	}
	for k, v := range patch {
		s.rows[i][k] = v
	}
	return s.rows[i].Clone(), nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context, where query.Where) (int64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	if err := validateWhere(s.meta, where); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	var n int64
	for _, r := range s.rows {
		if where.Match(r) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return n, nil
}
