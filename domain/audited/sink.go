package audited

import (
	"context"
	"sync"

	"auditz/data/query"
)

// MemorySink 进程内修订存储，用于测试与示例
type MemorySink struct {
	mu        sync.RWMutex
	revisions []Revision
}

var (
	_ IRevisionSink   = (*MemorySink)(nil)
	_ IRevisionReader = (*MemorySink)(nil)
)

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(ctx context.Context, revisions ...Revision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range revisions {
		s.revisions = append(s.revisions, cloneRevision(r))
	}
	return nil
}

func (s *MemorySink) List(ctx context.Context, q RevisionQuery) ([]Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Revision
	skipped := 0
	for _, r := range s.revisions {
		if !q.matches(r) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, cloneRevision(r))
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// Revisions 全部修订记录（按写入顺序）
func (s *MemorySink) Revisions() []Revision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Revision, len(s.revisions))
	for i, r := range s.revisions {
		out[i] = cloneRevision(r)
	}
	return out
}

// Reset 清空
func (s *MemorySink) Reset() {
	s.mu.Lock()
	s.revisions = nil
	s.mu.Unlock()
}

func (q RevisionQuery) matches(r Revision) bool {
	if q.TableName != "" && q.TableName != r.TableName {
		return false
	}
	if q.Action != "" && q.Action != r.Action {
		return false
	}
	if q.RowID != nil && !query.Equal(q.RowID, r.RowID) {
		return false
	}
	return true
}

func cloneRevision(r Revision) Revision {
	r.Old = r.Old.Clone()
	r.New = r.New.Clone()
	return r
}
