package audited

import (
	"context"

	"auditz/data/query"
	"auditz/data/store"
	"auditz/errors"
)

// defaultTrailLimit AuditTrail 未指定 limit 时的条数
const defaultTrailLimit = 100

// Service 基于 Model 的审计查询与恢复
type Service struct {
	model  *Model
	reader IRevisionReader
}

// NewService reader 为 nil 时使用模型写入器（如果它支持查询）
func NewService(model *Model, reader IRevisionReader) *Service {
	if reader == nil {
		reader, _ = model.Sink().(IRevisionReader)
	}
	return &Service{model: model, reader: reader}
}

func (s *Service) Model() *Model { return s.model }

// AuditTrail 某一行的修订轨迹，按时间升序
func (s *Service) AuditTrail(ctx context.Context, rowID any, offset, limit int) ([]Revision, error) {
	if s.reader == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultTrailLimit
	}
	return s.reader.List(ctx, RevisionQuery{
		TableName: s.model.Meta().Name,
		RowID:     rowID,
		Offset:    offset,
		Limit:     limit,
	})
}

// ListDeleted 已软删除的行，按主键升序分页
func (s *Service) ListDeleted(ctx context.Context, offset, limit int) ([]store.Row, error) {
	cfg := s.model.cfg
	if !cfg.SoftDelete || !cfg.DeletedAt.Enabled() {
		return []store.Row{}, nil
	}
	rows, err := s.model.Find(ctx, query.Filter{
		Where:   query.IsNotNull(cfg.DeletedAt.String()),
		Order:   []query.Order{{Field: s.model.meta.IDName()}},
		Offset:  offset,
		Limit:   limit,
		Deleted: true,
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []store.Row{}
	}
	return rows, nil
}

// Restore 清除 deletedAt/deletedBy，记为一次 update
func (s *Service) Restore(ctx context.Context, id any) (store.Row, error) {
	cfg := s.model.cfg
	if !cfg.SoftDelete || !cfg.DeletedAt.Enabled() {
		return nil, errors.NewInvalidInput("%s 未启用软删除", s.model.meta.Name)
	}
	row, err := s.model.FindByID(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.Errorf(errors.ErrCodeNotFound, "%s %v 不存在", s.model.meta.Name, id)
	}
	if !s.model.isDeleted(row) {
		return nil, errors.Errorf(errors.ErrCodeConflict, "%s %v 未被删除", s.model.meta.Name, id)
	}

	patch := store.Row{cfg.DeletedAt.String(): nil}
	if cfg.DeletedBy.Enabled() {
		patch[cfg.DeletedBy.String()] = nil
	}
	return s.model.UpdateAttributes(ctx, id, patch)
}
