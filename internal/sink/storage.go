package sink

import (
	"context"

	"pagevitals/internal/storage"
	"pagevitals/pkg/model"
)

// Storage 写入 SQLite
type Storage struct {
	db *storage.DB
}

// NewStorage 创建存储 sink，Close 时关闭数据库
func NewStorage(db *storage.DB) *Storage {
	return &Storage{db: db}
}

// SendException 实现 Sink
func (s *Storage) SendException(ctx context.Context, session model.SessionID, rec model.ExceptionRecord) error {
	return s.db.SaveException(ctx, session, rec)
}

// SendMetrics 实现 Sink
func (s *Storage) SendMetrics(ctx context.Context, snap model.MetricsSnapshot) error {
	return s.db.SaveMetrics(ctx, snap)
}

// Close 实现 Sink
func (s *Storage) Close() error { return s.db.Close() }
