// Package storage 基于 GORM + SQLite 持久化异常记录与指标快照
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pagevitals/internal/logger"
	"pagevitals/pkg/model"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Exception 异常记录行
type Exception struct {
	ID        string `gorm:"primaryKey;size:36"`
	Session   string `gorm:"index;size:64"`
	Mechanism string `gorm:"index;size:32"`
	ErrorUID  string `gorm:"index"`
	Type      string
	Value     string
	Payload   string
	CreatedAt time.Time
}

// Metric 指标快照行
type Metric struct {
	ID        string `gorm:"primaryKey;size:36"`
	Session   string `gorm:"index;size:64"`
	Source    string `gorm:"index;size:32"`
	Timestamp int64
	Payload   string
	CreatedAt time.Time
}

// Options 存储配置
type Options struct {
	DSN    string
	Prefix string
	Logger logger.Logger
}

// DB 存储句柄
type DB struct {
	db *gorm.DB
}

// Open 打开数据库并迁移表结构
func Open(opts Options) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(opts.DSN), &gorm.Config{
		Logger:         NewGormLogger(opts.Logger),
		NamingStrategy: schema.NamingStrategy{TablePrefix: opts.Prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&Exception{}, &Metric{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{db: db}, nil
}

// SaveException 写入一条异常记录
func (d *DB) SaveException(ctx context.Context, session model.SessionID, rec model.ExceptionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal exception: %w", err)
	}
	row := Exception{
		ID:        uuid.NewString(),
		Session:   string(session),
		Mechanism: string(rec.Mechanism.Type),
		ErrorUID:  rec.ErrorUID,
		Type:      rec.Type,
		Value:     rec.Value,
		Payload:   string(payload),
	}
	return d.db.WithContext(WithSession(ctx, string(session))).Create(&row).Error
}

// SaveMetrics 写入一条指标快照
func (d *DB) SaveMetrics(ctx context.Context, snap model.MetricsSnapshot) error {
	payload, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	row := Metric{
		ID:        uuid.NewString(),
		Session:   string(snap.Session),
		Source:    snap.Source,
		Timestamp: snap.Timestamp,
		Payload:   string(payload),
	}
	return d.db.WithContext(WithSession(ctx, string(snap.Session))).Create(&row).Error
}

// Exceptions 按写入顺序返回会话的异常记录，limit 小于等于 0 时不限制
func (d *DB) Exceptions(ctx context.Context, session model.SessionID, limit int) ([]Exception, error) {
	var rows []Exception
	q := d.db.WithContext(ctx).Where("session = ?", string(session)).Order("rowid")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Metrics 按写入顺序返回会话的指标快照，source 为空时不过滤
func (d *DB) Metrics(ctx context.Context, session model.SessionID, source string) ([]Metric, error) {
	var rows []Metric
	q := d.db.WithContext(ctx).Where("session = ?", string(session))
	if source != "" {
		q = q.Where("source = ?", source)
	}
	if err := q.Order("rowid").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Close 关闭底层连接
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
