package api

import (
	"context"

	"pagevitals/internal/config"
	"pagevitals/internal/logger"
	"pagevitals/internal/metrics"
	"pagevitals/internal/rules"
	"pagevitals/internal/service"
	"pagevitals/internal/session"
	"pagevitals/pkg/model"
)

// Service 服务接口
type Service interface {
	// StartSession 创建不绑定目标的会话
	StartSession() (model.SessionID, error)

	// StopSession 停止会话
	StopSession(id model.SessionID) error

	// AttachTarget 附加目标并创建会话
	AttachTarget(ctx context.Context, target model.TargetID) (model.SessionID, error)

	// ListTargets 列出目标
	ListTargets(ctx context.Context) ([]model.TargetInfo, error)

	// Sessions 列出会话快照
	Sessions() []session.Snapshot

	// Snapshot 获取会话快照
	Snapshot(id model.SessionID) (session.Snapshot, error)

	// Ingest 送入一条页面信号负载
	Ingest(id model.SessionID, payload string) error

	// Track 自定义埋点
	Track(id model.SessionID, data model.CustomAnalyticsData) error

	// LoadRules 加载采集规则
	LoadRules(rs []rules.Rule)

	// Metrics 运行指标
	Metrics() *metrics.Metrics

	// Close 关闭服务
	Close()
}

// NewService 创建并返回服务接口实现
func NewService(cfg *config.Config, l logger.Logger) (Service, error) {
	svc, err := service.New(cfg, l)
	if err != nil {
		return nil, err
	}
	return svc, nil
}
