// Package service 组装拦截器、会话、sink 与 CDP 管理器
package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pagevitals/internal/cdp"
	"pagevitals/internal/config"
	"pagevitals/internal/handler"
	"pagevitals/internal/intercept"
	"pagevitals/internal/logger"
	"pagevitals/internal/metrics"
	"pagevitals/internal/rules"
	"pagevitals/internal/session"
	"pagevitals/internal/sink"
	"pagevitals/internal/storage"
	"pagevitals/pkg/model"
)

// Service 采集服务
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	metrics  *metrics.Metrics
	rules    *rules.Engine
	ic       *intercept.Interceptor
	sinks    *sink.Router
	sessions *session.Manager
	handler  *handler.Handler
	cdp      *cdp.Manager

	unsubscribe func()
}

// New 根据配置创建服务
func New(cfg *config.Config, l logger.Logger) (*Service, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if l == nil {
		l = logger.NewNop()
	}
	s := &Service{cfg: cfg, log: l, metrics: metrics.New()}
	s.rules = rules.New(effectiveRules(cfg))
	s.ic = intercept.New(intercept.Config{
		BodySizeThreshold: cfg.Capture.BodySizeThreshold,
		Rules:             s.rules,
		Logger:            l.With("component", "intercept"),
	})
	// 未绑定目标的订阅者只用于排查
	s.unsubscribe = s.ic.Subscribe(intercept.Subscriber{
		OnSettle: func(m model.NetworkCallMetrics) {
			l.Debug("网络调用完成", "method", m.Method, "url", m.URL, "status", m.Status)
		},
	})

	s.sinks = sink.NewRouter(s.metrics, l.With("component", "sink"))
	if cfg.Sinks.Stdout {
		s.sinks.Add("stdout", sink.NewWriter(nil))
	}
	if cfg.Sinks.Webhook != "" {
		client := s.ic.WrapClient(&http.Client{Timeout: 10 * time.Second})
		s.sinks.Add("webhook", sink.NewWebhook(cfg.Sinks.Webhook, client))
	}
	if cfg.Sinks.Sqlite {
		db, err := storage.Open(storage.Options{
			DSN:    cfg.Sqlite.Dsn,
			Prefix: cfg.Sqlite.Prefix,
			Logger: l.With("component", "storage"),
		})
		if err != nil {
			return nil, err
		}
		s.sinks.Add("sqlite", sink.NewStorage(db))
	}

	s.sessions = session.NewManager(s.metrics, l)
	s.handler = handler.New(handler.Config{
		Resolve: func(target model.TargetID) (handler.Publisher, bool) {
			sess, ok := s.sessions.ByTarget(target)
			if !ok {
				return nil, false
			}
			return sess, true
		},
		Metrics: s.metrics,
		Logger:  l.With("component", "handler"),
	})
	s.cdp = cdp.New(cdp.Config{
		DevToolsURL: cfg.DevTools.URL,
		Interceptor: s.ic,
		Handler:     s.handler,
		OnDetach:    s.onTargetGone,
		Logger:      l.With("component", "cdp"),
	})
	return s, nil
}

// effectiveRules 配置的规则加上 webhook 自身流量的忽略规则
func effectiveRules(cfg *config.Config) []rules.Rule {
	rs := append([]rules.Rule(nil), cfg.Rules...)
	if cfg.Sinks.Webhook != "" {
		rs = append(rs, rules.Rule{
			ID:       "pagevitals-webhook",
			Name:     "忽略上报流量",
			Priority: 1 << 20,
			Action:   rules.ActionIgnore,
			Match: rules.Match{AllOf: []rules.Condition{
				{Type: "url", Mode: "prefix", Pattern: cfg.Sinks.Webhook},
			}},
		})
	}
	return rs
}

// Metrics 采集器运行指标
func (s *Service) Metrics() *metrics.Metrics { return s.metrics }

// Interceptor 进程共享的网络拦截器
func (s *Service) Interceptor() *intercept.Interceptor { return s.ic }

// AddSink 追加投递目标
func (s *Service) AddSink(name string, sk sink.Sink) { s.sinks.Add(name, sk) }

// StartSession 创建不绑定目标的会话，信号通过 Ingest 送入
func (s *Service) StartSession() (model.SessionID, error) {
	sess, err := s.sessions.Create(s.sessionConfig(""))
	if err != nil {
		return "", err
	}
	return sess.ID(), nil
}

// AttachTarget 为目标创建会话并附加
func (s *Service) AttachTarget(ctx context.Context, target model.TargetID) (model.SessionID, error) {
	if sess, ok := s.sessions.ByTarget(target); ok {
		return sess.ID(), nil
	}
	sess, err := s.sessions.Create(s.sessionConfig(target))
	if err != nil {
		return "", err
	}
	if err := s.cdp.AttachTarget(ctx, target, sess.AgentOptions()); err != nil {
		_ = s.sessions.Delete(sess.ID())
		return "", err
	}
	return sess.ID(), nil
}

// StopSession 销毁会话并分离其目标
func (s *Service) StopSession(id model.SessionID) error {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	if t := sess.Target(); t != "" {
		if err := s.cdp.DetachTarget(t); err != nil {
			s.log.Warn("分离目标失败", "target", string(t), "error", err)
		}
	}
	return s.sessions.Delete(id)
}

func (s *Service) onTargetGone(target model.TargetID) {
	if sess, ok := s.sessions.ByTarget(target); ok {
		_ = s.sessions.Delete(sess.ID())
	}
}

// ListTargets 列出浏览器中的页面
func (s *Service) ListTargets(ctx context.Context) ([]model.TargetInfo, error) {
	return s.cdp.ListTargets(ctx)
}

// Sessions 所有会话的快照
func (s *Service) Sessions() []session.Snapshot {
	list := s.sessions.List()
	out := make([]session.Snapshot, 0, len(list))
	for _, sess := range list {
		out = append(out, sess.Snapshot())
	}
	return out
}

// Snapshot 单个会话的快照
func (s *Service) Snapshot(id model.SessionID) (session.Snapshot, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return session.Snapshot{}, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	return sess.Snapshot(), nil
}

// Ingest 将一条页面脚本格式的负载送入会话
func (s *Service) Ingest(id model.SessionID, payload string) error {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	return s.handler.Dispatch(sess, payload)
}

// Track 自定义埋点
func (s *Service) Track(id model.SessionID, data model.CustomAnalyticsData) error {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	sess.Track(data)
	return nil
}

// LoadRules 替换网络调用采集规则
func (s *Service) LoadRules(rs []rules.Rule) {
	cfg := *s.cfg
	cfg.Rules = rs
	s.rules.Update(effectiveRules(&cfg))
	s.log.Info("采集规则已更新", "count", len(rs))
}

// Close 分离全部目标、关闭会话与 sink
func (s *Service) Close() {
	s.cdp.Close()
	s.sessions.Close()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	_ = s.sinks.Close()
}

// sessionConfig 未绑定目标的会话不订阅拦截器，避免收到其他目标的调用
func (s *Service) sessionConfig(target model.TargetID) session.Config {
	var ic *intercept.Interceptor
	if target != "" {
		ic = s.ic
	}
	return session.Config{
		Target: target,
		Options: session.Options{
			MaxBehaviorRecords: s.cfg.Capture.MaxBehaviorRecords,
			ClickMountList:     s.cfg.Capture.ClickMountList,
			Framework:          s.cfg.Capture.Framework,
			FlushInterval:      s.cfg.Capture.FlushInterval,
		},
		Sink:        s.sinks,
		Interceptor: ic,
		Metrics:     s.metrics,
		Logger:      s.log,
	}
}
