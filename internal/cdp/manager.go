// Package cdp 附加 DevTools 目标，注入采集脚本并按序消费脚本回传的绑定事件
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pagevitals/internal/agent"
	"pagevitals/internal/intercept"
	"pagevitals/internal/logger"
	"pagevitals/pkg/model"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
)

var (
	ErrNotAttached    = errors.New("target not attached")
	ErrTargetNotFound = errors.New("target not found")
)

// PayloadHandler 接收页面脚本回传的原始负载，同一目标的调用按到达顺序串行
type PayloadHandler interface {
	HandlePayload(target model.TargetID, payload string)
}

// Config 管理器配置
type Config struct {
	DevToolsURL string
	Interceptor *intercept.Interceptor
	Handler     PayloadHandler
	// OnDetach 目标连接断开后回调，主动 DetachTarget 时不回调
	OnDetach func(model.TargetID)
	Logger   logger.Logger
}

// Manager 维护已附加的目标
type Manager struct {
	devtoolsURL string
	ic          *intercept.Interceptor
	handler     PayloadHandler
	onDetach    func(model.TargetID)
	log         logger.Logger

	mu      sync.Mutex
	targets map[model.TargetID]*targetSession
}

// targetSession 单个目标的连接与生命周期
type targetSession struct {
	id     model.TargetID
	conn   *rpcc.Conn
	client *cdp.Client
	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建并返回一个新的 CDP 管理器
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Manager{
		devtoolsURL: cfg.DevToolsURL,
		ic:          cfg.Interceptor,
		handler:     cfg.Handler,
		onDetach:    cfg.OnDetach,
		log:         cfg.Logger,
		targets:     make(map[model.TargetID]*targetSession),
	}
}

// ListTargets 列出浏览器中的 page 目标
func (m *Manager) ListTargets(ctx context.Context) ([]model.TargetInfo, error) {
	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		_, attached := m.targets[model.TargetID(t.ID)]
		out = append(out, model.TargetInfo{
			ID:        model.TargetID(t.ID),
			Type:      string(t.Type),
			URL:       t.URL,
			Title:     t.Title,
			IsCurrent: attached,
		})
	}
	return out, nil
}

// AttachTarget 附加到指定目标并按 opts 安装采集脚本，重复附加直接返回
func (m *Manager) AttachTarget(ctx context.Context, id model.TargetID, opts agent.Options) error {
	m.mu.Lock()
	if _, ok := m.targets[id]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	var sel *devtool.Target
	for _, t := range targets {
		if model.TargetID(t.ID) == id {
			sel = t
			break
		}
	}
	if sel == nil {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}

	// 连接生命周期不跟随调用方 ctx
	tctx, cancel := context.WithCancel(context.Background())
	conn, err := rpcc.DialContext(tctx, sel.WebSocketDebuggerURL)
	if err != nil {
		cancel()
		return fmt.Errorf("dial %s: %w", id, err)
	}
	ts := &targetSession{id: id, conn: conn, client: cdp.NewClient(conn), ctx: tctx, cancel: cancel}

	stream, err := m.install(ctx, ts, agent.Script(opts))
	if err != nil {
		cancel()
		_ = conn.Close()
		return err
	}

	m.mu.Lock()
	if _, ok := m.targets[id]; ok {
		m.mu.Unlock()
		_ = stream.Close()
		cancel()
		_ = conn.Close()
		return nil
	}
	m.targets[id] = ts
	m.mu.Unlock()

	go m.consume(ts, stream)

	if m.ic != nil {
		if err := m.ic.AttachPage(tctx, id, ts.client); err != nil {
			m.log.Err(err, "页面网络拦截不可用", "target", string(id))
		}
	}
	m.log.Info("目标已附加", "target", string(id), "url", sel.URL)
	return nil
}

// install 注册绑定并注入脚本：新文档自动注入，当前文档立即执行一次
func (m *Manager) install(ctx context.Context, ts *targetSession, script string) (runtime.BindingCalledClient, error) {
	c := ts.client
	if err := c.Runtime.Enable(ctx); err != nil {
		return nil, fmt.Errorf("runtime enable: %w", err)
	}
	if err := c.Runtime.AddBinding(ctx, runtime.NewAddBindingArgs(agent.BindingName)); err != nil {
		return nil, fmt.Errorf("add binding: %w", err)
	}
	stream, err := c.Runtime.BindingCalled(ts.ctx)
	if err != nil {
		return nil, fmt.Errorf("binding stream: %w", err)
	}
	if _, err := c.Page.AddScriptToEvaluateOnNewDocument(ctx, page.NewAddScriptToEvaluateOnNewDocumentArgs(script)); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("install agent: %w", err)
	}
	if _, err := c.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(script)); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("evaluate agent: %w", err)
	}
	return stream, nil
}

// DetachTarget 断开目标连接
func (m *Manager) DetachTarget(id model.TargetID) error {
	ts := m.remove(id)
	if ts == nil {
		return fmt.Errorf("%w: %s", ErrNotAttached, id)
	}
	m.teardown(ts)
	return nil
}

// Attached 返回已附加的目标ID
func (m *Manager) Attached() []model.TargetID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.TargetID, 0, len(m.targets))
	for id := range m.targets {
		out = append(out, id)
	}
	return out
}

// Close 断开全部目标
func (m *Manager) Close() {
	for _, id := range m.Attached() {
		_ = m.DetachTarget(id)
	}
}

func (m *Manager) remove(id model.TargetID) *targetSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.targets[id]
	if !ok {
		return nil
	}
	delete(m.targets, id)
	return ts
}

func (m *Manager) teardown(ts *targetSession) {
	if m.ic != nil {
		m.ic.DetachPage(ts.id)
	}
	ts.cancel()
	if ts.conn != nil {
		_ = ts.conn.Close()
	}
	m.log.Info("目标已分离", "target", string(ts.id))
}
