package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pagevitals/internal/agent"
	"pagevitals/internal/behavior"
	"pagevitals/internal/capture/exception"
	"pagevitals/internal/capture/interaction"
	"pagevitals/internal/capture/performance"
	"pagevitals/internal/intercept"
	"pagevitals/internal/logger"
	"pagevitals/internal/metrics"
	"pagevitals/internal/signal"
	"pagevitals/internal/sink"
	"pagevitals/internal/useragent"
	"pagevitals/pkg/model"
)

const (
	// DefaultMaxBehaviorRecords 行为栈默认容量
	DefaultMaxBehaviorRecords = 100
	// DefaultFlushInterval 用户指标默认上报间隔
	DefaultFlushInterval = 5 * time.Second
)

// Options 采集选项
type Options struct {
	MaxBehaviorRecords int
	ClickMountList     []string
	// Framework 页面框架的全局变量名，off 表示不挂接错误钩子
	Framework string
	// FlushInterval 用户指标定时上报间隔，小于 0 时不定时上报
	FlushInterval time.Duration
}

// Config 会话配置
type Config struct {
	ID          model.SessionID
	Target      model.TargetID
	Options     Options
	Sink        sink.Sink
	Interceptor *intercept.Interceptor
	Metrics     *metrics.Metrics
	Logger      logger.Logger
	Now         func() time.Time
}

// Session 一个目标上的采集会话，持有当前页面生命周期
type Session struct {
	id      model.SessionID
	target  model.TargetID
	opts    Options
	sink    sink.Sink
	ic      *intercept.Interceptor
	metrics *metrics.Metrics
	log     logger.Logger
	now     func() time.Time
	bus     *signal.Bus

	pageMu sync.RWMutex
	page   model.PageInformation

	mu      sync.Mutex
	life    *lifetime
	retired []string
	closed  bool

	stop chan struct{}
	done chan struct{}
}

// lifetime 一个文档从 init 到下一次 init 之间的采集状态
type lifetime struct {
	documentID  string
	ledger      *behavior.Ledger
	exception   *exception.Capture
	performance *performance.Capture
	interaction *interaction.Capture
	cancel      context.CancelFunc
}

// New 创建会话并建立初始页面生命周期
func New(cfg Config) (*Session, error) {
	if cfg.Options.MaxBehaviorRecords == 0 {
		cfg.Options.MaxBehaviorRecords = DefaultMaxBehaviorRecords
	}
	if cfg.Options.MaxBehaviorRecords < 1 {
		return nil, fmt.Errorf("max behavior records: %w", behavior.ErrInvalidCapacity)
	}
	if cfg.Options.FlushInterval == 0 {
		cfg.Options.FlushInterval = DefaultFlushInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Session{
		id:      cfg.ID,
		target:  cfg.Target,
		opts:    cfg.Options,
		sink:    cfg.Sink,
		ic:      cfg.Interceptor,
		metrics: cfg.Metrics,
		log:     cfg.Logger.With("sessionID", string(cfg.ID)),
		now:     cfg.Now,
		bus:     signal.NewBus(),
	}
	life, err := s.newLifetime("")
	if err != nil {
		return nil, err
	}
	s.life = life
	return s, nil
}

// ID 会话ID
func (s *Session) ID() model.SessionID { return s.id }

// Target 会话所属目标
func (s *Session) Target() model.TargetID { return s.target }

// PageInfo 最近一次信号携带的页面信息
func (s *Session) PageInfo() model.PageInformation {
	s.pageMu.RLock()
	defer s.pageMu.RUnlock()
	return s.page
}

// Start 启动用户指标定时上报
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil || s.closed || s.opts.FlushInterval < 0 {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.flushLoop(s.opts.FlushInterval, s.stop, s.done)
}

func (s *Session) flushLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

// AgentOptions 注入该会话目标的脚本选项
func (s *Session) AgentOptions() agent.Options {
	return agent.Options{Framework: s.opts.Framework}
}

// Publish 接收一条页面信号。init 信号先切换页面生命周期，再分发给订阅者；
// 携带文档ID的信号总是进入该文档的生命周期
func (s *Session) Publish(sig signal.Signal) {
	if sig.Page.Href != "" {
		s.pageMu.Lock()
		s.page = sig.Page
		s.pageMu.Unlock()
	}
	switch d := sig.Data.(type) {
	case signal.Init:
		if !s.reset(d, sig.Page) {
			return
		}
	case signal.ClientHints:
		if !s.applyHints(sig.Document, d, sig.Page) {
			return
		}
	default:
		if !s.follow(sig.Document) {
			return
		}
	}
	s.bus.Publish(sig)
}

// reset 为 init 所属文档启动页面生命周期，会话已关闭时返回 false
func (s *Session) reset(in signal.Init, page model.PageInformation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if in.DocumentID == "" || s.life.documentID != in.DocumentID {
		if s.isRetired(in.DocumentID) || !s.switchTo(in.DocumentID) {
			return false
		}
	}
	device := useragent.Features(page.UserAgent, useragent.Parser{}, useragent.Hints(in.Hints))
	s.life.interaction.Start(page, in.Origin, device)
	s.log.Debug("新页面生命周期", "documentId", in.DocumentID, "href", page.Href)
	return true
}

// follow 信号的文档与当前生命周期不同时切换到该文档
func (s *Session) follow(documentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.followLocked(documentID)
}

// applyHints 用客户端提示重新计算设备信息
func (s *Session) applyHints(documentID string, h signal.ClientHints, page model.PageInformation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.followLocked(documentID) {
		return false
	}
	s.life.interaction.SetDevice(useragent.Features(page.UserAgent, useragent.Parser{}, useragent.Hints(h)))
	return true
}

// followLocked 会话已关闭或信号来自已结束的文档时返回 false，调用方持有 s.mu
func (s *Session) followLocked(documentID string) bool {
	if s.closed {
		return false
	}
	if documentID == "" || s.life.documentID == documentID {
		return true
	}
	if s.isRetired(documentID) {
		s.log.Debug("丢弃已结束文档的信号", "documentId", documentID)
		return false
	}
	s.log.Debug("信号先于 init 到达", "documentId", documentID)
	return s.switchTo(documentID)
}

// maxRetired 记住的已结束文档数
const maxRetired = 8

func (s *Session) isRetired(documentID string) bool {
	for _, id := range s.retired {
		if id == documentID {
			return true
		}
	}
	return false
}

// switchTo 关闭旧生命周期并为 documentID 建立新的，调用方持有 s.mu
func (s *Session) switchTo(documentID string) bool {
	if old := s.life.documentID; old != "" {
		s.retired = append(s.retired, old)
		if len(s.retired) > maxRetired {
			s.retired = s.retired[len(s.retired)-maxRetired:]
		}
	}
	s.life.close()
	life, err := s.newLifetime(documentID)
	if err != nil {
		s.log.Err(err, "重建页面生命周期失败")
		return false
	}
	s.life = life
	return true
}

func (s *Session) newLifetime(documentID string) (*lifetime, error) {
	ledger, err := behavior.New(s.opts.MaxBehaviorRecords)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	var sender sink.Sink = nopSink{}
	if s.sink != nil {
		sender = s.sink
	}

	l := &lifetime{documentID: documentID, ledger: ledger, cancel: cancel}
	l.exception = exception.New(exception.Config{
		Context:  ctx,
		Target:   s.target,
		Ledger:   ledger,
		Sender:   sink.SessionSender{Session: s.id, Sink: sender},
		PageInfo: s.PageInfo,
		Metrics:  s.metrics,
		Logger:   s.log,
	})
	l.performance = performance.New(performance.Config{
		Context: ctx,
		Session: s.id,
		Sender:  sender,
		Metrics: s.metrics,
		Logger:  s.log,
		Now:     s.now,
	})
	l.interaction = interaction.New(interaction.Config{
		Context:        ctx,
		Session:        s.id,
		Target:         s.target,
		Ledger:         ledger,
		Sender:         sender,
		ClickMountList: s.opts.ClickMountList,
		PageInfo:       s.PageInfo,
		Metrics:        s.metrics,
		Logger:         s.log,
		Now:            s.now,
	})

	l.exception.Subscribe(s.bus, s.ic)
	l.performance.Subscribe(s.bus)
	l.interaction.Subscribe(s.bus, s.ic)
	return l, nil
}

// close 上报最后的快照后取消订阅
func (l *lifetime) close() {
	l.interaction.Flush()
	l.performance.Flush()
	l.exception.Close()
	l.performance.Close()
	l.interaction.Close()
	l.cancel()
}

// Flush 上报当前用户行为快照
func (s *Session) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.life.interaction.Flush()
}

// Track 自定义埋点
func (s *Session) Track(data model.CustomAnalyticsData) {
	s.mu.Lock()
	life := s.life
	s.mu.Unlock()
	life.interaction.Track(data)
}

// Snapshot 会话当前状态
type Snapshot struct {
	Session     model.SessionID       `json:"session"`
	Target      model.TargetID        `json:"target"`
	DocumentID  string                `json:"documentId"`
	Page        model.PageInformation `json:"page"`
	Performance map[string]any        `json:"performance"`
	User        map[string]any        `json:"user"`
	Breadcrumbs []model.BehaviorEntry `json:"breadcrumbs"`
}

// Snapshot 返回当前页面生命周期的指标与行为栈
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	life := s.life
	s.mu.Unlock()
	return Snapshot{
		Session:     s.id,
		Target:      s.target,
		DocumentID:  life.documentID,
		Page:        s.PageInfo(),
		Performance: life.performance.Store().Snapshot(),
		User:        life.interaction.Store().Snapshot(),
		Breadcrumbs: life.ledger.Get(),
	}
}

// Close 停止定时上报并关闭当前页面生命周期，可重复调用
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop, done := s.stop, s.done
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	s.mu.Lock()
	s.life.close()
	s.mu.Unlock()
}

type nopSink struct{}

func (nopSink) SendException(context.Context, model.SessionID, model.ExceptionRecord) error {
	return nil
}
func (nopSink) SendMetrics(context.Context, model.MetricsSnapshot) error { return nil }
func (nopSink) Close() error                                           { return nil }
