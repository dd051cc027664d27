package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pagevitals/internal/behavior"
	"pagevitals/internal/signal"
	"pagevitals/pkg/model"
)

const chromeMac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type memSink struct {
	mu         sync.Mutex
	exceptions []model.ExceptionRecord
	snaps      []model.MetricsSnapshot
}

func (s *memSink) SendException(_ context.Context, _ model.SessionID, rec model.ExceptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions = append(s.exceptions, rec)
	return nil
}

func (s *memSink) SendMetrics(_ context.Context, snap model.MetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *memSink) Close() error { return nil }

func (s *memSink) exceptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exceptions)
}

func (s *memSink) sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.snaps))
	for i, snap := range s.snaps {
		out[i] = snap.Source
	}
	return out
}

var homePage = model.PageInformation{Href: "https://shop.example.com/", Pathname: "/", UserAgent: chromeMac}

func initSignal(doc string) signal.Signal {
	return signal.Signal{
		Kind: signal.KindInit,
		Page: homePage,
		Data: signal.Init{
			DocumentID: doc,
			Origin:     model.OriginInformation{Referrer: "https://search.example.com", Type: "navigate"},
			Hints:      signal.ClientHints{PlatformVersion: "14.2.1", Model: "Macmini"},
		},
	}
}

func scriptError() signal.Signal {
	return signal.Signal{
		Kind: signal.KindError,
		Page: homePage,
		Data: signal.ErrorEvent{IsErrorEvent: true, Message: "boom", Filename: "app.js", Lineno: 1, Colno: 2},
	}
}

func newSession(t *testing.T, sink *memSink) *Session {
	t.Helper()
	s, err := New(Config{ID: "s1", Target: "T1", Sink: sink, Options: Options{FlushInterval: -1}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestDedupResetsOnNewDocument(t *testing.T) {
	sink := &memSink{}
	s := newSession(t, sink)

	s.Publish(initSignal("d1"))
	s.Publish(scriptError())
	s.Publish(scriptError())
	if n := sink.exceptionCount(); n != 1 {
		t.Fatalf("同一文档内重复异常应去重, got %d", n)
	}

	s.Publish(initSignal("d2"))
	s.Publish(scriptError())
	if n := sink.exceptionCount(); n != 2 {
		t.Fatalf("新文档应重新上报, got %d", n)
	}
	if s.Snapshot().DocumentID != "d2" {
		t.Fatalf("documentId = %q", s.Snapshot().DocumentID)
	}
}

func TestInitStartsUserMetrics(t *testing.T) {
	s := newSession(t, &memSink{})
	s.Publish(initSignal("d1"))

	snap := s.Snapshot()
	for _, k := range []model.MetricName{model.MetricPI, model.MetricOI, model.MetricDI} {
		if _, ok := snap.User[string(k)]; !ok {
			t.Fatalf("缺少 %s: %v", k, snap.User)
		}
	}
	device := snap.User[string(model.MetricDI)].(model.DeviceFeatures)
	if device.BrowserName != "Chrome" || device.DeviceModel != "Macmini" {
		t.Fatalf("device = %+v", device)
	}
	if snap.Page.Href != homePage.Href {
		t.Fatalf("page = %+v", snap.Page)
	}
}

func TestBreadcrumbsAttached(t *testing.T) {
	sink := &memSink{}
	s := newSession(t, sink)
	s.Publish(initSignal("d1"))
	s.Publish(signal.Signal{Kind: signal.KindClick, Page: homePage, Data: signal.Click{Target: &signal.Element{TagName: "BUTTON"}}})
	s.Publish(scriptError())

	rec := sink.exceptions[0]
	if len(rec.Breadcrumbs) != 1 || rec.Breadcrumbs[0].Name != model.MetricCBR {
		t.Fatalf("breadcrumbs = %+v", rec.Breadcrumbs)
	}
	if rec.PageInformation == nil || rec.PageInformation.Href != homePage.Href {
		t.Fatalf("pageInformation = %+v", rec.PageInformation)
	}
	if len(s.Snapshot().Breadcrumbs) != 1 {
		t.Fatal("异常上报后行为栈不应清空")
	}
}

// ofDocument 标记信号所属文档
func ofDocument(sig signal.Signal, doc string) signal.Signal {
	sig.Document = doc
	return sig
}

func TestSignalsBeforeInitJoinTheirDocument(t *testing.T) {
	sink := &memSink{}
	s := newSession(t, sink)
	fcp := signal.Signal{Kind: signal.KindPaint, Page: homePage, Data: signal.Paint{Name: "first-contentful-paint", StartTime: 42}}

	s.Publish(ofDocument(initSignal("d1"), "d1"))
	s.Publish(ofDocument(scriptError(), "d1"))

	// 重新加载后 init 到达前的信号
	s.Publish(ofDocument(scriptError(), "d2"))
	s.Publish(ofDocument(fcp, "d2"))
	if n := sink.exceptionCount(); n != 2 {
		t.Fatalf("每个文档应各上报一次, got %d", n)
	}

	s.Publish(ofDocument(initSignal("d2"), "d2"))
	snap := s.Snapshot()
	if snap.DocumentID != "d2" {
		t.Fatalf("documentId = %q", snap.DocumentID)
	}
	if _, ok := snap.Performance[string(model.MetricFCP)]; !ok {
		t.Fatalf("d2 的 FCP 丢失: %v", snap.Performance)
	}
	if _, ok := snap.User[string(model.MetricPI)]; !ok {
		t.Fatalf("init 应写入页面信息: %v", snap.User)
	}

	late := ofDocument(scriptError(), "d1")
	late.Data = signal.ErrorEvent{IsErrorEvent: true, Message: "unload", Filename: "app.js"}
	s.Publish(late)
	if n := sink.exceptionCount(); n != 2 {
		t.Fatalf("已结束文档的信号应丢弃, got %d", n)
	}
	if s.Snapshot().DocumentID != "d2" {
		t.Fatal("迟到的信号不应切换生命周期")
	}
}

func TestHintsUpdateDevice(t *testing.T) {
	s := newSession(t, &memSink{})
	in := initSignal("d1")
	in.Data = signal.Init{DocumentID: "d1"}
	s.Publish(ofDocument(in, "d1"))

	device := s.Snapshot().User[string(model.MetricDI)].(model.DeviceFeatures)
	if device.DeviceModel != "" {
		t.Fatalf("device = %+v", device)
	}

	s.Publish(signal.Signal{Kind: signal.KindHints, Document: "d1", Page: homePage, Data: signal.ClientHints{Model: "Pixel 7", Mobile: true}})
	snap := s.Snapshot()
	device = snap.User[string(model.MetricDI)].(model.DeviceFeatures)
	if device.DeviceModel != "Pixel 7" || device.BrowserName != "Chrome" {
		t.Fatalf("device = %+v", device)
	}
	if snap.DocumentID != "d1" {
		t.Fatal("hints 不应切换生命周期")
	}
}

func TestAgentOptions(t *testing.T) {
	s, err := New(Config{ID: "s1", Options: Options{Framework: "off", FlushInterval: -1}})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.AgentOptions().Framework != "off" {
		t.Fatalf("options = %+v", s.AgentOptions())
	}
}

func TestNewDocumentFlushesPreviousLifetime(t *testing.T) {
	sink := &memSink{}
	s := newSession(t, sink)
	s.Publish(initSignal("d1"))
	s.Publish(signal.Signal{Kind: signal.KindPaint, Data: signal.Paint{Name: "first-paint", StartTime: 10}})

	s.Publish(initSignal("d2"))
	got := sink.sources()
	if len(got) != 2 || got[0] != model.SourceUser || got[1] != model.SourcePerformance {
		t.Fatalf("sources = %v", got)
	}
	if len(s.Snapshot().Performance) != 0 {
		t.Fatal("新文档的性能 store 应为空")
	}
}

func TestCloseIsFinal(t *testing.T) {
	sink := &memSink{}
	s := newSession(t, sink)
	s.Publish(initSignal("d1"))
	s.Close()
	s.Close()

	before := len(sink.sources())
	s.Publish(scriptError())
	s.Publish(initSignal("d2"))
	if sink.exceptionCount() != 0 || len(sink.sources()) != before {
		t.Fatal("关闭后不应继续上报")
	}
}

func TestPeriodicFlush(t *testing.T) {
	sink := &memSink{}
	s, err := New(Config{ID: "s1", Sink: sink, Options: Options{FlushInterval: 10 * time.Millisecond}})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	s.Track(model.CustomAnalyticsData{EventCategory: "Video", EventAction: "play"})
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, src := range sink.sources() {
			if src == model.SourceUser {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("未收到定时上报, sources = %v", sink.sources())
}

func TestInvalidCapacity(t *testing.T) {
	_, err := New(Config{Options: Options{MaxBehaviorRecords: -1}})
	if !errors.Is(err, behavior.ErrInvalidCapacity) {
		t.Fatalf("err = %v", err)
	}
}

func TestManager(t *testing.T) {
	m := NewManager(nil, nil)
	a, err := m.Create(Config{Target: "T1", Options: Options{FlushInterval: -1}})
	if err != nil {
		t.Fatal(err)
	}
	if len(a.ID()) != 36 {
		t.Fatalf("id = %q", a.ID())
	}
	if _, err := m.Create(Config{ID: "b", Target: "T2", Options: Options{FlushInterval: -1}}); err != nil {
		t.Fatal(err)
	}

	if s, ok := m.ByTarget("T2"); !ok || s.ID() != "b" {
		t.Fatal("ByTarget 未找到会话")
	}
	if _, ok := m.Get(a.ID()); !ok {
		t.Fatal("Get 未找到会话")
	}
	if len(m.List()) != 2 {
		t.Fatalf("list = %d", len(m.List()))
	}
	if err := m.Delete("b"); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete("b"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v", err)
	}
	m.Close()
	if len(m.List()) != 0 {
		t.Fatal("Close 后应无会话")
	}
}
