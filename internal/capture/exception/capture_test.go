package exception

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"pagevitals/internal/behavior"
	"pagevitals/internal/signal"
	"pagevitals/pkg/model"
)

type memSender struct {
	mu   sync.Mutex
	recs []model.ExceptionRecord
	err  error
}

func (s *memSender) SendException(_ context.Context, rec model.ExceptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return s.err
}

func newCapture(t *testing.T) (*Capture, *memSender, *behavior.Ledger) {
	t.Helper()
	ledger, err := behavior.New(5)
	if err != nil {
		t.Fatal(err)
	}
	sender := &memSender{}
	c := New(Config{
		Ledger: ledger,
		Sender: sender,
		PageInfo: func() model.PageInformation {
			return model.PageInformation{Href: "https://app.example.com/cart", Title: "Cart"}
		},
	})
	return c, sender, ledger
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ev   signal.ErrorEvent
		want model.MechanismType
	}{
		{"资源加载失败", signal.ErrorEvent{Target: signal.ResourceTarget{Src: "https://cdn/x.js", TagName: "SCRIPT"}}, model.MechanismResource},
		{"跨域脚本", signal.ErrorEvent{IsErrorEvent: true, Message: "Script error."}, model.MechanismCORS},
		{"跨域哨兵需完全相等", signal.ErrorEvent{IsErrorEvent: true, Message: "Script error"}, model.MechanismJS},
		{"脚本错误", signal.ErrorEvent{IsErrorEvent: true, Message: "x is not defined"}, model.MechanismJS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.ev).Mechanism(); got != tt.want {
				t.Fatalf("Classify() = %s, 期望 %s", got, tt.want)
			}
		})
	}
}

func TestErrorUID(t *testing.T) {
	got := ErrorUID(model.MechanismJS, "boom", "app.js")
	want := base64.StdEncoding.EncodeToString([]byte("js-boom-app.js"))
	if got != want {
		t.Fatalf("ErrorUID() = %s, 期望 %s", got, want)
	}
	if ErrorUID(model.MechanismCORS, "Script error.") != base64.StdEncoding.EncodeToString([]byte("cors-Script error.")) {
		t.Fatal("cors uid 错误")
	}
	if ErrorUID(model.MechanismJS, "页面崩溃", "a.js") == ErrorUID(model.MechanismJS, "页面崩溃", "b.js") {
		t.Fatal("不同来源应产生不同 uid")
	}
}

func TestScriptErrorRecord(t *testing.T) {
	c, sender, ledger := newCapture(t)
	ledger.Push(model.BehaviorEntry{Name: model.MetricCBR, Page: "/cart", Timestamp: 1})

	c.HandleError(signal.ErrorEvent{
		IsErrorEvent: true,
		Message:      "Uncaught TypeError: a is undefined",
		Filename:     "https://app.example.com/main.js",
		Lineno:       12,
		Colno:        7,
		Error: &signal.ErrorInfo{
			Name:    "TypeError",
			Message: "a is undefined",
			Stack:   "TypeError: a is undefined\n    at render (https://app.example.com/main.js:12:7)",
		},
	})

	if len(sender.recs) != 1 {
		t.Fatalf("records = %d", len(sender.recs))
	}
	rec := sender.recs[0]
	if rec.Mechanism.Type != model.MechanismJS || rec.Type != "TypeError" {
		t.Fatalf("record = %+v", rec)
	}
	if len(rec.StackTrace.Frames) != 1 || rec.StackTrace.Frames[0].FunctionName != "render" {
		t.Fatalf("frames = %+v", rec.StackTrace.Frames)
	}
	if rec.PageInformation == nil || rec.PageInformation.Title != "Cart" {
		t.Fatalf("pageInformation = %+v", rec.PageInformation)
	}
	if len(rec.Breadcrumbs) != 1 || rec.Breadcrumbs[0].Name != model.MetricCBR {
		t.Fatalf("breadcrumbs = %+v", rec.Breadcrumbs)
	}
	if rec.Meta["row"] != 12 || rec.Meta["col"] != 7 {
		t.Fatalf("meta = %v", rec.Meta)
	}
	if ledger.Len() != 1 {
		t.Fatal("上报后行为栈应保留")
	}
}

func TestScriptErrorWithoutErrorObject(t *testing.T) {
	c, sender, _ := newCapture(t)
	c.HandleError(signal.ErrorEvent{IsErrorEvent: true, Message: "oops", Filename: "a.js"})

	rec := sender.recs[0]
	if rec.Type != "Unknown" {
		t.Fatalf("type = %q", rec.Type)
	}
	if rec.StackTrace == nil || rec.StackTrace.Frames == nil || len(rec.StackTrace.Frames) != 0 {
		t.Fatalf("无堆栈时应为空帧列表: %+v", rec.StackTrace)
	}
}

func TestDeduplication(t *testing.T) {
	c, sender, _ := newCapture(t)
	ev := signal.ErrorEvent{Target: signal.ResourceTarget{Src: "https://cdn.example.com/logo.png", TagName: "IMG"}}

	for i := 0; i < 3; i++ {
		c.HandleError(ev)
	}
	c.HandleError(signal.ErrorEvent{Target: signal.ResourceTarget{Src: "https://cdn.example.com/logo.png", TagName: "SCRIPT"}})

	if len(sender.recs) != 2 {
		t.Fatalf("records = %d, 期望 2", len(sender.recs))
	}
	first := sender.recs[0]
	if first.Type != "ResourceError" || first.Meta["url"] != "https://cdn.example.com/logo.png" {
		t.Fatalf("record = %+v", first)
	}
	if !c.Seen(first.ErrorUID) {
		t.Fatal("uid 应已记录")
	}
}

func TestSendErrorStillRecordsUID(t *testing.T) {
	c, sender, _ := newCapture(t)
	sender.err = errors.New("sink down")

	c.HandleError(signal.ErrorEvent{IsErrorEvent: true, Message: "Script error."})
	c.HandleError(signal.ErrorEvent{IsErrorEvent: true, Message: "Script error."})

	if len(sender.recs) != 1 {
		t.Fatalf("records = %d", len(sender.recs))
	}
	if sender.recs[0].Type != "CorsError" {
		t.Fatalf("type = %q", sender.recs[0].Type)
	}
}

func TestRejection(t *testing.T) {
	tests := []struct {
		name      string
		in        signal.Rejection
		wantValue string
		wantType  string
	}{
		{"Error 对象", signal.Rejection{Error: &signal.ErrorInfo{Name: "RangeError", Message: "too deep"}, Reason: "RangeError: too deep"}, "too deep", "RangeError"},
		{"字符串原因", signal.Rejection{Reason: "timeout"}, "timeout", "Unknown"},
		{"空消息回退到原因", signal.Rejection{Error: &signal.ErrorInfo{}, Reason: "[object Object]"}, "[object Object]", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sender, _ := newCapture(t)
			c.HandleRejection(tt.in)
			rec := sender.recs[0]
			if rec.Value != tt.wantValue || rec.Type != tt.wantType {
				t.Fatalf("value=%q type=%q", rec.Value, rec.Type)
			}
			want := ErrorUID(model.MechanismRejection, tt.wantValue, tt.wantType)
			if rec.ErrorUID != want {
				t.Fatalf("uid = %s", rec.ErrorUID)
			}
		})
	}
}

func TestHTTPStatusBoundary(t *testing.T) {
	tests := []struct {
		status int
		want   int
	}{
		{200, 0},
		{399, 0},
		{400, 1},
		{404, 1},
		{503, 1},
	}
	for _, tt := range tests {
		c, sender, _ := newCapture(t)
		c.HandleHTTP(model.NetworkCallMetrics{Method: "GET", URL: "https://api.example.com/a", Status: tt.status, Response: "err"})
		if len(sender.recs) != tt.want {
			t.Fatalf("status %d: records = %d, 期望 %d", tt.status, len(sender.recs), tt.want)
		}
		if tt.want == 1 && sender.recs[0].Type != "HttpError" {
			t.Fatalf("type = %q", sender.recs[0].Type)
		}
	}
}

func TestFrameworkError(t *testing.T) {
	c, sender, _ := newCapture(t)
	comp := ViewModel{Present: true, File: "src/components/user-card.vue"}

	c.HandleFrameworkError(signal.ErrorInfo{Name: "Error", Message: "render failed"}, comp, "render")
	c.HandleFrameworkError(signal.ErrorInfo{Name: "Error", Message: "render failed"}, comp, "render")
	c.HandleFrameworkError(signal.ErrorInfo{Name: "Error", Message: "render failed"}, comp, "mounted hook")

	if len(sender.recs) != 2 {
		t.Fatalf("records = %d", len(sender.recs))
	}
	rec := sender.recs[0]
	if rec.Mechanism.Type != model.MechanismFramework || rec.Meta["componentName"] != "<UserCard>" {
		t.Fatalf("record = %+v", rec)
	}
	if rec.ErrorUID != ErrorUID(model.MechanismFramework, "render failed", "<UserCard>", "render") {
		t.Fatalf("uid = %s", rec.ErrorUID)
	}
}

func TestSubscribeAndClose(t *testing.T) {
	c, sender, _ := newCapture(t)
	bus := signal.NewBus()
	c.Subscribe(bus, nil)

	bus.Publish(signal.Signal{Kind: signal.KindRejection, Data: signal.Rejection{Reason: "a"}})
	bus.Publish(signal.Signal{Kind: signal.KindFrameworkError, Data: signal.FrameworkError{
		Error:     signal.ErrorInfo{Message: "x"},
		Component: signal.ComponentInfo{Present: true, Root: true},
		Info:      "setup",
	}})
	c.Close()
	bus.Publish(signal.Signal{Kind: signal.KindRejection, Data: signal.Rejection{Reason: "b"}})

	if len(sender.recs) != 2 {
		t.Fatalf("records = %d", len(sender.recs))
	}
	if sender.recs[1].Meta["componentName"] != RootComponentName {
		t.Fatalf("componentName = %v", sender.recs[1].Meta["componentName"])
	}
	if bus.Count(signal.KindError) != 0 {
		t.Fatal("关闭后订阅应全部取消")
	}
}
