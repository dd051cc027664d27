package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"pagevitals/internal/metrics"
	"pagevitals/internal/storage"
	"pagevitals/pkg/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tidwall/gjson"
)

var sampleException = model.ExceptionRecord{
	Mechanism:   model.Mechanism{Type: model.MechanismHTTP},
	Value:       "Not Found",
	Type:        "HttpError",
	ErrorUID:    "aHR0cA==",
	Breadcrumbs: []model.BehaviorEntry{},
	Meta:        map[string]any{},
}

func TestEnvelope(t *testing.T) {
	out, err := Envelope(KindException, "s1", 42, sampleException)
	if err != nil {
		t.Fatal(err)
	}
	doc := gjson.ParseBytes(out)
	if doc.Get("kind").String() != KindException || doc.Get("session").String() != "s1" || doc.Get("timestamp").Int() != 42 {
		t.Fatalf("envelope = %s", out)
	}
	if doc.Get("payload.mechanism.type").String() != "http" || doc.Get("payload.errorUid").String() != "aHR0cA==" {
		t.Fatalf("payload = %s", doc.Get("payload").Raw)
	}

	if _, err := Envelope(KindMetrics, "s1", 0, map[string]any{"bad": func() {}}); err == nil {
		t.Fatal("不可序列化的负载应返回错误")
	}
}

func TestWriterLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.SendException(context.Background(), "s1", sampleException); err != nil {
		t.Fatal(err)
	}
	if err := w.SendMetrics(context.Background(), model.MetricsSnapshot{Session: "s1", Source: model.SourceUser, Timestamp: 7, Data: map[string]any{}}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if gjson.Get(lines[1], "kind").String() != KindMetrics || gjson.Get(lines[1], "timestamp").Int() != 7 ||
		gjson.Get(lines[1], "payload.source").String() != model.SourceUser {
		t.Fatalf("metrics line = %s", lines[1])
	}
}

type recordingSink struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *recordingSink) SendException(context.Context, model.SessionID, model.ExceptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *recordingSink) SendMetrics(context.Context, model.MetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func TestRouterFanOut(t *testing.T) {
	m := metrics.New()
	r := NewRouter(m, nil)
	broken := &recordingSink{err: errors.New("down")}
	ok := &recordingSink{}
	r.Add("broken", broken)
	r.Add("ok", ok)

	if err := r.SendException(context.Background(), "s1", sampleException); err != nil {
		t.Fatalf("路由不应返回单个 sink 的错误: %v", err)
	}
	if err := r.SendMetrics(context.Background(), model.MetricsSnapshot{Session: "s1"}); err != nil {
		t.Fatal(err)
	}
	if broken.calls != 2 || ok.calls != 2 {
		t.Fatalf("calls = %d/%d", broken.calls, ok.calls)
	}
	if got := testutil.ToFloat64(m.SinkErrorsTotal.WithLabelValues("broken")); got != 2 {
		t.Fatalf("sink errors = %v", got)
	}
	if r.Len() != 2 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestSessionSender(t *testing.T) {
	var buf bytes.Buffer
	s := SessionSender{Session: "s9", Sink: NewWriter(&buf)}
	if err := s.SendException(context.Background(), sampleException); err != nil {
		t.Fatal(err)
	}
	if gjson.Get(buf.String(), "session").String() != "s9" {
		t.Fatalf("line = %s", buf.String())
	}
}

func TestWebhook(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"成功", http.StatusNoContent, false},
		{"服务端错误", http.StatusInternalServerError, true},
		{"重定向状态", http.StatusMultipleChoices, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []byte
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
					t.Errorf("请求 = %s %s", r.Method, r.Header.Get("Content-Type"))
				}
				got, _ = io.ReadAll(r.Body)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			hook := NewWebhook(srv.URL, srv.Client())
			err := hook.SendException(context.Background(), "s1", sampleException)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if gjson.GetBytes(got, "payload.type").String() != "HttpError" {
				t.Fatalf("body = %s", got)
			}
			_ = hook.Close()
		})
	}
}

func TestStorageSink(t *testing.T) {
	db, err := storage.Open(storage.Options{DSN: filepath.Join(t.TempDir(), "sink.db")})
	if err != nil {
		t.Fatal(err)
	}
	s := NewStorage(db)
	defer s.Close()

	ctx := context.Background()
	if err := s.SendException(ctx, "s1", sampleException); err != nil {
		t.Fatal(err)
	}
	if err := s.SendMetrics(ctx, model.MetricsSnapshot{Session: "s1", Source: model.SourcePerformance, Data: map[string]any{}}); err != nil {
		t.Fatal(err)
	}
	ex, _ := db.Exceptions(ctx, "s1", 0)
	ms, _ := db.Metrics(ctx, "s1", "")
	if len(ex) != 1 || ex[0].Mechanism != "http" || len(ms) != 1 {
		t.Fatalf("exceptions = %d metrics = %d", len(ex), len(ms))
	}
}
