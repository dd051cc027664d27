package interaction

import (
	"context"
	"sync"
	"testing"
	"time"

	"pagevitals/internal/behavior"
	"pagevitals/internal/signal"
	"pagevitals/pkg/model"
)

type memSender struct {
	mu    sync.Mutex
	snaps []model.MetricsSnapshot
}

func (s *memSender) SendMetrics(_ context.Context, snap model.MetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *memSender) sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.snaps))
	for i, snap := range s.snaps {
		out[i] = snap.Source
	}
	return out
}

func newCapture(t *testing.T, mount []string) (*Capture, *memSender, *behavior.Ledger) {
	t.Helper()
	ledger, err := behavior.New(10)
	if err != nil {
		t.Fatal(err)
	}
	sender := &memSender{}
	c := New(Config{
		Session:        "s1",
		Ledger:         ledger,
		Sender:         sender,
		ClickMountList: mount,
		PageInfo: func() model.PageInformation {
			return model.PageInformation{Pathname: "/orders", Href: "https://shop.example.com/orders"}
		},
		Now: func() time.Time { return time.UnixMilli(1000) },
	})
	return c, sender, ledger
}

func TestClickAllowList(t *testing.T) {
	tests := []struct {
		name    string
		mount   []string
		click   signal.Click
		wantTag string
	}{
		{
			name:  "路径中第一个允许的元素",
			mount: []string{"button", "A"},
			click: signal.Click{
				Path:   []signal.Element{{TagName: "SPAN"}, {TagName: "BUTTON", ID: "buy"}, {TagName: "A"}},
				Target: &signal.Element{TagName: "SPAN"},
			},
			wantTag: "BUTTON",
		},
		{
			name:    "无路径时取目标元素",
			mount:   nil,
			click:   signal.Click{Target: &signal.Element{TagName: "BUTTON", ID: "ok"}},
			wantTag: "BUTTON",
		},
		{
			name:  "不在允许列表",
			mount: []string{"button"},
			click: signal.Click{
				Path:   []signal.Element{{TagName: "DIV"}, {TagName: "BODY"}},
				Target: &signal.Element{TagName: "DIV"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, ledger := newCapture(t, tt.mount)
			c.HandleClick(tt.click, 0)

			v, ok := c.Store().Get(model.MetricCBR)
			if tt.wantTag == "" {
				if ok && len(v.([]any)) != 0 {
					t.Fatalf("不应记录点击: %v", v)
				}
				if ledger.Len() != 0 {
					t.Fatal("不应写入行为栈")
				}
				return
			}
			list := v.([]any)
			if len(list) != 1 {
				t.Fatalf("clicks = %d", len(list))
			}
			rec := list[0].(model.ClickRecord)
			if rec.TagInfo.TagName != tt.wantTag || rec.PageInfo == nil || rec.Timestamp != 1000 {
				t.Fatalf("record = %+v", rec)
			}
			crumb := ledger.Get()[0]
			if crumb.Name != model.MetricCBR || crumb.Page != "/orders" {
				t.Fatalf("breadcrumb = %+v", crumb)
			}
			if crumb.Value.(model.ClickRecord).PageInfo != nil {
				t.Fatal("行为栈记录不应携带页面信息")
			}
		})
	}
}

func TestRouteChangeSendsPageView(t *testing.T) {
	c, sender, ledger := newCapture(t, nil)
	c.Start(model.PageInformation{Pathname: "/"}, model.OriginInformation{Referrer: "https://search.example.com", Type: "navigate"}, model.DeviceFeatures{BrowserName: "Chrome"})

	c.HandleRoute(signal.Route{Type: "pushState"}, 2000)

	v, _ := c.Store().Get(model.MetricRCR)
	rec := v.([]any)[0].(model.RouteChange)
	if rec.JumpType != "pushState" || rec.Timestamp != 2000 || rec.PageInfo == nil {
		t.Fatalf("route = %+v", rec)
	}
	if ledger.Get()[0].Value.(model.RouteChange).PageInfo != nil {
		t.Fatal("行为栈记录不应携带页面信息")
	}

	if got := sender.sources(); len(got) != 1 || got[0] != model.SourcePageView {
		t.Fatalf("sources = %v", got)
	}
	pv := sender.snaps[0].Data["pageView"].(model.PageView)
	if pv.OriginInformation.Referrer != "https://search.example.com" || pv.Timestamp != 2000 {
		t.Fatalf("page view = %+v", pv)
	}

	di, ok := c.Store().Get(model.MetricDI)
	if !ok || di.(model.DeviceFeatures).BrowserName != "Chrome" {
		t.Fatalf("device-information = %v", di)
	}
}

func TestHTTPRecord(t *testing.T) {
	c, _, ledger := newCapture(t, nil)
	c.HandleHTTP(model.NetworkCallMetrics{URL: "/a", Status: 200, Body: "q", Response: "ok"})
	c.HandleHTTP(model.NetworkCallMetrics{URL: "/b", Status: 500, Body: "q", Response: "boom"})

	v, _ := c.Store().Get(model.MetricHT)
	list := v.([]any)
	if len(list) != 2 {
		t.Fatalf("http records = %d", len(list))
	}
	ok := list[0].(model.NetworkCallMetrics)
	if ok.Body != "" || ok.Response != "" {
		t.Fatalf("成功调用不应保留正文: %+v", ok)
	}
	failed := list[1].(model.NetworkCallMetrics)
	if failed.Body != "q" || failed.Response != "boom" {
		t.Fatalf("失败调用应保留正文: %+v", failed)
	}
	if ledger.Len() != 2 {
		t.Fatalf("breadcrumbs = %d", ledger.Len())
	}
}

func TestTrackAndFlush(t *testing.T) {
	c, sender, ledger := newCapture(t, nil)
	bus := signal.NewBus()
	c.Subscribe(bus, nil)

	bus.Publish(signal.Signal{Kind: signal.KindCustom, Data: model.CustomAnalyticsData{EventCategory: "Video", EventAction: "play", EventLabel: "intro"}})
	bus.Publish(signal.Signal{Kind: signal.KindLoad, Timestamp: 3000})
	c.Flush()

	got := sender.sources()
	want := []string{model.SourceCustom, model.SourcePageView, model.SourceUser}
	if len(got) != len(want) {
		t.Fatalf("sources = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sources = %v, 期望 %v", got, want)
		}
	}
	if ledger.Get()[0].Name != model.MetricCDR {
		t.Fatalf("breadcrumb = %+v", ledger.Get()[0])
	}
	if _, ok := sender.snaps[2].Data[string(model.MetricCDR)]; !ok {
		t.Fatal("用户快照应包含自定义埋点")
	}

	c.Close()
	if bus.Count(signal.KindClick) != 0 {
		t.Fatal("关闭后应取消订阅")
	}
}
