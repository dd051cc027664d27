package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"pagevitals/pkg/model"
)

// Webhook 每条数据一次 POST，不重试
type Webhook struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhook 创建 webhook sink，client 为空时使用 10s 超时的默认客户端
func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{url: url, client: client, now: time.Now}
}

// SendException 实现 Sink
func (s *Webhook) SendException(ctx context.Context, session model.SessionID, rec model.ExceptionRecord) error {
	return s.post(ctx, KindException, session, s.now().UnixMilli(), rec)
}

// SendMetrics 实现 Sink
func (s *Webhook) SendMetrics(ctx context.Context, snap model.MetricsSnapshot) error {
	return s.post(ctx, KindMetrics, snap.Session, snap.Timestamp, snap)
}

func (s *Webhook) post(ctx context.Context, kind string, session model.SessionID, ts int64, payload any) error {
	body, err := Envelope(kind, session, ts, payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", kind, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: unexpected status %d", kind, resp.StatusCode)
	}
	return nil
}

// Close 实现 Sink
func (s *Webhook) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
