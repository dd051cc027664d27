package sink

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"pagevitals/pkg/model"
)

// Writer 以 JSON Lines 写出信封
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewWriter 创建 JSON Lines sink，w 为空时写到标准输出
func NewWriter(w io.Writer) *Writer {
	if w == nil {
		w = os.Stdout
	}
	return &Writer{w: w, now: time.Now}
}

// SendException 实现 Sink
func (s *Writer) SendException(_ context.Context, session model.SessionID, rec model.ExceptionRecord) error {
	return s.write(KindException, session, s.now().UnixMilli(), rec)
}

// SendMetrics 实现 Sink
func (s *Writer) SendMetrics(_ context.Context, snap model.MetricsSnapshot) error {
	return s.write(KindMetrics, snap.Session, snap.Timestamp, snap)
}

func (s *Writer) write(kind string, session model.SessionID, ts int64, payload any) error {
	line, err := Envelope(kind, session, ts, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(line, '\n'))
	return err
}

// Close 实现 Sink
func (s *Writer) Close() error { return nil }
