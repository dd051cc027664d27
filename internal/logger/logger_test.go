package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")

	l.Info("不应输出")
	l.Warn("应输出", "target", "t1")

	out := buf.String()
	if strings.Contains(out, "不应输出") {
		t.Fatalf("info 日志不应在 warn 级别输出: %s", out)
	}
	if !strings.Contains(out, `"target":"t1"`) {
		t.Fatalf("缺少字段: %s", out)
	}
}

func TestErrAndWith(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug").With("session", "s1")

	l.Err(errors.New("boom"), "失败", "odd")

	out := buf.String()
	for _, want := range []string{`"session":"s1"`, `"error":"boom"`, `"extra":"odd"`} {
		if !strings.Contains(out, want) {
			t.Errorf("缺少 %s: %s", want, out)
		}
	}
}

func TestNop(t *testing.T) {
	l := NewNop()
	l.Info("x")
	l.With("a", 1).Err(errors.New("e"), "y")
}
