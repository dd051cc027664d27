package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 日志接口，键值对形式传递字段
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
	With(kv ...any) Logger
}

// Options 日志配置
type Options struct {
	Level   string
	Writers []string
	File    string
	// MaxSizeMB 单个日志文件大小上限
	MaxSizeMB  int
	MaxBackups int
}

// zeroLogger 基于 zerolog 的实现
type zeroLogger struct {
	zl zerolog.Logger
}

// New 根据配置创建日志实例
func New(opts Options) Logger {
	var writers []io.Writer
	for _, w := range opts.Writers {
		switch strings.ToLower(w) {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
		case "file":
			file := opts.File
			if file == "" {
				file = "pagevitals.log"
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   file,
				MaxSize:    orDefault(opts.MaxSizeMB, 50),
				MaxBackups: orDefault(opts.MaxBackups, 3),
				Compress:   true,
			})
		case "json":
			writers = append(writers, os.Stderr)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(opts.Level)).
		With().Timestamp().Logger()
	return &zeroLogger{zl: zl}
}

// NewWithWriter 输出到指定 writer，主要用于测试
func NewWithWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
	return &zeroLogger{zl: zl}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *zeroLogger) Debug(msg string, kv ...any) { write(l.zl.Debug(), msg, kv) }
func (l *zeroLogger) Info(msg string, kv ...any)  { write(l.zl.Info(), msg, kv) }
func (l *zeroLogger) Warn(msg string, kv ...any)  { write(l.zl.Warn(), msg, kv) }
func (l *zeroLogger) Error(msg string, kv ...any) { write(l.zl.Error(), msg, kv) }

func (l *zeroLogger) Err(err error, msg string, kv ...any) {
	write(l.zl.Error().Err(err), msg, kv)
}

func (l *zeroLogger) With(kv ...any) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(kv); i += 2 {
		ctx = ctx.Interface(key(kv[i]), kv[i+1])
	}
	return &zeroLogger{zl: ctx.Logger()}
}

// write 将键值对写入事件，奇数个参数时最后一个以 "extra" 记录
func write(ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			ev = ev.Interface("extra", kv[i])
			break
		}
		if err, ok := kv[i+1].(error); ok {
			ev = ev.AnErr(key(kv[i]), err)
			continue
		}
		ev = ev.Interface(key(kv[i]), kv[i+1])
	}
	ev.Msg(msg)
}

func key(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}

// nopLogger 丢弃所有日志
type nopLogger struct{}

// NewNop 创建空日志实例
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...any)      {}
func (nopLogger) Info(string, ...any)       {}
func (nopLogger) Warn(string, ...any)       {}
func (nopLogger) Error(string, ...any)      {}
func (nopLogger) Err(error, string, ...any) {}
func (n nopLogger) With(...any) Logger      { return n }
