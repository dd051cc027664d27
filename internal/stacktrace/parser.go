// Package stacktrace 解析引擎输出的错误堆栈文本
package stacktrace

import (
	"regexp"
	"strconv"
	"strings"

	"pagevitals/pkg/model"
)

// Limit 最多保留的帧数
const Limit = 10

// fullMatch 匹配一行堆栈："at fn (location:line:col)" 或 "at location:line:col"
var fullMatch = regexp.MustCompile(`(?i)^\s*at (?:(.*?) ?\()?((?:file|https?|blob|chrome-extension|address|native|eval|webpack|<anonymous>|[-a-z]+:|.*bundle|/).*?)(?::(\d+))?(?::(\d+))?\)?\s*$`)

// ParseLine 解析单行，不匹配时返回空帧
func ParseLine(line string) model.StackFrame {
	m := fullMatch.FindStringSubmatch(line)
	if m == nil {
		return model.StackFrame{}
	}
	return model.StackFrame{
		Filename:     m[2],
		FunctionName: m[1],
		Lineno:       atoi(m[3]),
		Colno:        atoi(m[4]),
	}
}

// Parse 解析整段堆栈，跳过首行的错误信息，最多返回 Limit 帧
func Parse(stack string) []model.StackFrame {
	frames := make([]model.StackFrame, 0, Limit)
	if stack == "" {
		return frames
	}

	lines := strings.Split(stack, "\n")
	for _, line := range lines[1:] {
		frames = append(frames, ParseLine(line))
		if len(frames) >= Limit {
			break
		}
	}
	return frames
}

// atoi 解析失败或为 0 时视为缺失
func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
