package stacktrace

import (
	"fmt"
	"strings"
	"testing"

	"pagevitals/pkg/model"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want model.StackFrame
	}{
		{
			name: "带函数名",
			line: "    at handleClick (https://example.com/static/app.js:120:15)",
			want: model.StackFrame{Filename: "https://example.com/static/app.js", FunctionName: "handleClick", Lineno: 120, Colno: 15},
		},
		{
			name: "匿名位置",
			line: "    at https://example.com/static/app.js:7:3",
			want: model.StackFrame{Filename: "https://example.com/static/app.js", Lineno: 7, Colno: 3},
		},
		{
			name: "webpack 路径",
			line: "    at Object.render (webpack:///./src/App.vue?1234:33:9)",
			want: model.StackFrame{Filename: "webpack:///./src/App.vue?1234", FunctionName: "Object.render", Lineno: 33, Colno: 9},
		},
		{
			name: "无行列号",
			line: "    at new Promise (<anonymous>)",
			want: model.StackFrame{Filename: "<anonymous>", FunctionName: "new Promise"},
		},
		{
			name: "不匹配",
			line: "    at async Promise.all (index 0)",
			want: model.StackFrame{},
		},
		{
			name: "非 V8 格式",
			line: "foo@https://example.com/a.js:1:1",
			want: model.StackFrame{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLine(tt.line); got != tt.want {
				t.Fatalf("ParseLine() = %+v, 期望 %+v", got, tt.want)
			}
		})
	}
}

func TestParseCapsAtLimitAndDropsMessage(t *testing.T) {
	var b strings.Builder
	b.WriteString("TypeError: x is undefined")
	for i := 1; i <= 15; i++ {
		fmt.Fprintf(&b, "\n    at fn%d (https://example.com/app.js:%d:1)", i, i)
	}

	frames := Parse(b.String())
	if len(frames) != Limit {
		t.Fatalf("帧数 = %d, 期望 %d", len(frames), Limit)
	}
	for i, f := range frames {
		if f.FunctionName != fmt.Sprintf("fn%d", i+1) || f.Lineno != i+1 {
			t.Errorf("第 %d 帧 = %+v", i, f)
		}
	}
}

func TestParseKeepsUnmatchedAsEmptyFrames(t *testing.T) {
	stack := "Error: boom\n    at a (https://x.dev/a.js:1:2)\ngarbage line\n    at b (https://x.dev/b.js:3:4)"
	frames := Parse(stack)
	if len(frames) != 3 {
		t.Fatalf("帧数 = %d", len(frames))
	}
	if frames[1] != (model.StackFrame{}) {
		t.Fatalf("不匹配的行应为空帧: %+v", frames[1])
	}
	if frames[2].FunctionName != "b" {
		t.Fatalf("第三帧 = %+v", frames[2])
	}
}

func TestParseEmpty(t *testing.T) {
	frames := Parse("")
	if frames == nil || len(frames) != 0 {
		t.Fatalf("空堆栈应返回空切片: %#v", frames)
	}
	if got := Parse("Error: only message"); len(got) != 0 {
		t.Fatalf("只有首行时应为空: %v", got)
	}
}
