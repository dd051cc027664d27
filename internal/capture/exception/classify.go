package exception

import (
	"encoding/base64"
	"strings"

	"pagevitals/internal/signal"
	"pagevitals/pkg/model"
)

// crossOriginMessage 浏览器隐藏跨域脚本错误详情时给出的固定消息
const crossOriginMessage = "Script error."

// Classified 全局 error 信号的归类结果，只有 ScriptError、ResourceError、CrossOriginError 三种
type Classified interface {
	Mechanism() model.MechanismType
	classified()
}

// ScriptError 脚本运行时错误
type ScriptError struct {
	Message  string
	Filename string
	Lineno   int
	Colno    int
	Error    *signal.ErrorInfo
}

// ResourceError 资源加载失败
type ResourceError struct {
	Target signal.ResourceTarget
}

// CrossOriginError 跨域脚本错误，详情被浏览器隐藏
type CrossOriginError struct {
	Message string
}

func (ScriptError) Mechanism() model.MechanismType      { return model.MechanismJS }
func (ResourceError) Mechanism() model.MechanismType    { return model.MechanismResource }
func (CrossOriginError) Mechanism() model.MechanismType { return model.MechanismCORS }

func (ScriptError) classified()      {}
func (ResourceError) classified()    {}
func (CrossOriginError) classified() {}

// Classify 按事件形态归类：非 ErrorEvent 为资源错误，消息恰为跨域哨兵串为跨域错误，其余为脚本错误
func Classify(ev signal.ErrorEvent) Classified {
	if !ev.IsErrorEvent {
		return ResourceError{Target: ev.Target}
	}
	if ev.Message == crossOriginMessage {
		return CrossOriginError{Message: ev.Message}
	}
	return ScriptError{
		Message:  ev.Message,
		Filename: ev.Filename,
		Lineno:   ev.Lineno,
		Colno:    ev.Colno,
		Error:    ev.Error,
	}
}

// ErrorUID 由归类和若干来源字段拼接后做标准 base64 编码
func ErrorUID(mechanism model.MechanismType, parts ...string) string {
	var b strings.Builder
	b.WriteString(string(mechanism))
	for _, p := range parts {
		b.WriteByte('-')
		b.WriteString(p)
	}
	return base64.StdEncoding.EncodeToString([]byte(b.String()))
}
