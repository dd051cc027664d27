package exception

import (
	"regexp"
	"strings"

	"pagevitals/internal/signal"
)

const (
	// RootComponentName 根组件标记
	RootComponentName = "<Root>"
	// AnonymousComponentName 无法识别组件时的标记
	AnonymousComponentName = "<Anonymous>"
)

// Component 框架集成提供的组件身份能力
type Component interface {
	// DisplayName 返回组件名，无法识别时 ok 为 false
	DisplayName() (name string, ok bool)
}

var (
	classifyRE = regexp.MustCompile(`(?:^|[-_])(\w)`)
	fileBaseRE = regexp.MustCompile(`([^/\\]+)\.[^./\\]+$`)
)

// ViewModel 把页面代理上报的组件字段适配为 Component，依次取声明名、标签名、源文件名
type ViewModel signal.ComponentInfo

// DisplayName 实现 Component
func (vm ViewModel) DisplayName() (string, bool) {
	if !vm.Present {
		return "", false
	}
	if vm.Root {
		return RootComponentName, true
	}
	if vm.Name != "" {
		return vm.Name, true
	}
	if vm.Tag != "" {
		return vm.Tag, true
	}
	if m := fileBaseRE.FindStringSubmatch(vm.File); m != nil {
		return m[1], true
	}
	return "", false
}

// FormatComponentName 生成 <PascalCase> 形式的组件名
func FormatComponentName(c Component) string {
	if c == nil {
		return AnonymousComponentName
	}
	name, ok := c.DisplayName()
	if !ok || name == "" {
		return AnonymousComponentName
	}
	if name == RootComponentName {
		return name
	}
	return "<" + classify(name) + ">"
}

// classify my-comp_name -> MyCompName
func classify(s string) string {
	s = classifyRE.ReplaceAllStringFunc(s, strings.ToUpper)
	return strings.NewReplacer("-", "", "_", "").Replace(s)
}
