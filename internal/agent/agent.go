// Package agent 提供注入页面的采集脚本，并把脚本经 Runtime 绑定回传的负载解析为信号
package agent

import (
	_ "embed"
	"strings"

	"github.com/tidwall/sjson"
)

// BindingName 页面脚本回传数据使用的 Runtime 绑定名
const BindingName = "__pagevitals_binding"

const (
	// DefaultFramework 默认挂接错误钩子的框架全局变量
	DefaultFramework = "Vue"
	// FrameworkOff 不挂接框架错误钩子
	FrameworkOff = "off"
)

const configPlaceholder = "__PAGEVITALS_CONFIG__"

//go:embed agent.js
var script string

// Options 注入脚本的选项
type Options struct {
	// Framework 页面框架的全局变量名，脚本在其 config.errorHandler 上挂接错误钩子
	Framework string
}

// Script 返回注入页面的采集脚本
func Script(opts Options) string {
	if opts.Framework == "" {
		opts.Framework = DefaultFramework
	}
	cfg, err := sjson.Set("{}", "framework", opts.Framework)
	if err != nil {
		cfg = "{}"
	}
	return strings.Replace(script, configPlaceholder, cfg, 1)
}
