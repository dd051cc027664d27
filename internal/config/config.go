package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"pagevitals/internal/rules"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	DevTools struct {
		URL string `yaml:"url"`
		// Targets 要附加的页面ID，为空时附加 DevTools 列出的全部 page
		Targets []string `yaml:"targets"`
	} `yaml:"devtools"`

	Capture Capture `yaml:"capture"`

	Sinks Sinks `yaml:"sinks"`

	// Rules 网络调用采集规则，命中 ignore 的调用不会被记录
	Rules []rules.Rule `yaml:"rules"`

	API struct {
		Addr string `yaml:"addr"`
	} `yaml:"api"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`
}

// Capture 采集选项
type Capture struct {
	MaxBehaviorRecords int           `yaml:"maxBehaviorRecords"`
	ClickMountList     []string      `yaml:"clickMountList"`
	BodySizeThreshold  int64         `yaml:"bodySizeThreshold"`
	FlushInterval      time.Duration `yaml:"flushInterval"`
	// Framework 挂接错误钩子的框架全局变量名，off 关闭
	Framework string `yaml:"framework"`
}

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Sinks 投递目标
type Sinks struct {
	Stdout  bool   `yaml:"stdout"`
	Webhook string `yaml:"webhook"`
	Sqlite  bool   `yaml:"sqlite"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}
	c.DevTools.URL = "http://127.0.0.1:9222"
	c.Capture = Capture{
		MaxBehaviorRecords: 100,
		ClickMountList:     []string{"button"},
		BodySizeThreshold:  64 << 10,
		FlushInterval:      5 * time.Second,
		Framework:          "Vue",
	}
	c.Sinks = Sinks{Stdout: true}
	c.API.Addr = "127.0.0.1:9480"
	c.Sqlite.Dsn = "pagevitals.sqlite3"
	c.Sqlite.Prefix = "pagevitals_"
	c.Log.Level = "info"
	c.Log.Writer = []string{"console"}
	c.Log.File = "pagevitals.log"
	return c
}

// LoadFile 在默认配置上叠加 YAML 文件中的值
func LoadFile(path string) (*Config, error) {
	c := NewConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	if c.Capture.MaxBehaviorRecords < 1 {
		return fmt.Errorf("capture.maxBehaviorRecords must be >= 1, got %d", c.Capture.MaxBehaviorRecords)
	}
	if c.Capture.BodySizeThreshold < 0 {
		return fmt.Errorf("capture.bodySizeThreshold must be >= 0, got %d", c.Capture.BodySizeThreshold)
	}
	if c.Capture.FlushInterval < 0 {
		return fmt.Errorf("capture.flushInterval must be >= 0, got %s", c.Capture.FlushInterval)
	}
	if c.Capture.Framework != "" && !identifier.MatchString(c.Capture.Framework) {
		return fmt.Errorf("capture.framework must be a global name or off, got %q", c.Capture.Framework)
	}
	for _, r := range c.Rules {
		switch r.Action {
		case rules.ActionIgnore, rules.ActionRedact:
		default:
			return fmt.Errorf("rule %q: unknown action %q", r.ID, r.Action)
		}
	}
	return nil
}
