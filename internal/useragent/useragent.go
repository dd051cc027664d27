// Package useragent 将 UA 字符串与客户端提示解析为浏览器、系统与设备信息
package useragent

import (
	"strings"

	"pagevitals/internal/signal"
	"pagevitals/pkg/model"

	ua "github.com/mssola/useragent"
)

// Decoder UA 解析器
type Decoder interface {
	Decode(userAgent string) model.DeviceFeatures
}

// Parser 基于 UA 字符串的解析器
type Parser struct{}

// Decode 实现 Decoder
func (Parser) Decode(userAgent string) model.DeviceFeatures {
	if strings.TrimSpace(userAgent) == "" {
		return model.DeviceFeatures{}
	}
	u := ua.New(userAgent)
	var f model.DeviceFeatures
	f.BrowserName, f.BrowserVersion = u.Browser()
	f.EngineName, f.EngineVersion = u.Engine()

	os := u.OSInfo()
	f.OSName = os.Name
	f.OSVersion = os.Version

	switch {
	case u.Bot():
		f.DeviceType = "bot"
	case u.Mobile():
		f.DeviceType = "mobile"
	default:
		f.DeviceType = "desktop"
	}
	f.DeviceVendor = vendor(u.Platform(), os.Name)
	return f
}

func vendor(platform, osName string) string {
	switch {
	case platform == "iPhone", platform == "iPad", platform == "iPod", platform == "Macintosh", osName == "iOS":
		return "Apple"
	}
	return ""
}

// Hints 基于 navigator.userAgentData 的解析器，忽略传入的 UA 字符串
type Hints signal.ClientHints

// Decode 实现 Decoder
func (h Hints) Decode(string) model.DeviceFeatures {
	f := model.DeviceFeatures{
		BrowserName:    h.Brand,
		BrowserVersion: h.BrandVersion,
		OSName:         h.Platform,
		OSVersion:      h.PlatformVersion,
		DeviceModel:    h.Model,
	}
	if h.Mobile {
		f.DeviceType = "mobile"
	}
	return f
}

// Merge 合并两份解析结果，每个字段优先取 primary，缺失时取 secondary
func Merge(primary, secondary model.DeviceFeatures) model.DeviceFeatures {
	return model.DeviceFeatures{
		BrowserName:    first(primary.BrowserName, secondary.BrowserName),
		BrowserVersion: first(primary.BrowserVersion, secondary.BrowserVersion),
		OSName:         first(primary.OSName, secondary.OSName),
		OSVersion:      first(primary.OSVersion, secondary.OSVersion),
		DeviceType:     first(primary.DeviceType, secondary.DeviceType),
		DeviceVendor:   first(primary.DeviceVendor, secondary.DeviceVendor),
		DeviceModel:    first(primary.DeviceModel, secondary.DeviceModel),
		EngineName:     first(primary.EngineName, secondary.EngineName),
		EngineVersion:  first(primary.EngineVersion, secondary.EngineVersion),
	}
}

// Features 用两个解析器分别解析后合并
func Features(userAgent string, primary, secondary Decoder) model.DeviceFeatures {
	var a, b model.DeviceFeatures
	if primary != nil {
		a = primary.Decode(userAgent)
	}
	if secondary != nil {
		b = secondary.Decode(userAgent)
	}
	return Merge(a, b)
}

func first(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
