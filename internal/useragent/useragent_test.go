package useragent

import (
	"testing"

	"pagevitals/pkg/model"
)

const chromeMac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func TestParser(t *testing.T) {
	f := Parser{}.Decode(chromeMac)
	if f.BrowserName != "Chrome" || f.BrowserVersion != "120.0.0.0" {
		t.Fatalf("browser = %q %q", f.BrowserName, f.BrowserVersion)
	}
	if f.DeviceType != "desktop" {
		t.Fatalf("deviceType = %q", f.DeviceType)
	}
	if f.DeviceVendor != "Apple" {
		t.Fatalf("deviceVendor = %q", f.DeviceVendor)
	}
	if f.EngineName == "" {
		t.Fatal("engine 不应为空")
	}
	if (Parser{}).Decode("  ") != (model.DeviceFeatures{}) {
		t.Fatal("空 UA 应返回零值")
	}
}

func TestMerge(t *testing.T) {
	primary := model.DeviceFeatures{BrowserName: "Chrome", OSName: "Mac OS X", OSVersion: "10.15.7", DeviceType: "desktop"}
	secondary := model.DeviceFeatures{BrowserName: "Google Chrome", BrowserVersion: "120", OSName: "macOS", OSVersion: "14.2.1", DeviceModel: "Macmini"}

	got := Merge(primary, secondary)
	want := model.DeviceFeatures{
		BrowserName:    "Chrome",
		BrowserVersion: "120",
		OSName:         "Mac OS X",
		OSVersion:      "10.15.7",
		DeviceType:     "desktop",
		DeviceModel:    "Macmini",
	}
	if got != want {
		t.Fatalf("Merge() = %+v\n期望 %+v", got, want)
	}

	got = Merge(model.DeviceFeatures{BrowserName: "Chrome"}, secondary)
	if got.OSVersion != "14.2.1" || got.OSName != "macOS" {
		t.Fatalf("primary 缺失时应回退到 secondary: %+v", got)
	}
}

func TestFeaturesWithHints(t *testing.T) {
	hints := Hints{Brand: "Google Chrome", BrandVersion: "120.0.6099.129", Platform: "macOS", PlatformVersion: "14.2.1"}
	f := Features(chromeMac, Parser{}, hints)
	if f.BrowserName != "Chrome" || f.OSVersion != (Parser{}).Decode(chromeMac).OSVersion {
		t.Fatalf("features = %+v", f)
	}
	if f.OSVersion == "" {
		t.Fatal("osVersion 不应为空")
	}
	if m := Features("", nil, Hints{Mobile: true, Model: "Pixel 7"}); m.DeviceType != "mobile" || m.DeviceModel != "Pixel 7" {
		t.Fatalf("hints only = %+v", m)
	}
}
