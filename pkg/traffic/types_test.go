package traffic

import "testing"

func TestParseQueryAndCookies(t *testing.T) {
	req := NewRequest()
	req.URL = "https://api.example.com/list?Page=2&size=10#top"
	req.Headers.Set("Cookie", "SID=abc; theme=dark")

	req.ParseQuery()
	req.ParseCookies()

	if req.Query["page"] != "2" || req.Query["size"] != "10" {
		t.Fatalf("query = %v", req.Query)
	}
	if req.Cookies["sid"] != "abc" || req.Cookies["theme"] != "dark" {
		t.Fatalf("cookies = %v", req.Cookies)
	}
}

func TestHeaderCaseInsensitive(t *testing.T) {
	h := make(Header)
	h.Set("Content-Type", "application/json")
	if h.Get("content-type") != "application/json" {
		t.Fatal("Header 应大小写不敏感")
	}
	h.Del("CONTENT-TYPE")
	if h.Get("Content-Type") != "" {
		t.Fatal("删除失败")
	}
	var nilHeader Header
	if nilHeader.Get("x") != "" {
		t.Fatal("nil Header 应返回空串")
	}
}
