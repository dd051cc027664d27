package cdp

import (
	"encoding/base64"
	"encoding/json"

	"pagevitals/pkg/traffic"

	"github.com/mafredri/cdp/protocol/fetch"
)

// ToNeutralRequest 将 CDP 暂停事件转换为中立 Request 模型
func ToNeutralRequest(ev *fetch.RequestPausedReply) *traffic.Request {
	req := traffic.NewRequest()
	req.ID = string(ev.RequestID)
	req.URL = ev.Request.URL
	req.Method = ev.Request.Method
	req.ResourceType = string(ev.ResourceType)

	var headers map[string]string
	if len(ev.Request.Headers) > 0 {
		if err := json.Unmarshal(ev.Request.Headers, &headers); err == nil {
			for k, v := range headers {
				req.Headers.Set(k, v)
			}
		}
	}
	if ev.Request.PostData != nil {
		req.Body = []byte(*ev.Request.PostData)
	}

	req.ParseQuery()
	req.ParseCookies()
	return req
}

// ToNeutralResponse 将 CDP 响应阶段事件与响应体转换为中立 Response 模型
func ToNeutralResponse(ev *fetch.RequestPausedReply, body []byte) *traffic.Response {
	res := traffic.NewResponse()
	if ev.ResponseStatusCode != nil {
		res.StatusCode = *ev.ResponseStatusCode
	}
	if ev.ResponseStatusText != nil {
		res.StatusText = *ev.ResponseStatusText
	}
	for _, h := range ev.ResponseHeaders {
		res.Headers.Set(h.Name, h.Value)
	}
	res.Body = body
	return res
}

// DecodeBody 还原 Fetch.getResponseBody 返回的正文
func DecodeBody(body string, base64Encoded bool) []byte {
	if !base64Encoded {
		return []byte(body)
	}
	b, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return []byte(body)
	}
	return b
}
