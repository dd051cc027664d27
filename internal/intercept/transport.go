package intercept

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"

	"pagevitals/pkg/traffic"
)

// transport 包装 http.RoundTripper
type transport struct {
	owner *Interceptor
	base  http.RoundTripper
}

// WrapTransport 包装 HTTP 客户端的传输层。
// 同一拦截器重复包装会直接返回已包装的实例；其他拦截器的包装会形成调用链。
func (i *Interceptor) WrapTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if t, ok := base.(*transport); ok && t.owner == i {
		return base
	}
	return &transport{owner: i, base: base}
}

// WrapClient 包装客户端的传输层，返回同一个客户端
func (i *Interceptor) WrapClient(c *http.Client) *http.Client {
	c.Transport = i.WrapTransport(c.Transport)
	return c
}

// RoundTrip 实现 http.RoundTripper
func (t *transport) RoundTrip(r *http.Request) (*http.Response, error) {
	i := t.owner

	req, r, err := toNeutralRequest(r, i.limit)
	if err != nil {
		return nil, err
	}
	req.RequestTime = i.nowMillis()

	record, redact := i.decide(req)
	if !record {
		return t.base.RoundTrip(r)
	}

	i.emitSend("", req)
	c := i.begin("", req, redact)

	resp, err := t.base.RoundTrip(r)
	if err != nil {
		// 传输层失败不作为一次完成的调用
		return resp, err
	}

	resp.Body = &teeBody{
		rc:    resp.Body,
		limit: i.limit,
		onDone: func(body []byte) {
			res := traffic.NewResponse()
			res.StatusCode = resp.StatusCode
			res.StatusText = statusText(resp)
			res.Body = body
			res.ResponseTime = i.nowMillis()
			for k, v := range resp.Header {
				res.Headers.Set(k, strings.Join(v, ", "))
			}
			i.settle(c, res)
		},
	}
	return resp, nil
}

// toNeutralRequest 读取请求体副本，返回应继续发出的请求。
// 没有 GetBody 时在浅拷贝上重建请求体，调用方持有的请求不被修改
func toNeutralRequest(r *http.Request, limit int64) (*traffic.Request, *http.Request, error) {
	req := traffic.NewRequest()
	req.URL = r.URL.String()
	req.Method = r.Method
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	req.ResourceType = "Go"
	for k, v := range r.Header {
		req.Headers.Set(k, strings.Join(v, ", "))
	}
	req.ParseQuery()
	req.ParseCookies()

	if r.Body != nil && r.Body != http.NoBody {
		if r.GetBody != nil {
			rc, err := r.GetBody()
			if err == nil {
				req.Body, _ = io.ReadAll(io.LimitReader(rc, limit))
				rc.Close()
			}
		} else {
			b, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				return nil, nil, err
			}
			r = r.Clone(r.Context())
			r.Body = io.NopCloser(bytes.NewReader(b))
			r.GetBody = func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(b)), nil
			}
			if int64(len(b)) > limit {
				req.Body = b[:limit]
			} else {
				req.Body = b
			}
		}
	}
	return req, r, nil
}

// statusText 取出 "200 OK" 中的描述部分
func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// teeBody 调用方读取原始响应流的同时保留一份副本，读到 EOF 或关闭时回调一次
type teeBody struct {
	rc     io.ReadCloser
	limit  int64
	buf    bytes.Buffer
	once   sync.Once
	onDone func(body []byte)
}

func (b *teeBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		if room := b.limit - int64(b.buf.Len()); room > 0 {
			if int64(n) > room {
				b.buf.Write(p[:room])
			} else {
				b.buf.Write(p[:n])
			}
		}
	}
	if err == io.EOF {
		b.done()
	}
	return n, err
}

func (b *teeBody) Close() error {
	err := b.rc.Close()
	b.done()
	return err
}

func (b *teeBody) done() {
	b.once.Do(func() {
		b.onDone(append([]byte(nil), b.buf.Bytes()...))
	})
}
