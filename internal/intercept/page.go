package intercept

import (
	"context"
	"net/http"
	"sync"
	"time"

	cdpconv "pagevitals/internal/adapter/cdp"
	"pagevitals/pkg/model"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
)

// pageProcessTimeout 单个暂停事件的处理超时
const pageProcessTimeout = 3 * time.Second

// fetchClient 页面拦截使用到的 Fetch 域方法
type fetchClient interface {
	ContinueRequest(ctx context.Context, args *fetch.ContinueRequestArgs) error
	ContinueResponse(ctx context.Context, args *fetch.ContinueResponseArgs) error
	GetResponseBody(ctx context.Context, args *fetch.GetResponseBodyArgs) (*fetch.GetResponseBodyReply, error)
}

// pageSession 单个页面目标的拦截状态
type pageSession struct {
	id     model.TargetID
	client *cdp.Client
	fetch  fetchClient
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[fetch.RequestID]*call
}

// AttachPage 在目标页面上启用 Fetch 拦截，仅拦截 XHR 与 Fetch 请求。重复挂接同一目标不做任何事
func (i *Interceptor) AttachPage(ctx context.Context, id model.TargetID, client *cdp.Client) error {
	i.pagesMu.Lock()
	if _, ok := i.pages[id]; ok {
		i.pagesMu.Unlock()
		return nil
	}
	cctx, cancel := context.WithCancel(ctx)
	ps := &pageSession{
		id:      id,
		client:  client,
		fetch:   client.Fetch,
		ctx:     cctx,
		cancel:  cancel,
		pending: make(map[fetch.RequestID]*call),
	}
	i.pages[id] = ps
	i.pagesMu.Unlock()

	if err := client.Fetch.Enable(cctx, &fetch.EnableArgs{Patterns: pagePatterns()}); err != nil {
		i.DetachPage(id)
		return err
	}

	rp, err := client.Fetch.RequestPaused(cctx)
	if err != nil {
		i.DetachPage(id)
		return err
	}
	go i.consume(ps, rp)

	i.log.Info("页面网络拦截已启用", "target", string(id))
	return nil
}

// DetachPage 停止目标页面的拦截
func (i *Interceptor) DetachPage(id model.TargetID) {
	i.pagesMu.Lock()
	ps, ok := i.pages[id]
	delete(i.pages, id)
	i.pagesMu.Unlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ps.client.Fetch.Disable(ctx); err != nil {
		i.log.Debug("关闭页面拦截失败", "target", string(id), "error", err)
	}
	ps.cancel()
}

// Attached 判断目标是否已挂接
func (i *Interceptor) Attached(id model.TargetID) bool {
	i.pagesMu.Lock()
	defer i.pagesMu.Unlock()
	_, ok := i.pages[id]
	return ok
}

func pagePatterns() []fetch.RequestPattern {
	all := "*"
	var out []fetch.RequestPattern
	for _, rt := range []network.ResourceType{network.ResourceTypeXHR, network.ResourceTypeFetch} {
		out = append(out,
			fetch.RequestPattern{URLPattern: &all, ResourceType: &rt, RequestStage: fetch.RequestStageRequest},
			fetch.RequestPattern{URLPattern: &all, ResourceType: &rt, RequestStage: fetch.RequestStageResponse},
		)
	}
	return out
}

// consume 持续接收暂停事件
func (i *Interceptor) consume(ps *pageSession, rp fetch.RequestPausedClient) {
	defer rp.Close()
	for {
		ev, err := rp.Recv()
		if err != nil {
			if ps.ctx.Err() == nil {
				i.log.Warn("拦截事件流中断，移除目标", "target", string(ps.id), "error", err)
				i.DetachPage(ps.id)
			}
			return
		}
		go i.handlePaused(ps, ev)
	}
}

// handlePaused 处理一次暂停事件，无论结果如何都放行
func (i *Interceptor) handlePaused(ps *pageSession, ev *fetch.RequestPausedReply) {
	ctx, cancel := context.WithTimeout(ps.ctx, pageProcessTimeout)
	defer cancel()

	switch {
	case ev.ResponseErrorReason != nil:
		ps.take(ev.RequestID)
		if err := ps.fetch.ContinueRequest(ctx, fetch.NewContinueRequestArgs(ev.RequestID)); err != nil {
			i.log.Debug("放行失败请求出错", "error", err)
		}
	case ev.ResponseStatusCode != nil:
		i.handleResponse(ctx, ps, ev)
	default:
		i.handleRequest(ctx, ps, ev)
	}
}

func (i *Interceptor) handleRequest(ctx context.Context, ps *pageSession, ev *fetch.RequestPausedReply) {
	req := cdpconv.ToNeutralRequest(ev)
	req.RequestTime = i.nowMillis()

	if record, redact := i.decide(req); record {
		i.emitSend(ps.id, req)
		c := i.begin(ps.id, req, redact)
		ps.mu.Lock()
		ps.pending[ev.RequestID] = c
		ps.mu.Unlock()
	}

	if err := ps.fetch.ContinueRequest(ctx, fetch.NewContinueRequestArgs(ev.RequestID)); err != nil {
		i.log.Err(err, "放行请求失败", "target", string(ps.id), "url", ev.Request.URL)
		ps.take(ev.RequestID)
	}
}

func (i *Interceptor) handleResponse(ctx context.Context, ps *pageSession, ev *fetch.RequestPausedReply) {
	c := ps.take(ev.RequestID)
	if c == nil {
		if err := ps.fetch.ContinueResponse(ctx, fetch.NewContinueResponseArgs(ev.RequestID)); err != nil {
			i.log.Debug("放行响应失败", "error", err)
		}
		return
	}

	var body []byte
	if !c.redact {
		reply, err := ps.fetch.GetResponseBody(ctx, fetch.NewGetResponseBodyArgs(ev.RequestID))
		if err != nil {
			i.log.Debug("读取响应体失败", "url", ev.Request.URL, "error", err)
		} else {
			body = cdpconv.DecodeBody(reply.Body, reply.Base64Encoded)
		}
	}

	if err := ps.fetch.ContinueResponse(ctx, fetch.NewContinueResponseArgs(ev.RequestID)); err != nil {
		i.log.Err(err, "放行响应失败", "target", string(ps.id), "url", ev.Request.URL)
	}

	res := cdpconv.ToNeutralResponse(ev, body)
	if res.StatusText == "" {
		res.StatusText = http.StatusText(res.StatusCode)
	}
	res.ResponseTime = i.nowMillis()
	i.settle(c, res)
}

// take 取出并移除挂起的调用
func (ps *pageSession) take(id fetch.RequestID) *call {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	c := ps.pending[id]
	delete(ps.pending, id)
	return c
}
