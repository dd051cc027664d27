package cdp

import (
	"pagevitals/internal/agent"

	"github.com/mafredri/cdp/protocol/runtime"
)

// bindingStream Runtime.bindingCalled 事件流
type bindingStream interface {
	Recv() (*runtime.BindingCalledReply, error)
	Close() error
}

// consume 按到达顺序串行处理绑定事件，流中断后清理目标
func (m *Manager) consume(ts *targetSession, stream bindingStream) {
	defer stream.Close()
	for {
		ev, err := stream.Recv()
		if err != nil {
			if ts.ctx.Err() != nil {
				return
			}
			m.log.Err(err, "绑定事件流中断", "target", string(ts.id))
			if m.remove(ts.id) != nil {
				m.teardown(ts)
				if m.onDetach != nil {
					m.onDetach(ts.id)
				}
			}
			return
		}
		if ev.Name != agent.BindingName {
			continue
		}
		if m.handler != nil {
			m.handler.HandlePayload(ts.id, ev.Payload)
		}
	}
}
