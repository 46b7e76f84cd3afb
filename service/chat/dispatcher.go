package chat

import (
	"sync"

	"PPGateway/logger"
	"PPGateway/tools/errs"
)

// Dispatcher 上行事件名 -> Handler
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.handlers[h.Event()]; dup {
		logger.Warnf("[Dispatcher] handler for %q replaced", h.Event())
	}
	d.handlers[h.Event()] = h
}

func (d *Dispatcher) GetHandler(event string) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[event]
}

func (d *Dispatcher) Dispatch(ctx *ChatContext, sock Socket, f *InboundFrame) (any, error) {
	h := d.GetHandler(f.Event)
	if h == nil {
		return nil, errs.ErrUnknownEvent.WrapMsg("no handler", "event", f.Event)
	}
	return h.Handle(ctx, sock, f.Data)
}
