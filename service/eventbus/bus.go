package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"PPGateway/logger"
	"PPGateway/tools/errs"
	"PPGateway/tools/safe"

	"go.uber.org/zap"
)

// Payload 每个事件负载都要能自校验
type Payload interface {
	Validate() error
}

// Topic 绑定事件名与负载类型
type Topic[T Payload] struct {
	Name string
}

type handlerFunc func(ctx context.Context, p any)

type route struct {
	decode   func(data []byte) (Payload, error)
	handlers []handlerFunc
}

// Bus 进程内领域事件总线，按事件名分发到强类型的处理函数。
// 同一事件的处理函数按订阅顺序同步执行。
type Bus struct {
	mu     sync.RWMutex
	routes map[string]*route
}

func New() *Bus {
	return &Bus{routes: make(map[string]*route)}
}

// Subscribe registers h for topic t.
func Subscribe[T Payload](b *Bus, t Topic[T], h func(ctx context.Context, p T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.routes[t.Name]
	if !ok {
		r = &route{decode: func(data []byte) (Payload, error) {
			var p T
			if err := json.Unmarshal(data, &p); err != nil {
				return nil, errs.ErrInvalidPayload.WrapMsg("decode event", "event", t.Name, "err", err)
			}
			return p, nil
		}}
		b.routes[t.Name] = r
	}
	r.handlers = append(r.handlers, func(ctx context.Context, p any) {
		h(ctx, p.(T))
	})
}

// Publish validates p and delivers it to every subscriber of t.
func Publish[T Payload](ctx context.Context, b *Bus, t Topic[T], p T) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return b.dispatch(ctx, t.Name, p)
}

// PublishRaw decodes a JSON payload by event name, used by remote sources (NATS / Kafka).
func (b *Bus) PublishRaw(ctx context.Context, name string, data []byte) error {
	b.mu.RLock()
	r, ok := b.routes[name]
	b.mu.RUnlock()
	if !ok {
		return errs.ErrUnknownEvent.WrapMsg("no subscriber", "event", name)
	}
	p, err := r.decode(data)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	return b.dispatch(ctx, name, p)
}

// Names returns every event name that has at least one subscriber.
func (b *Bus) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.routes))
	for name := range b.routes {
		out = append(out, name)
	}
	return out
}

func (b *Bus) dispatch(ctx context.Context, name string, p any) error {
	b.mu.RLock()
	r, ok := b.routes[name]
	var hs []handlerFunc
	if ok {
		hs = append(hs, r.handlers...)
	}
	b.mu.RUnlock()
	if !ok {
		return errs.ErrUnknownEvent.WrapMsg("no subscriber", "event", name)
	}
	logger.Debug("[EventBus] dispatch", zap.String("event", name), zap.Int("handlers", len(hs)))
	for _, h := range hs {
		h := h
		safe.Run("eventbus:"+name, func() { h(ctx, p) })
	}
	return nil
}
