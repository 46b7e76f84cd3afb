package natsx

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"PPGateway/logger"
	"PPGateway/service/eventbus"
	"PPGateway/service/metrics"

	"go.uber.org/zap"
)

// SourceConf 事件总线的 NATS 入口配置
type SourceConf struct {
	NodeID        string
	SubjectPrefix string // 例如 im.events.，subject = prefix + 事件名
	Mode          NatsxMode
	Stream        string // JetStream 模式下使用
}

// Source 把 NATS 上的领域事件喂给本地事件总线。
// 每个网关节点都必须收到全部事件，所以不使用队列组。
type Source struct {
	mgr  *NatsManager
	bus  *eventbus.Bus
	conf SourceConf

	mu      sync.Mutex
	started bool
}

func NewSource(mgr *NatsManager, bus *eventbus.Bus, conf SourceConf) *Source {
	return &Source{mgr: mgr, bus: bus, conf: conf}
}

func (s *Source) Subject(event string) string {
	return s.conf.SubjectPrefix + event
}

// durable 名不能含 '.'
func (s *Source) durable(event string) string {
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return r.Replace("gw_" + s.conf.NodeID + "_" + event)
}

// Start subscribes one subject per event the bus has subscribers for.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	names := s.bus.Names()
	sort.Strings(names)

	if s.conf.Mode == JetStreamPush {
		if err := s.mgr.EnsureStream(s.conf.Stream, []string{s.conf.SubjectPrefix + ">"}); err != nil {
			return err
		}
	}
	for _, name := range names {
		route := NatsxRoute{Biz: name, Subject: s.Subject(name), Mode: s.conf.Mode}
		if s.conf.Mode == JetStreamPush {
			route.Durable = s.durable(name)
		}
		if err := s.mgr.RegisterRoute(route); err != nil {
			return err
		}
		if err := s.mgr.Subscribe(ctx, name, s.handle(name)); err != nil {
			return err
		}
	}
	s.started = true
	logger.Info("[NATS] bus source started", zap.Strings("events", names), zap.String("prefix", s.conf.SubjectPrefix))
	return nil
}

// handle never asks for redelivery: the bus only rejects unknown events and
// malformed payloads, and neither gets better on retry.
func (s *Source) handle(name string) NatsxHandler {
	return func(ctx context.Context, msg NatsxMessage) error {
		err := s.bus.PublishRaw(ctx, name, msg.Data)
		metrics.BusEvents.WithLabelValues(name, metrics.Outcome(err)).Inc()
		if err != nil {
			logger.Warn("[NATS] event rejected", zap.String("subject", msg.Subject), zap.Int("bytes", len(msg.Data)), zap.Error(err))
		}
		return nil
	}
}

// Publisher 把领域事件发到 NATS（其他服务或调试工具使用）
type Publisher struct {
	mgr    *NatsManager
	prefix string
	mode   NatsxMode
	sp     *NatsxSyncPublisher

	mu     sync.Mutex
	routed map[string]struct{}
}

func NewPublisher(mgr *NatsManager, prefix string, mode NatsxMode, retries int) *Publisher {
	return &Publisher{
		mgr:    mgr,
		prefix: prefix,
		mode:   mode,
		sp:     &NatsxSyncPublisher{P: mgr.Producer(), Retries: retries, Backoff: 200 * time.Millisecond},
		routed: make(map[string]struct{}),
	}
}

func (p *Publisher) ensureRoute(event string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.routed[event]; ok {
		return nil
	}
	if err := p.mgr.RegisterRoute(NatsxRoute{Biz: event, Subject: p.prefix + event, Mode: p.mode}); err != nil {
		return err
	}
	p.routed[event] = struct{}{}
	return nil
}

// PublishRaw sends an already encoded payload under event.
func (p *Publisher) PublishRaw(ctx context.Context, event string, data []byte) error {
	return p.PublishWithHeader(ctx, event, data, nil)
}

// PublishWithHeader 同 PublishRaw，附带自定义消息头
func (p *Publisher) PublishWithHeader(ctx context.Context, event string, data []byte, hdr map[string]string) error {
	if err := p.ensureRoute(event); err != nil {
		return err
	}
	return p.sp.Publish(ctx, event, data, hdr)
}

// Publish validates and encodes payload before sending it on t's subject.
func Publish[T eventbus.Payload](ctx context.Context, p *Publisher, t eventbus.Topic[T], payload T) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.PublishRaw(ctx, t.Name, data)
}
