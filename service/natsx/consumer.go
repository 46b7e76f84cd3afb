package natsx

import (
	"context"
	"errors"
	"fmt"

	"PPGateway/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NatsxConsumer 消费端
type NatsxConsumer struct {
	c   *NatsxClient
	mws []NatsxMiddleware
}

func NewNatsxConsumer(c *NatsxClient, mws ...NatsxMiddleware) *NatsxConsumer {
	return &NatsxConsumer{c: c, mws: mws}
}

// Subscribe Core / JetStream Push 订阅（JS 按处理结果 ACK/NAK）
func (cs *NatsxConsumer) Subscribe(ctx context.Context, biz string, h NatsxHandler) error {
	r, ok := cs.c.route(biz)
	if !ok {
		return fmt.Errorf("route not found: %s", biz)
	}
	h = NatsxChain(h, cs.mws...)

	var (
		sub *nats.Subscription
		err error
	)
	switch r.Mode {
	case Core:
		cb := func(m *nats.Msg) {
			_ = h(ctx, toMessage(m))
		}
		if r.Queue == "" {
			sub, err = cs.c.nc.Subscribe(r.Subject, cb)
		} else {
			sub, err = cs.c.nc.QueueSubscribe(r.Subject, r.Queue, cb)
		}
		if err != nil {
			return err
		}
		_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)

	case JetStreamPush:
		js := cs.c.jetStream()
		if js == nil {
			return errors.New("jetstream not initialized")
		}
		opts := []nats.SubOpt{
			nats.ManualAck(),
			nats.AckWait(r.AckWait),
			nats.MaxAckPending(r.MaxAckPending),
			nats.DeliverNew(),
		}
		if r.Durable != "" {
			opts = append(opts, nats.Durable(r.Durable))
		}
		cb := func(m *nats.Msg) {
			if err := h(ctx, toMessage(m)); err == nil {
				_ = m.Ack()
			} else {
				_ = m.Nak()
			}
		}
		if r.Queue == "" {
			sub, err = js.Subscribe(r.Subject, cb, opts...)
		} else {
			sub, err = js.QueueSubscribe(r.Subject, r.Queue, cb, opts...)
		}
		if err != nil {
			return err
		}

	default:
		return fmt.Errorf("mode not supported in Subscribe: %v", r.Mode)
	}

	cs.c.mu.Lock()
	cs.c.subs[biz] = sub
	cs.c.mu.Unlock()
	logger.Info("[NATS] subscribed", zap.String("biz", biz), zap.String("subject", r.Subject), zap.Int("mode", int(r.Mode)))
	return nil
}

func toMessage(m *nats.Msg) NatsxMessage {
	return NatsxMessage{
		Subject: m.Subject,
		Data:    append([]byte(nil), m.Data...),
		Header:  headerToMap(m.Header),
	}
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
