package natsx

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NatsxSyncPublisher 同步发布器（带重试）。重试共用同一个 Nats-Msg-Id，
// JetStream 侧只会落一条。
type NatsxSyncPublisher struct {
	P       *NatsxProducer
	Retries int
	Backoff time.Duration
}

func (sp *NatsxSyncPublisher) Publish(ctx context.Context, biz string, payload []byte, hdr map[string]string) error {
	msgID := hdr[HeaderMsgID]
	if msgID == "" {
		msgID = uuid.NewString()
	}
	var err error
	for i := 0; i <= sp.Retries; i++ {
		err = sp.P.PublishOnce(ctx, biz, payload, hdr, msgID)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sp.Backoff):
		}
	}
	return err
}
