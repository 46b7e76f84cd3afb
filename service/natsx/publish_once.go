package natsx

import (
	"context"

	"github.com/google/uuid"
)

const HeaderMsgID = "Nats-Msg-Id"

// PublishOnce：带 Nats-Msg-Id 的发布（JetStream 按它去重）
// - msgID 为空则自动生成
func (p *NatsxProducer) PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error {
	h := make(map[string]string, len(hdr)+1)
	for k, v := range hdr {
		h[k] = v
	}
	if msgID == "" {
		msgID = uuid.NewString()
	}
	h[HeaderMsgID] = msgID
	return p.Publish(ctx, biz, data, h)
}
