package kafka

import (
	"context"
	"encoding/json"

	"PPGateway/logger"
	"PPGateway/service/eventbus"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// Producer 同步发送领域事件，topic = prefix + 事件名
type Producer struct {
	p      sarama.SyncProducer
	client sarama.Client // NewSyncProducer 创建时持有
	prefix string
}

func NewProducer(p sarama.SyncProducer, prefix string) *Producer {
	return &Producer{p: p, prefix: prefix}
}

// NewSyncProducer builds a sync producer from c.
func NewSyncProducer(c Config) (*Producer, error) {
	client, err := NewClient(c)
	if err != nil {
		return nil, err
	}
	p, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	prod := NewProducer(p, c.TopicPrefix)
	prod.client = client
	return prod, nil
}

// PublishRaw sends data keyed by key; the same key always lands on the same partition.
func (p *Producer) PublishRaw(_ context.Context, event, key string, data []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: p.prefix + event,
		Value: sarama.ByteEncoder(data),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	partition, offset, err := p.p.SendMessage(msg)
	if err != nil {
		return err
	}
	logger.Debug("[Kafka] sent", zap.String("topic", msg.Topic), zap.Int32("partition", partition), zap.Int64("offset", offset))
	return nil
}

func (p *Producer) Close() error {
	err := p.p.Close()
	if p.client != nil {
		if cerr := p.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Publish validates and encodes payload before sending it on t's topic.
func Publish[T eventbus.Payload](ctx context.Context, p *Producer, t eventbus.Topic[T], key string, payload T) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.PublishRaw(ctx, t.Name, key, data)
}
