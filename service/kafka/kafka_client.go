package kafka

import (
	"errors"

	"github.com/Shopify/sarama"
)

// NewClient 按配置建立 sarama 客户端
func NewClient(c Config) (sarama.Client, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka brokers missing")
	}
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return nil, err
	}
	return sarama.NewClient(c.Brokers, cfg)
}
