package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

// Config 网关使用的 Kafka 配置
type Config struct {
	Brokers               []string
	Version               string // 例如 2.1.0
	TopicPrefix           string // topic = prefix + 事件名
	GroupID               string // 每个网关节点独立的消费组
	ConsumerInitialOffset string // newest/oldest
	PartitionsPerTopic    int32
	ReplicationFactor     int16
	ProducerRetries       int
	ProducerCompression   string // none/snappy/lz4/zstd
	AutoCreateTopics      bool
}

// Default 单机演示参数
func Default() Config {
	return Config{
		Brokers:               []string{"127.0.0.1:9092"},
		Version:               "2.1.0",
		TopicPrefix:           "im.events.",
		GroupID:               "im-gateway-gateway_01",
		ConsumerInitialOffset: "newest",
		PartitionsPerTopic:    8,
		ReplicationFactor:     1,
		ProducerRetries:       5,
		ProducerCompression:   "snappy",
	}
}

func BuildBaseConfig(c Config) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, err
		}
		cfg.Version = v
	}

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if c.ProducerRetries <= 0 {
		c.ProducerRetries = 1
	}
	cfg.Producer.Retry.Max = c.ProducerRetries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // Key 控制分区
	switch strings.ToLower(c.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	// Consumer
	switch strings.ToLower(c.ConsumerInitialOffset) {
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	// Net
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg, nil
}
