package kafka

import (
	"errors"
	"fmt"

	"PPGateway/logger"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// EnsureTopics 会：
// 1) 不存在就按配置创建；
// 2) 已存在且分区数 < 期望值时扩分区（Kafka 只能增加分区）。
func EnsureTopics(admin sarama.ClusterAdmin, topics []string, c Config) error {
	parts := c.PartitionsPerTopic
	if parts <= 0 {
		parts = 1
	}
	rf := c.ReplicationFactor
	if rf <= 0 {
		rf = 1
	}
	minISR := "1"
	if rf >= 3 {
		minISR = "2"
	}

	for _, t := range topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err != nil {
			return fmt.Errorf("describe topic %s: %w", t, err)
		}
		exists := len(descs) == 1 && descs[0].Err == sarama.ErrNoError

		if !exists {
			td := &sarama.TopicDetail{
				NumPartitions:     parts,
				ReplicationFactor: rf,
				ConfigEntries: map[string]*string{
					"cleanup.policy":                 strPtr("delete"),
					"min.insync.replicas":            strPtr(minISR),
					"unclean.leader.election.enable": strPtr("false"),
					"compression.type":               strPtr("producer"),
				},
			}
			if err := admin.CreateTopic(t, td, false); err != nil {
				var te *sarama.TopicError
				if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
					logger.Info("[Topic] exists (race)", zap.String("topic", t))
					continue
				}
				return fmt.Errorf("create topic %s: %w", t, err)
			}
			logger.Info("[Topic] created", zap.String("topic", t), zap.Int32("partitions", parts), zap.Int16("rf", rf))
			continue
		}

		cur := int32(len(descs[0].Partitions))
		if parts > cur {
			if err := admin.CreatePartitions(t, parts, nil, false); err != nil {
				return fmt.Errorf("expand partitions %s from %d to %d: %w", t, cur, parts, err)
			}
			logger.Info("[Topic] partitions expanded", zap.String("topic", t), zap.Int32("from", cur), zap.Int32("to", parts))
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
