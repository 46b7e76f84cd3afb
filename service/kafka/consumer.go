package kafka

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"PPGateway/logger"
	"PPGateway/service/eventbus"
	"PPGateway/service/metrics"
	"PPGateway/tools/safe"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

type ConsumerGroupHandler struct {
	router *Router
}

func NewConsumerGroupHandler(r *Router) *ConsumerGroupHandler {
	return &ConsumerGroupHandler{router: r}
}

func (h *ConsumerGroupHandler) Setup(s sarama.ConsumerGroupSession) error {
	logger.Info("[Kafka] consumer group setup", zap.String("member", s.MemberID()), zap.Int32("generation", s.GenerationID()))
	return nil
}

func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Info("[Kafka] consumer group cleanup")
	return nil
}

// ConsumeClaim 每条消息处理后都标记位点，处理失败只记录日志
func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		logger.Debug("[Kafka] received", zap.String("topic", msg.Topic), zap.Int32("partition", msg.Partition), zap.Int64("offset", msg.Offset))

		handler, err := h.router.GetHandler(msg.Topic)
		if err != nil {
			logger.Warn("[Kafka] no handler", zap.String("topic", msg.Topic), zap.Error(err))
		} else if err := handler(session.Context(), msg.Topic, msg.Key, msg.Value); err != nil {
			logger.Warn("[Kafka] handler error", zap.String("topic", msg.Topic), zap.Error(err))
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// Source 把 Kafka 上的领域事件喂给本地事件总线。
// 每个节点使用自己的消费组，所以每个节点都能收到全部事件。
type Source struct {
	conf   Config
	bus    *eventbus.Bus
	router *Router

	group  sarama.ConsumerGroup
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewSource(conf Config, bus *eventbus.Bus) *Source {
	s := &Source{conf: conf, bus: bus, router: NewRouter()}
	names := bus.Names()
	sort.Strings(names)
	for _, name := range names {
		s.router.RegisterHandler(conf.TopicPrefix+name, s.handle)
	}
	return s
}

func (s *Source) handle(ctx context.Context, topic string, _, value []byte) error {
	name, ok := EventFromTopic(s.conf.TopicPrefix, topic)
	if !ok {
		return errors.New("topic outside prefix: " + topic)
	}
	err := s.bus.PublishRaw(ctx, name, value)
	metrics.BusEvents.WithLabelValues(name, metrics.Outcome(err)).Inc()
	return err
}

// Start joins the consumer group and consumes until Close.
func (s *Source) Start(ctx context.Context) error {
	cfg, err := BuildBaseConfig(s.conf)
	if err != nil {
		return err
	}
	topics := s.router.Topics()
	sort.Strings(topics)

	if s.conf.AutoCreateTopics {
		admin, err := sarama.NewClusterAdmin(s.conf.Brokers, cfg)
		if err != nil {
			return err
		}
		err = EnsureTopics(admin, topics, s.conf)
		_ = admin.Close()
		if err != nil {
			return err
		}
	}

	group, err := sarama.NewConsumerGroup(s.conf.Brokers, s.conf.GroupID, cfg)
	if err != nil {
		return err
	}
	s.group = group

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	safe.Go("kafka:errors", func() {
		for err := range group.Errors() {
			logger.Warn("[Kafka] consumer group error", zap.Error(err))
		}
	})
	safe.Go("kafka:consume", func() {
		defer close(s.done)
		handler := NewConsumerGroupHandler(s.router)
		for {
			// Consume 在 rebalance 后返回，需要循环
			if err := group.Consume(ctx, topics, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				logger.Warn("[Kafka] consume error", zap.Error(err))
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	})
	logger.Info("[Kafka] bus source started", zap.String("group", s.conf.GroupID), zap.Strings("topics", topics))
	return nil
}

func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.group != nil {
			err = s.group.Close()
			<-s.done
		}
	})
	return err
}
