package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"PPGateway/logger"
	"PPGateway/service/eventbus"
	"PPGateway/service/kafka"
	"PPGateway/service/natsx"
	"PPGateway/tools"

	"go.uber.org/zap"
)

// 调试工具：向 NATS 或 Kafka 发送领域事件，网关订阅后推给在线连接。
//
// 环境变量：
// BUS           (nats | kafka，默认 nats)
// EVENT         (必填，如 message.created / member.added)
// PAYLOAD       (JSON 负载) 或 PAYLOAD_FILE
// PREFIX        (subject/topic 前缀，默认 im.events.)
// NATS_SERVERS  (默认 nats://127.0.0.1:4222)
// MODE          (core | js，默认 core)
// HDR           (可选，仅 NATS，形如 k1=v1,k2=v2)
// KAFKA_BROKERS (默认 127.0.0.1:9092)
// KEY           (Kafka 分区键，可选)
// COUNT         (发送次数，默认 1)
// PUB_RATE      (msgs/sec，默认 1；<=0 则尽快发)

type sender func(ctx context.Context, event string, data []byte) error

func main() {
	event := tools.GetEnv("EVENT", "")
	if event == "" {
		logger.Error("EVENT is required")
		os.Exit(2)
	}
	data, err := payload()
	if err != nil {
		logger.Error("read payload", zap.Error(err))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 本地先按网关的解码/校验规则过一遍，避免发出网关必然丢弃的事件
	if err := dryRun(ctx, event, data); err != nil {
		logger.Error("payload rejected", zap.String("event", event), zap.Error(err))
		os.Exit(2)
	}

	send, closeFn, err := newSender()
	if err != nil {
		logger.Error("connect bus", zap.Error(err))
		os.Exit(1)
	}
	defer closeFn()

	count := tools.GetEnvInt("COUNT", 1)
	rate := tools.GetEnvInt("PUB_RATE", 1)
	interval := time.Millisecond
	if rate > 0 {
		interval = time.Second / time.Duration(rate)
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	logger.Info("[emit] start", zap.String("event", event), zap.Int("count", count), zap.Int("rate", rate))
	for i := 1; i <= count; i++ {
		if err := send(ctx, event, data); err != nil {
			logger.Warn("[emit] publish failed", zap.Int("seq", i), zap.Error(err))
		}
		if i == count {
			break
		}
		select {
		case <-ctx.Done():
			logger.Info("[emit] interrupted")
			return
		case <-t.C:
		}
	}
	logger.Info("[emit] done")
}

func payload() ([]byte, error) {
	if p := tools.GetEnv("PAYLOAD", ""); p != "" {
		return []byte(p), nil
	}
	if f := tools.GetEnv("PAYLOAD_FILE", ""); f != "" {
		return os.ReadFile(f)
	}
	return nil, fmt.Errorf("PAYLOAD or PAYLOAD_FILE is required")
}

func dryRun(ctx context.Context, event string, data []byte) error {
	bus := eventbus.New()
	eventbus.Subscribe(bus, eventbus.MemberAdded, func(context.Context, eventbus.MemberAddedEvent) {})
	eventbus.Subscribe(bus, eventbus.MemberRemoved, func(context.Context, eventbus.MemberRemovedEvent) {})
	eventbus.Subscribe(bus, eventbus.MessageRecalled, func(context.Context, eventbus.MessageRefEvent) {})
	eventbus.Subscribe(bus, eventbus.MessageRead, func(context.Context, eventbus.MessageRefEvent) {})
	eventbus.Subscribe(bus, eventbus.GroupDissolved, func(context.Context, eventbus.GroupDissolvedEvent) {})
	eventbus.Subscribe(bus, eventbus.MessageCreated, func(context.Context, eventbus.MessageEvent) {})
	eventbus.Subscribe(bus, eventbus.MessageReactionUpdated, func(context.Context, eventbus.MessageActorEvent) {})
	eventbus.Subscribe(bus, eventbus.MessageDeleted, func(context.Context, eventbus.MessageActorEvent) {})
	eventbus.Subscribe(bus, eventbus.MessageMedia, func(context.Context, eventbus.MessageEvent) {})
	return bus.PublishRaw(ctx, event, data)
}

func newSender() (sender, func(), error) {
	prefix := tools.GetEnv("PREFIX", "im.events.")
	switch strings.ToLower(tools.GetEnv("BUS", "nats")) {
	case "kafka":
		c := kafka.Default()
		c.Brokers = strings.Split(tools.GetEnv("KAFKA_BROKERS", "127.0.0.1:9092"), ",")
		c.TopicPrefix = prefix
		p, err := kafka.NewSyncProducer(c)
		if err != nil {
			return nil, nil, err
		}
		key := tools.GetEnv("KEY", "")
		return func(ctx context.Context, event string, data []byte) error {
			return p.PublishRaw(ctx, event, key, data)
		}, func() { _ = p.Close() }, nil
	default:
		mgr, err := natsx.NewNatsManager(natsx.NatsxConfig{
			Servers: strings.Split(tools.GetEnv("NATS_SERVERS", "nats://127.0.0.1:4222"), ","),
			Name:    tools.GetEnv("NATS_NAME", "im-emit"),
		})
		if err != nil {
			return nil, nil, err
		}
		mode := natsx.ParseMode(tools.GetEnv("MODE", "core"))
		pub := natsx.NewPublisher(mgr, prefix, mode, 3)
		hdr := tools.ParseHdr(tools.GetEnv("HDR", ""))
		return func(ctx context.Context, event string, data []byte) error {
			return pub.PublishWithHeader(ctx, event, data, hdr)
		}, func() { _ = mgr.Close() }, nil
	}
}
