package natsx

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"PPGateway/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NatsxMode 工作模式
type NatsxMode int

const (
	Core          NatsxMode = iota // 无持久化
	JetStreamPush                  // JS 推送订阅
)

// ParseMode 解析配置里的模式名，未知值按 core 处理
func ParseMode(s string) NatsxMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "js", "jetstream", "js_push":
		return JetStreamPush
	default:
		return Core
	}
}

// NatsxRoute 路由配置（按 Biz 维度注册）
type NatsxRoute struct {
	Biz           string
	Subject       string
	Mode          NatsxMode
	Queue         string // 队列组；网关每个节点都要收全量事件，一般留空
	Durable       string // JS durable 名
	AckWait       time.Duration
	MaxAckPending int
}

// NatsxConfig 客户端配置
type NatsxConfig struct {
	Servers         []string
	Name            string
	User            string
	Password        string
	ReconnectWait   time.Duration
	Timeout         time.Duration
	PublishAsyncMax int
}

// NatsxClient 统一客户端
type NatsxClient struct {
	cfg NatsxConfig
	nc  *nats.Conn
	js  nats.JetStreamContext

	mu     sync.RWMutex
	routes map[string]NatsxRoute         // biz -> route
	subs   map[string]*nats.Subscription // biz -> sub
}

func (c *NatsxConfig) norm() {
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
	if c.PublishAsyncMax == 0 {
		c.PublishAsyncMax = 4096
	}
}

// NewNatsxClient 连接 NATS
func NewNatsxClient(cfg NatsxConfig) (*NatsxClient, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	cfg.norm()
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("[NATS] disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("[NATS] reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, err
	}
	return &NatsxClient{
		cfg:    cfg,
		nc:     nc,
		routes: make(map[string]NatsxRoute),
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// Close 优雅关闭
func (c *NatsxClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for biz, sub := range c.subs {
		_ = sub.Drain()
		delete(c.subs, biz)
	}
	if c.nc != nil {
		return c.nc.Drain()
	}
	return nil
}

// ensureJS 初始化 JetStream 上下文
func (c *NatsxClient) ensureJS() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.js != nil {
		return nil
	}
	js, err := c.nc.JetStream(nats.PublishAsyncMaxPending(c.cfg.PublishAsyncMax))
	if err != nil {
		return err
	}
	c.js = js
	return nil
}

// EnsureStream 确保存在覆盖 subjects 的 stream（已存在则不修改）
func (c *NatsxClient) EnsureStream(name string, subjects []string) error {
	if err := c.ensureJS(); err != nil {
		return fmt.Errorf("init jetstream: %w", err)
	}
	if _, err := c.js.StreamInfo(name); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: subjects,
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	logger.Info("[NATS] stream created", zap.String("stream", name), zap.Strings("subjects", subjects))
	return nil
}

// RegisterRoute 注册 Biz 路由
func (c *NatsxClient) RegisterRoute(r NatsxRoute) error {
	if r.Biz == "" || r.Subject == "" {
		return errors.New("invalid route")
	}
	if r.Mode == JetStreamPush {
		if err := c.ensureJS(); err != nil {
			return fmt.Errorf("init jetstream: %w", err)
		}
	}
	if r.AckWait == 0 {
		r.AckWait = 30 * time.Second
	}
	if r.MaxAckPending == 0 {
		r.MaxAckPending = 1024
	}
	c.mu.Lock()
	c.routes[r.Biz] = r
	c.mu.Unlock()
	return nil
}

// route 查询已注册路由
func (c *NatsxClient) route(biz string) (NatsxRoute, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.routes[biz]
	return r, ok
}

func (c *NatsxClient) jetStream() nats.JetStreamContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.js
}
