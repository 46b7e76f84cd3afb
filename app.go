package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"PPGateway/global/config"
	"PPGateway/logger"
	mid "PPGateway/middleware"
	midsec "PPGateway/middleware/security"
	"PPGateway/service/chat"
	"PPGateway/service/chat/handlers"
	"PPGateway/service/eventbus"
	"PPGateway/service/kafka"
	"PPGateway/service/metrics"
	"PPGateway/service/nacos"
	"PPGateway/service/natsx"
	"PPGateway/service/storage"
	storageredis "PPGateway/service/storage/redis"
	"PPGateway/service/store"
	"PPGateway/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthService   = "im.gateway"
	shutdownTimeout = 15 * time.Second
	idemTTL         = 10 * time.Minute
)

// busSource 远程事件源：NATS 或 Kafka
type busSource interface {
	Start(ctx context.Context) error
}

type app struct {
	cfg *config.AppConfig

	server *chat.Server
	bus    *eventbus.Bus
	bridge *chat.Bridge
	source busSource

	httpSrv *http.Server
	grpcSrv *grpc.Server
	health  *health.Server

	registry   *nacos.Registry
	stopSource func()
	closers    []func() // 存储类资源，逆序执行
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{cfg: cfg}

	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		mgr, err := storageredis.NewRedisManager(ctx, storageredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			// 缓存与在线镜像都是可选的
			logger.Warn("redis unavailable, running without cache and presence mirror", zap.Error(err))
		} else {
			rdb = mgr.Client()
			a.onClose(func() { _ = mgr.Close() })
		}
	}

	lookup, closeStore, err := store.Open(ctx, cfg.Store, rdb)
	if err != nil {
		a.close()
		return nil, err
	}
	a.onClose(closeStore)

	var opts []chat.Option
	if rdb != nil {
		opts = append(opts, chat.WithPresence(storage.NewPresence(rdb, storage.PresenceConfig{
			KeyPrefix: cfg.Presence.KeyPrefix,
			NodeID:    cfg.NodeID,
			TTL:       cfg.Presence.TTL,
		})))
	}
	a.server = chat.NewServer(serverConf(cfg), lookup, opts...)
	handlers.RegisterAll(a.server)

	a.bus = eventbus.New()
	a.bridge = chat.NewBridge(a.bus, a.server)

	if err := a.initBusSource(); err != nil {
		a.close()
		return nil, err
	}
	if a.stopSource == nil {
		a.stopSource = func() {}
	}
	a.initHTTP()
	a.initGRPC()

	if cfg.Nacos.Enabled && cfg.Nacos.Register {
		if err := a.initRegistry(); err != nil {
			logger.Warn("nacos registration disabled", zap.Error(err))
		}
	}
	return a, nil
}

func serverConf(cfg *config.AppConfig) chat.ServerConf {
	auth := security.DefaultOptions([]byte(cfg.Auth.JWTSecret))
	if cfg.Auth.Alg != "" {
		auth.Alg = cfg.Auth.Alg
	}
	return chat.ServerConf{
		NodeID: cfg.NodeID,
		Monitor: chat.MonitorConf{
			Threshold: cfg.Liveness.Threshold,
			Interval:  cfg.Liveness.Interval,
		},
		WS: chat.WSConf{
			PingInterval:  cfg.WS.PingInterval,
			PingTimeout:   cfg.WS.PingTimeout,
			WriteWait:     cfg.WS.WriteWait,
			SendQueue:     cfg.WS.SendQueue,
			MaxFrameBytes: cfg.WS.MaxFrameBytes,
		},
		Auth: auth,
	}
}

func (a *app) initBusSource() error {
	switch a.cfg.Bus.Source {
	case config.BusSourceNATS:
		mode := natsx.Core
		var mws []natsx.NatsxMiddleware
		if a.cfg.NATS.JetStream {
			// JetStream 重投时按 Nats-Msg-Id 去重
			mode = natsx.JetStreamPush
			idem := natsx.NewMemIdem(idemTTL)
			a.onClose(idem.Close)
			mws = append(mws, natsx.NatsxIdemMiddleware(idem, idemTTL))
		}
		mgr, err := natsx.NewNatsManager(natsx.NatsxConfig{
			Servers: strings.Split(a.cfg.NATS.URL, ","),
			Name:    a.cfg.NATS.Name + "-" + a.cfg.NodeID,
		}, mws...)
		if err != nil {
			return err
		}
		a.stopSource = func() { _ = mgr.Close() }
		a.source = natsx.NewSource(mgr, a.bus, natsx.SourceConf{
			NodeID:        a.cfg.NodeID,
			SubjectPrefix: a.cfg.NATS.SubjectPrefix,
			Mode:          mode,
			Stream:        a.cfg.NATS.Stream,
		})
	case config.BusSourceKafka:
		kc := kafka.Default()
		kc.Brokers = a.cfg.Kafka.Brokers
		kc.Version = a.cfg.Kafka.Version
		kc.TopicPrefix = a.cfg.Kafka.TopicPrefix
		kc.GroupID = a.cfg.Kafka.GroupPrefix + a.cfg.NodeID
		src := kafka.NewSource(kc, a.bus)
		a.stopSource = func() { _ = src.Close() }
		a.source = src
	default:
		logger.Warn("no bus source configured, domain events will not reach this node")
	}
	return nil
}

func (a *app) initHTTP() {
	if a.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	mgr := mid.NewManager()
	mgr.Add(mid.AccessLog(), mid.Origin(a.cfg.WS.AllowedOrigins))

	r := gin.New()
	r.Use(gin.Recovery(), mgr.Use())

	a.server.Routes(r.Group("", midsec.BearerToQuery()), a.cfg.HTTP.Path)
	r.GET("/healthz", a.healthz)
	r.GET("/metrics", metrics.Handler())

	a.httpSrv = &http.Server{Addr: a.cfg.HTTP.Addr, Handler: r}
}

func (a *app) healthz(c *gin.Context) {
	conns, users := a.server.Registry().Count()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"node":        a.cfg.NodeID,
		"connections": conns,
		"users":       users,
	})
}

func (a *app) initGRPC() {
	a.grpcSrv = grpc.NewServer()
	a.health = health.NewServer()
	healthpb.RegisterHealthServer(a.grpcSrv, a.health)
}

func (a *app) initRegistry() error {
	cli, err := nacos.NewNamingClient(a.cfg.Nacos)
	if err != nil {
		return err
	}
	_, portStr, err := net.SplitHostPort(a.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	port, err := strconv.ParseUint(portStr, 10, 64)
	if err != nil {
		return err
	}
	a.registry = nacos.NewRegistry(cli, a.cfg.Nacos.ServiceName, nacos.LocalIP(), port, map[string]string{
		"node_id":  a.cfg.NodeID,
		"path":     a.cfg.HTTP.Path,
		"protocol": "ws",
	})
	return nil
}

// watchConfig 远程配置变更时热更新日志级别与存活检测参数，其余字段需重启
func (a *app) watchConfig(w *nacos.ConfigWatcher) {
	base := *a.cfg
	err := w.Listen(func(data string) {
		next, err := nacos.Overlay(&base, data)
		if err != nil {
			logger.Warn("[Nacos] ignore invalid remote config", zap.Error(err))
			return
		}
		logger.SetLevel(next.Log.Level)
		a.server.Monitor().Reconfigure(next.Liveness.Threshold, next.Liveness.Interval)
		logger.Info("[Nacos] liveness reconfigured",
			zap.Duration("threshold", next.Liveness.Threshold),
			zap.Duration("interval", next.Liveness.Interval))
	})
	if err != nil {
		logger.Warn("[Nacos] listen failed", zap.Error(err))
		return
	}
	a.onClose(func() { _ = w.Close() })
}

func (a *app) run(ctx context.Context) error {
	a.server.Start()
	// bridge 已订阅，source 按 bus 上的事件名建立订阅
	if a.source != nil {
		if err := a.source.Start(ctx); err != nil {
			a.abort()
			return err
		}
	}

	grpcLis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		a.abort()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("[HTTP] listening", zap.String("addr", a.cfg.HTTP.Addr), zap.String("ws", a.cfg.HTTP.Path))
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("[gRPC] health listening", zap.String("addr", a.cfg.GRPC.Addr))
		return a.grpcSrv.Serve(grpcLis)
	})
	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	a.health.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)

	if a.registry != nil {
		if err := a.registry.Register(); err != nil {
			logger.Warn("nacos register failed", zap.Error(err))
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		a.shutdown()
		return nil
	})
	return g.Wait()
}

func (a *app) shutdown() {
	logger.Info("gateway shutting down", zap.String("node", a.cfg.NodeID))
	a.health.Shutdown() // 全部置为 NOT_SERVING
	if a.registry != nil {
		if err := a.registry.Deregister(); err != nil {
			logger.Warn("nacos deregister failed", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 先停事件源，再断开连接；在线镜像在断开时还要写 Redis，存储最后关
	a.stopSource()
	a.bridge.Close()
	if err := a.server.Shutdown(ctx); err != nil {
		logger.Warn("gateway shutdown incomplete", zap.Error(err))
	}
	if err := a.httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	a.grpcSrv.GracefulStop()
	a.close()
}

// abort 启动失败时释放已创建的资源
func (a *app) abort() {
	a.stopSource()
	a.bridge.Close()
	_ = a.server.Shutdown(context.Background())
	a.close()
}

func (a *app) onClose(f func()) {
	a.closers = append(a.closers, f)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
