package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"PPGateway/global/config"
	"PPGateway/logger"
	"PPGateway/service/nacos"
	"PPGateway/tools"
	"PPGateway/tools/ids"

	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", tools.GetEnv("GATEWAY_CONFIG", ""), "gateway yaml config path")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config failed", zap.String("path", *cfgPath), zap.Error(err))
		os.Exit(1)
	}

	var watcher *nacos.ConfigWatcher
	if cfg.Nacos.Enabled {
		cfg, watcher, err = remoteConfig(cfg)
		if err != nil {
			logger.Error("nacos config failed", zap.Error(err))
			os.Exit(1)
		}
	}
	logger.SetLevel(cfg.Log.Level)
	defer logger.Sync()

	ids.SetNodeID(ids.NodeIDFromString(cfg.NodeID))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Error("gateway init failed", zap.Error(err))
		os.Exit(1)
	}
	if watcher != nil {
		a.watchConfig(watcher)
	}
	if err := a.run(ctx); err != nil {
		logger.Error("gateway exited with error", zap.Error(err))
		os.Exit(1)
	}
}

// remoteConfig 拉取 Nacos 上的文档叠加到本地配置，返回的 watcher 用于后续监听
func remoteConfig(cfg *config.AppConfig) (*config.AppConfig, *nacos.ConfigWatcher, error) {
	cli, err := nacos.NewConfigClient(cfg.Nacos)
	if err != nil {
		return nil, nil, err
	}
	w := nacos.NewConfigWatcher(cli, cfg.Nacos.DataID, cfg.Nacos.Group)
	doc, err := w.Fetch()
	if err != nil {
		return nil, nil, err
	}
	merged, err := nacos.Overlay(cfg, doc)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("[Nacos] remote config applied", zap.String("dataId", cfg.Nacos.DataID))
	return merged, w, nil
}
