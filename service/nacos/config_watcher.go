package nacos

import (
	"sync"

	"PPGateway/global/config"
	"PPGateway/logger"
	"PPGateway/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// ConfigSource config_client.IConfigClient 的子集
type ConfigSource interface {
	GetConfig(param vo.ConfigParam) (string, error)
	ListenConfig(param vo.ConfigParam) error
	CancelListenConfig(param vo.ConfigParam) error
}

// ConfigWatcher 拉取并监听一份 YAML 配置文档
type ConfigWatcher struct {
	cli    ConfigSource
	dataID string
	group  string

	mu      sync.RWMutex
	current string
}

func NewConfigWatcher(cli ConfigSource, dataID, group string) *ConfigWatcher {
	return &ConfigWatcher{cli: cli, dataID: dataID, group: group}
}

// Fetch 拉取当前文档
func (w *ConfigWatcher) Fetch() (string, error) {
	content, err := w.cli.GetConfig(vo.ConfigParam{DataId: w.dataID, Group: w.group})
	if err != nil {
		return "", errs.WrapMsg(err, "nacos get config", "dataId", w.dataID, "group", w.group)
	}
	w.update(content)
	return content, nil
}

// Listen 注册变更回调；回调在 SDK 的协程里执行
func (w *ConfigWatcher) Listen(onChange func(data string)) error {
	err := w.cli.ListenConfig(vo.ConfigParam{
		DataId: w.dataID,
		Group:  w.group,
		OnChange: func(namespace, group, dataId, data string) {
			logger.Info("[Nacos] config changed", zap.String("dataId", dataId), zap.String("group", group))
			w.update(data)
			if onChange != nil {
				onChange(data)
			}
		},
	})
	if err != nil {
		return errs.WrapMsg(err, "nacos listen config", "dataId", w.dataID)
	}
	return nil
}

func (w *ConfigWatcher) Close() error {
	return w.cli.CancelListenConfig(vo.ConfigParam{DataId: w.dataID, Group: w.group})
}

func (w *ConfigWatcher) update(data string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = data
}

func (w *ConfigWatcher) Current() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Overlay 在 base 的副本上叠加远程文档并重新应用环境变量，base 不变
func Overlay(base *config.AppConfig, doc string) (*config.AppConfig, error) {
	cfg := *base
	cfg.Kafka.Brokers = append([]string(nil), base.Kafka.Brokers...)
	if err := cfg.Merge([]byte(doc)); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
