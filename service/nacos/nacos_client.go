package nacos

import (
	"PPGateway/global/config"
	"PPGateway/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

func NewConfigClient(c config.NacosConfig) (config_client.IConfigClient, error) {
	client, err := clients.NewConfigClient(clientParam(c))
	if err != nil {
		return nil, errs.WrapMsg(err, "create nacos config client", "host", c.Host)
	}
	return client, nil
}

func NewNamingClient(c config.NacosConfig) (naming_client.INamingClient, error) {
	client, err := clients.NewNamingClient(clientParam(c))
	if err != nil {
		return nil, errs.WrapMsg(err, "create nacos naming client", "host", c.Host)
	}
	return client, nil
}

func clientParam(c config.NacosConfig) vo.NacosClientParam {
	return vo.NacosClientParam{
		ClientConfig:  clientConfig(c),
		ServerConfigs: []constant.ServerConfig{*constant.NewServerConfig(c.Host, c.Port)},
	}
}

func clientConfig(c config.NacosConfig) *constant.ClientConfig {
	opts := []constant.ClientOption{
		constant.WithNamespaceId(c.Namespace),
		constant.WithTimeoutMs(5000),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel("warn"),
		constant.WithCacheDir("nacos/cache"),
		constant.WithLogDir("nacos/log"),
	}
	if c.Username != "" {
		opts = append(opts, constant.WithUsername(c.Username), constant.WithPassword(c.Password))
	}
	return constant.NewClientConfig(opts...)
}
