package nacos

import (
	"net"
	"sync"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// Naming naming_client.INamingClient 的子集
type Naming interface {
	RegisterInstance(param vo.RegisterInstanceParam) (bool, error)
	DeregisterInstance(param vo.DeregisterInstanceParam) (bool, error)
}

// Registry 把网关节点注册为临时实例，metadata 带上 node_id 与 ws 路径
type Registry struct {
	ServiceName string
	IP          string
	Port        uint64
	Group       string
	Metadata    map[string]string

	mu         sync.Mutex
	registered bool
	client     Naming
}

func NewRegistry(client Naming, serviceName, ip string, port uint64, metadata map[string]string) *Registry {
	return &Registry{
		ServiceName: serviceName,
		IP:          ip,
		Port:        port,
		Group:       "DEFAULT_GROUP",
		Metadata:    metadata,
		client:      client,
	}
}

// Register 先清掉可能残留的旧实例再注册
func (r *Registry) Register() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.client.DeregisterInstance(r.deregParam()); err != nil {
		logger.Debug("[Nacos] no previous instance", zap.Error(err))
	}

	ok, err := r.client.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          r.IP,
		Port:        r.Port,
		ServiceName: r.ServiceName,
		GroupName:   r.Group,
		ClusterName: "DEFAULT",
		Weight:      1,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		Metadata:    r.Metadata,
	})
	if err != nil {
		return errs.WrapMsg(err, "nacos register", "service", r.ServiceName)
	}
	if !ok {
		return errs.New("nacos register returned false", "service", r.ServiceName)
	}
	r.registered = true
	logger.Info("[Nacos] registered", zap.String("service", r.ServiceName), zap.String("ip", r.IP), zap.Uint64("port", r.Port))
	return nil
}

func (r *Registry) Deregister() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.registered {
		return nil
	}
	r.registered = false
	if _, err := r.client.DeregisterInstance(r.deregParam()); err != nil {
		return errs.WrapMsg(err, "nacos deregister", "service", r.ServiceName)
	}
	return nil
}

func (r *Registry) deregParam() vo.DeregisterInstanceParam {
	return vo.DeregisterInstanceParam{
		Ip:          r.IP,
		Port:        r.Port,
		ServiceName: r.ServiceName,
		GroupName:   r.Group,
		Cluster:     "DEFAULT",
		Ephemeral:   true,
	}
}

// LocalIP 第一个非回环 IPv4 地址
func LocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && !ipn.IP.IsLoopback() && ipn.IP.To4() != nil {
			return ipn.IP.String()
		}
	}
	return "127.0.0.1"
}
