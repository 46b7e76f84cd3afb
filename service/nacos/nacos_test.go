package nacos

import (
	"errors"
	"testing"
	"time"

	"PPGateway/global/config"
	"PPGateway/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfigSource struct {
	content   string
	err       error
	listeners []func(namespace, group, dataId, data string)
	cancelled bool
}

func (f *fakeConfigSource) GetConfig(p vo.ConfigParam) (string, error) {
	return f.content, f.err
}

func (f *fakeConfigSource) ListenConfig(p vo.ConfigParam) error {
	f.listeners = append(f.listeners, p.OnChange)
	return nil
}

func (f *fakeConfigSource) CancelListenConfig(p vo.ConfigParam) error {
	f.cancelled = true
	return nil
}

func (f *fakeConfigSource) push(data string) {
	for _, l := range f.listeners {
		l("public", "DEFAULT_GROUP", "im-gateway.yaml", data)
	}
}

func TestWatcherFetchAndListen(t *testing.T) {
	src := &fakeConfigSource{content: "log:\n  level: info\n"}
	w := NewConfigWatcher(src, "im-gateway.yaml", "DEFAULT_GROUP")

	got, err := w.Fetch()
	require.NoError(t, err)
	assert.Equal(t, src.content, got)
	assert.Equal(t, src.content, w.Current())

	var seen string
	require.NoError(t, w.Listen(func(data string) { seen = data }))
	src.push("log:\n  level: warn\n")
	assert.Equal(t, "log:\n  level: warn\n", seen)
	assert.Equal(t, seen, w.Current())

	require.NoError(t, w.Close())
	assert.True(t, src.cancelled)
}

func TestWatcherFetchError(t *testing.T) {
	w := NewConfigWatcher(&fakeConfigSource{err: errors.New("timeout")}, "d", "g")
	_, err := w.Fetch()
	assert.Error(t, err)
	assert.Empty(t, w.Current())
}

func TestOverlay(t *testing.T) {
	t.Setenv("GATEWAY_ID", "")
	base := config.Default()
	doc := "liveness:\n  threshold: 2m\n  interval: 15s\nkafka:\n  brokers: [\"k1:9092\"]\n"

	cfg, err := Overlay(base, doc)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Liveness.Threshold)
	assert.Equal(t, 15*time.Second, cfg.Liveness.Interval)
	assert.Equal(t, []string{"k1:9092"}, cfg.Kafka.Brokers)

	assert.Equal(t, 5*time.Minute, base.Liveness.Threshold)
	assert.Equal(t, []string{"127.0.0.1:9092"}, base.Kafka.Brokers)
}

func TestOverlayRejectsBadDoc(t *testing.T) {
	_, err := Overlay(config.Default(), "store:\n  driver: sqlite\n")
	assert.True(t, errs.ErrArgs.Is(err))

	_, err = Overlay(config.Default(), "liveness: [")
	assert.Error(t, err)
}

type fakeNaming struct {
	registered   []vo.RegisterInstanceParam
	deregistered int
	regOK        bool
	regErr       error
}

func (f *fakeNaming) RegisterInstance(p vo.RegisterInstanceParam) (bool, error) {
	f.registered = append(f.registered, p)
	return f.regOK, f.regErr
}

func (f *fakeNaming) DeregisterInstance(p vo.DeregisterInstanceParam) (bool, error) {
	f.deregistered++
	return false, errors.New("instance not found")
}

func TestRegistryRegister(t *testing.T) {
	n := &fakeNaming{regOK: true}
	r := NewRegistry(n, "im-gateway", "10.0.0.5", 8080, map[string]string{"node_id": "gw1", "path": "/message"})

	require.NoError(t, r.Register())
	require.Len(t, n.registered, 1)
	p := n.registered[0]
	assert.True(t, p.Ephemeral)
	assert.Equal(t, "gw1", p.Metadata["node_id"])
	assert.Equal(t, "/message", p.Metadata["path"])
	assert.Equal(t, uint64(8080), p.Port)
	assert.Equal(t, 1, n.deregistered)

	assert.Error(t, r.Deregister())
	assert.Equal(t, 2, n.deregistered)
	assert.NoError(t, r.Deregister())
	assert.Equal(t, 2, n.deregistered)
}

func TestRegistryRegisterRejected(t *testing.T) {
	r := NewRegistry(&fakeNaming{regOK: false}, "im-gateway", "10.0.0.5", 8080, nil)
	assert.Error(t, r.Register())
	assert.NoError(t, r.Deregister())
}

func TestLocalIP(t *testing.T) {
	assert.NotEmpty(t, LocalIP())
}
