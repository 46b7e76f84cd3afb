package chat

import (
	"sync"
	"time"

	"PPGateway/logger"
	"PPGateway/service/metrics"

	"go.uber.org/zap"
)

const (
	DefaultIdleThreshold = 5 * time.Minute
	DefaultSweepInterval = 60 * time.Second
)

type MonitorConf struct {
	Threshold time.Duration // 超过该时长无活动视为失活
	Interval  time.Duration // 清理周期
	Clock     Clock         // 可注入时钟（单测用）；nil => time.Now
}

func (c *MonitorConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultIdleThreshold
	}
	if c.Interval <= 0 {
		c.Interval = DefaultSweepInterval
	}
}

// Monitor 周期性扫描连接活跃时间，断开失活连接
type Monitor struct {
	mu      sync.Mutex
	conf    MonitorConf
	stopCh  chan struct{}
	resetCh chan time.Duration
	wg      sync.WaitGroup

	snapshot   func() map[string]time.Time
	closeStale func(connID string)
	afterSweep func()
}

func NewMonitor(conf MonitorConf, snapshot func() map[string]time.Time, closeStale func(connID string)) *Monitor {
	conf.norm()
	return &Monitor{
		conf:       conf,
		snapshot:   snapshot,
		closeStale: closeStale,
	}
}

// OnSweep sets a hook run after every sweep (presence mirror refresh).
func (m *Monitor) OnSweep(f func()) {
	m.mu.Lock()
	m.afterSweep = f
	m.mu.Unlock()
}

// Start launches the sweeper; calling it on a running monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		return
	}
	m.stopCh = make(chan struct{})
	m.resetCh = make(chan time.Duration, 1)
	m.wg.Add(1)
	go m.sweeper(m.conf.Interval, m.stopCh, m.resetCh)
	logger.Info("[Monitor] started", zap.Duration("threshold", m.conf.Threshold), zap.Duration("interval", m.conf.Interval))
}

// Stop halts the sweeper and waits for it; safe with no sweeper running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stopCh := m.stopCh
	m.stopCh = nil
	m.resetCh = nil
	m.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	m.wg.Wait()
	logger.Info("[Monitor] stopped")
}

// Reconfigure applies new threshold / interval; zero keeps the current value.
func (m *Monitor) Reconfigure(threshold, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if threshold > 0 {
		m.conf.Threshold = threshold
	}
	if interval > 0 && interval != m.conf.Interval {
		m.conf.Interval = interval
		if m.resetCh != nil {
			select {
			case m.resetCh <- interval:
			default:
			}
		}
	}
}

func (m *Monitor) Threshold() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conf.Threshold
}

func (m *Monitor) sweeper(interval time.Duration, stopCh <-chan struct{}, resetCh <-chan time.Duration) {
	defer m.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stopCh:
			return
		case d := <-resetCh:
			t.Reset(d)
		case <-t.C:
			m.SweepOnce(m.conf.Clock())
		}
	}
}

// SweepOnce closes every connection idle for at least the threshold and
// returns their ids. Activity is read from a snapshot and the decision is
// made before any close, so closers may re-enter the registry.
func (m *Monitor) SweepOnce(now time.Time) []string {
	threshold := m.Threshold()
	snap := m.snapshot()

	var stale []string
	for id, last := range snap {
		if now.Sub(last) >= threshold {
			stale = append(stale, id)
		}
	}
	logger.Debug("[Monitor] sweep", zap.Int("tracked", len(snap)), zap.Int("stale", len(stale)))
	metrics.Sweeps.Inc()

	for _, id := range stale {
		m.closeStale(id)
	}

	m.mu.Lock()
	after := m.afterSweep
	m.mu.Unlock()
	if after != nil {
		after()
	}
	return stale
}
