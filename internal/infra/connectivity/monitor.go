package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-offline/internal/core/port"
)

// Probe checks whether the remote system of record is reachable. A nil error
// means online.
type Probe func(ctx context.Context) error

// Monitor is a probe-based implementation of port.ConnectivityMonitor. It
// caches the last observed status, re-probes on an interval once started, and
// fans out transitions to subscribers. SetOnline allows callers (and tests)
// to override the status without waiting for the next probe.
type Monitor struct {
	probe    Probe
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMonitor constructs a monitor. When probe is nil the monitor starts
// online and only changes status through SetOnline.
func NewMonitor(probe Probe, interval, timeout time.Duration, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Monitor{
		probe:    probe,
		interval: interval,
		timeout:  timeout,
		logger:   log,
		online:   true,
		subs:     make(map[int]func(bool)),
		stop:     make(chan struct{}),
	}
}

// Start launches the probe loop. It returns immediately; the loop ends when
// ctx is cancelled or Close is called.
func (m *Monitor) Start(ctx context.Context) {
	if m.probe == nil {
		return
	}

	m.check(ctx)
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.check(ctx)
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			}
		}
	}()
}

// Close stops the probe loop.
func (m *Monitor) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Online reports the last observed connectivity status.
func (m *Monitor) Online(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn for transition notifications and returns its
// unsubscribe function.
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// SetOnline overrides the current status, notifying subscribers when it
// changes.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	var subs []func(bool)
	if changed {
		subs = make([]func(bool), 0, len(m.subs))
		for _, fn := range m.subs {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	m.logger.Info("connectivity changed", zap.Bool("online", online))
	for _, fn := range subs {
		fn(online)
	}
}

func (m *Monitor) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.probe(probeCtx)
	cancel()

	if err != nil {
		m.logger.Debug("connectivity probe failed", zap.Error(err))
	}
	m.SetOnline(err == nil)
}

var _ port.ConnectivityMonitor = (*Monitor)(nil)
