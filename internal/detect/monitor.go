package detect

import (
	"context"
	"sync"
	"time"
)

// HealthInterval is the period between connectivity probes.
const HealthInterval = 15 * time.Second

// Status is a snapshot of backend connectivity.
type Status struct {
	Connected bool
	// Message describes why the backend is down ("backend timed out",
	// "backend unreachable", ...). Empty while connected.
	Message string
}

// Monitor probes the backend on a fixed interval, independent of the
// detection polling loop. Its status gates the manual-trigger
// affordance and feeds the connectivity banner.
type Monitor struct {
	client   *Client
	interval time.Duration

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
}

// NewMonitor returns a Monitor for client, probing every HealthInterval.
func NewMonitor(client *Client) *Monitor {
	return &Monitor{client: client, interval: HealthInterval}
}

// Start probes once immediately, then on every interval tick until
// Stop. Safe to call once per Monitor.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.probe(ctx)
	go m.loop(ctx)
}

// Stop halts probing. The last status remains readable.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Status returns the latest connectivity snapshot.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connected reports whether the last probe succeeded.
func (m *Monitor) Connected() bool {
	return m.Status().Connected
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	err := m.client.Health(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.status = Status{Connected: false, Message: err.Error()}
		return
	}
	m.status = Status{Connected: true}
}
