package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/assistmesh/adapter-runtime/internal/adapters"
	"github.com/assistmesh/adapter-runtime/internal/adapters/registry"
	"github.com/assistmesh/adapter-runtime/pkg/observability"
)

// RegistrySource is the slice of the registry the health monitor needs
type RegistrySource interface {
	List(filter registry.ListFilter) ([]registry.Summary, error)
	HealthCheck(ctx context.Context, id string) (*adapters.HealthResult, error)
	MarkHealth(ctx context.Context, id string, healthy bool) bool
}

// HealthConfig holds the health monitor's tunables
type HealthConfig struct {
	Interval    time.Duration
	HistorySize int
}

// DefaultHealthConfig returns the polling defaults
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Interval:    30 * time.Second,
		HistorySize: 32,
	}
}

// HealthMonitor polls health_check on every live adapter on its own interval,
// independent of execution traffic, records each result into a bounded
// per-adapter ring, and reports verdicts back to the registry so a failing
// Running adapter flips to Degraded and recovers on the next pass.
type HealthMonitor struct {
	cfg      HealthConfig
	registry RegistrySource
	logger   observability.Logger
	metrics  observability.MetricsClient

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	history map[string]*historyRing
}

// NewHealthMonitor creates a health monitor over the given registry
func NewHealthMonitor(cfg HealthConfig, source RegistrySource, logger observability.Logger, metrics observability.MetricsClient) *HealthMonitor {
	def := DefaultHealthConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &HealthMonitor{
		cfg:      cfg,
		registry: source,
		logger:   logger.WithPrefix("health-monitor"),
		metrics:  metrics,
		history:  make(map[string]*historyRing),
	}
}

// Start launches the polling loop. Fails if already running.
func (m *HealthMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("health monitor already running")
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	stop, done := m.stop, m.done
	m.mu.Unlock()

	go m.loop(ctx, stop, done)
	m.logger.Info("Health monitor started", map[string]interface{}{
		"interval": m.cfg.Interval.String(),
	})
	return nil
}

// Stop halts the polling loop and waits for it to exit. Idempotent.
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
	m.logger.Info("Health monitor stopped", nil)
}

func (m *HealthMonitor) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll runs one polling pass over every checkable adapter
func (m *HealthMonitor) CheckAll(ctx context.Context) {
	summaries, err := m.registry.List(registry.ListFilter{})
	if err != nil {
		// Registry shut down; the next tick will see it too.
		return
	}
	for _, summary := range summaries {
		if !summary.Status.Checkable() {
			continue
		}
		m.checkOne(ctx, summary.ID)
	}
}

func (m *HealthMonitor) checkOne(ctx context.Context, id string) {
	started := time.Now()
	result, err := m.registry.HealthCheck(ctx, id)
	if err != nil {
		// Adapter unregistered between list and check
		return
	}

	m.record(id, result)
	m.metrics.RecordOperation("health_monitor", "check", result.IsHealthy, time.Since(started).Seconds(),
		map[string]string{"adapter_id": id})

	if changed := m.registry.MarkHealth(ctx, id, result.IsHealthy); changed {
		m.logger.Info("Adapter health verdict applied", map[string]interface{}{
			"adapterId": id,
			"healthy":   result.IsHealthy,
			"status":    result.Status,
		})
	}
	if !result.IsHealthy {
		m.logger.Warn("Adapter health check failed", map[string]interface{}{
			"adapterId": id,
			"status":    result.Status,
			"issues":    result.Issues,
		})
	}
}

func (m *HealthMonitor) record(id string, result *adapters.HealthResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ring, ok := m.history[id]
	if !ok {
		ring = newHistoryRing(m.cfg.HistorySize)
		m.history[id] = ring
	}
	ring.append(result)
}

// History returns the recorded health results for an adapter, oldest first.
// Results are immutable once recorded.
func (m *HealthMonitor) History(id string) []*adapters.HealthResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	ring, ok := m.history[id]
	if !ok {
		return nil
	}
	return ring.snapshot()
}

// Forget drops the history for an adapter, typically after unregistration
func (m *HealthMonitor) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, id)
}

// historyRing is a fixed-capacity ring of health results
type historyRing struct {
	buf   []*adapters.HealthResult
	next  int
	count int
}

func newHistoryRing(capacity int) *historyRing {
	return &historyRing{buf: make([]*adapters.HealthResult, capacity)}
}

func (r *historyRing) append(result *adapters.HealthResult) {
	r.buf[r.next] = result
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *historyRing) snapshot() []*adapters.HealthResult {
	out := make([]*adapters.HealthResult, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
