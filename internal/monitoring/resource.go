// Package monitoring hosts the two background samplers: the resource monitor,
// which watches process-wide CPU/memory and attributes cost to sandboxed runs,
// and the health monitor, which periodically polls every live adapter. Both
// are start/stop-able independently of the registry.
package monitoring

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/assistmesh/adapter-runtime/internal/adapters/events"
	"github.com/assistmesh/adapter-runtime/pkg/observability"
)

// AlertKind classifies a resource alert
type AlertKind string

// Alert kinds
const (
	AlertMemory AlertKind = "memory"
	AlertCPU    AlertKind = "cpu"
)

// Alert records one threshold violation
type Alert struct {
	ID        string    `json:"id"`
	Kind      AlertKind `json:"kind"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// Usage is one point-in-time resource sample
type Usage struct {
	RSSBytes     uint64    `json:"rss_bytes"`
	HeapBytes    uint64    `json:"heap_bytes"`
	CPUPercent   float64   `json:"cpu_percent"`
	NumGoroutine int       `json:"num_goroutine"`
	Timestamp    time.Time `json:"timestamp"`
}

// ResourceConfig holds the resource monitor's tunables
type ResourceConfig struct {
	SampleInterval      time.Duration
	MemoryThresholdMB   int
	CPUThresholdPercent float64
	AlertHistorySize    int
	ExecutionPeaksSize  int
}

// DefaultResourceConfig returns the sampling defaults
func DefaultResourceConfig() ResourceConfig {
	return ResourceConfig{
		SampleInterval:      10 * time.Second,
		MemoryThresholdMB:   1024,
		CPUThresholdPercent: 85,
		AlertHistorySize:    128,
		ExecutionPeaksSize:  512,
	}
}

// ResourceMonitor samples process-wide CPU and memory on an interval and,
// through the sandbox observer hook, tracks per-execution memory peaks so
// cost can be attributed to individual runs.
type ResourceMonitor struct {
	cfg     ResourceConfig
	bus     *events.Bus
	logger  observability.Logger
	metrics observability.MetricsClient

	mu           sync.Mutex
	running      bool
	stop         chan struct{}
	done         chan struct{}
	lastSample   Usage
	lastCPUTotal time.Duration
	lastCPUAt    time.Time
	activeAlerts map[AlertKind]Alert

	alertHistory   *lru.Cache[string, Alert]
	executionPeaks *lru.Cache[string, uint64]
}

// NewResourceMonitor creates a resource monitor. bus may be nil if alerts need
// no fan-out.
func NewResourceMonitor(cfg ResourceConfig, bus *events.Bus, logger observability.Logger, metrics observability.MetricsClient) (*ResourceMonitor, error) {
	def := DefaultResourceConfig()
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	if cfg.AlertHistorySize <= 0 {
		cfg.AlertHistorySize = def.AlertHistorySize
	}
	if cfg.ExecutionPeaksSize <= 0 {
		cfg.ExecutionPeaksSize = def.ExecutionPeaksSize
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	history, err := lru.New[string, Alert](cfg.AlertHistorySize)
	if err != nil {
		return nil, fmt.Errorf("creating alert history: %w", err)
	}
	peaks, err := lru.New[string, uint64](cfg.ExecutionPeaksSize)
	if err != nil {
		return nil, fmt.Errorf("creating execution peak cache: %w", err)
	}

	return &ResourceMonitor{
		cfg:            cfg,
		bus:            bus,
		logger:         logger.WithPrefix("resource-monitor"),
		metrics:        metrics,
		activeAlerts:   make(map[AlertKind]Alert),
		alertHistory:   history,
		executionPeaks: peaks,
	}, nil
}

// Start launches the sampling loop. Fails if already running.
func (m *ResourceMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("resource monitor already running")
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.lastCPUAt = time.Now()
	m.lastCPUTotal, _ = processCPUTime()
	stop, done := m.stop, m.done
	m.mu.Unlock()

	go m.loop(ctx, stop, done)
	m.logger.Info("Resource monitor started", map[string]interface{}{
		"interval": m.cfg.SampleInterval.String(),
	})
	return nil
}

// Stop halts the sampling loop and waits for it to exit. Idempotent.
func (m *ResourceMonitor) Stop() {
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
	m.logger.Info("Resource monitor stopped", nil)
}

func (m *ResourceMonitor) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

// sample takes one reading and raises or clears alerts against thresholds
func (m *ResourceMonitor) sample(ctx context.Context) {
	usage := m.read()

	m.metrics.RecordGauge("process_rss_bytes", float64(usage.RSSBytes), nil)
	m.metrics.RecordGauge("process_heap_bytes", float64(usage.HeapBytes), nil)
	m.metrics.RecordGauge("process_cpu_percent", usage.CPUPercent, nil)
	m.metrics.RecordGauge("process_goroutines", float64(usage.NumGoroutine), nil)

	if m.cfg.MemoryThresholdMB > 0 {
		threshold := float64(m.cfg.MemoryThresholdMB) * 1024 * 1024
		m.evaluate(ctx, AlertMemory, float64(usage.RSSBytes), threshold,
			fmt.Sprintf("process RSS %.0f MB over threshold %d MB", float64(usage.RSSBytes)/1024/1024, m.cfg.MemoryThresholdMB))
	}
	if m.cfg.CPUThresholdPercent > 0 {
		m.evaluate(ctx, AlertCPU, usage.CPUPercent, m.cfg.CPUThresholdPercent,
			fmt.Sprintf("process CPU %.1f%% over threshold %.1f%%", usage.CPUPercent, m.cfg.CPUThresholdPercent))
	}
}

func (m *ResourceMonitor) evaluate(ctx context.Context, kind AlertKind, value, threshold float64, message string) {
	m.mu.Lock()
	_, active := m.activeAlerts[kind]
	if value <= threshold {
		if active {
			delete(m.activeAlerts, kind)
			m.logger.Info("Resource alert cleared", map[string]interface{}{"kind": string(kind)})
		}
		m.mu.Unlock()
		return
	}
	if active {
		m.mu.Unlock()
		return
	}
	alert := Alert{
		ID:        uuid.New().String(),
		Kind:      kind,
		Message:   message,
		Value:     value,
		Threshold: threshold,
		Timestamp: time.Now(),
	}
	m.activeAlerts[kind] = alert
	m.alertHistory.Add(alert.ID, alert)
	m.mu.Unlock()

	m.logger.Warn("Resource alert raised", map[string]interface{}{
		"kind":    string(kind),
		"message": message,
	})
	m.metrics.IncrementCounter("resource_alerts_total", 1)
	if m.bus != nil {
		m.bus.Publish(ctx, events.New(events.TypeResourceAlert, "", alert))
	}
}

// read collects one usage sample
func (m *ResourceMonitor) read() Usage {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	usage := Usage{
		HeapBytes:    memStats.HeapAlloc,
		NumGoroutine: runtime.NumGoroutine(),
		Timestamp:    time.Now(),
	}
	if rss, err := selfRSS(); err == nil {
		usage.RSSBytes = rss
	} else {
		usage.RSSBytes = memStats.Sys
	}

	m.mu.Lock()
	if total, err := processCPUTime(); err == nil {
		now := time.Now()
		elapsed := now.Sub(m.lastCPUAt)
		if elapsed > 0 && m.lastCPUTotal > 0 {
			usage.CPUPercent = float64(total-m.lastCPUTotal) / float64(elapsed) * 100
		}
		m.lastCPUTotal = total
		m.lastCPUAt = now
	}
	m.lastSample = usage
	m.mu.Unlock()
	return usage
}

// Snapshot returns the most recent sample, taking a fresh one if none exists
func (m *ResourceMonitor) Snapshot() Usage {
	m.mu.Lock()
	last := m.lastSample
	m.mu.Unlock()
	if last.Timestamp.IsZero() {
		return m.read()
	}
	return last
}

// ObserveExecution implements the sandbox observer hook: it records the peak
// RSS seen for one sandboxed request.
func (m *ResourceMonitor) ObserveExecution(requestID string, rssBytes uint64) {
	if prev, ok := m.executionPeaks.Get(requestID); !ok || rssBytes > prev {
		m.executionPeaks.Add(requestID, rssBytes)
	}
	m.metrics.RecordGauge("sandbox_execution_rss_bytes", float64(rssBytes),
		map[string]string{"request_id": requestID})
}

// ExecutionPeak returns the peak RSS attributed to a sandboxed request
func (m *ResourceMonitor) ExecutionPeak(requestID string) (uint64, bool) {
	return m.executionPeaks.Get(requestID)
}

// ActiveAlerts returns currently firing alerts
func (m *ResourceMonitor) ActiveAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, 0, len(m.activeAlerts))
	for _, a := range m.activeAlerts {
		out = append(out, a)
	}
	return out
}

// AlertHistory returns the bounded record of past alerts, oldest first
func (m *ResourceMonitor) AlertHistory() []Alert {
	out := make([]Alert, 0, m.alertHistory.Len())
	for _, key := range m.alertHistory.Keys() {
		if alert, ok := m.alertHistory.Peek(key); ok {
			out = append(out, alert)
		}
	}
	return out
}

// selfRSS reads this process's resident set from /proc
func selfRSS() (uint64, error) {
	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "VmRSS:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				var kb uint64
				if _, err := fmt.Sscanf(fields[1], "%d", &kb); err != nil {
					return 0, err
				}
				return kb * 1024, nil
			}
		}
	}
	return 0, fmt.Errorf("no VmRSS in /proc/self/status")
}

// processCPUTime reads cumulative user+system CPU time from /proc
func processCPUTime() (time.Duration, error) {
	data, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return 0, err
	}
	// Fields after the parenthesized comm; utime and stime are fields 14 and
	// 15 (1-based) in clock ticks.
	content := string(data)
	idx := strings.LastIndexByte(content, ')')
	if idx < 0 {
		return 0, fmt.Errorf("malformed /proc/self/stat")
	}
	fields := strings.Fields(content[idx+1:])
	if len(fields) < 13 {
		return 0, fmt.Errorf("malformed /proc/self/stat")
	}
	var utime, stime uint64
	if _, err := fmt.Sscanf(fields[11], "%d", &utime); err != nil {
		return 0, err
	}
	if _, err := fmt.Sscanf(fields[12], "%d", &stime); err != nil {
		return 0, err
	}
	const clockTick = 100 // USER_HZ
	return time.Duration(utime+stime) * time.Second / clockTick, nil
}
