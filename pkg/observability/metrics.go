package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// metricsClient is an in-memory MetricsClient. It keeps counters, gauges, and
// histogram summaries keyed by name+labels so the statistics endpoint and tests
// can read them back.
type metricsClient struct {
	enabled   bool
	namespace string

	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string]*histogramSummary
}

type histogramSummary struct {
	Count uint64
	Sum   float64
	Min   float64
	Max   float64
}

// MetricsOptions contains configuration options for creating a metrics client
type MetricsOptions struct {
	Enabled   bool
	Namespace string
}

// NewMetricsClient creates a new metrics client with default options
func NewMetricsClient() MetricsClient {
	return NewMetricsClientWithOptions(MetricsOptions{Enabled: true})
}

// NewMetricsClientWithOptions creates a new metrics client with specific options
func NewMetricsClientWithOptions(options MetricsOptions) MetricsClient {
	return &metricsClient{
		enabled:    options.Enabled,
		namespace:  options.Namespace,
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string]*histogramSummary),
	}
}

// RecordCounter adds value to the named counter
func (m *metricsClient) RecordCounter(name string, value float64, labels map[string]string) {
	if !m.enabled {
		return
	}
	key := m.key(name, labels)
	m.mu.Lock()
	m.counters[key] += value
	m.mu.Unlock()
}

// RecordGauge sets the named gauge
func (m *metricsClient) RecordGauge(name string, value float64, labels map[string]string) {
	if !m.enabled {
		return
	}
	key := m.key(name, labels)
	m.mu.Lock()
	m.gauges[key] = value
	m.mu.Unlock()
}

// RecordHistogram records one observation into the named histogram summary
func (m *metricsClient) RecordHistogram(name string, value float64, labels map[string]string) {
	if !m.enabled {
		return
	}
	key := m.key(name, labels)
	m.mu.Lock()
	h, ok := m.histograms[key]
	if !ok {
		h = &histogramSummary{Min: value, Max: value}
		m.histograms[key] = h
	}
	h.Count++
	h.Sum += value
	if value < h.Min {
		h.Min = value
	}
	if value > h.Max {
		h.Max = value
	}
	m.mu.Unlock()
}

// RecordOperation records one component operation with outcome and latency
func (m *metricsClient) RecordOperation(component, operation string, success bool, durationSeconds float64, labels map[string]string) {
	if !m.enabled {
		return
	}
	merged := map[string]string{
		"component": component,
		"operation": operation,
	}
	if success {
		merged["status"] = "success"
	} else {
		merged["status"] = "failure"
	}
	for k, v := range labels {
		merged[k] = v
	}
	m.RecordCounter("operations_total", 1, merged)
	m.RecordHistogram("operation_duration_seconds", durationSeconds, merged)
}

// StartTimer returns a stop function recording elapsed seconds as a histogram
func (m *metricsClient) StartTimer(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		m.RecordHistogram(name, time.Since(start).Seconds(), labels)
	}
}

// IncrementCounter increments the named counter without labels
func (m *metricsClient) IncrementCounter(name string, value float64) {
	m.RecordCounter(name, value, nil)
}

// Close releases the client
func (m *metricsClient) Close() error {
	return nil
}

// CounterValue reads back a counter; used by tests and the statistics surface
func CounterValue(c MetricsClient, name string, labels map[string]string) float64 {
	mc, ok := c.(*metricsClient)
	if !ok {
		return 0
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.counters[mc.key(name, labels)]
}

func (m *metricsClient) key(name string, labels map[string]string) string {
	var sb strings.Builder
	if m.namespace != "" {
		sb.WriteString(m.namespace)
		sb.WriteString("_")
	}
	sb.WriteString(name)
	if len(labels) > 0 {
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString("|")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(labels[k])
		}
	}
	return sb.String()
}
