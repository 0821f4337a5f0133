package monitoring

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/assistmesh/adapter-runtime/internal/adapters"
	"github.com/assistmesh/adapter-runtime/internal/adapters/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRegistry is a scriptable RegistrySource
type fakeRegistry struct {
	mu        sync.Mutex
	summaries []registry.Summary
	listErr   error
	healthy   map[string]bool
	marks     []string
	checks    int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{healthy: make(map[string]bool)}
}

func (f *fakeRegistry) add(id string, status registry.Status, healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, registry.Summary{ID: id, Status: status})
	f.healthy[id] = healthy
}

func (f *fakeRegistry) List(filter registry.ListFilter) ([]registry.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]registry.Summary(nil), f.summaries...), nil
}

func (f *fakeRegistry) HealthCheck(ctx context.Context, id string) (*adapters.HealthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	healthy, ok := f.healthy[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", adapters.ErrNotFound, id)
	}
	return &adapters.HealthResult{IsHealthy: healthy, Status: "polled", Timestamp: time.Now()}, nil
}

func (f *fakeRegistry) MarkHealth(ctx context.Context, id string, healthy bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, fmt.Sprintf("%s=%t", id, healthy))
	return true
}

func (f *fakeRegistry) markCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.marks...)
}

func TestHealthMonitorCheckAll(t *testing.T) {
	source := newFakeRegistry()
	source.add("healthy-one", registry.StatusRunning, true)
	source.add("failing-one", registry.StatusRunning, false)
	source.add("terminal-one", registry.StatusFailed, true)

	m := NewHealthMonitor(HealthConfig{}, source, nil, nil)
	m.CheckAll(context.Background())

	marks := source.markCalls()
	assert.Contains(t, marks, "healthy-one=true")
	assert.Contains(t, marks, "failing-one=false")
	assert.Len(t, marks, 2, "terminal adapters are not polled")

	require.Len(t, m.History("healthy-one"), 1)
	require.Len(t, m.History("failing-one"), 1)
	assert.Empty(t, m.History("terminal-one"))
}

func TestHealthMonitorSkipsStoppedRegistry(t *testing.T) {
	source := newFakeRegistry()
	source.add("a", registry.StatusRunning, true)
	source.mu.Lock()
	source.listErr = adapters.ErrRegistryNotRunning
	source.mu.Unlock()

	m := NewHealthMonitor(HealthConfig{}, source, nil, nil)
	m.CheckAll(context.Background())

	assert.Empty(t, source.markCalls(), "a pass against a stopped registry polls nothing")
	assert.Empty(t, m.History("a"))
}

func TestHealthMonitorSkipsVanishedAdapter(t *testing.T) {
	source := newFakeRegistry()
	source.mu.Lock()
	// Listed but already unregistered by the time the check runs
	source.summaries = append(source.summaries, registry.Summary{ID: "ghost", Status: registry.StatusRunning})
	source.mu.Unlock()

	m := NewHealthMonitor(HealthConfig{}, source, nil, nil)
	m.CheckAll(context.Background())

	assert.Empty(t, source.markCalls())
	assert.Empty(t, m.History("ghost"))
}

func TestHealthMonitorHistoryRing(t *testing.T) {
	source := newFakeRegistry()
	source.add("a", registry.StatusRunning, true)

	m := NewHealthMonitor(HealthConfig{HistorySize: 3}, source, nil, nil)
	for i := 0; i < 5; i++ {
		m.CheckAll(context.Background())
	}

	history := m.History("a")
	require.Len(t, history, 3, "history is bounded at the configured size")
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].Timestamp.Before(history[i-1].Timestamp), "history is oldest first")
	}

	m.Forget("a")
	assert.Empty(t, m.History("a"))
}

func TestHealthMonitorStartStop(t *testing.T) {
	source := newFakeRegistry()
	source.add("a", registry.StatusRunning, true)

	m := NewHealthMonitor(HealthConfig{Interval: 10 * time.Millisecond}, source, nil, nil)
	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()), "second start must fail")

	assert.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return source.checks > 0
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop() // idempotent

	// A fresh start after stop is allowed
	require.NoError(t, m.Start(context.Background()))
	m.Stop()
}

func TestHistoryRingWrap(t *testing.T) {
	ring := newHistoryRing(2)
	first := &adapters.HealthResult{Status: "first"}
	second := &adapters.HealthResult{Status: "second"}
	third := &adapters.HealthResult{Status: "third"}

	ring.append(first)
	assert.Equal(t, []*adapters.HealthResult{first}, ring.snapshot())

	ring.append(second)
	ring.append(third)
	assert.Equal(t, []*adapters.HealthResult{second, third}, ring.snapshot())
}
