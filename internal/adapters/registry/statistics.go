package registry

import (
	"sort"
	"time"

	"github.com/assistmesh/adapter-runtime/internal/adapters"
)

// Summary is the caller-facing view of one registration
type Summary struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Version      string        `json:"version"`
	Kind         adapters.Kind `json:"kind"`
	Status       Status        `json:"status"`
	Dependencies []string      `json:"dependencies,omitempty"`
	RegisteredAt time.Time     `json:"registered_at"`
	LastError    string        `json:"last_error,omitempty"`
}

// ListFilter narrows List output; zero values match everything
type ListFilter struct {
	Kind   adapters.Kind
	Status Status
}

// List returns summaries of registrations matching the filter, sorted by id
func (r *Registry) List(filter ListFilter) ([]Summary, error) {
	r.mu.RLock()
	if r.state != stateRunning {
		r.mu.RUnlock()
		return nil, adapters.ErrRegistryNotRunning
	}
	regs := make([]*Registration, 0, len(r.registrations))
	for _, reg := range r.registrations {
		regs = append(regs, reg)
	}
	r.mu.RUnlock()

	out := make([]Summary, 0, len(regs))
	for _, reg := range regs {
		status := reg.Status()
		if filter.Kind != "" && reg.Metadata.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && status != filter.Status {
			continue
		}
		out = append(out, Summary{
			ID:           reg.ID,
			Name:         reg.Metadata.Name,
			Version:      reg.Metadata.Version,
			Kind:         reg.Metadata.Kind,
			Status:       status,
			Dependencies: append([]string(nil), reg.Metadata.Dependencies...),
			RegisteredAt: reg.RegisteredAt,
			LastError:    reg.LastError(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AdapterStats aggregates one adapter's execution history
type AdapterStats struct {
	ID             string        `json:"id"`
	Status         Status        `json:"status"`
	Executions     int64         `json:"executions"`
	Errors         int64         `json:"errors"`
	AverageLatency time.Duration `json:"average_latency"`
}

// Stats is the registry-wide statistics snapshot
type Stats struct {
	Total       int            `json:"total"`
	ByStatus    map[Status]int `json:"by_status"`
	Uptime      time.Duration  `json:"uptime"`
	Executions  int64          `json:"executions"`
	Errors      int64          `json:"errors"`
	FailedCalls int64          `json:"failed_calls"`
	Adapters    []AdapterStats `json:"adapters,omitempty"`
}

// Statistics returns a point-in-time snapshot of registry activity
func (r *Registry) Statistics() (Stats, error) {
	r.mu.RLock()
	if r.state != stateRunning {
		r.mu.RUnlock()
		return Stats{}, adapters.ErrRegistryNotRunning
	}
	regs := make([]*Registration, 0, len(r.registrations))
	for _, reg := range r.registrations {
		regs = append(regs, reg)
	}
	startedAt := r.startedAt
	failedCalls := r.failedCalls
	r.mu.RUnlock()

	stats := Stats{
		Total:       len(regs),
		ByStatus:    make(map[Status]int),
		FailedCalls: failedCalls,
		Uptime:      time.Since(startedAt),
	}

	for _, reg := range regs {
		reg.mu.Lock()
		status := reg.status
		execs := reg.execCount
		errs := reg.errorCount
		total := reg.totalLatency
		reg.mu.Unlock()

		stats.ByStatus[status]++
		stats.Executions += execs
		stats.Errors += errs

		adapterStats := AdapterStats{
			ID:         reg.ID,
			Status:     status,
			Executions: execs,
			Errors:     errs,
		}
		if execs > 0 {
			adapterStats.AverageLatency = total / time.Duration(execs)
		}
		stats.Adapters = append(stats.Adapters, adapterStats)
	}
	sort.Slice(stats.Adapters, func(i, j int) bool { return stats.Adapters[i].ID < stats.Adapters[j].ID })
	return stats, nil
}
