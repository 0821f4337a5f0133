// Package adapters defines the contract between the runtime and pluggable
// capability modules. An adapter is constructed by the registry, reports its
// metadata once, and then serves process/health_check calls until cleanup.
package adapters

import (
	"context"
	"time"
)

// Kind classifies an adapter implementation
type Kind string

// Adapter kinds
const (
	KindSoft        Kind = "soft"
	KindHard        Kind = "hard"
	KindIntelligent Kind = "intelligent"
)

// ExecutionContext carries per-invocation request metadata. It is created by
// the caller, read-only to the adapter, and never persisted.
type ExecutionContext struct {
	RequestID string                 `json:"request_id"`
	UserID    string                 `json:"user_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Debug     bool                   `json:"debug,omitempty"`
	StartTime time.Time              `json:"start_time"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`

	// TimeoutOverride bounds this call instead of the registry default; it is
	// clamped to the registry's configured maximum.
	TimeoutOverride time.Duration `json:"timeout_override,omitempty"`
}

// ExecutionStatus is the outcome of one execute call
type ExecutionStatus string

// Execution outcomes
const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionError   ExecutionStatus = "error"
)

// ExecutionResult is produced once per execute call and never mutated
type ExecutionResult struct {
	Status    ExecutionStatus `json:"status"`
	Output    interface{}     `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	AdapterID string          `json:"adapter_id"`
	Duration  time.Duration   `json:"duration"`
}

// HealthResult is the outcome of one health check. Results are immutable once
// produced; the health monitor appends them to a bounded per-adapter history.
type HealthResult struct {
	IsHealthy       bool                   `json:"is_healthy"`
	Status          string                 `json:"status"`
	Checks          map[string]bool        `json:"checks,omitempty"`
	Metrics         map[string]float64     `json:"metrics,omitempty"`
	Issues          []string               `json:"issues,omitempty"`
	Recommendations []string               `json:"recommendations,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
	Details         map[string]interface{} `json:"details,omitempty"`
}

// Adapter is the contract an implementation must provide to be registrable.
// All methods may block on external systems; the registry bounds every call
// with a timeout.
type Adapter interface {
	// LoadMetadata returns the adapter's static declaration. Called once at
	// registration time; the returned value is owned by the registration
	// record and treated as immutable.
	LoadMetadata() (*Metadata, error)

	// Initialize prepares the adapter with its registration config
	Initialize(ctx context.Context, config map[string]interface{}) error

	// Process handles one execution request
	Process(ctx context.Context, input interface{}, execCtx *ExecutionContext) (interface{}, error)

	// Capabilities returns the adapter's declared capability descriptors
	Capabilities() []Capability

	// HealthCheck reports the adapter's current health
	HealthCheck(ctx context.Context) *HealthResult

	// Cleanup releases adapter resources. Best effort: failures are logged by
	// the registry, never fatal.
	Cleanup(ctx context.Context) error
}

// Factory constructs an adapter instance from its registration config
type Factory func(config map[string]interface{}) (Adapter, error)

// NewExecutionContext creates an ExecutionContext with the start time set
func NewExecutionContext(requestID string) *ExecutionContext {
	return &ExecutionContext{
		RequestID: requestID,
		StartTime: time.Now(),
	}
}
