package adapters

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// EchoAdapter is a trusted soft adapter that returns its input unchanged.
// It exists as the smallest registrable implementation: a smoke-test target
// for hosts and a fixture for the runtime's own tests.
type EchoAdapter struct {
	config      map[string]interface{}
	initialized atomic.Bool
	processed   atomic.Int64
}

// NewEchoAdapter creates an echo adapter
func NewEchoAdapter(config map[string]interface{}) *EchoAdapter {
	return &EchoAdapter{config: config}
}

// LoadMetadata implements Adapter
func (a *EchoAdapter) LoadMetadata() (*Metadata, error) {
	return &Metadata{
		Name:          "echo",
		Version:       "1.0.0",
		Kind:          KindSoft,
		SecurityLevel: SecurityTrusted,
		Capabilities: []Capability{
			{Name: "echo", Description: "returns the input unchanged"},
		},
	}, nil
}

// Initialize implements Adapter
func (a *EchoAdapter) Initialize(ctx context.Context, config map[string]interface{}) error {
	a.initialized.Store(true)
	return nil
}

// Process implements Adapter
func (a *EchoAdapter) Process(ctx context.Context, input interface{}, execCtx *ExecutionContext) (interface{}, error) {
	if !a.initialized.Load() {
		return nil, fmt.Errorf("echo adapter not initialized")
	}
	a.processed.Add(1)
	return input, nil
}

// Capabilities implements Adapter
func (a *EchoAdapter) Capabilities() []Capability {
	meta, _ := a.LoadMetadata()
	return meta.Capabilities
}

// HealthCheck implements Adapter
func (a *EchoAdapter) HealthCheck(ctx context.Context) *HealthResult {
	return &HealthResult{
		IsHealthy: a.initialized.Load(),
		Status:    "ok",
		Metrics:   map[string]float64{"processed": float64(a.processed.Load())},
		Timestamp: time.Now(),
	}
}

// Cleanup implements Adapter
func (a *EchoAdapter) Cleanup(ctx context.Context) error {
	a.initialized.Store(false)
	return nil
}

// ScriptAdapter is an intelligent, sandboxed adapter: its process output is
// candidate source text that the registry runs through the sandboxed
// execution engine. This implementation passes through source supplied in the
// input, standing in for an external code generator.
type ScriptAdapter struct {
	config map[string]interface{}
}

// NewScriptAdapter creates a script adapter
func NewScriptAdapter(config map[string]interface{}) *ScriptAdapter {
	return &ScriptAdapter{config: config}
}

// LoadMetadata implements Adapter
func (a *ScriptAdapter) LoadMetadata() (*Metadata, error) {
	return &Metadata{
		Name:          "codegen",
		Version:       "1.0.0",
		Kind:          KindIntelligent,
		SecurityLevel: SecuritySandboxed,
		Capabilities: []Capability{
			{
				Name:          "run-script",
				Description:   "executes generated source in the sandbox",
				GeneratesCode: true,
			},
		},
		Resources: ResourceRequirements{MinMemoryMB: 64, RecommendedMemoryMB: 256},
	}, nil
}

// Initialize implements Adapter
func (a *ScriptAdapter) Initialize(ctx context.Context, config map[string]interface{}) error {
	return nil
}

// Process implements Adapter. The returned value is the source to run, with
// optional input bindings.
func (a *ScriptAdapter) Process(ctx context.Context, input interface{}, execCtx *ExecutionContext) (interface{}, error) {
	switch v := input.(type) {
	case string:
		return v, nil
	case map[string]interface{}:
		if _, ok := v["code"].(string); !ok {
			return nil, fmt.Errorf("script input requires a %q field", "code")
		}
		return v, nil
	default:
		return nil, fmt.Errorf("script input must be source text or a map, got %T", input)
	}
}

// Capabilities implements Adapter
func (a *ScriptAdapter) Capabilities() []Capability {
	meta, _ := a.LoadMetadata()
	return meta.Capabilities
}

// HealthCheck implements Adapter
func (a *ScriptAdapter) HealthCheck(ctx context.Context) *HealthResult {
	return &HealthResult{IsHealthy: true, Status: "ok", Timestamp: time.Now()}
}

// Cleanup implements Adapter
func (a *ScriptAdapter) Cleanup(ctx context.Context) error {
	return nil
}

var (
	_ Adapter = (*EchoAdapter)(nil)
	_ Adapter = (*ScriptAdapter)(nil)
)
