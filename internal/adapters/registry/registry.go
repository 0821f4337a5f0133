// Package registry is the single source of truth for which adapters exist,
// their lifecycle state, and the safe entry points to invoke them. It consults
// the dependency graph before committing a registration and routes execution
// for untrusted adapters through the sandboxed execution engine.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/assistmesh/adapter-runtime/internal/adapters"
	"github.com/assistmesh/adapter-runtime/internal/adapters/events"
	"github.com/assistmesh/adapter-runtime/internal/adapters/graph"
	"github.com/assistmesh/adapter-runtime/internal/sandbox"
	"github.com/assistmesh/adapter-runtime/pkg/observability"
)

// CodeRunner executes generated code under the sandbox policy. Satisfied by
// *sandbox.Executor.
type CodeRunner interface {
	ExecuteCode(ctx context.Context, req *sandbox.Request) (*sandbox.Result, error)
}

// Config holds the registry's tunables
type Config struct {
	// DefaultExecutionTimeout bounds each execute call unless the caller
	// supplies an override
	DefaultExecutionTimeout time.Duration

	// MaxExecutionTimeout clamps caller-supplied overrides
	MaxExecutionTimeout time.Duration

	// InitializeTimeout bounds one adapter Initialize attempt
	InitializeTimeout time.Duration

	// InitializeRetries is how many times Initialize is retried with backoff
	InitializeRetries uint64

	// CleanupTimeout bounds adapter Cleanup
	CleanupTimeout time.Duration

	// HealthCheckTimeout bounds adapter HealthCheck
	HealthCheckTimeout time.Duration

	// MaxConcurrentOperations caps in-flight execute calls; exceeding it is
	// rejected rather than queued
	MaxConcurrentOperations int

	// ExecuteRatePerSecond throttles execute calls, zero disables
	ExecuteRatePerSecond float64
	ExecuteBurst         int

	// SandboxPolicy is applied to every sandboxed adapter execution
	SandboxPolicy sandbox.Policy
}

// DefaultConfig returns the registry defaults
func DefaultConfig() Config {
	return Config{
		DefaultExecutionTimeout: 30 * time.Second,
		MaxExecutionTimeout:     5 * time.Minute,
		InitializeTimeout:       20 * time.Second,
		InitializeRetries:       2,
		CleanupTimeout:          10 * time.Second,
		HealthCheckTimeout:      5 * time.Second,
		MaxConcurrentOperations: 32,
		SandboxPolicy:           sandbox.DefaultPolicy(),
	}
}

// Registration binds an adapter id to its instance and state. One per id;
// created on Register, mutated only by lifecycle transitions, removed on
// Unregister.
type Registration struct {
	ID           string
	Metadata     *adapters.Metadata
	Instance     adapters.Adapter
	Config       map[string]interface{}
	RegisteredAt time.Time

	mu            sync.Mutex
	status        Status
	statusChanged time.Time
	lastError     string

	execCount    int64
	errorCount   int64
	totalLatency time.Duration
}

// Status returns the registration's current lifecycle state
func (reg *Registration) Status() Status {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.status
}

// LastError returns the most recent failure message, if any
func (reg *Registration) LastError() string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.lastError
}

func (reg *Registration) setStatus(to Status, cause error) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.status == to {
		return false
	}
	if !reg.status.CanTransition(to) {
		return false
	}
	reg.status = to
	reg.statusChanged = time.Now()
	if cause != nil {
		reg.lastError = cause.Error()
	}
	return true
}

func (reg *Registration) recordExecution(d time.Duration, success bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.execCount++
	reg.totalLatency += d
	if !success {
		reg.errorCount++
	}
}

// registry-wide lifecycle
type registryState int

const (
	stateInitializing registryState = iota
	stateRunning
	stateStopped
)

// Registry owns all adapter registrations and the dependency graph
type Registry struct {
	cfg  Config
	bus  *events.Bus
	code CodeRunner

	mu            sync.RWMutex
	state         registryState
	registrations map[string]*Registration
	startedAt     time.Time

	graph *graph.Graph

	lockMu  sync.Mutex
	idLocks map[string]*sync.Mutex

	breakerMu sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker

	limiter *rate.Limiter
	sem     chan struct{}

	failedCalls int64

	logger  observability.Logger
	metrics observability.MetricsClient
}

// New creates a registry. Call Start before using it.
func New(cfg Config, bus *events.Bus, code CodeRunner, logger observability.Logger, metrics observability.MetricsClient) *Registry {
	def := DefaultConfig()
	if cfg.DefaultExecutionTimeout <= 0 {
		cfg.DefaultExecutionTimeout = def.DefaultExecutionTimeout
	}
	if cfg.MaxExecutionTimeout <= 0 {
		cfg.MaxExecutionTimeout = def.MaxExecutionTimeout
	}
	if cfg.InitializeTimeout <= 0 {
		cfg.InitializeTimeout = def.InitializeTimeout
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = def.CleanupTimeout
	}
	if cfg.HealthCheckTimeout <= 0 {
		cfg.HealthCheckTimeout = def.HealthCheckTimeout
	}
	if cfg.MaxConcurrentOperations <= 0 {
		cfg.MaxConcurrentOperations = def.MaxConcurrentOperations
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}

	r := &Registry{
		cfg:           cfg,
		bus:           bus,
		code:          code,
		state:         stateInitializing,
		registrations: make(map[string]*Registration),
		graph:         graph.New(),
		idLocks:       make(map[string]*sync.Mutex),
		breakers:      make(map[string]*gobreaker.CircuitBreaker),
		sem:           make(chan struct{}, cfg.MaxConcurrentOperations),
		logger:        logger.WithPrefix("registry"),
		metrics:       metrics,
	}
	if cfg.ExecuteRatePerSecond > 0 {
		burst := cfg.ExecuteBurst
		if burst <= 0 {
			burst = int(cfg.ExecuteRatePerSecond) + 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.ExecuteRatePerSecond), burst)
	}
	return r
}

// Bus returns the registry's event bus
func (r *Registry) Bus() *events.Bus {
	return r.bus
}

// Start transitions the registry to running. It may be called once; any other
// operation before Start or after Stop fails with ErrRegistryNotRunning.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case stateRunning:
		r.mu.Unlock()
		return fmt.Errorf("registry already started")
	case stateStopped:
		r.mu.Unlock()
		return fmt.Errorf("registry already stopped")
	}
	r.state = stateRunning
	r.startedAt = time.Now()
	r.mu.Unlock()

	r.logger.Info("Registry started", nil)
	r.bus.Publish(ctx, events.New(events.TypeRegistryStarted, "", nil))
	return nil
}

// Stop unloads every adapter in reverse topological order and halts the
// registry. Idempotent.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state != stateRunning {
		r.mu.Unlock()
		return nil
	}
	r.state = stateStopped
	r.mu.Unlock()

	for _, id := range r.graph.UnloadOrder() {
		if err := r.remove(ctx, id, true); err != nil && !errors.Is(err, adapters.ErrNotFound) {
			r.logger.Warn("Failed to unload adapter during stop", map[string]interface{}{
				"adapterId": id,
				"error":     err.Error(),
			})
		}
	}

	r.logger.Info("Registry stopped", nil)
	r.bus.Publish(ctx, events.New(events.TypeRegistryStopped, "", nil))
	return nil
}

func (r *Registry) running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state == stateRunning
}

// lockFor returns the per-id mutex serializing register/unregister for one id
func (r *Registry) lockFor(id string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	l, ok := r.idLocks[id]
	if !ok {
		l = &sync.Mutex{}
		r.idLocks[id] = l
	}
	return l
}

// Register constructs, validates, and initializes an adapter under the given
// id. The dependency-graph insertion and the registration insert commit as one
// unit: a rejected registration leaves both untouched.
func (r *Registry) Register(ctx context.Context, id string, factory adapters.Factory, config map[string]interface{}) (*Registration, error) {
	if !r.running() {
		return nil, adapters.ErrRegistryNotRunning
	}
	if id == "" {
		return nil, fmt.Errorf("adapter id is required")
	}

	idLock := r.lockFor(id)
	idLock.Lock()
	defer idLock.Unlock()

	r.mu.RLock()
	_, exists := r.registrations[id]
	r.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %q", adapters.ErrAlreadyExists, id)
	}

	instance, err := factory(config)
	if err != nil {
		return nil, &adapters.AdapterInternalError{AdapterID: id, Operation: "construct", Err: err}
	}
	meta, err := instance.LoadMetadata()
	if err != nil {
		return nil, &adapters.AdapterInternalError{AdapterID: id, Operation: "load_metadata", Err: err}
	}
	if meta == nil {
		return nil, &adapters.AdapterInternalError{AdapterID: id, Operation: "load_metadata", Err: fmt.Errorf("nil metadata")}
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("registering %q: %w", id, err)
	}

	reg := &Registration{
		ID:            id,
		Metadata:      meta,
		Instance:      instance,
		Config:        config,
		RegisteredAt:  time.Now(),
		status:        StatusPending,
		statusChanged: time.Now(),
	}

	// Graph mutation and map insert under one critical section: no reader
	// ever observes a partially inserted edge.
	r.mu.Lock()
	if _, exists := r.registrations[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", adapters.ErrAlreadyExists, id)
	}
	// Edges may only bind to ids that finished registering. A Pending or
	// Failed dependency is rejected here, which also guarantees the graph
	// rollback below can never be blocked by dependents.
	for _, dep := range meta.Dependencies {
		depReg, ok := r.registrations[dep]
		if !ok {
			r.mu.Unlock()
			return nil, adapters.NewDependencyError(id, fmt.Sprintf("dependency %q is not registered", dep))
		}
		if status := depReg.Status(); !status.Executable() {
			r.mu.Unlock()
			return nil, adapters.NewDependencyError(id, fmt.Sprintf("dependency %q is %s", dep, status))
		}
	}
	if err := r.graph.AddDependencies(id, meta.Dependencies); err != nil {
		r.mu.Unlock()
		return nil, adapters.NewDependencyError(id, err.Error())
	}
	r.registrations[id] = reg
	r.mu.Unlock()

	if err := r.initialize(ctx, reg); err != nil {
		reg.setStatus(StatusFailed, err)
		// Roll the graph back; the id never became dependable, so no edge can
		// point at it. The registration stays until explicitly unregistered.
		if rmErr := r.graph.RemoveNode(id); rmErr != nil {
			r.logger.Warn("Failed to roll back graph node", map[string]interface{}{
				"adapterId": id,
				"error":     rmErr.Error(),
			})
		}
		r.metrics.RecordOperation("registry", "register", false, time.Since(reg.RegisteredAt).Seconds(), nil)
		r.bus.Publish(ctx, events.New(events.TypeAdapterFailed, id, map[string]interface{}{
			"error": err.Error(),
		}))
		return nil, err
	}

	reg.setStatus(StatusRegistered, nil)
	r.metrics.RecordOperation("registry", "register", true, time.Since(reg.RegisteredAt).Seconds(), nil)
	r.logger.Info("Adapter registered", map[string]interface{}{
		"adapterId": id,
		"name":      meta.Name,
		"version":   meta.Version,
		"kind":      string(meta.Kind),
		"sandboxed": meta.Sandboxed(),
	})
	r.bus.Publish(ctx, events.New(events.TypeAdapterRegistered, id, map[string]interface{}{
		"name":    meta.Name,
		"version": meta.Version,
	}))
	return reg, nil
}

// initialize runs adapter Initialize with a per-attempt timeout and bounded
// exponential backoff between attempts.
func (r *Registry) initialize(ctx context.Context, reg *Registration) error {
	op := func() error {
		return r.callBounded(ctx, reg.ID, "initialize", r.cfg.InitializeTimeout, func(callCtx context.Context) error {
			return reg.Instance.Initialize(callCtx, reg.Config)
		})
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.cfg.InitializeRetries),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("initializing adapter %q: %w", reg.ID, err)
	}
	return nil
}

// Unregister removes an adapter. It refuses removal while other live
// registrations still depend on the id.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	if !r.running() {
		return adapters.ErrRegistryNotRunning
	}
	return r.remove(ctx, id, false)
}

func (r *Registry) remove(ctx context.Context, id string, force bool) error {
	idLock := r.lockFor(id)
	idLock.Lock()
	defer idLock.Unlock()

	r.mu.RLock()
	reg, exists := r.registrations[id]
	r.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %q", adapters.ErrNotFound, id)
	}

	if !force {
		if dependents := r.graph.Dependents(id); len(dependents) > 0 {
			return adapters.NewDependencyError(id, fmt.Sprintf("required by %v", dependents))
		}
	}

	reg.setStatus(StatusStopping, nil)

	// Cleanup is best effort: failures are logged, never fatal.
	if err := r.callBounded(ctx, id, "cleanup", r.cfg.CleanupTimeout, func(callCtx context.Context) error {
		return reg.Instance.Cleanup(callCtx)
	}); err != nil {
		r.logger.Warn("Adapter cleanup failed", map[string]interface{}{
			"adapterId": id,
			"error":     err.Error(),
		})
	}

	r.mu.Lock()
	if r.graph.Has(id) {
		if err := r.graph.RemoveNode(id); err != nil {
			if errors.Is(err, graph.ErrHasDependents) && !force {
				// A dependent registered while cleanup ran; keep the record.
				r.mu.Unlock()
				return adapters.NewDependencyError(id, err.Error())
			}
			r.logger.Warn("Failed to remove graph node", map[string]interface{}{
				"adapterId": id,
				"error":     err.Error(),
			})
		}
	}
	delete(r.registrations, id)
	r.mu.Unlock()

	reg.setStatus(StatusUnregistered, nil)
	r.logger.Info("Adapter unregistered", map[string]interface{}{"adapterId": id})
	r.bus.Publish(ctx, events.New(events.TypeAdapterUnregistered, id, nil))
	return nil
}

// Get returns the adapter instance for the id, or nil. Absence is a normal,
// silent outcome; Get never fails.
func (r *Registry) Get(id string) adapters.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.registrations[id]; ok {
		return reg.Instance
	}
	return nil
}

// GetRegistration returns the live registration record for the id, or nil
func (r *Registry) GetRegistration(id string) *Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registrations[id]
}

// Execute dispatches one request to the adapter's process, routing through
// the sandbox when the adapter is untrusted. Failures raised inside the
// adapter are converted into an error-status result; only registry-invariant
// violations (unknown id, bad state, saturation) are returned as errors.
func (r *Registry) Execute(ctx context.Context, id string, input interface{}, execCtx *adapters.ExecutionContext) (*adapters.ExecutionResult, error) {
	if !r.running() {
		return nil, adapters.ErrRegistryNotRunning
	}

	r.mu.RLock()
	reg, exists := r.registrations[id]
	r.mu.RUnlock()
	if !exists {
		r.countFailedCall()
		return nil, fmt.Errorf("%w: %q", adapters.ErrNotFound, id)
	}
	if status := reg.Status(); !status.Executable() {
		r.countFailedCall()
		return nil, fmt.Errorf("%w: adapter %q is %s", adapters.ErrNotReady, id, status)
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			r.countFailedCall()
			return nil, fmt.Errorf("%w: rate limit wait: %v", adapters.ErrTooManyOperations, err)
		}
	}
	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	default:
		r.countFailedCall()
		return nil, fmt.Errorf("%w: %d in flight", adapters.ErrTooManyOperations, r.cfg.MaxConcurrentOperations)
	}

	if execCtx == nil {
		execCtx = adapters.NewExecutionContext(uuid.New().String())
	}
	if execCtx.RequestID == "" {
		execCtx.RequestID = uuid.New().String()
	}

	if err := r.validateInput(reg, input, execCtx); err != nil {
		r.countFailedCall()
		return nil, err
	}

	timeout := r.executionTimeout(execCtx)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	br := r.breakerFor(id)
	output, err := br.Execute(func() (interface{}, error) {
		return r.invoke(callCtx, reg, input, execCtx)
	})
	elapsed := time.Since(started)

	result := &adapters.ExecutionResult{
		AdapterID: id,
		Duration:  elapsed,
	}
	if err != nil {
		result.Status = adapters.ExecutionError
		result.Error = classifyExecutionError(id, err)
	} else {
		result.Status = adapters.ExecutionSuccess
		result.Output = output
	}

	success := result.Status == adapters.ExecutionSuccess
	reg.recordExecution(elapsed, success)
	r.metrics.RecordOperation("registry", "execute", success, elapsed.Seconds(),
		map[string]string{"adapter_id": id})

	if success {
		// First successful execution moves the adapter to Running. Recovery
		// from Degraded is the health monitor's call, not ours.
		if reg.Status() == StatusRegistered {
			reg.setStatus(StatusRunning, nil)
		}
		r.bus.Publish(ctx, events.New(events.TypeExecutionCompleted, id, map[string]interface{}{
			"request_id": execCtx.RequestID,
			"duration":   elapsed.String(),
		}))
	} else {
		r.bus.Publish(ctx, events.New(events.TypeExecutionFailed, id, map[string]interface{}{
			"request_id": execCtx.RequestID,
			"error":      result.Error,
		}))
	}
	return result, nil
}

// invoke runs the adapter's process, or the generate-and-run pipeline for
// sandboxed adapters.
func (r *Registry) invoke(ctx context.Context, reg *Registration, input interface{}, execCtx *adapters.ExecutionContext) (interface{}, error) {
	if !reg.Metadata.Sandboxed() {
		return r.processBounded(ctx, reg, input, execCtx)
	}
	if r.code == nil {
		return nil, &adapters.SandboxViolation{AdapterID: reg.ID, Reason: "no sandbox executor configured"}
	}

	// The adapter's process is the code generator; the generated source runs
	// in the sandbox, never in this process.
	generated, err := r.processBounded(ctx, reg, input, execCtx)
	if err != nil {
		return nil, err
	}
	code, bindings, err := extractGeneratedCode(generated)
	if err != nil {
		return nil, &adapters.AdapterInternalError{AdapterID: reg.ID, Operation: "generate_code", Err: err}
	}

	res, err := r.code.ExecuteCode(ctx, &sandbox.Request{
		RequestID: execCtx.RequestID,
		Code:      code,
		Input:     bindings,
		Policy:    r.cfg.SandboxPolicy,
	})
	if err != nil {
		return nil, &adapters.AdapterInternalError{AdapterID: reg.ID, Operation: "sandbox_execute", Err: err}
	}
	if !res.Success {
		switch res.FailureReason {
		case sandbox.ClassificationBlockedModule:
			return nil, &adapters.SandboxViolation{AdapterID: reg.ID, Reason: "blocked module: " + res.Stderr}
		case sandbox.ClassificationResourceExceeded:
			return nil, &adapters.SandboxViolation{AdapterID: reg.ID, Reason: "memory ceiling exceeded"}
		case sandbox.ClassificationTimeout:
			return nil, fmt.Errorf("%w: sandboxed execution", adapters.ErrTimeout)
		default:
			return nil, &adapters.AdapterInternalError{
				AdapterID: reg.ID,
				Operation: "sandbox_execute",
				Err:       fmt.Errorf("generated code failed: %s", res.Stderr),
			}
		}
	}
	return map[string]interface{}{
		"stdout":         res.Stdout,
		"value":          res.Value,
		"execution_time": res.ExecutionTime.Seconds(),
		"memory_used":    res.MemoryUsed,
	}, nil
}

func (r *Registry) processBounded(ctx context.Context, reg *Registration, input interface{}, execCtx *adapters.ExecutionContext) (interface{}, error) {
	var output interface{}
	err := r.callBounded(ctx, reg.ID, "process", 0, func(callCtx context.Context) error {
		var procErr error
		output, procErr = reg.Instance.Process(callCtx, input, execCtx)
		return procErr
	})
	return output, err
}

// callBounded runs an opaque, potentially slow adapter call with a timeout,
// converting panics into errors and never blocking past the bound. The
// adapter goroutine is left to finish on its own after a timeout; its result
// is discarded.
func (r *Registry) callBounded(ctx context.Context, id, operation string, timeout time.Duration, fn func(context.Context) error) error {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- &adapters.AdapterInternalError{
					AdapterID: id,
					Operation: operation,
					Err:       fmt.Errorf("panic: %v", rec),
				}
			}
		}()
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		var internal *adapters.AdapterInternalError
		if errors.As(err, &internal) {
			return err
		}
		return &adapters.AdapterInternalError{AdapterID: id, Operation: operation, Err: err}
	case <-callCtx.Done():
		return fmt.Errorf("%w: adapter %q %s", adapters.ErrTimeout, id, operation)
	}
}

// HealthCheck calls through to the adapter. It never mutates registry state
// regardless of the result; status flips belong to the health monitor.
func (r *Registry) HealthCheck(ctx context.Context, id string) (*adapters.HealthResult, error) {
	if !r.running() {
		return nil, adapters.ErrRegistryNotRunning
	}
	r.mu.RLock()
	reg, exists := r.registrations[id]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %q", adapters.ErrNotFound, id)
	}

	var result *adapters.HealthResult
	err := r.callBounded(ctx, id, "health_check", r.cfg.HealthCheckTimeout, func(callCtx context.Context) error {
		result = reg.Instance.HealthCheck(callCtx)
		return nil
	})
	if err != nil {
		return &adapters.HealthResult{
			IsHealthy: false,
			Status:    "unreachable",
			Issues:    []string{err.Error()},
			Timestamp: time.Now(),
		}, nil
	}
	if result == nil {
		result = &adapters.HealthResult{
			IsHealthy: false,
			Status:    "no result",
			Timestamp: time.Now(),
		}
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}
	return result, nil
}

// MarkHealth applies the health monitor's verdict to the lifecycle state:
// Running flips to Degraded on failure and back on recovery. Returns whether
// the status changed.
func (r *Registry) MarkHealth(ctx context.Context, id string, healthy bool) bool {
	r.mu.RLock()
	reg, exists := r.registrations[id]
	r.mu.RUnlock()
	if !exists {
		return false
	}

	var changed bool
	if healthy {
		changed = reg.Status() == StatusDegraded && reg.setStatus(StatusRunning, nil)
	} else {
		changed = reg.Status() == StatusRunning && reg.setStatus(StatusDegraded, fmt.Errorf("health check failed"))
	}
	if changed {
		status := reg.Status()
		r.logger.Info("Adapter health status changed", map[string]interface{}{
			"adapterId": id,
			"status":    string(status),
		})
		r.bus.Publish(ctx, events.New(events.TypeHealthChanged, id, map[string]interface{}{
			"status":  string(status),
			"healthy": healthy,
		}))
	}
	return changed
}

// validateInput checks the input against the declared capability schema when
// one applies to the request.
func (r *Registry) validateInput(reg *Registration, input interface{}, execCtx *adapters.ExecutionContext) error {
	capability := capabilityForRequest(reg.Metadata, execCtx)
	if capability == nil {
		return nil
	}
	if err := capability.ValidateInput(input); err != nil {
		return fmt.Errorf("%w: %v", adapters.ErrInvalidInput, err)
	}
	return nil
}

// capabilityForRequest resolves which declared capability governs a request:
// the one named in the execution context, else the adapter's only capability.
func capabilityForRequest(meta *adapters.Metadata, execCtx *adapters.ExecutionContext) *adapters.Capability {
	if execCtx != nil {
		if name, ok := execCtx.Metadata["capability"].(string); ok {
			for i := range meta.Capabilities {
				if meta.Capabilities[i].Name == name {
					return &meta.Capabilities[i]
				}
			}
		}
	}
	if len(meta.Capabilities) == 1 && len(meta.Capabilities[0].InputSchema) > 0 {
		return &meta.Capabilities[0]
	}
	return nil
}

func (r *Registry) executionTimeout(execCtx *adapters.ExecutionContext) time.Duration {
	timeout := r.cfg.DefaultExecutionTimeout
	if execCtx != nil && execCtx.TimeoutOverride > 0 {
		timeout = execCtx.TimeoutOverride
	}
	if timeout > r.cfg.MaxExecutionTimeout {
		timeout = r.cfg.MaxExecutionTimeout
	}
	return timeout
}

func (r *Registry) breakerFor(id string) *gobreaker.CircuitBreaker {
	r.breakerMu.Lock()
	defer r.breakerMu.Unlock()
	br, ok := r.breakers[id]
	if !ok {
		br = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "adapter:" + id,
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.5
			},
		})
		r.breakers[id] = br
	}
	return br
}

func classifyExecutionError(id string, err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Sprintf("adapter %q temporarily unavailable: circuit breaker open", id)
	case errors.Is(err, adapters.ErrTimeout):
		return err.Error()
	default:
		return err.Error()
	}
}

func (r *Registry) countFailedCall() {
	r.mu.Lock()
	r.failedCalls++
	r.mu.Unlock()
}
