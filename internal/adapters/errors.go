package adapters

import (
	"errors"
	"fmt"
)

// Typed failures reported by the registry. Callers branch on these with
// errors.Is rather than catching anything.
var (
	// ErrNotFound indicates an unknown adapter id
	ErrNotFound = errors.New("adapter not found")

	// ErrAlreadyExists indicates a duplicate registration for a live id
	ErrAlreadyExists = errors.New("adapter already registered")

	// ErrNotReady indicates an operation attempted outside a valid state
	ErrNotReady = errors.New("adapter not ready")

	// ErrInvalidInput indicates an execute input rejected by the capability's
	// declared schema
	ErrInvalidInput = errors.New("invalid input")

	// ErrRegistryNotRunning indicates the registry has not been started or has
	// been stopped
	ErrRegistryNotRunning = errors.New("registry not running")

	// ErrTimeout indicates a blocking adapter call exceeded its bound
	ErrTimeout = errors.New("operation timed out")

	// ErrTooManyOperations indicates the concurrent-operation bulkhead is full
	ErrTooManyOperations = errors.New("too many concurrent operations")
)

// DependencyError reports a cycle, a missing dependency, or a removal blocked
// by live dependents. The rejected mutation leaves the graph untouched.
type DependencyError struct {
	AdapterID string
	Reason    string
}

// Error implements the error interface
func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency error for adapter %q: %s", e.AdapterID, e.Reason)
}

// NewDependencyError creates a DependencyError
func NewDependencyError(adapterID, reason string) *DependencyError {
	return &DependencyError{AdapterID: adapterID, Reason: reason}
}

// SandboxViolation reports a blocked module or resource ceiling hit during a
// sandboxed execution. Terminal for that single request, never fatal to the
// registry process.
type SandboxViolation struct {
	AdapterID string
	Reason    string
}

// Error implements the error interface
func (e *SandboxViolation) Error() string {
	return fmt.Sprintf("sandbox violation for adapter %q: %s", e.AdapterID, e.Reason)
}

// AdapterInternalError wraps a failure raised by the adapter implementation
// itself. Always caught at the registry boundary and converted into a
// structured result.
type AdapterInternalError struct {
	AdapterID string
	Operation string
	Err       error
}

// Error implements the error interface
func (e *AdapterInternalError) Error() string {
	return fmt.Sprintf("adapter %q failed during %s: %v", e.AdapterID, e.Operation, e.Err)
}

// Unwrap supports errors.Is/As on the wrapped cause
func (e *AdapterInternalError) Unwrap() error {
	return e.Err
}
