package adapters

import (
	"fmt"
	"strings"
)

// SecurityLevel indicates how much the runtime trusts an adapter's code
type SecurityLevel string

// Security levels
const (
	// SecurityTrusted code was authored by the host and runs in-process
	SecurityTrusted SecurityLevel = "trusted"
	// SecuritySandboxed code is untrusted (typically model-generated) and every
	// process call routes through the sandboxed execution engine
	SecuritySandboxed SecurityLevel = "sandboxed"
)

// ResourceRequirements declares what an adapter needs to run well
type ResourceRequirements struct {
	MinMemoryMB         int     `json:"min_memory_mb,omitempty"`
	RecommendedMemoryMB int     `json:"recommended_memory_mb,omitempty"`
	CPUCores            float64 `json:"cpu_cores,omitempty"`
	DiskMB              int     `json:"disk_mb,omitempty"`
}

// Metadata is an adapter's static declaration, produced once at registration
// time from the implementation and immutable thereafter.
type Metadata struct {
	Name          string               `json:"name"`
	Version       string               `json:"version"`
	Kind          Kind                 `json:"kind"`
	Capabilities  []Capability         `json:"capabilities,omitempty"`
	Dependencies  []string             `json:"dependencies,omitempty"`
	SecurityLevel SecurityLevel        `json:"security_level"`
	Resources     ResourceRequirements `json:"resources,omitempty"`
}

// Validate checks the metadata for structural problems before registration
func (m *Metadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("metadata: name is required")
	}
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("metadata: version is required")
	}
	switch m.Kind {
	case KindSoft, KindHard, KindIntelligent:
	default:
		return fmt.Errorf("metadata: unknown adapter kind %q", m.Kind)
	}
	switch m.SecurityLevel {
	case SecurityTrusted, SecuritySandboxed, "":
	default:
		return fmt.Errorf("metadata: unknown security level %q", m.SecurityLevel)
	}
	for _, cap := range m.Capabilities {
		if err := cap.Validate(); err != nil {
			return fmt.Errorf("metadata: capability %q: %w", cap.Name, err)
		}
	}
	return nil
}

// Sandboxed reports whether process calls must route through the sandbox
func (m *Metadata) Sandboxed() bool {
	if m.SecurityLevel == SecuritySandboxed {
		return true
	}
	for _, cap := range m.Capabilities {
		if cap.GeneratesCode {
			return true
		}
	}
	return false
}
