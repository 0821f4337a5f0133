package registry

// Status is an adapter registration's lifecycle state
type Status string

// Registration lifecycle states
const (
	// StatusPending covers construction and initialize
	StatusPending Status = "pending"
	// StatusRegistered means initialize succeeded and execute is accepted
	StatusRegistered Status = "registered"
	// StatusRunning means the adapter has served at least one execution
	StatusRunning Status = "running"
	// StatusDegraded means health checks are failing but requests are still
	// served; callers should prefer alternates
	StatusDegraded Status = "degraded"
	// StatusStopping means cleanup is in progress
	StatusStopping Status = "stopping"
	// StatusUnregistered is terminal
	StatusUnregistered Status = "unregistered"
	// StatusFailed is the terminal error state reached from Pending
	StatusFailed Status = "failed"
)

// transitions is the closed set of legal state changes
var transitions = map[Status][]Status{
	StatusPending:    {StatusRegistered, StatusFailed},
	StatusRegistered: {StatusRunning, StatusStopping},
	StatusRunning:    {StatusDegraded, StatusStopping},
	StatusDegraded:   {StatusRunning, StatusStopping},
	StatusStopping:   {StatusUnregistered},
}

// CanTransition reports whether moving to the target state is legal
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state accepts no further transitions
func (s Status) Terminal() bool {
	return s == StatusUnregistered || s == StatusFailed
}

// Executable reports whether the state accepts execute calls
func (s Status) Executable() bool {
	return s == StatusRegistered || s == StatusRunning || s == StatusDegraded
}

// Checkable reports whether the health monitor should poll the adapter
func (s Status) Checkable() bool {
	return s.Executable()
}
