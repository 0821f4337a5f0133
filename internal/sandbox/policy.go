// Package sandbox runs code the host did not author, typically model-generated,
// behind two independent layers: a static screen over the source and an
// isolated worker process where only allow-listed modules resolve. Static
// analysis alone is bypassable through dynamic imports, so both layers are
// load-bearing.
package sandbox

import (
	"sort"
	"strings"
	"time"
)

// Policy is the allow/deny module policy plus resource bounds for one run
type Policy struct {
	// AllowedModules is the import allow-list. When non-empty, any import
	// outside it is rejected.
	AllowedModules []string

	// BlockedModules is the import deny-list, rejected regardless of the
	// allow-list.
	BlockedModules []string

	// Timeout is the mandatory wall-clock bound for the run
	Timeout time.Duration

	// MemoryCeilingMB bounds the worker's address space
	MemoryCeilingMB int
}

// DefaultBlockedModules are modules that reach process control, the raw
// filesystem, or the network.
var DefaultBlockedModules = []string{
	"os",
	"sys",
	"subprocess",
	"socket",
	"shutil",
	"ctypes",
	"multiprocessing",
	"threading",
	"importlib",
	"signal",
	"pty",
	"fcntl",
}

// DefaultAllowedModules cover pure computation
var DefaultAllowedModules = []string{
	"math",
	"json",
	"random",
	"statistics",
	"itertools",
	"functools",
	"collections",
	"datetime",
	"re",
	"string",
	"decimal",
	"fractions",
}

// blockedCallables are process-spawning or code-loading primitives rejected
// even when reached through an alias.
var blockedCallables = []string{
	"system",
	"popen",
	"spawn",
	"spawnl",
	"spawnv",
	"fork",
	"execv",
	"execve",
	"execl",
	"kill",
	"__import__",
	"eval",
	"exec",
	"compile",
	"open",
}

// DefaultPolicy returns a policy with the default lists and bounds
func DefaultPolicy() Policy {
	return Policy{
		AllowedModules:  append([]string(nil), DefaultAllowedModules...),
		BlockedModules:  append([]string(nil), DefaultBlockedModules...),
		Timeout:         30 * time.Second,
		MemoryCeilingMB: 256,
	}
}

// Allows reports whether the policy permits importing the named module
func (p Policy) Allows(module string) bool {
	root := moduleRoot(module)
	for _, m := range p.BlockedModules {
		if root == m {
			return false
		}
	}
	if len(p.AllowedModules) == 0 {
		return true
	}
	for _, m := range p.AllowedModules {
		if root == m {
			return true
		}
	}
	return false
}

// fingerprint folds the policy lists into a stable string for cache keys
func (p Policy) fingerprint() string {
	allowed := append([]string(nil), p.AllowedModules...)
	blocked := append([]string(nil), p.BlockedModules...)
	sort.Strings(allowed)
	sort.Strings(blocked)
	return "a:" + strings.Join(allowed, ",") + "|b:" + strings.Join(blocked, ",")
}

// moduleRoot returns the top-level package of a dotted module path
func moduleRoot(module string) string {
	if i := strings.IndexByte(module, '.'); i >= 0 {
		return module[:i]
	}
	return module
}
