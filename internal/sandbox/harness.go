package sandbox

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Markers the harness emits so the runner can classify output without
// trusting the guest code.
const (
	blockedImportMarker = "__SANDBOX_BLOCKED_MODULE__"
	resultMarker        = "__SANDBOX_RESULT__:"
)

// harnessTemplate wraps guest code with the runtime import guard, a curated
// builtins namespace, and the rlimit ceiling. The guard replaces
// builtins.__import__ before any guest statement runs, and the guest scope
// carries a builtins dict with filesystem and code-loading primitives removed,
// so a name that slipped past static analysis still fails to resolve.
// @@-delimited markers are substituted by buildHarness.
const harnessTemplate = `import builtins as _builtins
import json as _json
import os as _os
import resource as _resource
import sys as _sys

_limit = @@CEILING_BYTES@@
try:
    _resource.setrlimit(_resource.RLIMIT_AS, (_limit, _limit))
except (ValueError, OSError):
    pass

_allowed = set(_json.loads(@@ALLOWED_JSON@@))
_blocked = set(_json.loads(@@BLOCKED_JSON@@))
_real_import = _builtins.__import__

def _guarded_import(name, *args, **kwargs):
    _root = name.split(".")[0]
    if _root in _blocked or (_allowed and _root not in _allowed):
        raise ImportError("@@BLOCKED_MARKER@@ module %r is not allowed" % _root)
    return _real_import(name, *args, **kwargs)

_builtins.__import__ = _guarded_import

_stripped = {
    "__import__", "__loader__", "__spec__", "breakpoint", "compile",
    "copyright", "credits", "eval", "exec", "exit", "help", "input",
    "license", "memoryview", "open", "quit", "vars",
}
_safe_builtins = {}
for _name in dir(_builtins):
    if _name not in _stripped:
        _safe_builtins[_name] = getattr(_builtins, _name)
_safe_builtins["__import__"] = _guarded_import

_bindings = _json.loads(_os.environ.get("SANDBOX_INPUT") or "null") or {}
_bindings.pop("__builtins__", None)

_scope = {"__name__": "__main__", "__builtins__": _safe_builtins}
_scope.update(_bindings)

del _os
del _resource

_code = compile(_json.loads(@@CODE_JSON@@), "<sandbox>", "exec")
exec(_code, _scope)

if "result" in _scope:
    try:
        _sys.stdout.write("\n@@RESULT_MARKER@@" + _json.dumps(_scope["result"]) + "\n")
    except (TypeError, ValueError):
        _sys.stdout.write("\n@@RESULT_MARKER@@" + _json.dumps(repr(_scope["result"])) + "\n")
`

// buildHarness renders the worker script for one request. Guest code is
// embedded as a JSON string literal so it can never break out of the harness
// syntactically.
func buildHarness(req *Request) (string, error) {
	codeJSON, err := json.Marshal(req.Code)
	if err != nil {
		return "", fmt.Errorf("encoding guest code: %w", err)
	}
	allowed := req.Policy.AllowedModules
	if allowed == nil {
		allowed = []string{}
	}
	blocked := req.Policy.BlockedModules
	if blocked == nil {
		blocked = []string{}
	}
	allowedJSON, err := json.Marshal(allowed)
	if err != nil {
		return "", fmt.Errorf("encoding allow-list: %w", err)
	}
	blockedJSON, err := json.Marshal(blocked)
	if err != nil {
		return "", fmt.Errorf("encoding deny-list: %w", err)
	}

	// JSON arrays/strings are embedded as Python literals via a second
	// marshal so quoting stays valid Python.
	quote := func(b []byte) string {
		q, _ := json.Marshal(string(b))
		return string(q)
	}

	replacer := strings.NewReplacer(
		"@@CEILING_BYTES@@", fmt.Sprintf("%d", req.Policy.MemoryCeilingMB*1024*1024),
		"@@ALLOWED_JSON@@", quote(allowedJSON),
		"@@BLOCKED_JSON@@", quote(blockedJSON),
		"@@CODE_JSON@@", quote(codeJSON),
		"@@BLOCKED_MARKER@@", blockedImportMarker,
		"@@RESULT_MARKER@@", resultMarker,
	)
	return replacer.Replace(harnessTemplate), nil
}

// extractValue splits the harness result line out of captured stdout
func extractValue(stdout string) (interface{}, string) {
	idx := strings.LastIndex(stdout, resultMarker)
	if idx < 0 {
		return nil, stdout
	}
	line := stdout[idx+len(resultMarker):]
	if end := strings.IndexByte(line, '\n'); end >= 0 {
		line = line[:end]
	}
	var value interface{}
	if err := json.Unmarshal([]byte(line), &value); err != nil {
		return nil, stdout
	}
	cleaned := strings.TrimRight(stdout[:idx], "\n")
	return value, cleaned
}
