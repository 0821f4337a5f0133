package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/assistmesh/adapter-runtime/pkg/observability"
)

// Classification labels why a sandboxed run failed. Successful runs carry
// ClassificationNone.
type Classification string

// Failure classifications
const (
	ClassificationNone             Classification = "none"
	ClassificationBlockedModule    Classification = "blocked_module"
	ClassificationTimeout          Classification = "timeout"
	ClassificationRuntimeError     Classification = "runtime_error"
	ClassificationResourceExceeded Classification = "resource_exceeded"
)

// Request describes one sandboxed run. Consumed exactly once.
type Request struct {
	RequestID string                 `json:"request_id"`
	Code      string                 `json:"code"`
	Input     map[string]interface{} `json:"input,omitempty"`
	Policy    Policy                 `json:"-"`
}

// Result is the outcome of one sandboxed run
type Result struct {
	Success        bool           `json:"success"`
	Stdout         string         `json:"stdout,omitempty"`
	Stderr         string         `json:"stderr,omitempty"`
	Value          interface{}    `json:"value,omitempty"`
	ExecutionTime  time.Duration  `json:"execution_time"`
	MemoryUsed     uint64         `json:"memory_used"`
	FailureReason  Classification `json:"failure_reason"`
	AnalysisIssues []Issue        `json:"analysis_issues,omitempty"`
}

// Observer receives resource samples taken while a sandboxed run is in flight,
// so cost can be attributed to the run.
type Observer interface {
	ObserveExecution(requestID string, rssBytes uint64)
}

// Options configures an Executor
type Options struct {
	// InterpreterPath is the worker interpreter binary, python3 by default
	InterpreterPath string

	// WorkDir is where per-request scripts are written; os.TempDir by default
	WorkDir string

	// OutputLimitBytes bounds captured stdout/stderr; output beyond the limit
	// is truncated rather than buffered without bound
	OutputLimitBytes int

	// SampleInterval is how often the watchdog samples worker memory
	SampleInterval time.Duration

	// AnalysisCacheSize bounds the static-analysis verdict cache
	AnalysisCacheSize int
}

// Executor is the sandboxed execution engine. It owns the worker process for
// the lifetime of one request only and retains no state across requests.
type Executor struct {
	opts     Options
	analyzer *Analyzer
	observer Observer
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewExecutor creates an executor
func NewExecutor(opts Options, observer Observer, logger observability.Logger, metrics observability.MetricsClient) (*Executor, error) {
	if opts.InterpreterPath == "" {
		opts.InterpreterPath = "python3"
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.OutputLimitBytes <= 0 {
		opts.OutputLimitBytes = 64 * 1024
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	analyzer, err := NewAnalyzer(opts.AnalysisCacheSize, logger)
	if err != nil {
		return nil, err
	}
	return &Executor{
		opts:     opts,
		analyzer: analyzer,
		observer: observer,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// AnalyzeCode runs only the static screen
func (e *Executor) AnalyzeCode(code string, policy Policy) *Analysis {
	return e.analyzer.Analyze(code, policy)
}

// ExecuteCode runs the full pipeline: static screen, isolated run, result
// capture. Each stage can short-circuit to a classified failure without
// running later stages.
func (e *Executor) ExecuteCode(ctx context.Context, req *Request) (*Result, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.Policy.Timeout <= 0 {
		req.Policy.Timeout = DefaultPolicy().Timeout
	}
	if req.Policy.MemoryCeilingMB <= 0 {
		req.Policy.MemoryCeilingMB = DefaultPolicy().MemoryCeilingMB
	}

	started := time.Now()
	analysis := e.analyzer.Analyze(req.Code, req.Policy)
	if !analysis.IsSafe {
		e.metrics.RecordOperation("sandbox", "execute", false, time.Since(started).Seconds(),
			map[string]string{"reason": string(ClassificationBlockedModule)})
		return &Result{
			Success:        false,
			FailureReason:  ClassificationBlockedModule,
			ExecutionTime:  time.Since(started),
			AnalysisIssues: analysis.Issues,
			Stderr:         analysisSummary(analysis),
		}, nil
	}

	result, err := e.run(ctx, req)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordOperation("sandbox", "execute", result.Success, result.ExecutionTime.Seconds(),
		map[string]string{"reason": string(result.FailureReason)})
	return result, nil
}

// run executes the screened code in a worker process with its own process
// group, a wall-clock timeout, and an rlimit memory ceiling.
func (e *Executor) run(ctx context.Context, req *Request) (*Result, error) {
	script, err := buildHarness(req)
	if err != nil {
		return nil, fmt.Errorf("building harness: %w", err)
	}

	dir, err := os.MkdirTemp(e.opts.WorkDir, "sandbox-")
	if err != nil {
		return nil, fmt.Errorf("creating sandbox dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			e.logger.Warn("Failed to remove sandbox dir", map[string]interface{}{
				"dir":   dir,
				"error": rmErr.Error(),
			})
		}
	}()

	scriptPath := filepath.Join(dir, "main.py")
	if err := os.WriteFile(scriptPath, []byte(script), 0o600); err != nil {
		return nil, fmt.Errorf("writing sandbox script: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, req.Policy.Timeout)
	defer cancel()

	var stdout, stderr boundedBuffer
	stdout.limit = e.opts.OutputLimitBytes
	stderr.limit = e.opts.OutputLimitBytes

	inputJSON, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("marshaling input bindings: %w", err)
	}

	cmd := exec.CommandContext(runCtx, e.opts.InterpreterPath, scriptPath)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = []string{
		"SANDBOX_INPUT=" + string(inputJSON),
		"PYTHONDONTWRITEBYTECODE=1",
	}
	// Own process group so a timeout kills the worker and anything it forked
	// before the guard took hold.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting sandbox worker: %w", err)
	}

	var memKilled atomic.Bool
	watchdogDone := make(chan struct{})
	go e.watch(runCtx, req.RequestID, cmd.Process.Pid, req.Policy, &memKilled, watchdogDone)

	waitErr := cmd.Wait()
	cancel()
	<-watchdogDone

	elapsed := time.Since(started)
	result := &Result{
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		ExecutionTime: elapsed,
		MemoryUsed:    peakRSS(cmd),
	}
	result.Value, result.Stdout = extractValue(result.Stdout)

	switch {
	case memKilled.Load():
		result.Success = false
		result.FailureReason = ClassificationResourceExceeded
	case runCtx.Err() == context.DeadlineExceeded:
		result.Success = false
		result.FailureReason = ClassificationTimeout
	case waitErr == nil:
		result.Success = true
		result.FailureReason = ClassificationNone
	case errors.Is(ctx.Err(), context.Canceled):
		// The caller withdrew the request; the killed worker is not a guest
		// failure.
		return nil, ctx.Err()
	case strings.Contains(result.Stderr, blockedImportMarker):
		result.Success = false
		result.FailureReason = ClassificationBlockedModule
	case strings.Contains(result.Stderr, "MemoryError"):
		result.Success = false
		result.FailureReason = ClassificationResourceExceeded
	default:
		result.Success = false
		result.FailureReason = ClassificationRuntimeError
	}

	e.logger.Debug("Sandbox run finished", map[string]interface{}{
		"requestId": req.RequestID,
		"success":   result.Success,
		"reason":    string(result.FailureReason),
		"elapsed":   elapsed.String(),
	})
	return result, nil
}

// watch samples the worker's RSS until it exits, reporting samples to the
// observer and killing the group if the ceiling is breached. The rlimit in
// the harness is the primary bound; this is the enforcement path for
// interpreters that allocate outside the address-space limit. A kill is
// recorded through memKilled so the run classifies as resource_exceeded.
func (e *Executor) watch(ctx context.Context, requestID string, pid int, policy Policy, memKilled *atomic.Bool, done chan<- struct{}) {
	defer close(done)
	ceiling := uint64(policy.MemoryCeilingMB) * 1024 * 1024
	ticker := time.NewTicker(e.opts.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rss, err := processRSS(pid)
			if err != nil {
				return // worker exited
			}
			if e.observer != nil {
				e.observer.ObserveExecution(requestID, rss)
			}
			if ceiling > 0 && rss > ceiling {
				e.logger.Warn("Sandbox worker exceeded memory ceiling", map[string]interface{}{
					"requestId": requestID,
					"rssBytes":  rss,
					"ceilingMB": policy.MemoryCeilingMB,
				})
				memKilled.Store(true)
				_ = syscall.Kill(-pid, syscall.SIGKILL)
				return
			}
		}
	}
}

func analysisSummary(analysis *Analysis) string {
	parts := make([]string, 0, len(analysis.Issues))
	for _, issue := range analysis.Issues {
		parts = append(parts, fmt.Sprintf("line %d: %s", issue.Line, issue.Message))
	}
	return strings.Join(parts, "\n")
}

// peakRSS reads the worker's max resident set from its rusage
func peakRSS(cmd *exec.Cmd) uint64 {
	if cmd.ProcessState == nil {
		return 0
	}
	if rusage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage); ok && rusage.Maxrss > 0 {
		return uint64(rusage.Maxrss) * 1024 // linux reports KB
	}
	return 0
}

// processRSS reads VmRSS for a live pid from /proc
func processRSS(pid int) (uint64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "VmRSS:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				var kb uint64
				if _, err := fmt.Sscanf(fields[1], "%d", &kb); err != nil {
					return 0, err
				}
				return kb * 1024, nil
			}
		}
	}
	return 0, fmt.Errorf("no VmRSS for pid %d", pid)
}

// boundedBuffer truncates rather than growing without bound
type boundedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *boundedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
