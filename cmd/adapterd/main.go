// Command adapterd runs the adapter runtime as a standalone host: registry,
// sandbox, monitors, and the HTTP invocation surface.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/assistmesh/adapter-runtime/internal/adapters"
	"github.com/assistmesh/adapter-runtime/internal/adapters/events"
	"github.com/assistmesh/adapter-runtime/internal/adapters/registry"
	"github.com/assistmesh/adapter-runtime/internal/api"
	"github.com/assistmesh/adapter-runtime/internal/config"
	"github.com/assistmesh/adapter-runtime/internal/monitoring"
	"github.com/assistmesh/adapter-runtime/internal/sandbox"
	"github.com/assistmesh/adapter-runtime/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.NewStandardLogger("adapterd").Fatal("Failed to load configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	logger := observability.NewStandardLoggerWithLevel("adapterd",
		observability.ParseLogLevel(cfg.Observability.Logging.Level))
	metrics := observability.NewMetricsClientWithOptions(observability.MetricsOptions{
		Enabled:   cfg.Observability.Metrics.Enabled,
		Namespace: cfg.Observability.Metrics.Namespace,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, shutdownTracing, err := observability.InitTracing(ctx, cfg.Observability.Tracing)
	if err != nil {
		logger.Warn("Tracing disabled", map[string]interface{}{"error": err.Error()})
		shutdownTracing = func(context.Context) error { return nil }
	}

	bus := events.NewBus(logger)
	if cfg.Events.RedisMirrorEnabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Events.RedisAddress})
		bus.SetMirror(events.NewRedisStreamsMirror(client, cfg.Events.RedisStream, cfg.Events.RedisStreamMaxLen, logger))
	}

	resources, err := monitoring.NewResourceMonitor(monitoring.ResourceConfig{
		SampleInterval:      time.Duration(cfg.Monitoring.ResourceSampleSeconds) * time.Second,
		MemoryThresholdMB:   cfg.Monitoring.MemoryThresholdMB,
		CPUThresholdPercent: cfg.Monitoring.CPUThresholdPercent,
	}, bus, logger, metrics)
	if err != nil {
		logger.Fatal("Failed to create resource monitor", map[string]interface{}{"error": err.Error()})
	}

	executor, err := sandbox.NewExecutor(sandbox.Options{
		InterpreterPath: cfg.Sandbox.InterpreterPath,
	}, resources, logger, metrics)
	if err != nil {
		logger.Fatal("Failed to create sandbox executor", map[string]interface{}{"error": err.Error()})
	}

	policy := sandbox.DefaultPolicy()
	if len(cfg.Sandbox.AllowedModules) > 0 {
		policy.AllowedModules = cfg.Sandbox.AllowedModules
	}
	if len(cfg.Sandbox.BlockedModules) > 0 {
		policy.BlockedModules = cfg.Sandbox.BlockedModules
	}
	if cfg.Sandbox.TimeoutSeconds > 0 {
		policy.Timeout = time.Duration(cfg.Sandbox.TimeoutSeconds) * time.Second
	}
	if cfg.Sandbox.MemoryCeilingMB > 0 {
		policy.MemoryCeilingMB = cfg.Sandbox.MemoryCeilingMB
	}

	reg := registry.New(registry.Config{
		DefaultExecutionTimeout: time.Duration(cfg.Registry.DefaultExecutionTimeoutSeconds) * time.Second,
		MaxExecutionTimeout:     time.Duration(cfg.Registry.MaxExecutionTimeoutSeconds) * time.Second,
		InitializeTimeout:       time.Duration(cfg.Registry.InitializeTimeoutSeconds) * time.Second,
		MaxConcurrentOperations: cfg.Registry.MaxConcurrentOperations,
		ExecuteRatePerSecond:    cfg.Registry.ExecuteRatePerSecond,
		SandboxPolicy:           policy,
	}, bus, executor, logger, metrics)

	if err := reg.Start(ctx); err != nil {
		logger.Fatal("Failed to start registry", map[string]interface{}{"error": err.Error()})
	}

	health := monitoring.NewHealthMonitor(monitoring.HealthConfig{
		Interval:    time.Duration(cfg.Monitoring.HealthCheckIntervalSeconds) * time.Second,
		HistorySize: cfg.Monitoring.HealthHistorySize,
	}, reg, logger, metrics)

	if cfg.Monitoring.EnableHealthMonitoring {
		if err := health.Start(ctx); err != nil {
			logger.Fatal("Failed to start health monitor", map[string]interface{}{"error": err.Error()})
		}
	}
	if err := resources.Start(ctx); err != nil {
		logger.Fatal("Failed to start resource monitor", map[string]interface{}{"error": err.Error()})
	}

	server := api.NewServer(cfg.API, reg, health, resources, hostFactories(), logger)
	go func() {
		if err := server.Run(); err != nil {
			logger.Error("HTTP server failed", map[string]interface{}{"error": err.Error()})
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", map[string]interface{}{"signal": sig.String()})
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if cfg.Monitoring.EnableHealthMonitoring {
		health.Stop()
	}
	resources.Stop()
	if err := reg.Stop(shutdownCtx); err != nil {
		logger.Warn("Registry stop failed", map[string]interface{}{"error": err.Error()})
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}

// hostFactories maps the implementation refs accepted over the API to adapter
// constructors. Hosts embedding the runtime provide their own catalog.
func hostFactories() map[string]adapters.Factory {
	return map[string]adapters.Factory{
		"echo": func(config map[string]interface{}) (adapters.Adapter, error) {
			return adapters.NewEchoAdapter(config), nil
		},
		"codegen": func(config map[string]interface{}) (adapters.Adapter, error) {
			return adapters.NewScriptAdapter(config), nil
		},
	}
}
