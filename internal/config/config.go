// Package config loads the runtime configuration from a YAML file and
// ADAPTERD_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/assistmesh/adapter-runtime/pkg/observability"
)

// APIConfig configures the host HTTP surface
type APIConfig struct {
	ListenAddress string        `mapstructure:"listen_address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
}

// RegistryConfig configures the adapter registry
type RegistryConfig struct {
	MaxConcurrentOperations        int     `mapstructure:"max_concurrent_operations"`
	DefaultExecutionTimeoutSeconds int     `mapstructure:"default_execution_timeout_seconds"`
	MaxExecutionTimeoutSeconds     int     `mapstructure:"max_execution_timeout_seconds"`
	InitializeTimeoutSeconds       int     `mapstructure:"initialize_timeout_seconds"`
	ExecuteRatePerSecond           float64 `mapstructure:"execute_rate_per_second"`
}

// SandboxConfig configures the sandboxed execution engine
type SandboxConfig struct {
	MemoryCeilingMB int      `mapstructure:"sandbox_memory_ceiling_mb"`
	TimeoutSeconds  int      `mapstructure:"sandbox_timeout_seconds"`
	AllowedModules  []string `mapstructure:"sandbox_allowed_modules"`
	BlockedModules  []string `mapstructure:"sandbox_blocked_modules"`
	InterpreterPath string   `mapstructure:"interpreter_path"`
}

// MonitoringConfig configures the health and resource monitors
type MonitoringConfig struct {
	EnableHealthMonitoring     bool    `mapstructure:"enable_health_monitoring"`
	HealthCheckIntervalSeconds int     `mapstructure:"health_check_interval_seconds"`
	HealthHistorySize          int     `mapstructure:"health_history_size"`
	ResourceSampleSeconds      int     `mapstructure:"resource_sample_seconds"`
	MemoryThresholdMB          int     `mapstructure:"memory_threshold_mb"`
	CPUThresholdPercent        float64 `mapstructure:"cpu_threshold_percent"`
}

// EventsConfig configures the optional off-process event mirror
type EventsConfig struct {
	RedisMirrorEnabled bool   `mapstructure:"redis_mirror_enabled"`
	RedisAddress       string `mapstructure:"redis_address"`
	RedisStream        string `mapstructure:"redis_stream"`
	RedisStreamMaxLen  int64  `mapstructure:"redis_stream_max_len"`
}

// Config holds the complete runtime configuration
type Config struct {
	API           APIConfig            `mapstructure:"api"`
	Registry      RegistryConfig       `mapstructure:"registry"`
	Sandbox       SandboxConfig        `mapstructure:"sandbox"`
	Monitoring    MonitoringConfig     `mapstructure:"monitoring"`
	Events        EventsConfig         `mapstructure:"events"`
	Observability observability.Config `mapstructure:"observability"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	configFile := os.Getenv("ADAPTERD_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("ADAPTERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A config file is not required when environment variables carry the
		// settings.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)
	v.SetDefault("api.idle_timeout", 90*time.Second)

	v.SetDefault("registry.max_concurrent_operations", 32)
	v.SetDefault("registry.default_execution_timeout_seconds", 30)
	v.SetDefault("registry.max_execution_timeout_seconds", 300)
	v.SetDefault("registry.initialize_timeout_seconds", 20)
	v.SetDefault("registry.execute_rate_per_second", 0)

	v.SetDefault("sandbox.sandbox_memory_ceiling_mb", 256)
	v.SetDefault("sandbox.sandbox_timeout_seconds", 30)
	v.SetDefault("sandbox.interpreter_path", "python3")

	v.SetDefault("monitoring.enable_health_monitoring", true)
	v.SetDefault("monitoring.health_check_interval_seconds", 30)
	v.SetDefault("monitoring.health_history_size", 32)
	v.SetDefault("monitoring.resource_sample_seconds", 10)
	v.SetDefault("monitoring.memory_threshold_mb", 1024)
	v.SetDefault("monitoring.cpu_threshold_percent", 85)

	v.SetDefault("events.redis_mirror_enabled", false)
	v.SetDefault("events.redis_address", "localhost:6379")
	v.SetDefault("events.redis_stream", "adapterd:events")
	v.SetDefault("events.redis_stream_max_len", 10000)

	v.SetDefault("observability.logging.level", "INFO")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.service_name", "adapterd")
}
