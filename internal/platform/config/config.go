package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config holds all configuration for the reactor runtime: executor
// defaults, logging, and telemetry.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Version   string          `mapstructure:"version"`
}

// ServiceConfig names the process for logging/telemetry labeling.
type ServiceConfig struct {
	Name        string `mapstructure:"name" envconfig:"SERVICE_NAME"`
	Environment string `mapstructure:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

// ExecutorConfig holds executor settings that cmd/reactorctl applies on
// top of reactor.DefaultOptions; reactor.Run itself never reads it.
type ExecutorConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency" envconfig:"EXECUTOR_MAX_CONCURRENCY" default:"0"`
	HaltTimeout    time.Duration `mapstructure:"halt_timeout" envconfig:"EXECUTOR_HALT_TIMEOUT" default:"5s"`
	AsyncEnabled   bool          `mapstructure:"async_enabled" envconfig:"EXECUTOR_ASYNC_ENABLED" default:"true"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json"`
	OutputPath string `mapstructure:"output_path" envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
}

// TelemetryConfig holds metrics/tracing configuration.
type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
	TracingEnabled bool   `mapstructure:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"true"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint" envconfig:"OTLP_ENDPOINT" default:"localhost:4317"`
	ServiceName    string `mapstructure:"service_name" envconfig:"TELEMETRY_SERVICE_NAME"`
}

// Load loads configuration from an optional config file, then
// environment variables; env vars win.
func Load(serviceName string) (*Config, error) {
	var cfg Config

	cfg.Service.Name = serviceName
	cfg.Telemetry.ServiceName = serviceName

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	if version := os.Getenv("VERSION"); version != "" {
		cfg.Version = version
	} else {
		cfg.Version = "dev"
	}

	return &cfg, nil
}
