// Package config provides layered configuration loading for the
// scheduler daemon: viper with env-prefixed overrides, a YAML file
// searched on a fixed path list, and a validate step that accumulates
// every problem before returning.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every configuration section the daemon needs.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Events   EventsConfig   `mapstructure:"events"`
	Reaper   ReaperConfig   `mapstructure:"reaper"`
	Manifest ManifestConfig `mapstructure:"manifest"`

	Operations OperationsConfig `mapstructure:"operations"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// StoreConfig selects and configures the State persistence backend.
type StoreConfig struct {
	// Driver is one of "memory", "postgres", "sqlite".
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Path     string `mapstructure:"path"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// QueueConfig selects and configures the Dispatcher's work queue.
type QueueConfig struct {
	// Driver is one of "channel", "nats".
	Driver  string `mapstructure:"driver"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// EventsConfig selects and configures the Event cache's backing factory.
type EventsConfig struct {
	// Driver is one of "memory", "nats".
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// ReaperConfig configures the optional periodic cleaning mode.
type ReaperConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval int    `mapstructure:"intervalSeconds"`
	Strategy string `mapstructure:"strategy"`
}

// ManifestConfig points at an optional YAML file of tasks to submit at
// startup. Empty path disables the feature.
type ManifestConfig struct {
	Path string `mapstructure:"path"`
}

// OperationsConfig toggles the optional operation plugins that need
// external infrastructure.
type OperationsConfig struct {
	DockerRun DockerRunConfig `mapstructure:"dockerRun"`
}

// DockerRunConfig configures the docker.run operation plugin. Host and
// APIVersion are passed to the Docker client; empty values use the
// client's environment defaults.
type DockerRunConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	APIVersion string `mapstructure:"apiVersion"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"serviceName"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// IntervalDuration returns the reaper's tick interval as a Duration.
func (r *ReaperConfig) IntervalDuration() time.Duration {
	return time.Duration(r.Interval) * time.Second
}

func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("TASKSCHEDULER_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.path", "./taskscheduler.db")
	v.SetDefault("store.maxConns", 25)
	v.SetDefault("store.minConns", 5)

	v.SetDefault("queue.driver", "channel")
	v.SetDefault("queue.url", "")
	v.SetDefault("queue.subject", "taskscheduler.queue")

	v.SetDefault("events.driver", "memory")
	v.SetDefault("events.url", "")

	v.SetDefault("reaper.enabled", false)
	v.SetDefault("reaper.intervalSeconds", 60)
	v.SetDefault("reaper.strategy", "always")

	v.SetDefault("manifest.path", "")

	v.SetDefault("operations.dockerRun.enabled", false)
	v.SetDefault("operations.dockerRun.host", "")
	v.SetDefault("operations.dockerRun.apiVersion", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.serviceName", "taskscheduler")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables (TASKSCHEDULER_
// prefix), a config.yaml searched in "." and "/etc/taskscheduler/", and
// defaults, in that order of decreasing precedence: env vars over file
// over defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath behaves like Load but also searches configPath for
// config.yaml when configPath is non-empty.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TASKSCHEDULER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/taskscheduler/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	validStoreDrivers := map[string]bool{"memory": true, "postgres": true, "sqlite": true}
	if !validStoreDrivers[cfg.Store.Driver] {
		errs = append(errs, "store.driver must be one of: memory, postgres, sqlite")
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DSN == "" {
		errs = append(errs, "store.dsn is required for the postgres driver")
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.Path == "" {
		errs = append(errs, "store.path is required for the sqlite driver")
	}

	validQueueDrivers := map[string]bool{"channel": true, "nats": true}
	if !validQueueDrivers[cfg.Queue.Driver] {
		errs = append(errs, "queue.driver must be one of: channel, nats")
	}
	if cfg.Queue.Driver == "nats" && cfg.Queue.URL == "" {
		errs = append(errs, "queue.url is required for the nats queue driver")
	}

	validEventsDrivers := map[string]bool{"memory": true, "nats": true}
	if !validEventsDrivers[cfg.Events.Driver] {
		errs = append(errs, "events.driver must be one of: memory, nats")
	}
	if cfg.Events.Driver == "nats" && cfg.Events.URL == "" {
		errs = append(errs, "events.url is required for the nats events driver")
	}

	if cfg.Reaper.Enabled && cfg.Reaper.Interval <= 0 {
		errs = append(errs, "reaper.intervalSeconds must be positive when reaper.enabled is true")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
