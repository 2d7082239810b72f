package config

import (
	"time"

	redisclient "github.com/tmnhat/basketq/internal/infra/redis"
	"github.com/tmnhat/basketq/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server            ServerConfig       `yaml:"server"`
	Redis             redisclient.Config `yaml:"redis"`
	Database          postgres.Config    `yaml:"database"`
	Logging           LoggingConfig      `yaml:"logging"`
	Queue             QueueConfig        `yaml:"queue"`
	Maintenance       MaintenanceConfig  `yaml:"maintenance"`
	Snitch            SnitchConfig       `yaml:"snitch"`
	StoreTaskFailures bool               `yaml:"store_task_failures"`
	Debug             bool               `yaml:"debug"`
}

// ServerConfig holds HTTP server settings for health and metrics.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// QueueConfig holds task queue and retry policy settings.
type QueueConfig struct {
	Name           string        `yaml:"name"`
	MaxRetries     int           `yaml:"max_retries"`
	MaxRetryDelay  time.Duration `yaml:"max_retry_delay"`
	ResultTTL      time.Duration `yaml:"result_ttl"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	BatchSize      int           `yaml:"batch_size"` // maintenance replay batch
	IsAsync        bool          `yaml:"is_async"`   // false = run tasks inline (tests)
}

// MaintenanceConfig holds the maintenance and read-only flags. The flags
// are owned by the deployment's configuration system; the task core only
// reads them.
type MaintenanceConfig struct {
	Enabled  bool `yaml:"enabled"`
	ReadOnly bool `yaml:"read_only"`
}

// SnitchConfig holds the dead man's snitch heartbeat endpoint.
type SnitchConfig struct {
	URL string `yaml:"url"`
}

// Flags exposes the process-wide maintenance flags. They must be
// re-checked on every task invocation since maintenance mode can toggle
// between config reloads while workers are warm.
type Flags interface {
	MaintenanceMode() bool
	ReadOnlyMode() bool
}

// Flags returns a Flags view over this configuration.
func (c *AppConfig) Flags() Flags {
	return cfgFlags{cfg: c}
}

type cfgFlags struct {
	cfg *AppConfig
}

func (f cfgFlags) MaintenanceMode() bool { return f.cfg.Maintenance.Enabled }
func (f cfgFlags) ReadOnlyMode() bool    { return f.cfg.Maintenance.ReadOnly }

// StaticFlags is a fixed Flags value, used by tests and tooling.
type StaticFlags struct {
	Maintenance bool
	ReadOnly    bool
}

func (f StaticFlags) MaintenanceMode() bool { return f.Maintenance }
func (f StaticFlags) ReadOnlyMode() bool    { return f.ReadOnly }
