package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	cfg.Queue.IsAsync = true
	cfg.StoreTaskFailures = true

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with all defaults applied, without
// reading a file.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.Queue.IsAsync = true
	cfg.StoreTaskFailures = true
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "default"
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 12
	}
	if cfg.Queue.MaxRetryDelay == 0 {
		cfg.Queue.MaxRetryDelay = 34 * time.Hour
	}
	if cfg.Queue.DefaultTimeout == 0 {
		cfg.Queue.DefaultTimeout = 10 * time.Minute
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 500
	}
}
