// Package config defines the server runtime configuration: where to
// listen, which file holds the initialization catalogue, and what to run
// on a schedule.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig represents the server runtime configuration.
type ServerConfig struct {
	Listener ListenerConfig `yaml:"listener"`
	// Cron is a multi-trigger specification, one strategy per trigger:
	// "comprehensive:0 6 * * *;minimal:*/30 * * * *". Empty disables
	// scheduled runs.
	Cron string `yaml:"cron"`
	// StateDir is the directory run history is persisted to. Empty keeps
	// history in memory only.
	StateDir string `yaml:"state_dir"`
	// MaxHistory bounds the retained run history
	MaxHistory int    `yaml:"max_history"`
	LogLevel   string `yaml:"log_level"`
	// InitConfig is the path to the initialization config file
	InitConfig string `yaml:"init_config"`
}

// ListenerConfig holds HTTP server listener settings.
type ListenerConfig struct {
	// The listen address, defaults to :8080
	Addr string `yaml:"addr"`
	// TLSCert and TLSKey enable TLS when both are set. The certificate is
	// reloaded when the files change on disk.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// LoadConfig reads the YAML config file at the given path and returns a
// ServerConfig struct.
func LoadConfig(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open server config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode YAML server config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *ServerConfig) SetDefaults() {
	if c.Listener.Addr == "" {
		c.Listener.Addr = ":8080"
	}
	if c.MaxHistory == 0 {
		c.MaxHistory = 100
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration for structural problems.
func (c *ServerConfig) Validate() error {
	if c.InitConfig == "" {
		return fmt.Errorf("init_config is required")
	}
	if (c.Listener.TLSCert == "") != (c.Listener.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	if c.MaxHistory < 0 {
		return fmt.Errorf("max_history cannot be negative")
	}
	return nil
}
