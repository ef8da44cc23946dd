package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nomis52/goinit/stage"
)

const (
	// Default orchestrator settings
	defaultStrategy     = "comprehensive"
	defaultMaxParallel  = 4
	defaultStageTimeout = 30 * time.Second
	defaultRunTimeout   = 5 * time.Minute

	// Default resilience settings
	defaultFailureThreshold = 3
	defaultRecoveryTimeout  = 30 * time.Second
	defaultMaxRetries       = 3
	defaultBaseDelay        = 500 * time.Millisecond
	defaultMaxDelay         = 10 * time.Second

	// Default cache settings
	defaultCacheTTL = 15 * time.Minute

	// Default monitoring settings
	defaultMetricsPrefix = "goinit"
	defaultJobName       = "goinit"

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stdout"
)

// Config represents the complete application configuration
type Config struct {
	Stages       []StageConfig      `yaml:"stages"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Resilience   ResilienceConfig   `yaml:"resilience"`
	Cache        CacheConfig        `yaml:"cache"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// StageConfig describes one stage of the catalogue. When the stages stanza
// is empty the built-in catalogue is used.
type StageConfig struct {
	ID                string        `yaml:"id"`
	DependsOn         []string      `yaml:"depends_on"`
	EstimatedDuration time.Duration `yaml:"estimated_duration"`
	Priority          int           `yaml:"priority"`
	Critical          bool          `yaml:"critical"`
	Parallelizable    *bool         `yaml:"parallelizable"` // defaults to true
	Description       string        `yaml:"description"`
}

// OrchestratorConfig holds run scheduling settings
type OrchestratorConfig struct {
	// Strategy selects the default execution strategy for triggered runs
	Strategy string `yaml:"strategy"`

	// MaxParallel caps the size of a parallel group
	MaxParallel int `yaml:"max_parallel"`

	// StageTimeout bounds a single stage attempt
	StageTimeout time.Duration `yaml:"stage_timeout"`

	// RunTimeout bounds a whole run; zero disables the bound
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// ResilienceConfig holds circuit breaker and retry settings
type ResilienceConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
}

// CacheConfig holds stage-result fallback cache settings
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// MonitoringConfig holds metrics and monitoring settings
type MonitoringConfig struct {
	VictoriaMetricsURL string `yaml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"jobname"`
}

// LoggingConfig defines logging behavior settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	for i, s := range c.Stages {
		if s.ID == "" {
			return fmt.Errorf("stage %d: id is required", i)
		}
		if s.EstimatedDuration < 0 {
			return fmt.Errorf("stage %q: estimated duration must not be negative", s.ID)
		}
	}
	if c.Orchestrator.MaxParallel < 0 {
		return fmt.Errorf("max parallel must not be negative")
	}
	if c.Orchestrator.StageTimeout < 0 {
		return fmt.Errorf("stage timeout must not be negative")
	}
	if c.Resilience.FailureThreshold < 0 {
		return fmt.Errorf("failure threshold must not be negative")
	}
	if c.Resilience.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if c.Resilience.BaseDelay > c.Resilience.MaxDelay && c.Resilience.MaxDelay != 0 {
		return fmt.Errorf("base delay must not exceed max delay")
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Orchestrator.Strategy == "" {
		c.Orchestrator.Strategy = defaultStrategy
	}
	if c.Orchestrator.MaxParallel == 0 {
		c.Orchestrator.MaxParallel = defaultMaxParallel
	}
	if c.Orchestrator.StageTimeout == 0 {
		c.Orchestrator.StageTimeout = defaultStageTimeout
	}
	if c.Orchestrator.RunTimeout == 0 {
		c.Orchestrator.RunTimeout = defaultRunTimeout
	}
	if c.Resilience.FailureThreshold == 0 {
		c.Resilience.FailureThreshold = defaultFailureThreshold
	}
	if c.Resilience.RecoveryTimeout == 0 {
		c.Resilience.RecoveryTimeout = defaultRecoveryTimeout
	}
	if c.Resilience.MaxRetries == 0 {
		c.Resilience.MaxRetries = defaultMaxRetries
	}
	if c.Resilience.BaseDelay == 0 {
		c.Resilience.BaseDelay = defaultBaseDelay
	}
	if c.Resilience.MaxDelay == 0 {
		c.Resilience.MaxDelay = defaultMaxDelay
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = defaultCacheTTL
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// BuildCatalog converts the stages stanza into a validated catalogue. An
// empty stanza yields the built-in default catalogue.
func (c *Config) BuildCatalog() (*stage.Catalog, error) {
	if len(c.Stages) == 0 {
		return stage.DefaultCatalog(), nil
	}

	stages := make([]stage.Stage, 0, len(c.Stages))
	for _, sc := range c.Stages {
		deps := make([]stage.ID, 0, len(sc.DependsOn))
		for _, d := range sc.DependsOn {
			deps = append(deps, stage.ID(d))
		}
		parallelizable := true
		if sc.Parallelizable != nil {
			parallelizable = *sc.Parallelizable
		}
		stages = append(stages, stage.Stage{
			ID:                stage.ID(sc.ID),
			DependsOn:         deps,
			EstimatedDuration: sc.EstimatedDuration,
			Priority:          sc.Priority,
			Critical:          sc.Critical,
			Parallelizable:    parallelizable,
			Description:       sc.Description,
		})
	}
	return stage.NewCatalog(stages)
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
