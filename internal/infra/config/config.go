package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, noop
}

// GuardConfig holds input/output security boundary settings.
type GuardConfig struct {
	MaxInputLength int    `yaml:"max_input_length"` // default 10000
	StripMarkup    bool   `yaml:"strip_markup"`
	BlockThreshold string `yaml:"block_threshold"` // none, low, medium, high, critical; default high
}

// ContextWindowConfig holds per-session history settings.
type ContextWindowConfig struct {
	Counter string `yaml:"counter"` // heuristic, tiktoken
}

// ToolsConfig holds tool invocation settings.
type ToolsConfig struct {
	MaxConcurrent  int     `yaml:"max_concurrent"`  // worker pool bound, default 4
	RatePerMinute  int     `yaml:"rate_per_minute"` // per-tool limit, default 60
	BaseCost       float64 `yaml:"base_cost"`       // default per-invocation cost unit
	SchemaValidate bool    `yaml:"schema_validate"` // wrap tools with JSON Schema validation
}

// OrchestratorConfig holds plan execution settings.
type OrchestratorConfig struct {
	PerSkillDuration time.Duration `yaml:"per_skill_duration"` // default 30s
	PerSkillCost     float64       `yaml:"per_skill_cost"`     // default 5.0
	EventBuffer      int           `yaml:"event_buffer"`       // per-session event queue, default 64
}

// ProviderConfig describes one LLM provider endpoint. APIKeyEnv names the
// environment variable holding the key so config files stay secret-free.
type ProviderConfig struct {
	Name      string        `yaml:"name"`
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"` // default 60s

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// APIKey resolves the provider's key from the environment.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// CircuitBreakerConfig configures the per-provider circuit breaker.
type CircuitBreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"` // consecutive failures before the circuit opens, default 5
	Timeout     time.Duration `yaml:"timeout"`      // open-state duration before a half-open probe, default 30s
	Interval    time.Duration `yaml:"interval"`     // closed-state failure-count reset period, default 60s
}

// DirectoryConfig holds the agent directory store settings.
type DirectoryConfig struct {
	Path string `yaml:"path"` // SQLite database path
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config is the top-level configuration.
type Config struct {
	Logger        LoggerConfig        `yaml:"logger"`
	Tracer        TracerConfig        `yaml:"tracer"`
	Guard         GuardConfig         `yaml:"guard"`
	ContextWindow ContextWindowConfig `yaml:"context_window"`
	Tools         ToolsConfig         `yaml:"tools"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	Providers     []ProviderConfig    `yaml:"providers"`
	Directory     DirectoryConfig     `yaml:"directory"`
	Audit         AuditConfig         `yaml:"audit"`
}

// Default returns a configuration with all defaults applied.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stderr"
	}
	if c.Guard.MaxInputLength <= 0 {
		c.Guard.MaxInputLength = 10000
	}
	if c.Guard.BlockThreshold == "" {
		c.Guard.BlockThreshold = "high"
	}
	if c.ContextWindow.Counter == "" {
		c.ContextWindow.Counter = "heuristic"
	}
	if c.Tools.MaxConcurrent <= 0 {
		c.Tools.MaxConcurrent = 4
	}
	if c.Tools.RatePerMinute <= 0 {
		c.Tools.RatePerMinute = 60
	}
	if c.Tools.BaseCost <= 0 {
		c.Tools.BaseCost = 0.01
	}
	if c.Orchestrator.PerSkillDuration <= 0 {
		c.Orchestrator.PerSkillDuration = 30 * time.Second
	}
	if c.Orchestrator.PerSkillCost <= 0 {
		c.Orchestrator.PerSkillCost = 5.0
	}
	if c.Orchestrator.EventBuffer <= 0 {
		c.Orchestrator.EventBuffer = 64
	}
	for i := range c.Providers {
		if c.Providers[i].Timeout <= 0 {
			c.Providers[i].Timeout = 60 * time.Second
		}
	}
	if c.Directory.Path == "" {
		c.Directory.Path = "teamforge.db"
	}
	if c.Audit.Path == "" {
		c.Audit.Path = "audit.jsonl"
	}
}

// Load reads configuration from the given YAML file and applies defaults.
// A missing file is not an error: defaults are returned.
func Load(path string) (Config, error) {
	if env := os.Getenv("TEAMFORGE_CONFIG"); env != "" {
		path = env
	}

	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Logger.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logger.format must be text or json, got %q", c.Logger.Format)
	}
	switch c.ContextWindow.Counter {
	case "heuristic", "tiktoken":
	default:
		return fmt.Errorf("context_window.counter must be heuristic or tiktoken, got %q", c.ContextWindow.Counter)
	}
	switch c.Guard.BlockThreshold {
	case "none", "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("guard.block_threshold must be a risk level, got %q", c.Guard.BlockThreshold)
	}
	return nil
}
