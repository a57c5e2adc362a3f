package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models cognical.yml.
type Config struct {
	Planning struct {
		GranularityMinutes int    `yaml:"granularity_minutes"`
		CacheTTLHours      int    `yaml:"cache_ttl_hours"`
		PreferenceID       string `yaml:"preference_id"`
	} `yaml:"planning"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	AI struct {
		BaseURL        string `yaml:"base_url"`
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		MaxRetries     int    `yaml:"max_retries"`
	} `yaml:"ai"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Planning.GranularityMinutes <= 0 || c.Planning.GranularityMinutes > 60 {
		return fmt.Errorf("config.planning.granularity_minutes must be in 1..60")
	}
	if 1440%c.Planning.GranularityMinutes != 0 {
		return fmt.Errorf("config.planning.granularity_minutes must divide a day evenly")
	}
	if c.Planning.CacheTTLHours <= 0 {
		return fmt.Errorf("config.planning.cache_ttl_hours must be positive")
	}
	if c.Planning.PreferenceID == "" {
		return fmt.Errorf("config.planning.preference_id is required")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.AI.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.ai.timeout_seconds must be positive")
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("config.ai.max_retries must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "cognical.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `planning:
  granularity_minutes: 15
  cache_ttl_hours: 24
  preference_id: default

server:
  addr: 127.0.0.1:8787

ai:
  base_url: ""
  model: ""
  timeout_seconds: 30
  max_retries: 3
`
