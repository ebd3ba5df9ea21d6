// Package config holds all Numa configuration. Settings load from an
// optional YAML file with environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Numa configuration.
type Config struct {
	STT       STTConfig       `yaml:"stt"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Intent    IntentConfig    `yaml:"intent"`
	Request   RequestConfig   `yaml:"request"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// STTConfig configures the speech-to-text provider.
type STTConfig struct {
	Language string `yaml:"language"` // BCP-47 code, es-MX by default
	Model    string `yaml:"model"`    // long-form recognizer model
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Timeout  string `yaml:"timeout"`
}

// ReasoningConfig configures the reasoning provider.
type ReasoningConfig struct {
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// IntentConfig configures intent and category resolution.
type IntentConfig struct {
	// ConfidenceThreshold is the minimum categorizer confidence for a
	// label to be accepted without falling back to the default bucket.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// AntExpenseThreshold is the amount (currency units) under which a
	// convenience-context purchase is treated as an ant expense.
	AntExpenseThreshold float64 `yaml:"ant_expense_threshold"`
}

// RequestConfig bounds the end-to-end request pipeline.
type RequestConfig struct {
	DeadlineMS int `yaml:"deadline_ms"`
}

// StorageConfig configures the ledger store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig configures token issuance for the HTTP facade.
type AuthConfig struct {
	Secret   string `yaml:"secret"`
	TokenTTL string `yaml:"token_ttl"`
}

// ServerConfig configures the HTTP facade.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug/info/warn/error
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		STT: STTConfig{
			Language: "es-MX",
			Model:    "latest_long",
			Endpoint: "https://speech.googleapis.com/v1",
			Timeout:  "15s",
		},
		Reasoning: ReasoningConfig{
			Model:   "gemini-1.5-flash",
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Timeout: "2s",
		},
		Intent: IntentConfig{
			ConfidenceThreshold: 0.7,
			AntExpenseThreshold: 200,
		},
		Request: RequestConfig{DeadlineMS: 8000},
		Storage: StorageConfig{Path: "numa.db"},
		Auth:    AuthConfig{TokenTTL: "24h"},
		Server:  ServerConfig{Addr: ":8080"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the config file at path, merges it over defaults and applies
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("NUMA_GEMINI_API_KEY"); v != "" {
		c.Reasoning.APIKey = v
	}
	if v := os.Getenv("NUMA_AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("NUMA_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("NUMA_STT_API_KEY"); v != "" {
		c.STT.APIKey = v
	}
}

func (c *Config) validate() error {
	if c.Intent.ConfidenceThreshold < 0 || c.Intent.ConfidenceThreshold > 1 {
		return fmt.Errorf("intent.confidence_threshold must be in [0,1], got %v", c.Intent.ConfidenceThreshold)
	}
	if c.Intent.AntExpenseThreshold <= 0 {
		return fmt.Errorf("intent.ant_expense_threshold must be positive, got %v", c.Intent.AntExpenseThreshold)
	}
	if c.Request.DeadlineMS <= 0 {
		return fmt.Errorf("request.deadline_ms must be positive, got %d", c.Request.DeadlineMS)
	}
	return nil
}

// RequestDeadline returns the per-request deadline as a duration.
func (c *Config) RequestDeadline() time.Duration {
	return time.Duration(c.Request.DeadlineMS) * time.Millisecond
}

// ParseTimeout parses a duration string, returning fallback on empty or
// malformed input.
func ParseTimeout(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
