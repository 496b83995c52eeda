package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Loom configuration
type Config struct {
	// Data directory (conversation store, logs, audit)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Project root the file tools are scoped to
	WorkspaceRoot string `json:"workspace_root" mapstructure:"workspace_root"`

	// Conversation store backend
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Provider credentials
	Providers []ProviderProfile `json:"providers" mapstructure:"providers"`

	// Agent defaults
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Gateway server
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Conversation retention
	Retention RetentionConfig `json:"retention" mapstructure:"retention"`
}

// StoreConfig selects and locates the conversation store backend.
type StoreConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // json, sqlite
	Path    string `json:"path" mapstructure:"path"`
}

// ProviderProfile holds credentials for one model backend.
type ProviderProfile struct {
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
}

// AgentConfig holds the default turn options.
type AgentConfig struct {
	Provider     string  `json:"provider" mapstructure:"provider"`
	Model        string  `json:"model" mapstructure:"model"`
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int     `json:"max_tokens" mapstructure:"max_tokens"`
	MaxSteps     int     `json:"max_steps" mapstructure:"max_steps"`
	SystemPrompt string  `json:"system_prompt" mapstructure:"system_prompt"`
	ToolsEnabled bool    `json:"tools_enabled" mapstructure:"tools_enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// RetentionConfig holds conversation retention settings
type RetentionConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Schedule   string `json:"schedule" mapstructure:"schedule"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: "json",
		},
		Agent: AgentConfig{
			Provider:     "anthropic",
			Model:        "claude-sonnet-4-5",
			Temperature:  0.7,
			MaxTokens:    4096,
			MaxSteps:     10,
			ToolsEnabled: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Retention: RetentionConfig{
			Enabled:    false,
			MaxAgeDays: 90,
			Schedule:   "0 3 * * *",
		},
	}
}

// APIKeys returns provider credentials keyed by provider name.
func (c *Config) APIKeys() map[string]string {
	keys := make(map[string]string, len(c.Providers))
	for _, profile := range c.Providers {
		keys[profile.Provider] = profile.APIKey
	}
	return keys
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("no provider credentials configured: at least one provider is required")
	}

	for i, profile := range c.Providers {
		if profile.Provider == "" {
			return fmt.Errorf("provider %d: provider name is required", i)
		}
		if profile.Provider != "anthropic" && profile.Provider != "openai" {
			return fmt.Errorf("provider %d: invalid provider %s (must be: anthropic, openai)", i, profile.Provider)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("provider %s: api_key is required", profile.Provider)
		}
	}

	if c.Store.Backend != "json" && c.Store.Backend != "sqlite" {
		return fmt.Errorf("invalid store backend %s (must be: json, sqlite)", c.Store.Backend)
	}

	if c.Agent.Model == "" {
		return fmt.Errorf("agent model is required")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 1 {
		return fmt.Errorf("agent temperature must be between 0 and 1")
	}
	if c.Agent.MaxTokens < 0 {
		return fmt.Errorf("agent max tokens cannot be negative")
	}
	if c.Agent.MaxSteps < 0 {
		return fmt.Errorf("agent max steps cannot be negative")
	}

	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port %d", c.Gateway.Port)
	}

	if c.Retention.Enabled {
		if c.Retention.MaxAgeDays <= 0 {
			return fmt.Errorf("retention max_age_days must be positive when retention is enabled")
		}
		if c.Retention.Schedule == "" {
			return fmt.Errorf("retention schedule is required when retention is enabled")
		}
	}

	return nil
}
