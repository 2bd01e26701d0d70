package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// configDir is the configuration directory path
	// Can be set via SetConfigDir before loading config
	configDir     string
	configDirInit bool
)

// SetConfigDir sets a custom configuration directory
// Must be called before any config loading functions
func SetConfigDir(dir string) {
	configDir = dir
	configDirInit = true
}

// GetConfigDir returns the configuration directory
// Priority: 1. Manually set via SetConfigDir, 2. ./config in current directory
func GetConfigDir() string {
	if !configDirInit {
		// Default to ./config in current working directory
		cwd, err := os.Getwd()
		if err == nil {
			configDir = filepath.Join(cwd, "config")
		}
		configDirInit = true
	}
	return configDir
}

// Remote transports understood by the remote tool proxy
const (
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
	TransportStdio          = "stdio"
)

// Config application configuration structure
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Agent   AgentConfig   `yaml:"agent"`
	Remote  RemoteConfig  `yaml:"remote"`
	Runner  RunnerConfig  `yaml:"runner"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
}

// ModelConfig LLM model configuration
type ModelConfig struct {
	APIKey         string   `yaml:"api_key"`
	BaseURL        string   `yaml:"base_url"`
	Model          string   `yaml:"model"`
	Temperature    *float64 `yaml:"temperature,omitempty"`
	MaxTokens      int      `yaml:"max_tokens"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// AgentConfig agent loop configuration
type AgentConfig struct {
	MaxSteps     int  `yaml:"max_steps"`
	Stream       bool `yaml:"stream"`
	ModelRetries int  `yaml:"model_retries"` // extra attempts after a failed model call
}

// RemoteConfig remote tool server (MCP) configuration
type RemoteConfig struct {
	Enabled               bool     `yaml:"enabled"`
	Transport             string   `yaml:"transport"`
	URL                   string   `yaml:"url,omitempty"`
	Command               string   `yaml:"command,omitempty"`
	Args                  []string `yaml:"args,omitempty"`
	Env                   []string `yaml:"env,omitempty"`
	ToolFilter            []string `yaml:"tool_filter,omitempty"`
	ConnectTimeoutSeconds int      `yaml:"connect_timeout_seconds"`
}

// RunnerConfig external test runner configuration
type RunnerConfig struct {
	Command        []string `yaml:"command"`
	WorkDir        string   `yaml:"workdir,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// HistoryConfig run history configuration
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// LogConfig logging configuration
type LogConfig struct {
	Level   string `yaml:"level"`
	MaxDays int    `yaml:"max_days"`
	Console bool   `yaml:"console"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Model: ModelConfig{
			APIKey:         "",
			BaseURL:        "https://api.openai.com",
			Model:          "gpt-4o",
			MaxTokens:      4096,
			TimeoutSeconds: 120,
		},
		Agent: AgentConfig{
			MaxSteps:     20,
			Stream:       false,
			ModelRetries: 2,
		},
		Remote: RemoteConfig{
			Enabled:               true,
			Transport:             TransportSSE,
			URL:                   "http://localhost:8931/sse",
			ConnectTimeoutSeconds: 30,
		},
		Runner: RunnerConfig{
			Command:        []string{"npx", "playwright"},
			TimeoutSeconds: 600,
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  filepath.Join(homeDir, ".pwtpilot", "history.db"),
		},
		Log: LogConfig{
			Level:   "info",
			MaxDays: 7,
			Console: false,
		},
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	dir := GetConfigDir()
	if dir == "" {
		return "", fmt.Errorf("failed to determine config directory")
	}
	return dir, nil
}

// LogDir returns the log directory path
func LogDir() string {
	dir := GetConfigDir()
	if dir == "" {
		return "logs"
	}
	return filepath.Join(dir, "logs")
}

// ConfigPath returns the configuration file path
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from file and merges with secrets
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create default config
		cfg := DefaultConfig()
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		cfg.mergeSecrets()
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse config
	cfg := DefaultConfig() // Use default values as base
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.mergeSecrets()

	// Validate config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeSecrets fills the API key from the secrets file if the config leaves it empty
func (c *Config) mergeSecrets() {
	secrets, _ := LoadSecrets()
	if secrets == nil || c.Model.APIKey != "" {
		return
	}
	if apiKey := secrets.GetLLMAPIKey(); apiKey != "" {
		c.Model.APIKey = apiKey
	}
}

// Save saves configuration to file
func Save(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure config directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Serialize config
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	// Add header comment
	content := "# pwtpilot configuration file\n# API keys belong in .secrets (LLM_API_KEY=...)\n\n" + string(data)

	// Write file
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate model config
	if c.Model.BaseURL == "" {
		return fmt.Errorf("config error: model.base_url cannot be empty")
	}
	if c.Model.Model == "" {
		return fmt.Errorf("config error: model.model cannot be empty")
	}
	if t := c.Model.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("config error: model.temperature must be between 0 and 2")
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("config error: model.max_tokens must be greater than 0")
	}
	if c.Model.TimeoutSeconds <= 0 {
		return fmt.Errorf("config error: model.timeout_seconds must be greater than 0")
	}

	// Validate agent config
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("config error: agent.max_steps must be greater than 0")
	}
	if c.Agent.ModelRetries < 0 {
		return fmt.Errorf("config error: agent.model_retries cannot be negative")
	}

	// Validate remote config
	if c.Remote.Enabled {
		transport := strings.ToLower(strings.TrimSpace(c.Remote.Transport))
		switch transport {
		case "", TransportSSE, TransportStreamableHTTP:
			if strings.TrimSpace(c.Remote.URL) == "" {
				return fmt.Errorf("config error: remote.url cannot be empty for %s transport", c.Remote.TransportName())
			}
		case TransportStdio:
			if strings.TrimSpace(c.Remote.Command) == "" {
				return fmt.Errorf("config error: remote.command cannot be empty for stdio transport")
			}
		default:
			return fmt.Errorf("config error: remote.transport %q is not supported (sse, streamable-http, stdio)", c.Remote.Transport)
		}
		if c.Remote.ConnectTimeoutSeconds <= 0 {
			return fmt.Errorf("config error: remote.connect_timeout_seconds must be greater than 0")
		}
	}

	// Validate runner config
	if len(c.Runner.Command) == 0 || strings.TrimSpace(c.Runner.Command[0]) == "" {
		return fmt.Errorf("config error: runner.command cannot be empty")
	}
	if c.Runner.TimeoutSeconds < 0 {
		return fmt.Errorf("config error: runner.timeout_seconds cannot be negative")
	}

	// Validate history config
	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("config error: history.db_path cannot be empty")
	}

	return nil
}

// TransportName returns the normalized transport, defaulting to sse
func (r RemoteConfig) TransportName() string {
	transport := strings.ToLower(strings.TrimSpace(r.Transport))
	if transport == "" {
		return TransportSSE
	}
	return transport
}

// IsAPIKeyConfigured checks if API key is configured
func (c *Config) IsAPIKeyConfigured() bool {
	return c.Model.APIKey != ""
}

// String returns string representation of config (hides sensitive info)
func (c *Config) String() string {
	temperature := "(model default)"
	if c.Model.Temperature != nil {
		temperature = fmt.Sprintf("%.1f", *c.Model.Temperature)
	}

	endpoint := c.Remote.URL
	if c.Remote.TransportName() == TransportStdio {
		endpoint = strings.TrimSpace(c.Remote.Command + " " + strings.Join(c.Remote.Args, " "))
	}

	return fmt.Sprintf(`pwtpilot Configuration:
  Model:
    API Key: %s
    Base URL: %s
    Model: %s
    Temperature: %s
    Max Tokens: %d
  Agent:
    Max Steps: %d
    Stream: %v
    Model Retries: %d
  Remote Tools:
    Enabled: %v
    Transport: %s
    Endpoint: %s
  Runner:
    Command: %s test <specFile>
    Timeout Seconds: %d
  History:
    Enabled: %v
    DB Path: %s
  Log:
    Level: %s
    Max Days: %d`,
		redactAPIKey(c.Model.APIKey),
		c.Model.BaseURL,
		c.Model.Model,
		temperature,
		c.Model.MaxTokens,
		c.Agent.MaxSteps,
		c.Agent.Stream,
		c.Agent.ModelRetries,
		c.Remote.Enabled,
		c.Remote.TransportName(),
		endpoint,
		strings.Join(c.Runner.Command, " "),
		c.Runner.TimeoutSeconds,
		c.History.Enabled,
		c.History.DBPath,
		c.Log.Level,
		c.Log.MaxDays,
	)
}

func redactAPIKey(value string) string {
	if value == "" {
		return "(not configured)"
	}
	if len(value) > 8 {
		return value[:8] + "..."
	}
	return "***"
}
