package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultInstruction is the fixed system instruction sent with every task
const DefaultInstruction = `You are a test automation engineer who writes Playwright tests in TypeScript.

Rules:
- Use the browser tools to open the target page and discover stable selectors before writing any test. Prefer role, label and test-id locators.
- Produce at most one test file per task. Put it under the tests/ directory and name it <feature>.spec.ts.
- Never print the test code in your answer. Write it only through the edit_file tool.
- Use create_directory before writing into a directory that may not exist.
- Do not list or read .git or node_modules.
- After writing the file, run it with run_pwt. If tests fail, read the output, fix the file with edit_file and run it again.
- Keep to the scope of the task. Do not modify unrelated files.
- Finish with a short summary: the file path, what the test covers, and whether it passes.`

// PromptConfig prompt configuration structure
type PromptConfig struct {
	Instruction string `yaml:"instruction"`
	ErrorPrefix string `yaml:"error_prefix"`
}

// DefaultPromptConfig returns default prompt configuration
func DefaultPromptConfig() *PromptConfig {
	return &PromptConfig{
		Instruction: DefaultInstruction,
		ErrorPrefix: "Error",
	}
}

// PromptConfigPath returns the prompt config file path
func PromptConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "prompt.yaml"), nil
}

// LoadPromptConfig loads prompt configuration from file, falling back to defaults
func LoadPromptConfig() (*PromptConfig, error) {
	configPath, err := PromptConfigPath()
	if err != nil {
		return DefaultPromptConfig(), nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultPromptConfig(), nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt config: %w", err)
	}

	// Parse config
	cfg := DefaultPromptConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse prompt config: %w", err)
	}
	if strings.TrimSpace(cfg.Instruction) == "" {
		return nil, fmt.Errorf("prompt config error: instruction cannot be empty")
	}

	return cfg, nil
}

// GetInstruction returns the system instruction
func (p *PromptConfig) GetInstruction() string {
	return strings.TrimSpace(p.Instruction)
}

// GetErrorPrefix returns the prefix used when a tool dispatch fails
func (p *PromptConfig) GetErrorPrefix() string {
	if p.ErrorPrefix == "" {
		return "Error"
	}
	return p.ErrorPrefix
}
