package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PWTPILOT_MODEL_API_KEY
const EnvPrefix = "PWTPILOT"

// Override keys. Flags bound with viper.BindPFlag must use the same keys.
const (
	KeyModelAPIKey      = "model.api_key"
	KeyModelBaseURL     = "model.base_url"
	KeyModel            = "model.model"
	KeyModelTemperature = "model.temperature"
	KeyAgentMaxSteps    = "agent.max_steps"
	KeyAgentStream      = "agent.stream"
	KeyAgentRetries     = "agent.model_retries"
	KeyRemoteEnabled    = "remote.enabled"
	KeyRemoteTransport  = "remote.transport"
	KeyRemoteURL        = "remote.url"
	KeyRunnerWorkDir    = "runner.workdir"
	KeyHistoryEnabled   = "history.enabled"
	KeyLogLevel         = "log.level"
)

// NewViper returns a viper instance reading PWTPILOT_* environment variables
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies every key set in v (environment or changed flag) over cfg
// and re-validates the result
func ApplyOverrides(cfg *Config, v *viper.Viper) error {
	if v == nil {
		return nil
	}

	if v.IsSet(KeyModelAPIKey) {
		cfg.Model.APIKey = v.GetString(KeyModelAPIKey)
	}
	if v.IsSet(KeyModelBaseURL) {
		cfg.Model.BaseURL = v.GetString(KeyModelBaseURL)
	}
	if v.IsSet(KeyModel) {
		cfg.Model.Model = v.GetString(KeyModel)
	}
	if v.IsSet(KeyModelTemperature) {
		t := v.GetFloat64(KeyModelTemperature)
		cfg.Model.Temperature = &t
	}
	if v.IsSet(KeyAgentMaxSteps) {
		cfg.Agent.MaxSteps = v.GetInt(KeyAgentMaxSteps)
	}
	if v.IsSet(KeyAgentStream) {
		cfg.Agent.Stream = v.GetBool(KeyAgentStream)
	}
	if v.IsSet(KeyAgentRetries) {
		cfg.Agent.ModelRetries = v.GetInt(KeyAgentRetries)
	}
	if v.IsSet(KeyRemoteEnabled) {
		cfg.Remote.Enabled = v.GetBool(KeyRemoteEnabled)
	}
	if v.IsSet(KeyRemoteTransport) {
		cfg.Remote.Transport = v.GetString(KeyRemoteTransport)
	}
	if v.IsSet(KeyRemoteURL) {
		cfg.Remote.URL = v.GetString(KeyRemoteURL)
	}
	if v.IsSet(KeyRunnerWorkDir) {
		cfg.Runner.WorkDir = v.GetString(KeyRunnerWorkDir)
	}
	if v.IsSet(KeyHistoryEnabled) {
		cfg.History.Enabled = v.GetBool(KeyHistoryEnabled)
	}
	if v.IsSet(KeyLogLevel) {
		cfg.Log.Level = v.GetString(KeyLogLevel)
	}

	return cfg.Validate()
}
