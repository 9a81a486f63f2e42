package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Trainer  TrainerConfig  `mapstructure:"trainer"`
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Vector   VectorConfig   `mapstructure:"vector"`
	Lineage  LineageConfig  `mapstructure:"lineage"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Log      LogConfig      `mapstructure:"log"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	EmbedModel  string  `mapstructure:"embed_model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	// Per-role overrides. Keys are roles (e.g. "judge", "base",
	// "tuned"). Each override inherits unset fields from the top-level
	// LLM config.
	Roles map[string]LLMRoleOverride `mapstructure:"roles"`
}

// LLMRoleOverride allows per-role provider configuration. The judge
// usually runs on a hosted frontier model while base/tuned point at
// local inference servers.
type LLMRoleOverride struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// ResolveForRole returns an LLMConfig with role-specific overrides applied.
func (c LLMConfig) ResolveForRole(role string) LLMConfig {
	override, ok := c.Roles[role]
	if !ok {
		return c
	}
	resolved := c
	if override.Provider != "" {
		resolved.Provider = override.Provider
	}
	if override.Model != "" {
		resolved.Model = override.Model
	}
	if override.APIKey != "" {
		resolved.APIKey = override.APIKey
	}
	if override.BaseURL != "" {
		resolved.BaseURL = override.BaseURL
	}
	return resolved
}

type TrainerConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	BaseModel    string `mapstructure:"base_model"`
	HubToken     string `mapstructure:"hub_token"`
	PollInterval string `mapstructure:"poll_interval"`
}

type DatasetConfig struct {
	DefaultSystem    string  `mapstructure:"default_system"`
	EvalFraction     float64 `mapstructure:"eval_fraction"`
	Seed             int64   `mapstructure:"seed"`
	Workers          int     `mapstructure:"workers"`
	LengthPercentile float64 `mapstructure:"length_percentile"` // 0 = filter off
}

type VectorConfig struct {
	Host       string  `mapstructure:"host"`
	Port       int     `mapstructure:"port"`
	Collection string  `mapstructure:"collection"`
	Threshold  float64 `mapstructure:"threshold"`
}

type LineageConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TracingConfig struct {
	// OTLPEndpoint enables tracing when set (e.g. "localhost:4317").
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.Dataset.EvalFraction < 0 || c.Dataset.EvalFraction >= 1 {
		warnings = append(warnings, fmt.Sprintf("dataset eval_fraction %.2f is outside [0, 1)", c.Dataset.EvalFraction))
	}
	if c.Dataset.LengthPercentile < 0 || c.Dataset.LengthPercentile > 1 {
		warnings = append(warnings, fmt.Sprintf("dataset length_percentile %.2f is outside [0, 1]", c.Dataset.LengthPercentile))
	}
	if c.Trainer.BaseURL == "" {
		warnings = append(warnings, "trainer base_url is empty; train/merge commands will fail")
	}
	return warnings
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("QUENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("dataset.default_system", "You are a helpful assistant.")
	v.SetDefault("dataset.eval_fraction", 0.05)
	v.SetDefault("dataset.seed", 42)
	v.SetDefault("vector.threshold", 0.95)
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
