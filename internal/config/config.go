// Package config handles configuration loading and management for backrun.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for backrun.
type Config struct {
	Backlog BacklogConfig `mapstructure:"backlog"`
	State   StateConfig   `mapstructure:"state"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Runner  RunnerConfig  `mapstructure:"runner"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Watch   WatchConfig   `mapstructure:"watch"`
}

// BacklogConfig holds backlog document settings.
type BacklogConfig struct {
	// Path is the backlog markdown file, relative to the project root
	// unless absolute.
	Path string `mapstructure:"path"`
}

// StateConfig holds state database settings.
type StateConfig struct {
	// Path is the SQLite database file, relative to the project root
	// unless absolute. Empty uses .backrun/state.db under the project
	// root.
	Path string `mapstructure:"path"`
}

// EngineConfig holds execution loop settings.
type EngineConfig struct {
	// MaxRetries caps retries per task for transient failures.
	MaxRetries int `mapstructure:"max_retries"`
	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	// BackoffCap bounds the exponential backoff delay.
	BackoffCap time.Duration `mapstructure:"backoff_cap"`
	// ConsecutiveFailureLimit halts a run after this many terminal task
	// failures in a row.
	ConsecutiveFailureLimit int `mapstructure:"consecutive_failure_limit"`
}

// RunnerConfig selects and tunes the task runner.
type RunnerConfig struct {
	// Kind is the runner to use: command, claude, or noop.
	Kind string `mapstructure:"kind"`
	// WorkDir is where command tasks execute. Empty means the project root.
	WorkDir string `mapstructure:"workdir"`
	// Timeout is the per-task execution timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// LLMConfig holds Anthropic API settings for the claude runner.
type LLMConfig struct {
	// Model is the model identifier. Empty uses the runner's default.
	Model string `mapstructure:"model"`
	// APIKey is the Anthropic API key. ${VAR} references are expanded.
	APIKey string `mapstructure:"api_key"`
	// MaxTokens caps the response size per task.
	MaxTokens int64 `mapstructure:"max_tokens"`
	// UseAWSBedrock routes requests through AWS Bedrock instead of the
	// Anthropic API.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region, if set.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the shared AWS config profile, if set.
	AWSProfile string `mapstructure:"aws_profile"`
}

// WatchConfig holds backlog file watching settings.
type WatchConfig struct {
	// Debounce is how long to wait after the last file event before
	// reacting, so editors that write in bursts trigger one reload.
	Debounce time.Duration `mapstructure:"debounce"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (BACKRUN_*, ANTHROPIC_API_KEY)
// 2. Project config (.backrun.yaml in current directory or parent)
// 3. User config (~/.config/backrun/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides: BACKRUN_ENGINE_MAX_RETRIES maps to
	// engine.max_retries, and so on.
	v.SetEnvPrefix("backrun")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map specific environment variables
	v.BindEnv("llm.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("backlog.path", cfg.Backlog.Path)
	v.Set("state.path", cfg.State.Path)
	v.Set("engine.max_retries", cfg.Engine.MaxRetries)
	v.Set("engine.backoff_base", cfg.Engine.BackoffBase.String())
	v.Set("engine.backoff_cap", cfg.Engine.BackoffCap.String())
	v.Set("engine.consecutive_failure_limit", cfg.Engine.ConsecutiveFailureLimit)
	v.Set("runner.kind", cfg.Runner.Kind)
	v.Set("runner.workdir", cfg.Runner.WorkDir)
	v.Set("runner.timeout", cfg.Runner.Timeout.String())
	v.Set("llm.model", cfg.LLM.Model)
	v.Set("llm.api_key", cfg.LLM.APIKey)
	v.Set("llm.max_tokens", cfg.LLM.MaxTokens)
	v.Set("llm.use_aws_bedrock", cfg.LLM.UseAWSBedrock)
	v.Set("llm.aws_region", cfg.LLM.AWSRegion)
	v.Set("llm.aws_profile", cfg.LLM.AWSProfile)
	v.Set("watch.debounce", cfg.Watch.Debounce.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Backlog defaults
	v.SetDefault("backlog.path", "BACKLOG.md")

	// State defaults: empty means the project database.
	v.SetDefault("state.path", "")

	// Engine defaults
	v.SetDefault("engine.max_retries", 3)
	v.SetDefault("engine.backoff_base", "1s")
	v.SetDefault("engine.backoff_cap", "30s")
	v.SetDefault("engine.consecutive_failure_limit", 2)

	// Runner defaults
	v.SetDefault("runner.kind", "command")
	v.SetDefault("runner.workdir", "")
	v.SetDefault("runner.timeout", "10m")

	// LLM defaults
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.use_aws_bedrock", false)

	// Watch defaults
	v.SetDefault("watch.debounce", "500ms")
}

// getUserConfigDir returns the XDG config directory for backrun.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "backrun")
	}

	// Fall back to ~/.config/backrun
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "backrun")
	}
	return filepath.Join(home, ".config", "backrun")
}

// findProjectConfig searches for .backrun.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".backrun.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Backlog: BacklogConfig{
			Path: "BACKLOG.md",
		},
		Engine: EngineConfig{
			MaxRetries:              3,
			BackoffBase:             time.Second,
			BackoffCap:              30 * time.Second,
			ConsecutiveFailureLimit: 2,
		},
		Runner: RunnerConfig{
			Kind:    "command",
			Timeout: 10 * time.Minute,
		},
		LLM: LLMConfig{
			MaxTokens: 8192,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}
