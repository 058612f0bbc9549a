package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/backrun/internal/config"
)

var configPathFlag string

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify backrun configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/backrun/config.yaml
Project-specific overrides can be placed in .backrun.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: runConfig,
}

func init() {
	configCmd.Flags().StringVar(&configPathFlag, "config", "", "config file to read (default from the usual places)")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPathFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	switch len(args) {
	case 0:
		displayAllConfig(cfg)
		return nil
	case 1:
		return displayConfigKey(cfg, args[0])
	default:
		return setConfigKey(cfg, args[0], args[1])
	}
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	apiKey := config.MaskAPIKey(cfg.LLM.APIKey)
	if src := config.GetAPIKeySource(cfg); src != config.KeySourceNone {
		apiKey = fmt.Sprintf("%s (%s)", apiKey, src)
	}

	fmt.Printf("backlog.path: %s\n", cfg.Backlog.Path)
	fmt.Printf("state.path: %s\n", displayString(cfg.State.Path))
	fmt.Printf("engine.max_retries: %d\n", cfg.Engine.MaxRetries)
	fmt.Printf("engine.backoff_base: %s\n", cfg.Engine.BackoffBase)
	fmt.Printf("engine.backoff_cap: %s\n", cfg.Engine.BackoffCap)
	fmt.Printf("engine.consecutive_failure_limit: %d\n", cfg.Engine.ConsecutiveFailureLimit)
	fmt.Printf("runner.kind: %s\n", cfg.Runner.Kind)
	fmt.Printf("runner.workdir: %s\n", displayString(cfg.Runner.WorkDir))
	fmt.Printf("runner.timeout: %s\n", cfg.Runner.Timeout)
	fmt.Printf("llm.model: %s\n", displayString(cfg.LLM.Model))
	fmt.Printf("llm.api_key: %s\n", apiKey)
	fmt.Printf("llm.max_tokens: %d\n", cfg.LLM.MaxTokens)
	fmt.Printf("llm.use_aws_bedrock: %t\n", cfg.LLM.UseAWSBedrock)
	fmt.Printf("llm.aws_region: %s\n", displayString(cfg.LLM.AWSRegion))
	fmt.Printf("llm.aws_profile: %s\n", displayString(cfg.LLM.AWSProfile))
	fmt.Printf("watch.debounce: %s\n", cfg.Watch.Debounce)
}

// displayString renders empty optional values readably.
func displayString(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) error {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) error {
	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "backlog.path":
		return cfg.Backlog.Path, nil
	case "state.path":
		return displayString(cfg.State.Path), nil
	case "engine.max_retries":
		return strconv.Itoa(cfg.Engine.MaxRetries), nil
	case "engine.backoff_base":
		return cfg.Engine.BackoffBase.String(), nil
	case "engine.backoff_cap":
		return cfg.Engine.BackoffCap.String(), nil
	case "engine.consecutive_failure_limit":
		return strconv.Itoa(cfg.Engine.ConsecutiveFailureLimit), nil
	case "runner.kind":
		return cfg.Runner.Kind, nil
	case "runner.workdir":
		return displayString(cfg.Runner.WorkDir), nil
	case "runner.timeout":
		return cfg.Runner.Timeout.String(), nil
	case "llm.model":
		return displayString(cfg.LLM.Model), nil
	case "llm.api_key":
		return config.MaskAPIKey(cfg.LLM.APIKey), nil
	case "llm.max_tokens":
		return strconv.FormatInt(cfg.LLM.MaxTokens, 10), nil
	case "llm.use_aws_bedrock":
		return strconv.FormatBool(cfg.LLM.UseAWSBedrock), nil
	case "llm.aws_region":
		return displayString(cfg.LLM.AWSRegion), nil
	case "llm.aws_profile":
		return displayString(cfg.LLM.AWSProfile), nil
	case "watch.debounce":
		return cfg.Watch.Debounce.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "backlog.path":
		cfg.Backlog.Path = value
	case "state.path":
		cfg.State.Path = value
	case "engine.max_retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_retries: %w", err)
		}
		cfg.Engine.MaxRetries = n
	case "engine.backoff_base":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for backoff_base: %w", err)
		}
		cfg.Engine.BackoffBase = d
	case "engine.backoff_cap":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for backoff_cap: %w", err)
		}
		cfg.Engine.BackoffCap = d
	case "engine.consecutive_failure_limit":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for consecutive_failure_limit: %w", err)
		}
		cfg.Engine.ConsecutiveFailureLimit = n
	case "runner.kind":
		switch value {
		case "command", "claude", "noop":
			cfg.Runner.Kind = value
		default:
			return fmt.Errorf("unknown runner %q (expected command, claude, or noop)", value)
		}
	case "runner.workdir":
		cfg.Runner.WorkDir = value
	case "runner.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for runner.timeout: %w", err)
		}
		cfg.Runner.Timeout = d
	case "llm.model":
		cfg.LLM.Model = value
	case "llm.api_key":
		if err := config.ValidateAPIKey(value); err != nil {
			return err
		}
		cfg.LLM.APIKey = value
	case "llm.max_tokens":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for max_tokens: %w", err)
		}
		cfg.LLM.MaxTokens = n
	case "llm.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_aws_bedrock: %w", err)
		}
		cfg.LLM.UseAWSBedrock = b
	case "llm.aws_region":
		cfg.LLM.AWSRegion = value
	case "llm.aws_profile":
		cfg.LLM.AWSProfile = value
	case "watch.debounce":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for watch.debounce: %w", err)
		}
		cfg.Watch.Debounce = d
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
