// Package config provides configuration loading and validation for the
// lingfang CLI.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Torimasen-tech/lingfang/internal/llm"
	"github.com/Torimasen-tech/lingfang/internal/prompt"
)

// Sentinel validation errors.
var (
	ErrInvalidProvider       = errors.New("invalid provider")
	ErrMissingModel          = errors.New("model name must not be empty")
	ErrInvalidTimeout        = errors.New("request timeout must be positive")
	ErrInvalidContextMode    = errors.New("invalid context mode")
	ErrInvalidMaxLocations   = errors.New("max locations must not be negative")
	ErrInvalidBackupInterval = errors.New("backup interval must be positive")
	ErrInvalidLogLevel       = errors.New("invalid log level")
	ErrInvalidLogFormat      = errors.New("invalid log format")
	ErrInvalidSampleRatio    = errors.New("sample ratio must be between 0 and 1")
)

// Config holds all configuration for the lingfang CLI.
type Config struct {
	Model      ModelConfig      `mapstructure:"model"`
	Prompt     PromptConfig     `mapstructure:"prompt"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ModelConfig holds chat endpoint configuration.
type ModelConfig struct {
	Provider string `mapstructure:"provider"`
	Name     string `mapstructure:"name"`

	// BaseURL overrides the provider's default endpoint when non-empty.
	BaseURL string `mapstructure:"base_url"`

	// APIKey is usually supplied via LINGFANG_API_KEY rather than the file.
	APIKey string `mapstructure:"api_key"`

	Timeout time.Duration `mapstructure:"timeout"`

	// Retries is the transport retry count; negative disables retries.
	Retries int `mapstructure:"retries"`
}

// PromptConfig holds prompt construction configuration.
type PromptConfig struct {
	System       string `mapstructure:"system"`
	ContextMode  string `mapstructure:"context_mode"`
	MaxLocations int    `mapstructure:"max_locations"`
}

// CheckpointConfig holds resume and flush configuration.
type CheckpointConfig struct {
	BackupInterval int  `mapstructure:"backup_interval"`
	Resume         bool `mapstructure:"resume"`
}

// CacheConfig holds translation memory configuration.
// An empty path disables the cache.
type CacheConfig struct {
	Path      string `mapstructure:"path"`
	FrontSize int    `mapstructure:"front_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds metrics and tracing configuration.
type TelemetryConfig struct {
	MetricsAddr  string  `mapstructure:"metrics_addr"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	Environment  string  `mapstructure:"environment"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	// Set defaults.
	setDefaults(viperCfg)

	// Read config file.
	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("lingfang")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/lingfang")
	}

	// Read environment variables.
	viperCfg.SetEnvPrefix("LINGFANG")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// The API key also answers to the flat LINGFANG_API_KEY name.
	bindErr := viperCfg.BindEnv("model.api_key", "LINGFANG_MODEL_API_KEY", "LINGFANG_API_KEY")
	if bindErr != nil {
		return nil, fmt.Errorf("bind api key env: %w", bindErr)
	}

	// Read config file.
	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// LLMConfig converts the model section into the chat client's config.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		Provider: c.Model.Provider,
		BaseURL:  c.Model.BaseURL,
		APIKey:   c.Model.APIKey,
		Model:    c.Model.Name,
		Timeout:  c.Model.Timeout,
		Retries:  c.Model.Retries,
	}
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Model defaults.
	viperCfg.SetDefault("model.provider", DefaultProvider)
	viperCfg.SetDefault("model.name", DefaultModelName)
	viperCfg.SetDefault("model.base_url", "")
	viperCfg.SetDefault("model.api_key", "")
	viperCfg.SetDefault("model.timeout", llm.DefaultTimeout.String())
	viperCfg.SetDefault("model.retries", llm.DefaultRetries)

	// Prompt defaults.
	viperCfg.SetDefault("prompt.system", prompt.DefaultSystemPrompt)
	viperCfg.SetDefault("prompt.context_mode", string(prompt.ModeCompact))
	viperCfg.SetDefault("prompt.max_locations", prompt.DefaultMaxLocations)

	// Checkpoint defaults.
	viperCfg.SetDefault("checkpoint.backup_interval", DefaultBackupInterval)
	viperCfg.SetDefault("checkpoint.resume", DefaultResume)

	// Cache defaults. Empty path keeps the translation memory off.
	viperCfg.SetDefault("cache.path", "")
	viperCfg.SetDefault("cache.front_size", DefaultCacheFrontSize)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	// Telemetry defaults. Everything off until configured.
	viperCfg.SetDefault("telemetry.metrics_addr", "")
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.sample_ratio", 0.0)
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	switch config.Model.Provider {
	case llm.ProviderOpenAI, llm.ProviderOllama:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, config.Model.Provider)
	}

	if config.Model.Name == "" {
		return ErrMissingModel
	}

	if config.Model.Timeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, config.Model.Timeout)
	}

	if _, err := prompt.ParseMode(config.Prompt.ContextMode); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidContextMode, config.Prompt.ContextMode)
	}

	if config.Prompt.MaxLocations < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxLocations, config.Prompt.MaxLocations)
	}

	if config.Checkpoint.BackupInterval <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBackupInterval, config.Checkpoint.BackupInterval)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	switch config.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Telemetry.SampleRatio < 0 || config.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, config.Telemetry.SampleRatio)
	}

	return nil
}
