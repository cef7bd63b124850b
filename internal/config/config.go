package config

import (
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultPath is the settings file read when no --config flag is given.
const DefaultPath = "config.yaml"

// Scheduling modes.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// Config holds the full application configuration. Keys are flat so the
// settings file stays a simple key/value document.
type Config struct {
	NumUsers    int    `yaml:"num_users" mapstructure:"num_users"`
	Months      int    `yaml:"months" mapstructure:"months"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
	TxBatchSize int    `yaml:"tx_batch_size" mapstructure:"tx_batch_size"`
	OutputDir   string `yaml:"output_dir" mapstructure:"output_dir"`

	Provider    string  `yaml:"provider" mapstructure:"provider"`
	Model       string  `yaml:"model" mapstructure:"model"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	Seed        int64   `yaml:"seed" mapstructure:"seed"`

	Mode              string  `yaml:"mode" mapstructure:"mode"`
	MaxConcurrency    int     `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`

	CacheTTLSeconds int    `yaml:"cache_ttl_seconds" mapstructure:"cache_ttl_seconds"`
	CachePath       string `yaml:"cache_path" mapstructure:"cache_path"`

	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Log returns the logging section.
func (c *Config) Log() LogConfig {
	return LogConfig{Level: c.LogLevel, Format: c.LogFormat}
}

// CacheTTL returns the response cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Load reads configuration from path and the environment. An empty path
// searches the working directory for config.yaml and tolerates its absence;
// an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("BANKGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("num_users", 500)
	v.SetDefault("months", 6)
	v.SetDefault("batch_size", 50)
	v.SetDefault("tx_batch_size", 1)
	v.SetDefault("output_dir", "data")
	v.SetDefault("provider", "anthropic")
	v.SetDefault("model", "claude-sonnet-4-5-20250929")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 4096)
	v.SetDefault("api_key", "")
	v.SetDefault("seed", 1)
	v.SetDefault("mode", ModeSync)
	v.SetDefault("max_concurrency", 0)
	v.SetDefault("requests_per_second", 0)
	v.SetDefault("cache_ttl_seconds", 3600)
	v.SetDefault("cache_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
