package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the application configuration. It is constructed once by Load and
// passed explicitly to whatever needs it; there is no package-level instance.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Reindexer ReindexerConfig `mapstructure:"reindexer"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StorageConfig covers the filesystem root and the resilience knobs for
// NFS-class storage.
type StorageConfig struct {
	Root             string        `mapstructure:"root"`
	RetryMaxAttempts int           `mapstructure:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	HealthTTL        time.Duration `mapstructure:"health_ttl"`
	StartupRequired  bool          `mapstructure:"startup_required"`
}

// UploadConfig bounds what intake accepts.
type UploadConfig struct {
	MaxFileSize int64 `mapstructure:"max_file_size"`
}

// ReindexerConfig configures the optional reindexer-backed document store.
// An empty DSN selects the in-memory store.
type ReindexerConfig struct {
	DSN             string `mapstructure:"dsn"`
	NamespacePrefix string `mapstructure:"namespace_prefix"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from an optional YAML file and DOCINTAKE_-prefixed
// environment variables, applying defaults for anything unset.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DOCINTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.root", "./uploads")
	v.SetDefault("storage.retry_max_attempts", 3)
	v.SetDefault("storage.retry_base_delay", 500*time.Millisecond)
	v.SetDefault("storage.health_ttl", time.Minute)
	v.SetDefault("storage.startup_required", true)

	// 10MB
	v.SetDefault("upload.max_file_size", 10485760)

	v.SetDefault("reindexer.dsn", "")
	v.SetDefault("reindexer.namespace_prefix", "docintake")

	v.SetDefault("logging.level", "info")
}

func validate(cfg *Config) error {
	if cfg.Storage.Root == "" {
		return fmt.Errorf("storage.root is required")
	}
	if cfg.Storage.RetryMaxAttempts < 0 {
		return fmt.Errorf("storage.retry_max_attempts must be non-negative")
	}
	if cfg.Storage.RetryBaseDelay <= 0 {
		return fmt.Errorf("storage.retry_base_delay must be positive")
	}
	if cfg.Storage.HealthTTL <= 0 {
		return fmt.Errorf("storage.health_ttl must be positive")
	}
	if cfg.Upload.MaxFileSize < 1 {
		return fmt.Errorf("upload.max_file_size must be at least 1 byte")
	}
	if cfg.Reindexer.DSN != "" && cfg.Reindexer.NamespacePrefix == "" {
		return fmt.Errorf("reindexer.namespace_prefix is required when a DSN is set")
	}
	return nil
}
