package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBytes int64         `yaml:"max_request_bytes"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
}

// DecompositionConfig holds the fitting defaults
type DecompositionConfig struct {
	Workers              int     `yaml:"workers"`
	MaxDataElements      int     `yaml:"max_data_elements"`
	MaxLevels            int     `yaml:"max_levels"`
	RelativeFilterLength float64 `yaml:"relative_filter_length"`
	CornerSharpness      float64 `yaml:"corner_sharpness"`
}

// JobsConfig holds the decomposition job runner configuration
type JobsConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	QueueSize     int           `yaml:"queue_size"`
	Retention     time.Duration `yaml:"retention"`
}

// ArchiveConfig holds result archive configuration
type ArchiveConfig struct {
	Dir string `yaml:"dir"`
}

// ReleaseConfig holds the monthly release tagger configuration
type ReleaseConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Schedule     string `yaml:"schedule"`
	RepoDir      string `yaml:"repo_dir"`
	Remote       string `yaml:"remote"`
	RemoteURL    string `yaml:"remote_url"`
	TokenEnv     string `yaml:"token_env"`
	CheckCommand string `yaml:"check_command"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete configuration for the service
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Decomposition DecompositionConfig `yaml:"decomposition"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Release       ReleaseConfig       `yaml:"release"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied. Useful for
// tests and for running without a config file.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxRequestBytes == 0 {
		cfg.Server.MaxRequestBytes = 64 << 20 // 64MB
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 50
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 100
	}

	if cfg.Decomposition.Workers == 0 {
		cfg.Decomposition.Workers = 4
	}
	if cfg.Decomposition.MaxDataElements == 0 {
		cfg.Decomposition.MaxDataElements = 4_000_000
	}
	if cfg.Decomposition.MaxLevels == 0 {
		cfg.Decomposition.MaxLevels = 8
	}
	if cfg.Decomposition.RelativeFilterLength == 0 {
		cfg.Decomposition.RelativeFilterLength = 2
	}

	if cfg.Jobs.MaxConcurrent == 0 {
		cfg.Jobs.MaxConcurrent = 2
	}
	if cfg.Jobs.QueueSize == 0 {
		cfg.Jobs.QueueSize = 32
	}
	if cfg.Jobs.Retention == 0 {
		cfg.Jobs.Retention = 24 * time.Hour
	}

	if cfg.Archive.Dir == "" {
		cfg.Archive.Dir = "/var/lib/scalesep/archives"
	}

	if cfg.Release.Schedule == "" {
		cfg.Release.Schedule = "20 2 1 * *"
	}
	if cfg.Release.Remote == "" {
		cfg.Release.Remote = "origin"
	}
	if cfg.Release.TokenEnv == "" {
		cfg.Release.TokenEnv = "NDEMO_PAT_TOKEN"
	}
	if cfg.Release.RepoDir == "" {
		cfg.Release.RepoDir = "."
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}
	if c.Decomposition.Workers < 1 {
		return fmt.Errorf("decomposition.workers must be positive")
	}
	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("jobs.max_concurrent must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	return nil
}
