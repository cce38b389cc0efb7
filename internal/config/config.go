// Package config provides configuration management for ferelix using Viper.
// Configuration can be loaded from YAML files and environment variables with
// the FERELIX_ prefix.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values.
const (
	defaultServerPort      = 8096
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 30 * time.Second

	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxIdleTime = 10 * time.Minute

	defaultAccessTokenExpireMinutes = 30
	defaultRefreshTokenExpireDays   = 7

	defaultScanIntervalMinutes = 120
	defaultScanBatchSize       = 10
	defaultGracePeriodDays     = 30

	defaultSegmentDuration  = 6
	defaultSessionMaxAge    = 24 * time.Hour
	defaultProbeTimeout     = 30 * time.Second
	defaultSubtitleTimeout  = 120 * time.Second
	defaultGracefulStopWait = 10 * time.Second
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

/// Address returns the host:port address string.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds filesystem layout configuration.
type StorageConfig struct {
	BaseDir      string `mapstructure:"base_dir"`
	TranscodeDir string `mapstructure:"transcode_dir"` // empty = {base_dir}/transcode
}

// TranscodeRoot returns the transcode working root directory.
func (c StorageConfig) TranscodeRoot() string {
	if c.TranscodeDir != "" {
		return c.TranscodeDir
	}
	return filepath.Join(c.BaseDir, "transcode")
}

// SubtitleCacheDir returns the extracted-subtitle cache directory.
func (c StorageConfig) SubtitleCacheDir() string {
	return filepath.Join(c.TranscodeRoot(), "subtitles")
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// AuthConfig holds token signing configuration.
type AuthConfig struct {
	SecretKey                string `mapstructure:"secret_key" masq:"secret"`
	AccessTokenExpireMinutes int    `mapstructure:"access_token_expire_minutes"`
	RefreshTokenExpireDays   int    `mapstructure:"refresh_token_expire_days"`
}

// AccessTokenTTL returns the access token lifetime.
func (c AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime.
func (c AuthConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireDays) * 24 * time.Hour
}

// ScannerConfig holds library scanner configuration.
type ScannerConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
	BatchSize       int `mapstructure:"batch_size"`
}

// FFmpegConfig holds encoder and probe binary configuration.
type FFmpegConfig struct {
	BinaryPath      string        `mapstructure:"binary_path"` // empty = "ffmpeg" from PATH
	ProbePath       string        `mapstructure:"probe_path"`  // empty = "ffprobe" from PATH
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	HWAccelPriority []string      `mapstructure:"hwaccel_priority"` // nvenc, qsv, vaapi
}

// FFmpegBinary returns the encoder binary path.
func (c FFmpegConfig) FFmpegBinary() string {
	if c.BinaryPath != "" {
		return c.BinaryPath
	}
	return "ffmpeg"
}

// FFprobeBinary returns the probe binary path.
func (c FFmpegConfig) FFprobeBinary() string {
	if c.ProbePath != "" {
		return c.ProbePath
	}
	return "ffprobe"
}

// TranscodeConfig holds transcoding session configuration.
type TranscodeConfig struct {
	SegmentDuration  int           `mapstructure:"segment_duration"`
	SessionMaxAge    time.Duration `mapstructure:"session_max_age"`
	GracefulStopWait time.Duration `mapstructure:"graceful_stop_wait"`
	SubtitleTimeout  time.Duration `mapstructure:"subtitle_timeout"`
}

// CleanupConfig holds soft-delete cleanup configuration.
type CleanupConfig struct {
	GracePeriodDays int `mapstructure:"grace_period_days"`
	ScheduleHour    int `mapstructure:"schedule_hour"`
	ScheduleMinute  int `mapstructure:"schedule_minute"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with FERELIX_, using underscores for nesting.
// Example: FERELIX_SERVER_PORT=8096.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/ferelix")
		v.AddConfigPath("$HOME/.ferelix")
	}

	v.SetEnvPrefix("FERELIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "ferelix.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.transcode_dir", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Auth defaults
	v.SetDefault("auth.secret_key", "")
	v.SetDefault("auth.access_token_expire_minutes", defaultAccessTokenExpireMinutes)
	v.SetDefault("auth.refresh_token_expire_days", defaultRefreshTokenExpireDays)

	// Scanner defaults
	v.SetDefault("scanner.interval_minutes", defaultScanIntervalMinutes)
	v.SetDefault("scanner.batch_size", defaultScanBatchSize)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.probe_timeout", defaultProbeTimeout)
	v.SetDefault("ffmpeg.hwaccel_priority", []string{"nvenc", "qsv", "vaapi"})

	// Transcode defaults
	v.SetDefault("transcode.segment_duration", defaultSegmentDuration)
	v.SetDefault("transcode.session_max_age", defaultSessionMaxAge)
	v.SetDefault("transcode.graceful_stop_wait", defaultGracefulStopWait)
	v.SetDefault("transcode.subtitle_timeout", defaultSubtitleTimeout)

	// Cleanup defaults
	v.SetDefault("cleanup.grace_period_days", defaultGracePeriodDays)
	v.SetDefault("cleanup.schedule_hour", 3)
	v.SetDefault("cleanup.schedule_minute", 0)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Scanner.BatchSize < 1 {
		return fmt.Errorf("scanner batch size must be positive: %d", c.Scanner.BatchSize)
	}
	if c.Transcode.SegmentDuration < 1 {
		return fmt.Errorf("segment duration must be positive: %d", c.Transcode.SegmentDuration)
	}
	if c.Cleanup.GracePeriodDays < 0 {
		return fmt.Errorf("grace period must be non-negative: %d", c.Cleanup.GracePeriodDays)
	}
	if c.Cleanup.ScheduleHour < 0 || c.Cleanup.ScheduleHour > 23 {
		return fmt.Errorf("invalid cleanup hour: %d", c.Cleanup.ScheduleHour)
	}
	if c.Cleanup.ScheduleMinute < 0 || c.Cleanup.ScheduleMinute > 59 {
		return fmt.Errorf("invalid cleanup minute: %d", c.Cleanup.ScheduleMinute)
	}

	return nil
}
