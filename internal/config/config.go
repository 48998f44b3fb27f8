package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"clearpoint-monitor/internal/api"
	"clearpoint-monitor/internal/database"
	"clearpoint-monitor/internal/monitoring"
	"clearpoint-monitor/internal/queue"
)

// Config represents the monitor configuration
type Config struct {
	Database   database.Config  `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Notifier   NotifierConfig   `mapstructure:"notifier"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

// RedisConfig configures the optional notification queue
type RedisConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	queue.Config `mapstructure:",squash"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // seconds
}

// AuthConfig holds API credentials settings
type AuthConfig struct {
	JWTSecret         string `mapstructure:"jwt_secret"`
	DeviceTokenHeader string `mapstructure:"device_token_header"`
}

// MonitoringConfig holds the fallback settings and engine tuning
type MonitoringConfig struct {
	monitoring.Settings `mapstructure:",squash"`

	FetchConcurrency int `mapstructure:"fetch_concurrency"`
	CycleTimeout     int `mapstructure:"cycle_timeout"` // seconds
}

// NotifierConfig selects the notification channels
type NotifierConfig struct {
	LogEnabled     bool   `mapstructure:"log_enabled"`
	FileEnabled    bool   `mapstructure:"file_enabled"`
	FilePath       string `mapstructure:"file_path"`
	WebhookURL     string `mapstructure:"webhook_url"`
	WebhookToken   string `mapstructure:"webhook_token"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	WebhookTimeout int    `mapstructure:"webhook_timeout"` // seconds
	WebhookRetries int    `mapstructure:"webhook_retries"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	apiDefaults := api.DefaultConfig()
	webhook := monitoring.DefaultWebhookConfig()

	return &Config{
		Database: database.Config{
			Driver:       string(database.DialectSQLite),
			Path:         "./clearpoint.db",
			Host:         "localhost",
			Port:         5432,
			Name:         "clearpoint",
			User:         "clearpoint",
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			MaxLifetime:  300,
		},
		Redis: RedisConfig{
			Enabled: false,
			Config: queue.Config{
				Addr:      "localhost:6379",
				PoolSize:  10,
				QueueName: queue.DefaultQueueName,
				MaxLength: 10000,
			},
		},
		Server: ServerConfig{
			Host:         apiDefaults.Host,
			Port:         apiDefaults.Port,
			ReadTimeout:  apiDefaults.ReadTimeout,
			WriteTimeout: apiDefaults.WriteTimeout,
			IdleTimeout:  apiDefaults.IdleTimeout,
		},
		Auth: AuthConfig{
			DeviceTokenHeader: api.DefaultDeviceTokenHeader,
		},
		Monitoring: MonitoringConfig{
			Settings:         monitoring.DefaultSettings(),
			FetchConcurrency: 8,
			CycleTimeout:     300,
		},
		Notifier: NotifierConfig{
			LogEnabled:     true,
			WebhookTimeout: int(webhook.Timeout / time.Second),
			WebhookRetries: webhook.RetryAttempts,
		},
		LogLevel: "info",
		LogFile:  "",
	}
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/clearpoint-monitor")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".clearpoint-monitor"))
		}
	}

	// CLEARPOINT_DATABASE_DRIVER overrides database.driver
	v.SetEnvPrefix("CLEARPOINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so environment overrides work without a file
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.name", cfg.Database.Name)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.max_lifetime", cfg.Database.MaxLifetime)

	v.SetDefault("redis.enabled", cfg.Redis.Enabled)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.pool_size", cfg.Redis.PoolSize)
	v.SetDefault("redis.queue_name", cfg.Redis.QueueName)
	v.SetDefault("redis.max_length", cfg.Redis.MaxLength)

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)

	v.SetDefault("auth.jwt_secret", cfg.Auth.JWTSecret)
	v.SetDefault("auth.device_token_header", cfg.Auth.DeviceTokenHeader)

	m := cfg.Monitoring
	v.SetDefault("monitoring.health_check_timeout_seconds", m.HealthCheckTimeoutSeconds)
	v.SetDefault("monitoring.stream_check_timeout_seconds", m.StreamCheckTimeoutSeconds)
	v.SetDefault("monitoring.critical_alert_threshold_minutes", m.CriticalAlertThresholdMinutes)
	v.SetDefault("monitoring.notifications_enabled", m.NotificationsEnabled)
	v.SetDefault("monitoring.admin_recipient", m.AdminRecipient)
	v.SetDefault("monitoring.monitoring_interval_minutes", m.MonitoringIntervalMinutes)
	v.SetDefault("monitoring.alert_retention_days", m.AlertRetentionDays)
	v.SetDefault("monitoring.fetch_concurrency", m.FetchConcurrency)
	v.SetDefault("monitoring.cycle_timeout", m.CycleTimeout)

	v.SetDefault("notifier.log_enabled", cfg.Notifier.LogEnabled)
	v.SetDefault("notifier.file_enabled", cfg.Notifier.FileEnabled)
	v.SetDefault("notifier.file_path", cfg.Notifier.FilePath)
	v.SetDefault("notifier.webhook_url", cfg.Notifier.WebhookURL)
	v.SetDefault("notifier.webhook_token", cfg.Notifier.WebhookToken)
	v.SetDefault("notifier.webhook_secret", cfg.Notifier.WebhookSecret)
	v.SetDefault("notifier.webhook_timeout", cfg.Notifier.WebhookTimeout)
	v.SetDefault("notifier.webhook_retries", cfg.Notifier.WebhookRetries)

	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch database.Dialect(c.Database.Driver) {
	case database.DialectSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite3")
		}
	case database.DialectPostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be one of: sqlite3, postgres")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	m := c.Monitoring
	if m.HealthCheckTimeoutSeconds <= 0 {
		return fmt.Errorf("monitoring.health_check_timeout_seconds must be positive")
	}
	if m.CriticalAlertThresholdMinutes <= 0 {
		return fmt.Errorf("monitoring.critical_alert_threshold_minutes must be positive")
	}
	if m.MonitoringIntervalMinutes <= 0 {
		return fmt.Errorf("monitoring.monitoring_interval_minutes must be positive")
	}
	if m.AlertRetentionDays <= 0 {
		return fmt.Errorf("monitoring.alert_retention_days must be positive")
	}
	if m.FetchConcurrency <= 0 {
		return fmt.Errorf("monitoring.fetch_concurrency must be positive")
	}

	if c.Notifier.WebhookTimeout < 0 {
		return fmt.Errorf("notifier.webhook_timeout must not be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}

	return nil
}

// APIConfig returns the HTTP server configuration
func (c *Config) APIConfig() api.Config {
	return api.Config{
		Host:              c.Server.Host,
		Port:              c.Server.Port,
		ReadTimeout:       c.Server.ReadTimeout,
		WriteTimeout:      c.Server.WriteTimeout,
		IdleTimeout:       c.Server.IdleTimeout,
		JWTSecret:         c.Auth.JWTSecret,
		DeviceTokenHeader: c.Auth.DeviceTokenHeader,
	}
}

// NotifierSettings converts the notifier section for the notifier factory
func (c *Config) NotifierSettings() monitoring.NotifierConfig {
	webhook := monitoring.DefaultWebhookConfig()
	webhook.URL = c.Notifier.WebhookURL
	webhook.Token = c.Notifier.WebhookToken
	webhook.SigningSecret = c.Notifier.WebhookSecret
	if c.Notifier.WebhookTimeout > 0 {
		webhook.Timeout = time.Duration(c.Notifier.WebhookTimeout) * time.Second
	}
	if c.Notifier.WebhookRetries > 0 {
		webhook.RetryAttempts = c.Notifier.WebhookRetries
	}

	return monitoring.NotifierConfig{
		LogEnabled:  c.Notifier.LogEnabled,
		FileEnabled: c.Notifier.FileEnabled,
		FilePath:    c.Notifier.FilePath,
		Webhook:     webhook,
	}
}

// CycleTimeout returns the bound on a single scheduled cycle
func (c *Config) CycleTimeout() time.Duration {
	return time.Duration(c.Monitoring.CycleTimeout) * time.Second
}
