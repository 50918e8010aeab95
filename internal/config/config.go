// Package config provides configuration management for the market data service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Providers     ProvidersConfig    `mapstructure:"providers"`
	Schedule      ScheduleConfig     `mapstructure:"schedule"`
	Feeds         []FeedConfig       `mapstructure:"feeds"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// ProvidersConfig holds external data provider configuration.
// Each provider carries its own timeout budget so a hung call on one
// source never blocks another category's job.
type ProvidersConfig struct {
	Rates  RateProviderConfig  `mapstructure:"rates"`
	Quotes QuoteProviderConfig `mapstructure:"quotes"`
	News   NewsProviderConfig  `mapstructure:"news"`
}

// RateProviderConfig configures the central-bank rate feed.
type RateProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// QuoteProviderConfig configures the equity quote API.
type QuoteProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NewsProviderConfig configures news feed fetching.
type NewsProviderConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxItems     int           `mapstructure:"max_items"`
	DefaultImage string        `mapstructure:"default_image"`
}

// FeedConfig configures one news category's feed URLs.
// BackupURL is optional; when set it is tried after a primary failure.
type FeedConfig struct {
	Category   string `mapstructure:"category"`
	PrimaryURL string `mapstructure:"primary_url"`
	BackupURL  string `mapstructure:"backup_url"`
	SourceName string `mapstructure:"source_name"`
}

// ScheduleConfig holds the periodic job intervals.
type ScheduleConfig struct {
	RateInterval    time.Duration `mapstructure:"rate_interval"`
	QuoteInterval   time.Duration `mapstructure:"quote_interval"`
	NewsInterval    time.Duration `mapstructure:"news_interval"`
	HistoryInterval time.Duration `mapstructure:"history_interval"`
	HistoryDays     int           `mapstructure:"history_days"`
	InitialLoad     bool          `mapstructure:"initial_load"`
	Symbols         []string      `mapstructure:"symbols"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Email   EmailConfig   `mapstructure:"email"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// EmailConfig holds email notification configuration.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// ServerConfig holds the websocket broadcast server configuration.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/mintstack"
	}
	return filepath.Join(home, ".config", "mintstack")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		// Missing config file is fine, defaults apply
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("providers.rates.base_url", "https://www.tcmb.gov.tr/kurlar")
	v.SetDefault("providers.rates.timeout", 15*time.Second)
	v.SetDefault("providers.quotes.base_url", "https://query1.finance.yahoo.com/v8/finance/chart")
	v.SetDefault("providers.quotes.timeout", 10*time.Second)
	v.SetDefault("providers.news.timeout", 20*time.Second)
	v.SetDefault("providers.news.max_items", 10)

	v.SetDefault("schedule.rate_interval", 4*time.Hour)
	v.SetDefault("schedule.quote_interval", 5*time.Minute)
	v.SetDefault("schedule.news_interval", 15*time.Minute)
	v.SetDefault("schedule.history_interval", 24*time.Hour)
	v.SetDefault("schedule.history_days", 7)
	v.SetDefault("schedule.initial_load", true)

	v.SetDefault("server.listen_addr", ":8090")
	v.SetDefault("database.path", filepath.Join(DefaultConfigDir(), "mintstack.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MINTSTACK_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MINTSTACK_SMTP_HOST"); v != "" {
		cfg.Notifications.Email.SMTPHost = v
	}
	if v := os.Getenv("MINTSTACK_SMTP_USERNAME"); v != "" {
		cfg.Notifications.Email.Username = v
	}
	if v := os.Getenv("MINTSTACK_SMTP_PASSWORD"); v != "" {
		cfg.Notifications.Email.Password = v
	}
	if v := os.Getenv("MINTSTACK_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("MINTSTACK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Providers.Rates.Timeout <= 0 {
		return fmt.Errorf("providers.rates.timeout must be positive")
	}
	if c.Providers.Quotes.Timeout <= 0 {
		return fmt.Errorf("providers.quotes.timeout must be positive")
	}
	if c.Providers.News.Timeout <= 0 {
		return fmt.Errorf("providers.news.timeout must be positive")
	}
	if c.Providers.News.MaxItems <= 0 {
		return fmt.Errorf("providers.news.max_items must be positive")
	}
	if c.Schedule.RateInterval <= 0 || c.Schedule.QuoteInterval <= 0 ||
		c.Schedule.NewsInterval <= 0 || c.Schedule.HistoryInterval <= 0 {
		return fmt.Errorf("schedule intervals must be positive")
	}
	for _, feed := range c.Feeds {
		if feed.Category == "" {
			return fmt.Errorf("feed category must not be empty")
		}
		if feed.PrimaryURL == "" {
			return fmt.Errorf("feed %s: primary_url must not be empty", feed.Category)
		}
	}
	return nil
}
