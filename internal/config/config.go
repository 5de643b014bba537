// Package config provides configuration management for the stock monitor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "nse-monitor/internal/errors"
	"nse-monitor/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Store         StoreConfig        `mapstructure:"store"`
	Fetcher       FetcherConfig      `mapstructure:"fetcher"`
	Monitor       MonitorConfig      `mapstructure:"monitor"`
	Alerts        AlertsConfig       `mapstructure:"alerts"`
	Server        ServerConfig       `mapstructure:"server"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Redis         RedisConfig        `mapstructure:"redis"`
	Logging       LoggingConfig      `mapstructure:"logging"`

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// StoreConfig selects where thresholds are persisted.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"` // json, sqlite
	Path       string `mapstructure:"path"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// FetcherConfig holds upstream quote source settings.
type FetcherConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	QuotePath      string        `mapstructure:"quote_path"`
	UserAgent      string        `mapstructure:"user_agent"`
	PrimeTimeout   time.Duration `mapstructure:"prime_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffJitter  time.Duration `mapstructure:"backoff_jitter"`
	ThrottleMin    time.Duration `mapstructure:"throttle_min"`
	ThrottleMax    time.Duration `mapstructure:"throttle_max"`
	PrimeDelayMin  time.Duration `mapstructure:"prime_delay_min"`
	PrimeDelayMax  time.Duration `mapstructure:"prime_delay_max"`
}

// MonitorConfig holds the monitoring loop cadence and market calendar.
type MonitorConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	CLIInterval       time.Duration `mapstructure:"cli_interval"`
	Timezone          string        `mapstructure:"timezone"`
	Open              string        `mapstructure:"open"`
	Close             string        `mapstructure:"close"`
	Holidays          []string      `mapstructure:"holidays"`
	IgnoreMarketHours bool          `mapstructure:"ignore_market_hours"`
}

// AlertsConfig holds the alert log settings.
type AlertsConfig struct {
	LogFile   string `mapstructure:"log_file"`
	TailLines int    `mapstructure:"tail_lines"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// RedisConfig holds the optional Redis price sink configuration.
type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	KeyPrefix     string `mapstructure:"key_prefix"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
	NoColor  bool   `mapstructure:"no_color"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/nse-monitor"
	}
	return filepath.Join(home, ".config", "nse-monitor")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", "json")
	v.SetDefault("store.path", "stock_config.json")
	v.SetDefault("store.sqlite_path", "monitor.db")

	v.SetDefault("fetcher.base_url", "https://www.nseindia.com")
	v.SetDefault("fetcher.quote_path", "/api/quote-equity")
	v.SetDefault("fetcher.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("fetcher.prime_timeout", "5s")
	v.SetDefault("fetcher.request_timeout", "10s")
	v.SetDefault("fetcher.max_attempts", 3)
	v.SetDefault("fetcher.backoff_base", "500ms")
	v.SetDefault("fetcher.backoff_jitter", "500ms")
	v.SetDefault("fetcher.throttle_min", "300ms")
	v.SetDefault("fetcher.throttle_max", "1s")
	v.SetDefault("fetcher.prime_delay_min", "200ms")
	v.SetDefault("fetcher.prime_delay_max", "600ms")

	v.SetDefault("monitor.interval", "1m")
	v.SetDefault("monitor.cli_interval", "5m")
	v.SetDefault("monitor.timezone", "Asia/Kolkata")
	v.SetDefault("monitor.open", "09:15")
	v.SetDefault("monitor.close", "15:30")
	v.SetDefault("monitor.holidays", []string{})
	v.SetDefault("monitor.ignore_market_hours", false)

	v.SetDefault("alerts.log_file", "stock_alerts.log")
	v.SetDefault("alerts.tail_lines", 20)

	v.SetDefault("server.listen", ":5000")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "stock:")
	v.SetDefault("redis.channel_prefix", "prices.")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join("logs", "monitor.log"))
}

// Default returns the built-in configuration rooted at configDir, without
// reading any file or environment.
func Default(configDir string) *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults are well-formed; a decode failure here is a programming error.
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("decoding default config: %v", err))
	}
	cfg.Dir = configDir
	cfg.resolvePaths()
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by a commented template and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env in the working directory first, then the config dir; existing
	// environment variables always win.
	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, fmt.Errorf("creating config template: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Dir = configDir

	applyEnvOverrides(cfg)
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NSE_MONITOR_STATE_FILE"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("NSE_MONITOR_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("NSE_MONITOR_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
		cfg.Notifications.Webhook.Enabled = true
	}
	token, chatID := os.Getenv("NSE_MONITOR_TELEGRAM_TOKEN"), os.Getenv("NSE_MONITOR_TELEGRAM_CHAT_ID")
	if token != "" {
		cfg.Notifications.Telegram.BotToken = token
	}
	if chatID != "" {
		cfg.Notifications.Telegram.ChatID = chatID
	}
	if token != "" && chatID != "" {
		cfg.Notifications.Telegram.Enabled = true
	}
	if v := os.Getenv("NSE_MONITOR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("NSE_MONITOR_IGNORE_MARKET_HOURS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Monitor.IgnoreMarketHours = b
		}
	}
}

// resolvePaths anchors relative file paths at the config directory.
func (c *Config) resolvePaths() {
	c.Store.Path = c.resolve(c.Store.Path)
	c.Store.SQLitePath = c.resolve(c.Store.SQLitePath)
	c.Alerts.LogFile = c.resolve(c.Alerts.LogFile)
	c.Logging.FilePath = c.resolve(c.Logging.FilePath)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "json", "sqlite":
	default:
		return invalid("store.backend %q (must be 'json' or 'sqlite')", c.Store.Backend)
	}

	if c.Fetcher.BaseURL == "" {
		return invalid("fetcher.base_url is required")
	}
	if c.Fetcher.MaxAttempts < 1 {
		return invalid("fetcher.max_attempts must be at least 1")
	}
	if c.Fetcher.RequestTimeout <= 0 || c.Fetcher.PrimeTimeout <= 0 {
		return invalid("fetcher timeouts must be positive")
	}
	if c.Fetcher.ThrottleMax < c.Fetcher.ThrottleMin {
		return invalid("fetcher.throttle_max must not be below throttle_min")
	}
	if c.Fetcher.PrimeDelayMax < c.Fetcher.PrimeDelayMin {
		return invalid("fetcher.prime_delay_max must not be below prime_delay_min")
	}

	if c.Monitor.Interval <= 0 || c.Monitor.CLIInterval <= 0 {
		return invalid("monitor intervals must be positive")
	}
	if _, err := time.LoadLocation(c.Monitor.Timezone); err != nil {
		return invalid("monitor.timezone %q: %v", c.Monitor.Timezone, err)
	}
	open, err := ParseClock(c.Monitor.Open)
	if err != nil {
		return invalid("monitor.open: %v", err)
	}
	closing, err := ParseClock(c.Monitor.Close)
	if err != nil {
		return invalid("monitor.close: %v", err)
	}
	if open >= closing {
		return invalid("monitor.open must be before monitor.close")
	}
	for _, h := range c.Monitor.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return invalid("monitor.holidays: %q is not YYYY-MM-DD", h)
		}
	}

	if c.Alerts.TailLines < 1 {
		return invalid("alerts.tail_lines must be at least 1")
	}

	return nil
}

// LogConfig converts the logging section into a logger configuration.
func (c *Config) LogConfig() logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.Level = c.Logging.Level
	lc.File = c.Logging.File
	lc.NoColor = c.Logging.NoColor
	if c.Logging.FilePath != "" {
		lc.FilePath = c.Logging.FilePath
	}
	return lc
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%q has an invalid hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%q has an invalid minute", s)
	}
	return h*60 + m, nil
}

func invalid(format string, args ...interface{}) error {
	return apperrors.Wrapf(apperrors.ErrConfigInvalid, format, args...)
}
