package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rewired-gh/marketpulse/internal/models"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Market    MarketConfig    `mapstructure:"market"`
	Assets    []models.Asset  `mapstructure:"assets"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Narrative NarrativeConfig `mapstructure:"narrative"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Report    ReportConfig    `mapstructure:"report"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// MarketConfig holds quote provider configuration
type MarketConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Range       string        `mapstructure:"range"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// MonitorConfig holds the VIX neutral band
type MonitorConfig struct {
	VIXCalm   float64 `mapstructure:"vix_calm"`
	VIXStress float64 `mapstructure:"vix_stress"`
}

// NarrativeConfig holds the commentary model configuration
type NarrativeConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken  string        `mapstructure:"bot_token"`
	ChatID    string        `mapstructure:"chat_id"`
	Enabled   bool          `mapstructure:"enabled"`
	ParseMode string        `mapstructure:"parse_mode"` // "MarkdownV2" or "plain"
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ReportConfig holds message layout configuration
type ReportConfig struct {
	Title          string `mapstructure:"title"`
	MaxLength      int    `mapstructure:"max_length"`
	NarrativeLimit int    `mapstructure:"narrative_limit"`
}

// StorageConfig holds snapshot persistence configuration
type StorageConfig struct {
	Backend   string `mapstructure:"backend"` // "csv" or "sqlite"
	Dir       string `mapstructure:"dir"`
	DBPath    string `mapstructure:"db_path"`
	Overwrite bool   `mapstructure:"overwrite"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultAssets is the built-in quote universe.
func DefaultAssets() []models.Asset {
	return []models.Asset{
		{Group: "indices", Asset: models.SP500, Symbol: "^GSPC"},
		{Group: "indices", Asset: "NASDAQ", Symbol: "^IXIC"},
		{Group: "indices", Asset: "DAX", Symbol: "^GDAXI"},
		{Group: "indices", Asset: "NIKKEI", Symbol: "^N225"},
		{Group: "volatility", Asset: models.VIX, Symbol: "^VIX"},
		{Group: "bonds", Asset: models.US10Y, Symbol: "^TNX"},
		{Group: "fx", Asset: models.DXY, Symbol: "DX-Y.NYB"},
		{Group: "fx", Asset: "EURUSD", Symbol: "EURUSD=X"},
		{Group: "fx", Asset: "USDJPY", Symbol: "JPY=X"},
		{Group: "commodities", Asset: models.BRENT, Symbol: "BZ=F"},
		{Group: "commodities", Asset: "GOLD", Symbol: "GC=F"},
		{Group: "commodities", Asset: "SILVER", Symbol: "SI=F"},
		{Group: "crypto", Asset: "BTC", Symbol: "BTC-USD"},
		{Group: "crypto", Asset: "ETH", Symbol: "ETH-USD"},
		{Group: "stocks", Asset: "TESLA", Symbol: "TSLA"},
		{Group: "stocks", Asset: "NVIDIA", Symbol: "NVDA"},
		{Group: "stocks", Asset: "APPLE", Symbol: "AAPL"},
		{Group: "stocks", Asset: "MICROSOFT", Symbol: "MSFT"},
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from file and environment variables.
// A missing file is not an error; defaults and environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g. MARKETPULSE_TELEGRAM_CHAT_ID
	v.SetEnvPrefix("MARKETPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindAliases(v); err != nil {
		return nil, err
	}

	// Read config file
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Assets) == 0 {
		cfg.Assets = DefaultAssets()
	}

	return &cfg, nil
}

// bindAliases maps the conventional credential variables onto config keys.
func bindAliases(v *viper.Viper) error {
	aliases := map[string]string{
		"telegram.bot_token": "TELEGRAM_BOT_TOKEN",
		"telegram.chat_id":   "TELEGRAM_CHAT_ID",
		"narrative.api_key":  "OPENAI_API_KEY",
		"narrative.base_url": "OPENAI_BASE_URL",
		"market.base_url":    "MARKET_DATA_BASE_URL",
	}
	for key, env := range aliases {
		prefixed := "MARKETPULSE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Market defaults
	v.SetDefault("market.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("market.range", "5d")
	v.SetDefault("market.timeout", "10s")
	v.SetDefault("market.min_interval", "250ms")

	// Monitor defaults
	v.SetDefault("monitor.vix_calm", 18.0)
	v.SetDefault("monitor.vix_stress", 25.0)

	// Narrative defaults
	v.SetDefault("narrative.api_key", "")
	v.SetDefault("narrative.base_url", "https://api.openai.com/v1")
	v.SetDefault("narrative.model", "gpt-4o-mini")
	v.SetDefault("narrative.max_tokens", 200)
	v.SetDefault("narrative.timeout", "10s")

	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", true)
	v.SetDefault("telegram.parse_mode", "MarkdownV2")
	v.SetDefault("telegram.timeout", "10s")

	// Report defaults
	v.SetDefault("report.title", "Market Pulse")
	v.SetDefault("report.max_length", 3800) // Telegram hard limit is 4096
	v.SetDefault("report.narrative_limit", 500)

	// Storage defaults
	v.SetDefault("storage.backend", "csv")
	v.SetDefault("storage.dir", "./output")
	v.SetDefault("storage.db_path", "./data/marketpulse.db")
	v.SetDefault("storage.overwrite", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Market config
	if err := validateURL("market.base_url", c.Market.BaseURL); err != nil {
		return err
	}
	if c.Market.Timeout <= 0 {
		return fmt.Errorf("market.timeout must be positive")
	}
	if c.Market.MinInterval < 0 {
		return fmt.Errorf("market.min_interval must not be negative")
	}

	// Validate assets
	if len(c.Assets) == 0 {
		return fmt.Errorf("assets must contain at least one asset")
	}
	seen := make(map[models.Key]bool, len(c.Assets))
	for i, a := range c.Assets {
		if a.Group == "" || a.Asset == "" || a.Symbol == "" {
			return fmt.Errorf("assets[%d]: group, asset and symbol are required", i)
		}
		k := models.Key{Group: a.Group, Asset: a.Asset}
		if seen[k] {
			return fmt.Errorf("assets[%d]: duplicate asset %s", i, k)
		}
		seen[k] = true
	}

	// Validate Monitor config
	if c.Monitor.VIXCalm <= 0 || c.Monitor.VIXStress <= 0 {
		return fmt.Errorf("monitor.vix_calm and monitor.vix_stress must be positive")
	}
	if c.Monitor.VIXCalm > c.Monitor.VIXStress {
		return fmt.Errorf("monitor.vix_calm must not exceed monitor.vix_stress")
	}

	// Validate Narrative config
	if c.Narrative.BaseURL != "" {
		if err := validateURL("narrative.base_url", c.Narrative.BaseURL); err != nil {
			return err
		}
	}
	if c.Narrative.MaxTokens < 1 {
		return fmt.Errorf("narrative.max_tokens must be at least 1")
	}
	if c.Narrative.Timeout <= 0 {
		return fmt.Errorf("narrative.timeout must be positive")
	}

	// Validate Telegram config
	switch c.Telegram.ParseMode {
	case "MarkdownV2", "plain":
	default:
		return fmt.Errorf("telegram.parse_mode must be one of: MarkdownV2, plain")
	}
	if c.Telegram.Timeout <= 0 {
		return fmt.Errorf("telegram.timeout must be positive")
	}

	// Validate Report config
	if c.Report.MaxLength < 200 || c.Report.MaxLength > 4096 {
		return fmt.Errorf("report.max_length must be between 200 and 4096")
	}
	if c.Report.NarrativeLimit < 1 {
		return fmt.Errorf("report.narrative_limit must be at least 1")
	}

	// Validate Storage config
	switch c.Storage.Backend {
	case "csv":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the csv backend")
		}
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of: csv, sqlite")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// TelegramReady reports whether a Telegram notifier can be built.
func (c *Config) TelegramReady() bool {
	return c.Telegram.Enabled && c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// MarkdownV2 reports whether messages are rendered for the MarkdownV2 parse mode.
func (c *Config) MarkdownV2() bool {
	return c.Telegram.ParseMode == "MarkdownV2"
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL", key)
	}
	return nil
}
