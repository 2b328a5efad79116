// Package config provides YAML-based configuration loading for opsbot.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Supported chat platforms.
const (
	PlatformTelegram = "telegram"
	PlatformSlack    = "slack"
	PlatformDiscord  = "discord"
	PlatformConsole  = "console"
)

// Supported session store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config is the top-level opsbot configuration, loaded from opsbot.yaml and
// overridden by environment variables.
type Config struct {
	Platform     string             `yaml:"platform"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Slack        SlackConfig        `yaml:"slack"`
	Discord      DiscordConfig      `yaml:"discord"`
	Backend      BackendConfig      `yaml:"backend"`
	Store        StoreConfig        `yaml:"store"`
	Session      SessionConfig      `yaml:"session"`
	Ticket       TicketConfig       `yaml:"ticket"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Admin        AdminConfig        `yaml:"admin"`
	Log          LogConfig          `yaml:"log"`
}

// TelegramConfig holds Telegram Bot API credentials.
type TelegramConfig struct {
	Token       string `yaml:"token"`
	PollTimeout int    `yaml:"poll_timeout_sec"`
}

// SlackConfig holds Slack Socket Mode credentials.
type SlackConfig struct {
	AppToken string `yaml:"app_token"`
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig holds Discord Gateway credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// BackendConfig points at the operations REST API.
type BackendConfig struct {
	BaseURL         string `yaml:"base_url"`
	TimeoutSec      int    `yaml:"timeout_sec"`
	ShortTimeoutSec int    `yaml:"short_timeout_sec"`
}

// StoreConfig selects the session store.
type StoreConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	CleanupCron     string `yaml:"cleanup_cron"`
	MaxAgeHours     int    `yaml:"max_age_hours"`
	AuditMaxAgeDays int    `yaml:"audit_max_age_days"`
}

// SessionConfig tunes conversation behavior.
type SessionConfig struct {
	TimeoutSec int `yaml:"timeout_sec"`
	ListLimit  int `yaml:"list_limit"`
	QueueSize  int `yaml:"queue_size"`
}

// TicketConfig controls ticket creation defaults and command parsing.
type TicketConfig struct {
	Keywords []string `yaml:"keywords"`
	Priority string   `yaml:"priority"`
	Type     string   `yaml:"type"`
}

// ProvisioningConfig lists the choices offered by the provisioning wizards.
type ProvisioningConfig struct {
	Modems         []string `yaml:"modems"`
	DefaultPackage string   `yaml:"default_package"`
	Capacities     []string `yaml:"capacities"`
	DeviceLimit    int      `yaml:"device_limit"`
}

// AdminConfig enables the admin HTTP API when Addr is set.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultTicketKeywords are the problem words that split "open" input into
// a customer query and a description.
var DefaultTicketKeywords = []string{
	"wifi", "lag", "lambat", "putus", "mati", "error", "tidak", "bisa",
	"connect", "koneksi", "internet", "los", "gangguan", "trouble", "down",
	"slow", "disconnect", "timeout", "lemot", "lelet", "sering", "restart",
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads .env (when present) and the YAML config file at path, then
// applies environment overrides. A missing config file is not an error:
// environment variables alone are enough to run.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return ParseEnv(data, os.LookupEnv)
}

// Parse unmarshals YAML bytes into a validated Config without consulting
// the environment.
func Parse(data []byte) (*Config, error) {
	return ParseEnv(data, func(string) (string, bool) { return "", false })
}

// ParseEnv unmarshals YAML bytes, applies overrides from lookup, and
// validates the result.
func ParseEnv(data []byte, lookup LookupFunc) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv(lookup)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secrets and endpoints from the environment.
func (c *Config) applyEnv(lookup LookupFunc) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Platform, "OPSBOT_PLATFORM")
	set(&c.Telegram.Token, "BOT_TOKEN")
	set(&c.Backend.BaseURL, "API_BASE_URL")
	set(&c.Slack.AppToken, "SLACK_APP_TOKEN")
	set(&c.Slack.BotToken, "SLACK_BOT_TOKEN")
	set(&c.Discord.BotToken, "DISCORD_BOT_TOKEN")
	set(&c.Store.DSN, "OPSBOT_STORE_DSN")
	set(&c.Admin.Addr, "OPSBOT_ADMIN_ADDR")
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = PlatformTelegram
	}
	if c.Telegram.PollTimeout == 0 {
		c.Telegram.PollTimeout = 30
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.TimeoutSec == 0 {
		c.Backend.TimeoutSec = 60
	}
	if c.Backend.ShortTimeoutSec == 0 {
		c.Backend.ShortTimeoutSec = 15
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.DSN == "" && c.Store.Driver == DriverSQLite {
		c.Store.DSN = "opsbot.db"
	}
	if c.Store.CleanupCron == "" {
		c.Store.CleanupCron = "0 3 * * *"
	}
	if c.Store.MaxAgeHours == 0 {
		c.Store.MaxAgeHours = 24
	}
	if c.Store.AuditMaxAgeDays == 0 {
		c.Store.AuditMaxAgeDays = 90
	}
	if c.Session.TimeoutSec == 0 {
		c.Session.TimeoutSec = 120
	}
	if c.Session.ListLimit == 0 {
		c.Session.ListLimit = 10
	}
	if c.Session.QueueSize == 0 {
		c.Session.QueueSize = 16
	}
	if len(c.Ticket.Keywords) == 0 {
		c.Ticket.Keywords = append([]string(nil), DefaultTicketKeywords...)
	}
	if c.Ticket.Priority == "" {
		c.Ticket.Priority = "LOW"
	}
	if c.Ticket.Type == "" {
		c.Ticket.Type = "FREE"
	}
	if len(c.Provisioning.Modems) == 0 {
		c.Provisioning.Modems = []string{"F609", "F670L", "C-DATA"}
	}
	if c.Provisioning.DefaultPackage == "" {
		c.Provisioning.DefaultPackage = "15M"
	}
	if len(c.Provisioning.Capacities) == 0 {
		c.Provisioning.Capacities = []string{"10M", "15M", "20M", "30M", "50M", "100M"}
	}
	if c.Provisioning.DeviceLimit == 0 {
		c.Provisioning.DeviceLimit = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	switch c.Platform {
	case PlatformTelegram:
		if c.Telegram.Token == "" {
			errs = append(errs, "telegram.token (BOT_TOKEN) is required")
		}
	case PlatformSlack:
		if c.Slack.AppToken == "" {
			errs = append(errs, "slack.app_token (SLACK_APP_TOKEN) is required")
		}
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token (SLACK_BOT_TOKEN) is required")
		}
	case PlatformDiscord:
		if c.Discord.BotToken == "" {
			errs = append(errs, "discord.bot_token (DISCORD_BOT_TOKEN) is required")
		}
	case PlatformConsole:
	default:
		errs = append(errs, fmt.Sprintf("platform %q is not supported", c.Platform))
	}

	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url (API_BASE_URL) is required")
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("backend.base_url %q must be an absolute http(s) URL", c.Backend.BaseURL))
	}
	if c.Backend.TimeoutSec < 0 || c.Backend.ShortTimeoutSec < 0 {
		errs = append(errs, "backend timeouts must be positive")
	}

	switch c.Store.Driver {
	case DriverSQLite:
	case DriverMySQL:
		if c.Store.DSN == "" {
			errs = append(errs, "store.dsn is required for mysql")
		} else if _, err := mysql.ParseDSN(c.Store.DSN); err != nil {
			errs = append(errs, fmt.Sprintf("store.dsn: %v", err))
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if _, err := cron.ParseStandard(c.Store.CleanupCron); err != nil {
		errs = append(errs, fmt.Sprintf("store.cleanup_cron %q: %v", c.Store.CleanupCron, err))
	}
	if c.Store.MaxAgeHours < 0 {
		errs = append(errs, "store.max_age_hours must be positive")
	}
	if c.Store.AuditMaxAgeDays < 0 {
		errs = append(errs, "store.audit_max_age_days must be positive")
	}

	if c.Session.TimeoutSec < 0 {
		errs = append(errs, "session.timeout_sec must be positive")
	}
	if c.Session.ListLimit < 1 {
		errs = append(errs, "session.list_limit must be at least 1")
	}

	for i, m := range c.Provisioning.Modems {
		if strings.ContainsAny(m, ": ") {
			errs = append(errs, fmt.Sprintf("provisioning.modems[%d] %q must not contain spaces or colons", i, m))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SessionTimeout returns the idle window after which a mid-flow session expires.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutSec) * time.Second
}

// SessionMaxAge returns the age after which stored sessions are purged.
func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.Store.MaxAgeHours) * time.Hour
}

// AuditMaxAge returns the age after which audit entries are purged.
func (c *Config) AuditMaxAge() time.Duration {
	return time.Duration(c.Store.AuditMaxAgeDays) * 24 * time.Hour
}

// BackendTimeout returns the default API request timeout.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSec) * time.Second
}

// BackendShortTimeout returns the timeout used for search-type reads.
func (c *Config) BackendShortTimeout() time.Duration {
	return time.Duration(c.Backend.ShortTimeoutSec) * time.Second
}
