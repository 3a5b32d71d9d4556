// Package config loads pmtools settings from a YAML file and the
// environment. Environment variables win over the file; the file wins
// over built-in defaults. A missing file is not an error.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/HendryAvila/pmtools/internal/notify"
	"github.com/HendryAvila/pmtools/internal/report"
	"github.com/HendryAvila/pmtools/internal/store"
)

// StoreConfig locates the task database.
type StoreConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// SlackConfig configures webhook delivery.
type SlackConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"`
	DefaultChannel string        `mapstructure:"default_channel"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// ReportConfig holds report defaults and the optional push schedule.
type ReportConfig struct {
	LookaheadDays int    `mapstructure:"lookahead_days"`
	MaxItems      int    `mapstructure:"max_items"`
	Schedule      string `mapstructure:"schedule"`
	Channel       string `mapstructure:"channel"`
	Window        string `mapstructure:"window"`
}

// HTTPConfig configures the HTTP gateway.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Config is the top-level application configuration.
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Slack  SlackConfig  `mapstructure:"slack"`
	Report ReportConfig `mapstructure:"report"`
	HTTP   HTTPConfig   `mapstructure:"http"`
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"store.path":            "PM_DATABASE_PATH",
	"slack.webhook_url":     "SLACK_WEBHOOK_URL",
	"slack.default_channel": "SLACK_CHANNEL",
	"slack.max_attempts":    "PMTOOLS_SLACK_MAX_ATTEMPTS",
	"slack.base_delay":      "PMTOOLS_SLACK_BASE_DELAY",
	"slack.timeout":         "PMTOOLS_SLACK_TIMEOUT",
	"report.lookahead_days": "PMTOOLS_REPORT_LOOKAHEAD_DAYS",
	"report.max_items":      "PMTOOLS_REPORT_MAX_ITEMS",
	"report.schedule":       "PMTOOLS_REPORT_SCHEDULE",
	"report.channel":        "PMTOOLS_REPORT_CHANNEL",
	"report.window":         "PMTOOLS_REPORT_WINDOW",
	"http.addr":             "PMTOOLS_HTTP_ADDR",
}

// DefaultPath returns ~/.pmtools/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".pmtools", "config.yaml")
}

func setDefaults(v *viper.Viper) {
	sd := store.DefaultConfig()
	nd := notify.DefaultConfig()

	v.SetDefault("store.path", sd.Path)
	v.SetDefault("store.busy_timeout", sd.BusyTimeout)
	v.SetDefault("slack.webhook_url", "")
	v.SetDefault("slack.default_channel", nd.DefaultChannel)
	v.SetDefault("slack.max_attempts", nd.MaxAttempts)
	v.SetDefault("slack.base_delay", nd.BaseDelay)
	v.SetDefault("slack.timeout", nd.Timeout)
	v.SetDefault("report.lookahead_days", report.DefaultLookaheadDays)
	v.SetDefault("report.max_items", report.DefaultMaxItems)
	v.SetDefault("report.schedule", "")
	v.SetDefault("report.channel", "")
	v.SetDefault("report.window", report.WindowDaily)
	v.SetDefault("http.addr", ":3334")
}

// Load reads configuration from path (DefaultPath when empty) and the
// environment.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Store.Path = expandHome(cfg.Store.Path)
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path must not be empty"))
	}
	if c.Slack.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("slack.max_attempts must be at least 1, got %d", c.Slack.MaxAttempts))
	}
	if c.Slack.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("slack.base_delay must not be negative, got %s", c.Slack.BaseDelay))
	}
	if c.Slack.Timeout < 0 {
		errs = append(errs, fmt.Errorf("slack.timeout must not be negative, got %s", c.Slack.Timeout))
	}
	if c.Report.LookaheadDays < 0 {
		errs = append(errs, fmt.Errorf("report.lookahead_days must not be negative, got %d", c.Report.LookaheadDays))
	}
	if c.Report.MaxItems < 1 {
		errs = append(errs, fmt.Errorf("report.max_items must be at least 1, got %d", c.Report.MaxItems))
	}
	if c.Report.Schedule != "" {
		if _, err := cron.ParseStandard(c.Report.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("report.schedule: %w", err))
		}
	}
	if _, err := report.ResolveWindow(c.Report.Window, "", "", time.Now()); err != nil {
		errs = append(errs, fmt.Errorf("report.window: %w", err))
	}
	return errors.Join(errs...)
}

// StoreConfig returns the store settings.
func (c *Config) StoreConfig() store.Config {
	return store.Config{Path: c.Store.Path, BusyTimeout: c.Store.BusyTimeout}
}

// NotifyConfig returns the dispatcher settings.
func (c *Config) NotifyConfig() notify.Config {
	return notify.Config{
		WebhookURL:     c.Slack.WebhookURL,
		DefaultChannel: c.Slack.DefaultChannel,
		MaxAttempts:    c.Slack.MaxAttempts,
		BaseDelay:      c.Slack.BaseDelay,
		Timeout:        c.Slack.Timeout,
	}
}

// ReportChannel is where scheduled reports go.
func (c *Config) ReportChannel() string {
	if c.Report.Channel != "" {
		return c.Report.Channel
	}
	return c.Slack.DefaultChannel
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
