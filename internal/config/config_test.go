package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// --- Load ---

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Slack.DefaultChannel != "#pm-updates" {
		t.Errorf("DefaultChannel = %q", cfg.Slack.DefaultChannel)
	}
	if cfg.Slack.MaxAttempts != 3 || cfg.Slack.BaseDelay != time.Second || cfg.Slack.Timeout != 10*time.Second {
		t.Errorf("slack = %+v", cfg.Slack)
	}
	if cfg.Report.LookaheadDays != 3 || cfg.Report.MaxItems != 5 || cfg.Report.Window != "daily" {
		t.Errorf("report = %+v", cfg.Report)
	}
	if cfg.HTTP.Addr != ":3334" {
		t.Errorf("Addr = %q", cfg.HTTP.Addr)
	}
	if !strings.HasSuffix(cfg.Store.Path, filepath.Join(".pmtools", "tasks.db")) {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
store:
  path: /tmp/pm/tasks.db
slack:
  webhook_url: https://hooks.example.com/x
  default_channel: "#leads"
  max_attempts: 5
  base_delay: 250ms
report:
  schedule: "0 9 * * 1-5"
  window: weekly
  max_items: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Store.Path != "/tmp/pm/tasks.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Slack.MaxAttempts != 5 || cfg.Slack.BaseDelay != 250*time.Millisecond {
		t.Errorf("slack = %+v", cfg.Slack)
	}
	if cfg.Slack.Timeout != 10*time.Second {
		t.Errorf("unset keys should keep defaults, Timeout = %s", cfg.Slack.Timeout)
	}
	if cfg.Report.Schedule != "0 9 * * 1-5" || cfg.Report.Window != "weekly" || cfg.Report.MaxItems != 10 {
		t.Errorf("report = %+v", cfg.Report)
	}
	if cfg.ReportChannel() != "#leads" {
		t.Errorf("ReportChannel = %q", cfg.ReportChannel())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	nc := cfg.NotifyConfig()
	if nc.WebhookURL != "https://hooks.example.com/x" || nc.DefaultChannel != "#leads" {
		t.Errorf("NotifyConfig = %+v", nc)
	}
	if cfg.StoreConfig().Path != "/tmp/pm/tasks.db" {
		t.Errorf("StoreConfig = %+v", cfg.StoreConfig())
	}
}

func TestLoad_EnvironmentWins(t *testing.T) {
	path := writeConfig(t, "slack:\n  default_channel: \"#file\"\n")
	t.Setenv("SLACK_CHANNEL", "#env")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.example.com/env")
	t.Setenv("PM_DATABASE_PATH", "/data/tasks.db")
	t.Setenv("PMTOOLS_SLACK_BASE_DELAY", "2s")
	t.Setenv("PMTOOLS_REPORT_CHANNEL", "#reports")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slack.DefaultChannel != "#env" || cfg.Slack.WebhookURL != "https://hooks.example.com/env" {
		t.Errorf("slack = %+v", cfg.Slack)
	}
	if cfg.Store.Path != "/data/tasks.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Slack.BaseDelay != 2*time.Second {
		t.Errorf("BaseDelay = %s", cfg.Slack.BaseDelay)
	}
	if cfg.ReportChannel() != "#reports" {
		t.Errorf("ReportChannel = %q", cfg.ReportChannel())
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := writeConfig(t, "slack: [not: a: map")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	path := writeConfig(t, "store:\n  path: ~/pm/tasks.db\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Path != filepath.Join(home, "pm", "tasks.db") {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
}

// --- Validate ---

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"attempts", func(c *Config) { c.Slack.MaxAttempts = 0 }, "slack.max_attempts"},
		{"delay", func(c *Config) { c.Slack.BaseDelay = -time.Second }, "slack.base_delay"},
		{"timeout", func(c *Config) { c.Slack.Timeout = -time.Second }, "slack.timeout"},
		{"max items", func(c *Config) { c.Report.MaxItems = 0 }, "report.max_items"},
		{"lookahead", func(c *Config) { c.Report.LookaheadDays = -1 }, "report.lookahead_days"},
		{"schedule", func(c *Config) { c.Report.Schedule = "every tuesday" }, "report.schedule"},
		{"window", func(c *Config) { c.Report.Window = "monthly" }, "report.window"},
		{"bare custom window", func(c *Config) { c.Report.Window = "custom" }, "report.window"},
		{"store path", func(c *Config) { c.Store.Path = "" }, "store.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
