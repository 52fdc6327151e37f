package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
smtp:
  host: smtp.gmail.com
  from: sender@example.com
campaign:
  contacts_file: contatos.csv
  template_file: template.json
`

func TestLoadMinimal(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.SMTP.Port != 587 {
		t.Errorf("expected default port 587, got %d", cfg.SMTP.Port)
	}
	if cfg.Pacing.WindowStart != "09:00" || cfg.Pacing.WindowEnd != "17:00" {
		t.Errorf("expected default window 09:00-17:00, got %s-%s", cfg.Pacing.WindowStart, cfg.Pacing.WindowEnd)
	}
	if cfg.Pacing.EmailsPerDay != 70 {
		t.Errorf("expected default emails_per_day 70, got %d", cfg.Pacing.EmailsPerDay)
	}
	if len(cfg.Pacing.WarmupRamp) != 7 || cfg.Pacing.WarmupRamp[0] != 5 {
		t.Errorf("unexpected default warmup ramp: %v", cfg.Pacing.WarmupRamp)
	}
	if cfg.Pacing.DelayMin != 150*time.Second || cfg.Pacing.DelayMax != 300*time.Second {
		t.Errorf("unexpected default delay range: %v-%v", cfg.Pacing.DelayMin, cfg.Pacing.DelayMax)
	}
	if cfg.Pacing.PauseFile != "PAUSE_CAMPAIGN.flag" {
		t.Errorf("unexpected default pause file: %s", cfg.Pacing.PauseFile)
	}
	if cfg.SMTP.Username != "sender@example.com" {
		t.Errorf("expected username to default to from address, got %s", cfg.SMTP.Username)
	}
}

func TestLoadEnvCredentials(t *testing.T) {
	t.Setenv("MAILRAMP_SMTP_USER", "relay-user")
	t.Setenv("MAILRAMP_SMTP_PASS", "relay-pass")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.SMTP.Username != "relay-user" {
		t.Errorf("expected env username, got %s", cfg.SMTP.Username)
	}
	if cfg.SMTP.Password != "relay-pass" {
		t.Errorf("expected env password to be set")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.SMTP.Host = "" }},
		{"missing from", func(c *Config) { c.SMTP.From = "" }},
		{"missing contacts", func(c *Config) { c.Campaign.ContactsFile = "" }},
		{"bad window start", func(c *Config) { c.Pacing.WindowStart = "25:99" }},
		{"inverted delays", func(c *Config) { c.Pacing.DelayMin = time.Hour; c.Pacing.DelayMax = time.Minute }},
		{"zero ramp entry", func(c *Config) { c.Pacing.WarmupRamp = []int{5, 0, 15} }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"tracking without base url", func(c *Config) { c.Tracking.Enabled = true; c.Tracking.BaseURL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, minimalConfig))
			if err != nil {
				t.Fatalf("failed to load base config: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Hour != 9 || c.Minute != 30 {
		t.Errorf("expected 09:30, got %02d:%02d", c.Hour, c.Minute)
	}

	day := time.Date(2025, 6, 2, 15, 45, 12, 0, time.Local)
	on := c.On(day)
	if on.Hour() != 9 || on.Minute() != 30 || on.Day() != 2 {
		t.Errorf("unexpected On result: %v", on)
	}

	if _, err := ParseClock("9h30"); err == nil {
		t.Errorf("expected error for invalid clock")
	}
}
