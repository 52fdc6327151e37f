package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for a campaign run
type Config struct {
	SMTP     SMTPConfig     `yaml:"smtp"`
	Campaign CampaignConfig `yaml:"campaign"`
	Pacing   PacingConfig   `yaml:"pacing"`
	Storage  StorageConfig  `yaml:"storage"`
	Tracking TrackingConfig `yaml:"tracking"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SMTPConfig contains settings for the outbound mail relay
type SMTPConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	From        string        `yaml:"from"`
	FromName    string        `yaml:"from_name"`
	ReplyTo     string        `yaml:"reply_to"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"-"` // MAILRAMP_SMTP_PASS only, never YAML
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// CampaignConfig contains campaign input settings
type CampaignConfig struct {
	Name           string `yaml:"name"`
	ContactsFile   string `yaml:"contacts_file"`
	TemplateFile   string `yaml:"template_file"`
	AttachmentPath string `yaml:"attachment,omitempty"`
	HTML           bool   `yaml:"html"`
}

// PacingConfig contains delivery pacing settings
type PacingConfig struct {
	WindowStart       string        `yaml:"window_start"` // HH:MM
	WindowEnd         string        `yaml:"window_end"`   // HH:MM
	EmailsPerDay      int           `yaml:"emails_per_day"`
	WarmupRamp        []int         `yaml:"warmup_ramp"`
	WarmupDelayDays   int           `yaml:"warmup_delay_days"` // days with doubled jitter
	DelayMin          time.Duration `yaml:"delay_min"`
	DelayMax          time.Duration `yaml:"delay_max"`
	FailureBackoff    time.Duration `yaml:"failure_backoff"`
	PauseFile         string        `yaml:"pause_file"`
	PausePollInterval time.Duration `yaml:"pause_poll_interval"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Path     string `yaml:"path"`
	LockFile string `yaml:"lock_file"`
}

// TrackingConfig contains tracking server settings
type TrackingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	BaseURL    string `yaml:"base_url"` // public URL embedded in outgoing mail
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.loadEnvCredentials()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadEnvCredentials pulls relay credentials from the environment.
// The password is never read from YAML.
func (c *Config) loadEnvCredentials() {
	if v := os.Getenv("MAILRAMP_SMTP_USER"); v != "" {
		c.SMTP.Username = v
	}
	if v := os.Getenv("MAILRAMP_SMTP_PASS"); v != "" {
		c.SMTP.Password = v
	}
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.SendTimeout == 0 {
		c.SMTP.SendTimeout = 30 * time.Second
	}
	if c.SMTP.Username == "" {
		c.SMTP.Username = c.SMTP.From
	}

	if c.Pacing.WindowStart == "" {
		c.Pacing.WindowStart = "09:00"
	}
	if c.Pacing.WindowEnd == "" {
		c.Pacing.WindowEnd = "17:00"
	}
	if c.Pacing.EmailsPerDay == 0 {
		c.Pacing.EmailsPerDay = 70
	}
	if c.Pacing.WarmupRamp == nil {
		c.Pacing.WarmupRamp = []int{5, 10, 15, 25, 35, 50, 70}
	}
	if c.Pacing.WarmupDelayDays == 0 {
		c.Pacing.WarmupDelayDays = 3
	}
	if c.Pacing.DelayMin == 0 {
		c.Pacing.DelayMin = 150 * time.Second
	}
	if c.Pacing.DelayMax == 0 {
		c.Pacing.DelayMax = 300 * time.Second
	}
	if c.Pacing.FailureBackoff == 0 {
		c.Pacing.FailureBackoff = 30 * time.Second
	}
	if c.Pacing.PauseFile == "" {
		c.Pacing.PauseFile = "PAUSE_CAMPAIGN.flag"
	}
	if c.Pacing.PausePollInterval == 0 {
		c.Pacing.PausePollInterval = 5 * time.Second
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "mailramp.db"
	}
	if c.Storage.LockFile == "" {
		c.Storage.LockFile = "mailramp.lock"
	}

	if c.Tracking.ListenAddr == "" {
		c.Tracking.ListenAddr = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required")
	}
	if c.SMTP.From == "" {
		return fmt.Errorf("smtp.from is required")
	}
	if c.Campaign.ContactsFile == "" {
		return fmt.Errorf("campaign.contacts_file is required")
	}
	if c.Campaign.TemplateFile == "" {
		return fmt.Errorf("campaign.template_file is required")
	}

	if _, err := ParseClock(c.Pacing.WindowStart); err != nil {
		return fmt.Errorf("invalid pacing.window_start: %w", err)
	}
	if _, err := ParseClock(c.Pacing.WindowEnd); err != nil {
		return fmt.Errorf("invalid pacing.window_end: %w", err)
	}
	if c.Pacing.DelayMin > c.Pacing.DelayMax {
		return fmt.Errorf("pacing.delay_min must not exceed pacing.delay_max")
	}
	if c.Pacing.EmailsPerDay < 0 {
		return fmt.Errorf("pacing.emails_per_day must not be negative")
	}
	for i, n := range c.Pacing.WarmupRamp {
		if n <= 0 {
			return fmt.Errorf("pacing.warmup_ramp[%d] must be positive", i)
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Tracking.Enabled && c.Tracking.BaseURL == "" {
		return fmt.Errorf("tracking.base_url is required when tracking is enabled")
	}

	return nil
}

// Clock is a time of day without a date
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses an HH:MM clock string
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("%q is not a valid HH:MM time", s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// On returns the clock time on the given date in the date's location
func (c Clock) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}
