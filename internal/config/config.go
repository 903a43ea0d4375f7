// Package config loads and validates the service configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soundpost/campaigner/internal/safety"
)

// Config is the main configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Email     EmailConfig     `yaml:"email"`
	Safety    SafetyConfig    `yaml:"safety"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Branding  BrandingConfig  `yaml:"branding"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Durations DurationsConfig `yaml:"durations"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	APIKey     string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
	// TrackingPath is the bolt file backing open/click deduplication.
	TrackingPath string `yaml:"tracking_path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type EmailConfig struct {
	SMTP      SMTPConfig    `yaml:"smtp"`
	FromEmail string        `yaml:"from_email"`
	FromName  string        `yaml:"from_name"`
	SendDelay time.Duration `yaml:"send_delay"`
	DKIM      DKIMConfig    `yaml:"dkim"`
}

type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

type SafetyConfig struct {
	// Mode is "production" or "nonproduction". Outside production the
	// test-audience and allow-list guards apply.
	Mode                string   `yaml:"mode"`
	TestAudienceMarkers []string `yaml:"test_audience_markers"`
	AllowedEmails       []string `yaml:"allowed_emails"`
}

// ExecutionContext builds the safety gate value from the config.
func (s SafetyConfig) ExecutionContext() safety.ExecutionContext {
	mode := safety.ModeNonProduction
	if s.Mode == string(safety.ModeProduction) {
		mode = safety.ModeProduction
	}
	return safety.ExecutionContext{
		Mode:                mode,
		TestAudienceMarkers: s.TestAudienceMarkers,
		AllowedEmails:       s.AllowedEmails,
	}
}

type TrackingConfig struct {
	// BaseURL is where tracking links point. Always the public production
	// base, since mail clients fetch these from outside.
	BaseURL string `yaml:"base_url"`
	SiteURL string `yaml:"site_url"`
}

type BrandingConfig struct {
	// Name feeds the brand-header block and the footer copyright default.
	Name    string `yaml:"name"`
	LogoURL string `yaml:"logo_url"`
}

type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type DurationsConfig struct {
	WatchURL   string        `yaml:"watch_url"`
	MaxAge     time.Duration `yaml:"max_age"`
	Limit      int           `yaml:"limit"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	BatchDelay time.Duration `yaml:"batch_delay"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, defaults, and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/campaigner/app.db"
	}
	if cfg.Database.TrackingPath == "" {
		cfg.Database.TrackingPath = "/var/lib/campaigner/tracking.db"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Email.SMTP.Port == 0 {
		cfg.Email.SMTP.Port = 587
	}
	if cfg.Email.SMTP.Timeout == 0 {
		cfg.Email.SMTP.Timeout = 30 * time.Second
	}
	if cfg.Email.SendDelay == 0 {
		cfg.Email.SendDelay = 100 * time.Millisecond
	}
	if cfg.Email.DKIM.Selector == "" {
		cfg.Email.DKIM.Selector = "mail"
	}
	if cfg.Safety.Mode == "" {
		cfg.Safety.Mode = string(safety.ModeNonProduction)
	}
	if len(cfg.Safety.TestAudienceMarkers) == 0 {
		cfg.Safety.TestAudienceMarkers = []string{"test"}
	}
	if cfg.Tracking.SiteURL == "" {
		cfg.Tracking.SiteURL = cfg.Tracking.BaseURL
	}
	if cfg.Branding.Name == "" {
		cfg.Branding.Name = "Soundpost"
	}
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = 30 * time.Second
	}
	if cfg.Durations.MaxAge == 0 {
		cfg.Durations.MaxAge = 24 * time.Hour
	}
	if cfg.Durations.Limit == 0 {
		cfg.Durations.Limit = 50
	}
	if cfg.Durations.CacheTTL == 0 {
		cfg.Durations.CacheTTL = 24 * time.Hour
	}
	if cfg.Durations.BatchDelay == 0 {
		cfg.Durations.BatchDelay = time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.APIKey == "" {
		return fmt.Errorf("server.api_key is required")
	}
	if cfg.Email.SMTP.Host == "" {
		return fmt.Errorf("email.smtp.host is required")
	}
	if cfg.Email.FromEmail == "" {
		return fmt.Errorf("email.from_email is required")
	}
	if cfg.Tracking.BaseURL == "" {
		return fmt.Errorf("tracking.base_url is required")
	}
	switch cfg.Safety.Mode {
	case string(safety.ModeProduction), string(safety.ModeNonProduction):
	default:
		return fmt.Errorf("safety.mode must be %q or %q",
			safety.ModeProduction, safety.ModeNonProduction)
	}
	if cfg.Safety.Mode != string(safety.ModeProduction) && len(cfg.Safety.AllowedEmails) == 0 {
		return fmt.Errorf("safety.allowed_emails is required outside production")
	}
	if cfg.Email.DKIM.Enabled {
		if cfg.Email.DKIM.Domain == "" {
			return fmt.Errorf("email.dkim.domain is required when DKIM is enabled")
		}
		if cfg.Email.DKIM.KeyFile == "" {
			return fmt.Errorf("email.dkim.key_file is required when DKIM is enabled")
		}
	}
	return nil
}
