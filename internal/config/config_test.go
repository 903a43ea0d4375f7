package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soundpost/campaigner/internal/safety"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9090"
  api_key: "test-key"

database:
  path: "/tmp/test.db"

email:
  smtp:
    host: "smtp.test.com"
    port: 2525
    username: "user"
    password: "pass"
  from_email: "hello@test.com"
  from_name: "Test"
  send_delay: 250ms

safety:
  mode: production

tracking:
  base_url: "https://test.com"

logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %v", cfg.Server.ListenAddr)
	}
	if cfg.Email.SMTP.Host != "smtp.test.com" || cfg.Email.SMTP.Port != 2525 {
		t.Errorf("SMTP = %v:%v", cfg.Email.SMTP.Host, cfg.Email.SMTP.Port)
	}
	if cfg.Email.SendDelay != 250*time.Millisecond {
		t.Errorf("SendDelay = %v", cfg.Email.SendDelay)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	// SiteURL defaults to the tracking base.
	if cfg.Tracking.SiteURL != "https://test.com" {
		t.Errorf("SiteURL = %v", cfg.Tracking.SiteURL)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  api_key: "k"
email:
  smtp:
    host: "smtp.test.com"
  from_email: "hello@test.com"
safety:
  mode: nonproduction
  allowed_emails: ["dev@test.com"]
tracking:
  base_url: "https://test.com"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default ListenAddr = %v", cfg.Server.ListenAddr)
	}
	if cfg.Email.SMTP.Port != 587 {
		t.Errorf("default SMTP port = %v", cfg.Email.SMTP.Port)
	}
	if cfg.Email.SendDelay != 100*time.Millisecond {
		t.Errorf("default SendDelay = %v", cfg.Email.SendDelay)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("default scheduler interval = %v", cfg.Scheduler.Interval)
	}
	if cfg.Durations.Limit != 50 {
		t.Errorf("default durations limit = %v", cfg.Durations.Limit)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("default logging format = %v", cfg.Logging.Format)
	}
	if len(cfg.Safety.TestAudienceMarkers) != 1 || cfg.Safety.TestAudienceMarkers[0] != "test" {
		t.Errorf("default markers = %v", cfg.Safety.TestAudienceMarkers)
	}
	if cfg.Branding.Name == "" {
		t.Error("default brand name not set")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing api key",
			content: "email:\n  smtp:\n    host: h\n  from_email: f@t.c\ntracking:\n  base_url: u\n",
			wantErr: "api_key",
		},
		{
			name:    "missing smtp host",
			content: "server:\n  api_key: k\nemail:\n  from_email: f@t.c\ntracking:\n  base_url: u\n",
			wantErr: "smtp.host",
		},
		{
			name:    "missing tracking base",
			content: "server:\n  api_key: k\nemail:\n  smtp:\n    host: h\n  from_email: f@t.c\n",
			wantErr: "base_url",
		},
		{
			name: "bad safety mode",
			content: "server:\n  api_key: k\nemail:\n  smtp:\n    host: h\n  from_email: f@t.c\n" +
				"tracking:\n  base_url: u\nsafety:\n  mode: staging\n",
			wantErr: "safety.mode",
		},
		{
			name: "nonproduction without allow-list",
			content: "server:\n  api_key: k\nemail:\n  smtp:\n    host: h\n  from_email: f@t.c\n" +
				"tracking:\n  base_url: u\nsafety:\n  mode: nonproduction\n",
			wantErr: "allowed_emails",
		},
		{
			name: "dkim without key file",
			content: "server:\n  api_key: k\nemail:\n  smtp:\n    host: h\n  from_email: f@t.c\n" +
				"  dkim:\n    enabled: true\n    domain: t.c\ntracking:\n  base_url: u\nsafety:\n  mode: production\n",
			wantErr: "key_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExecutionContext(t *testing.T) {
	sc := SafetyConfig{
		Mode:                "production",
		TestAudienceMarkers: []string{"qa"},
		AllowedEmails:       []string{"dev@test.com"},
	}
	ec := sc.ExecutionContext()
	if ec.Mode != safety.ModeProduction {
		t.Errorf("Mode = %v", ec.Mode)
	}

	sc.Mode = "nonproduction"
	if sc.ExecutionContext().Mode != safety.ModeNonProduction {
		t.Error("nonproduction mode not mapped")
	}
}
