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
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
server:
  listen_addr: ":9080"
  write_timeout: 2m

database:
  path: "/tmp/reviews.db"

logging:
  level: "debug"
  format: "text"

api:
  api_keys:
    - "$2a$10$abcdefghijklmnopqrstuu"

tracking:
  base_url: "https://reviews.example.com/"
  fallback_url: "https://example.com/thanks"
  business_name: "Acme Dental"

dispatch:
  delay: 250ms

mail:
  from_address: "reviews@example.com"
  from_name: "Acme"
  smtp:
    host: "smtp.example.com"
    port: 465
    tls_mode: "tls"
  dkim:
    enabled: true
    selector: "rf"
    key_file: "/etc/reviewflow/dkim.pem"

quota:
  messages_per_hour: 100
  messages_per_day: 1000
  path: "/tmp/quota.db"

redis:
  addr: "localhost:6379"
  db: 2

archive:
  enabled: true
  bucket: "uploads"
  endpoint: "http://localhost:9000"
  use_path_style: true

metrics:
  enabled: true
  allowed_ips:
    - "10.0.0.0/8"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9080" {
		t.Errorf("Server.ListenAddr = %v, want :9080", cfg.Server.ListenAddr)
	}
	if cfg.Server.WriteTimeout != 2*time.Minute {
		t.Errorf("Server.WriteTimeout = %v, want 2m", cfg.Server.WriteTimeout)
	}
	if cfg.Database.Path != "/tmp/reviews.db" {
		t.Errorf("Database.Path = %v", cfg.Database.Path)
	}
	if len(cfg.API.APIKeys) != 1 {
		t.Errorf("API.APIKeys = %v", cfg.API.APIKeys)
	}
	if cfg.Tracking.BaseURL != "https://reviews.example.com" {
		t.Errorf("Tracking.BaseURL = %v, want trailing slash trimmed", cfg.Tracking.BaseURL)
	}
	if cfg.Dispatch.Delay != 250*time.Millisecond {
		t.Errorf("Dispatch.Delay = %v, want 250ms", cfg.Dispatch.Delay)
	}
	if cfg.Mail.SMTP.Port != 465 || cfg.Mail.SMTP.TLSMode != "tls" {
		t.Errorf("Mail.SMTP = %+v", cfg.Mail.SMTP)
	}
	if cfg.Mail.DKIM.Domain != "example.com" {
		t.Errorf("Mail.DKIM.Domain = %v, want derived from from_address", cfg.Mail.DKIM.Domain)
	}
	if cfg.Quota.MessagesPerHour != 100 || cfg.Quota.MessagesPerDay != 1000 {
		t.Errorf("Quota = %+v", cfg.Quota)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	opts := cfg.Archive.Options()
	if opts.Bucket != "uploads" || opts.Prefix != "uploads" || !opts.UsePathStyle {
		t.Errorf("Archive.Options() = %+v", opts)
	}
	if len(cfg.Metrics.AllowedIPs) != 1 {
		t.Errorf("Metrics.AllowedIPs = %v", cfg.Metrics.AllowedIPs)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `
mail:
  from_address: "reviews@example.com"
  smtp:
    host: "smtp.example.com"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default Server.ListenAddr = %v, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default Logging = %+v", cfg.Logging)
	}
	if cfg.Dispatch.Delay != 500*time.Millisecond {
		t.Errorf("default Dispatch.Delay = %v, want 500ms", cfg.Dispatch.Delay)
	}
	if cfg.Dispatch.LockTTL != 30*time.Minute {
		t.Errorf("default Dispatch.LockTTL = %v", cfg.Dispatch.LockTTL)
	}
	if cfg.Mail.Transport != "smtp" || cfg.Mail.SMTP.Port != 587 || cfg.Mail.SMTP.TLSMode != "starttls" {
		t.Errorf("default Mail = %+v", cfg.Mail)
	}
	if cfg.Quota.Enabled() {
		t.Error("quota should be disabled by default")
	}
	if cfg.Metrics.Path != "/metrics" || cfg.Metrics.ListenAddr != ":9090" {
		t.Errorf("default Metrics = %+v", cfg.Metrics)
	}
	if cfg.Upload.MaxSize != 10*1024*1024 {
		t.Errorf("default Upload.MaxSize = %v", cfg.Upload.MaxSize)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Mail.FromAddress = "reviews@example.com"
		cfg.Mail.SMTP.Host = "smtp.example.com"
		cfg.setDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"relative base url", func(c *Config) { c.Tracking.BaseURL = "reviews.example.com" }, "tracking.base_url"},
		{"bad fallback url", func(c *Config) { c.Tracking.FallbackURL = "ftp://x" }, "tracking.fallback_url"},
		{"negative delay", func(c *Config) { c.Dispatch.Delay = -time.Second }, "dispatch.delay"},
		{"missing from", func(c *Config) { c.Mail.FromAddress = "" }, "mail.from_address"},
		{"missing smtp host", func(c *Config) { c.Mail.SMTP.Host = "" }, "mail.smtp.host"},
		{"bad tls mode", func(c *Config) { c.Mail.SMTP.TLSMode = "ssl" }, "tls_mode"},
		{"unknown transport", func(c *Config) { c.Mail.Transport = "sendmail" }, "mail.transport"},
		{"ses", func(c *Config) { c.Mail.Transport = "ses"; c.Mail.SMTP.Host = "" }, ""},
		{"ses half credentials", func(c *Config) {
			c.Mail.Transport = "ses"
			c.Mail.SES.AccessKeyID = "AKIA"
		}, "secret_access_key"},
		{"dkim without selector", func(c *Config) {
			c.Mail.DKIM = DKIMConfig{Enabled: true, Domain: "example.com", KeyFile: "k.pem"}
		}, "mail.dkim.selector"},
		{"dkim with ses", func(c *Config) {
			c.Mail.Transport = "ses"
			c.Mail.DKIM = DKIMConfig{Enabled: true, Domain: "example.com", Selector: "s", KeyFile: "k.pem"}
		}, "only supported"},
		{"negative quota", func(c *Config) { c.Quota.MessagesPerDay = -1 }, "quota"},
		{"archive without bucket", func(c *Config) { c.Archive.Enabled = true }, "archive.bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() expected error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}
