package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foxzi/reviewflow/internal/archive"
	"github.com/foxzi/reviewflow/internal/ratelimit"
)

// Config represents the reviewflow configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	API      APIConfig      `yaml:"api"`
	Tracking TrackingConfig `yaml:"tracking"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Mail     MailConfig     `yaml:"mail"`
	Template TemplateConfig `yaml:"template"`
	Quota    QuotaConfig    `yaml:"quota"`
	Redis    RedisConfig    `yaml:"redis"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Upload   UploadConfig   `yaml:"upload"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig contains SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// APIConfig contains management API settings
type APIConfig struct {
	// APIKeys are bcrypt hashes, see "reviewflow apikey hash".
	// Empty disables authentication.
	APIKeys []string `yaml:"api_keys"`
}

// TrackingConfig contains open/click tracking settings
type TrackingConfig struct {
	BaseURL      string `yaml:"base_url"` // empty disables tracking URLs
	FallbackURL  string `yaml:"fallback_url"`
	BusinessName string `yaml:"business_name"`
}

// DispatchConfig contains send loop settings
type DispatchConfig struct {
	Delay           time.Duration `yaml:"delay"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
	StaleClaimAfter time.Duration `yaml:"stale_claim_after"`
}

// MailConfig contains outgoing mail settings
type MailConfig struct {
	Transport   string     `yaml:"transport"` // smtp, ses
	FromAddress string     `yaml:"from_address"`
	FromName    string     `yaml:"from_name"`
	SMTP        SMTPConfig `yaml:"smtp"`
	SES         SESConfig  `yaml:"ses"`
	DKIM        DKIMConfig `yaml:"dkim"`
}

// SMTPConfig contains relay settings for the smtp transport
type SMTPConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	TLSMode            string        `yaml:"tls_mode"` // none, starttls, tls
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	HelloName          string        `yaml:"hello_name"`
	Timeout            time.Duration `yaml:"timeout"`
}

// SESConfig contains settings for the ses transport
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// DKIMConfig contains DKIM signing settings
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// TemplateConfig points at custom email templates
type TemplateConfig struct {
	Subject  string `yaml:"subject"`
	HTMLFile string `yaml:"html_file"`
	TextFile string `yaml:"text_file"`
}

// QuotaConfig contains per-user send quota settings
type QuotaConfig struct {
	ratelimit.Config `yaml:",inline"`
	Path             string `yaml:"path"`
}

// RedisConfig enables the shared dispatch lock when Addr is set
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ArchiveConfig contains upload archive settings
type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// Options converts the section to archive options
func (a ArchiveConfig) Options() archive.Options {
	return archive.Options{
		Bucket:          a.Bucket,
		Prefix:          a.Prefix,
		Region:          a.Region,
		Endpoint:        a.Endpoint,
		AccessKeyID:     a.AccessKeyID,
		SecretAccessKey: a.SecretAccessKey,
		UsePathStyle:    a.UsePathStyle,
	}
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"`
	Path       string   `yaml:"path"`
	AllowedIPs []string `yaml:"allowed_ips"` // IP addresses/CIDRs allowed to scrape (empty = allow all)
}

// UploadConfig contains upload limits
type UploadConfig struct {
	MaxSize int64 `yaml:"max_size"` // bytes
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

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	// Large recipient lists are sent synchronously
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Database.Path == "" {
		c.Database.Path = "data/reviewflow.db"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	c.Tracking.BaseURL = strings.TrimRight(c.Tracking.BaseURL, "/")

	if c.Dispatch.Delay == 0 {
		c.Dispatch.Delay = 500 * time.Millisecond
	}
	if c.Dispatch.LockTTL == 0 {
		c.Dispatch.LockTTL = 30 * time.Minute
	}
	if c.Dispatch.StaleClaimAfter == 0 {
		c.Dispatch.StaleClaimAfter = time.Hour
	}

	if c.Mail.Transport == "" {
		c.Mail.Transport = "smtp"
	}
	if c.Mail.SMTP.Port == 0 {
		c.Mail.SMTP.Port = 587
	}
	if c.Mail.SMTP.TLSMode == "" {
		c.Mail.SMTP.TLSMode = "starttls"
	}
	if c.Mail.SMTP.Timeout == 0 {
		c.Mail.SMTP.Timeout = 30 * time.Second
	}
	if c.Mail.SES.Region == "" {
		c.Mail.SES.Region = "us-east-1"
	}
	if c.Mail.DKIM.Enabled && c.Mail.DKIM.Domain == "" {
		if at := strings.LastIndex(c.Mail.FromAddress, "@"); at >= 0 {
			c.Mail.DKIM.Domain = c.Mail.FromAddress[at+1:]
		}
	}

	if c.Quota.Path == "" {
		c.Quota.Path = "data/quota.db"
	}

	if c.Archive.Prefix == "" {
		c.Archive.Prefix = "uploads"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Upload.MaxSize == 0 {
		c.Upload.MaxSize = 10 * 1024 * 1024 // 10MB
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	for name, raw := range map[string]string{
		"tracking.base_url":     c.Tracking.BaseURL,
		"tracking.fallback_url": c.Tracking.FallbackURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid %s: %q (must be an absolute http(s) URL)", name, raw)
		}
	}

	if c.Dispatch.Delay < 0 {
		return fmt.Errorf("dispatch.delay must not be negative")
	}

	if err := c.validateMail(); err != nil {
		return err
	}

	if c.Quota.MessagesPerHour < 0 || c.Quota.MessagesPerDay < 0 {
		return fmt.Errorf("quota limits must not be negative")
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive is enabled")
	}

	if c.Upload.MaxSize < 0 {
		return fmt.Errorf("upload.max_size must not be negative")
	}

	return nil
}

func (c *Config) validateMail() error {
	m := c.Mail
	if m.FromAddress == "" {
		return fmt.Errorf("mail.from_address is required")
	}

	switch m.Transport {
	case "smtp":
		if m.SMTP.Host == "" {
			return fmt.Errorf("mail.smtp.host is required for the smtp transport")
		}
		validTLS := map[string]bool{"none": true, "starttls": true, "tls": true}
		if !validTLS[m.SMTP.TLSMode] {
			return fmt.Errorf("invalid mail.smtp.tls_mode: %s (must be none, starttls, or tls)", m.SMTP.TLSMode)
		}
	case "ses":
		if (m.SES.AccessKeyID == "") != (m.SES.SecretAccessKey == "") {
			return fmt.Errorf("mail.ses.access_key_id and mail.ses.secret_access_key must be set together")
		}
	default:
		return fmt.Errorf("invalid mail.transport: %s (must be smtp or ses)", m.Transport)
	}

	if m.DKIM.Enabled {
		if m.Transport != "smtp" {
			return fmt.Errorf("mail.dkim is only supported with the smtp transport")
		}
		if m.DKIM.Selector == "" {
			return fmt.Errorf("mail.dkim.selector is required when DKIM is enabled")
		}
		if m.DKIM.KeyFile == "" {
			return fmt.Errorf("mail.dkim.key_file is required when DKIM is enabled")
		}
		if m.DKIM.Domain == "" {
			return fmt.Errorf("mail.dkim.domain is required when DKIM is enabled")
		}
	}

	return nil
}
