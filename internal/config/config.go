package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"licensewatch/internal/model"
	"licensewatch/pkg/config"
)

// NotificationConfig drives the expiration pipeline and scheduler.
type NotificationConfig struct {
	AdminEmail          string `yaml:"admin_email"`
	DefaultDays         int    `yaml:"default_days"`
	DefaultTime         string `yaml:"default_time"`
	Timezone            string `yaml:"timezone"`
	SkipAlreadyNotified bool   `yaml:"skip_already_notified"`
	AdminDigestEnabled  bool   `yaml:"admin_digest_enabled"`
	RunOnStartup        bool   `yaml:"run_on_startup"`
	JobTimeoutSeconds   int    `yaml:"job_timeout_seconds"`
	DedupTTLSeconds     int    `yaml:"dedup_ttl_seconds"`
}

type Config struct {
	DB           config.DBConfig     `yaml:"db"`
	MQ           config.MQConfig     `yaml:"mq"`
	Redis        config.RedisConfig  `yaml:"redis"`
	JWT          config.JWTConfig    `yaml:"jwt"`
	Server       config.ServerConfig `yaml:"server"`
	SMTP         config.SMTPConfig   `yaml:"smtp"`
	Otel         config.OtelConfig   `yaml:"otel"`
	Notification NotificationConfig  `yaml:"notification"`
}

// Load reads CONFIG_DIR/base.yaml and CONFIG_DIR/<CONFIG_ENV>.yaml, then
// applies environment overrides and defaults.
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")
	return LoadFrom(env, configDir)
}

func LoadFrom(env, configDir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := config.Decode(cfgMap, &cfg); err != nil {
		return nil, err
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideSMTPFromEnv(&cfg.SMTP)
	config.OverrideOtelFromEnv(&cfg.Otel)
	overrideNotificationFromEnv(&cfg.Notification)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overrideNotificationFromEnv(cfg *NotificationConfig) {
	if email := os.Getenv("ADMIN_EMAIL"); email != "" {
		cfg.AdminEmail = email
	}
	if tz := os.Getenv("NOTIFICATION_TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	n := &c.Notification
	if n.DefaultDays <= 0 {
		n.DefaultDays = model.DefaultDaysBeforeExpiration
	}
	if n.DefaultTime == "" {
		n.DefaultTime = model.DefaultNotificationTime
	}
	if n.Timezone == "" {
		n.Timezone = "UTC"
	}
	if n.DedupTTLSeconds <= 0 {
		n.DedupTTLSeconds = 3600
	}
	if c.Otel.ServiceName == "" {
		c.Otel.ServiceName = "licensewatch"
	}
}

// Validate checks values that would otherwise fail deep inside the scheduler.
// SMTP credentials are validated by the mailer at start-up.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Notification.Timezone); err != nil {
		return fmt.Errorf("invalid notification.timezone %q: %w", c.Notification.Timezone, err)
	}
	if _, _, err := model.ParseNotificationTime(c.Notification.DefaultTime); err != nil {
		return fmt.Errorf("invalid notification.default_time: %w", err)
	}
	if c.Notification.AdminEmail != "" && !strings.Contains(c.Notification.AdminEmail, "@") {
		return fmt.Errorf("invalid notification.admin_email %q", c.Notification.AdminEmail)
	}
	return nil
}

// Location returns the configured notification time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Notification.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Notification.JobTimeoutSeconds) * time.Second
}

func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.Notification.DedupTTLSeconds) * time.Second
}
