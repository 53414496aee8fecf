package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Addr          string `envconfig:"APP_ADDR" default:":8080"`
	Env           string `envconfig:"APP_ENV" default:"development"`
	Timezone      string `envconfig:"APP_TIMEZONE" default:"Local"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	DatabaseDriver string `envconfig:"DATABASE_DRIVER" default:"sqlite"`
	DatabaseDSN    string `envconfig:"DATABASE_DSN" default:"billdesk.db"`

	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	SummaryCacheTTL time.Duration `envconfig:"SUMMARY_CACHE_TTL" default:"30s"`

	AuthSecret        string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL    time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`
	SeedAdminPassword string        `envconfig:"SEED_ADMIN_PASSWORD"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	DocumentDir         string `envconfig:"DOCUMENT_DIR" default:"bills"`
	GotenbergURL        string `envconfig:"GOTENBERG_URL"`
	MessagingWebhookURL string `envconfig:"MESSAGING_WEBHOOK_URL"`
	MessagingToken      string `envconfig:"MESSAGING_TOKEN"`

	SideEffectWorkers int `envconfig:"SIDE_EFFECT_WORKERS" default:"4"`
	ReminderLeadDays  int `envconfig:"REMINDER_LEAD_DAYS" default:"364"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.SeedAdminPassword = strings.TrimSpace(cfg.SeedAdminPassword)
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	if cfg.AccessTokenTTL < time.Minute {
		cfg.AccessTokenTTL = 8 * time.Hour
	}
	if cfg.SideEffectWorkers < 1 {
		cfg.SideEffectWorkers = 4
	}
	if cfg.ReminderLeadDays < 1 {
		cfg.ReminderLeadDays = 364
	}
	switch cfg.DatabaseDriver {
	case "sqlite", "postgres", "memory":
	default:
		return Config{}, fmt.Errorf("load config: unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	return cfg, nil
}

func (c Config) Address() string {
	if strings.Contains(c.Addr, ":") {
		return c.Addr
	}
	return fmt.Sprintf(":%s", c.Addr)
}

func (c Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development"
}

func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
