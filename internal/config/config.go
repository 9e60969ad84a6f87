// Package config loads and validates runtime configuration at startup.
// Values come from the environment, optionally layered over a TOML file.
// Fail-fast: if a required variable is missing, Load returns an error.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the job search service.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string
	RedisURL    string // empty: in-process caches, no pub/sub notifications

	Adzuna struct {
		AppID          string
		AppKey         string
		Country        string // e.g. "us", "gb", "fr"
		BaseURL        string
		ResultsPerPage int
	}

	Ingest struct {
		MaxPages  int
		PageDelay time.Duration
	}

	Search struct {
		CacheTTL        time.Duration
		DefaultDistance int // miles
	}

	Geocoder struct {
		BaseURL    string
		UserAgent  string
		RatePerSec float64
	}

	Schedule struct {
		Spec       string // cron spec, e.g. "0 0 * * *" or "@every 6h"
		RunOnStart bool
	}

	Email struct {
		Enabled  bool
		From     string
		SMTPHost string
		SMTPPort int
		Username string
		Password string
	}

	NotifyChannel string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ADZUNA_COUNTRY", "us")
	v.SetDefault("ADZUNA_BASE_URL", "https://api.adzuna.com/v1/api/jobs")
	v.SetDefault("ADZUNA_RESULTS_PER_PAGE", 50)
	v.SetDefault("INGEST_MAX_PAGES", 5)
	v.SetDefault("INGEST_PAGE_DELAY", "500ms")
	v.SetDefault("SEARCH_CACHE_TTL", "1h")
	v.SetDefault("SEARCH_DEFAULT_DISTANCE", 25)
	v.SetDefault("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("GEOCODER_USER_AGENT", "JobSearchApplication/1.0")
	v.SetDefault("GEOCODER_RATE_PER_SEC", 1.0)
	v.SetDefault("SCHEDULE_SPEC", "0 0 * * *")
	v.SetDefault("SCHEDULE_RUN_ON_START", false)
	v.SetDefault("EMAIL_ENABLED", false)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("NOTIFY_CHANNEL", "EVENT_NEW_JOBS")
}

// New returns a viper instance bound to the environment. When configFile
// is non-empty it is read as TOML first; environment variables still win.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

// Load reads the environment (and optional file) and returns a validated Config.
func Load(configFile string) (*Config, error) {
	v, err := New(configFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper builds a validated Config from an existing viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:          v.GetString("PORT"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		DatabaseURL:   v.GetString("DATABASE_URL"),
		RedisURL:      v.GetString("REDIS_URL"),
		NotifyChannel: v.GetString("NOTIFY_CHANNEL"),
	}

	cfg.Adzuna.AppID = v.GetString("ADZUNA_APP_ID")
	cfg.Adzuna.AppKey = v.GetString("ADZUNA_APP_KEY")
	cfg.Adzuna.Country = v.GetString("ADZUNA_COUNTRY")
	cfg.Adzuna.BaseURL = v.GetString("ADZUNA_BASE_URL")
	cfg.Adzuna.ResultsPerPage = v.GetInt("ADZUNA_RESULTS_PER_PAGE")

	cfg.Ingest.MaxPages = v.GetInt("INGEST_MAX_PAGES")
	cfg.Ingest.PageDelay = v.GetDuration("INGEST_PAGE_DELAY")

	cfg.Search.CacheTTL = v.GetDuration("SEARCH_CACHE_TTL")
	cfg.Search.DefaultDistance = v.GetInt("SEARCH_DEFAULT_DISTANCE")

	cfg.Geocoder.BaseURL = v.GetString("GEOCODER_BASE_URL")
	cfg.Geocoder.UserAgent = v.GetString("GEOCODER_USER_AGENT")
	cfg.Geocoder.RatePerSec = v.GetFloat64("GEOCODER_RATE_PER_SEC")

	cfg.Schedule.Spec = v.GetString("SCHEDULE_SPEC")
	cfg.Schedule.RunOnStart = v.GetBool("SCHEDULE_RUN_ON_START")

	cfg.Email.Enabled = v.GetBool("EMAIL_ENABLED")
	cfg.Email.From = v.GetString("EMAIL_FROM")
	cfg.Email.SMTPHost = v.GetString("SMTP_HOST")
	cfg.Email.SMTPPort = v.GetInt("SMTP_PORT")
	cfg.Email.Username = v.GetString("SMTP_USERNAME")
	cfg.Email.Password = v.GetString("SMTP_PASSWORD")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Email.Enabled {
		if c.Email.From == "" {
			missing = append(missing, "EMAIL_FROM")
		}
		if c.Email.SMTPHost == "" {
			missing = append(missing, "SMTP_HOST")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Ingest.MaxPages < 1 {
		return fmt.Errorf("INGEST_MAX_PAGES must be a positive integer, got %d", c.Ingest.MaxPages)
	}
	if c.Ingest.PageDelay < 0 {
		return fmt.Errorf("INGEST_PAGE_DELAY must not be negative, got %s", c.Ingest.PageDelay)
	}
	if c.Adzuna.ResultsPerPage < 1 {
		return fmt.Errorf("ADZUNA_RESULTS_PER_PAGE must be a positive integer, got %d", c.Adzuna.ResultsPerPage)
	}
	if c.Search.CacheTTL <= 0 {
		return fmt.Errorf("SEARCH_CACHE_TTL must be positive, got %s", c.Search.CacheTTL)
	}
	if c.Geocoder.RatePerSec <= 0 {
		return fmt.Errorf("GEOCODER_RATE_PER_SEC must be positive, got %v", c.Geocoder.RatePerSec)
	}
	if c.Schedule.Spec == "" {
		return fmt.Errorf("SCHEDULE_SPEC must not be empty")
	}
	return nil
}

// AdzunaEnabled reports whether ingestion credentials are configured.
func (c *Config) AdzunaEnabled() bool {
	return c.Adzuna.AppID != "" && c.Adzuna.AppKey != ""
}
