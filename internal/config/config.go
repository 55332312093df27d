package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/labtrend/labtrend/internal/extract"
	"github.com/labtrend/labtrend/internal/platform/scheduling"
	"github.com/labtrend/labtrend/internal/platform/webhook"
)

// ErrNoDatabase is returned by RequireDatabase when DATABASE_URL is unset.
var ErrNoDatabase = errors.New("DATABASE_URL is required for this command")

type Config struct {
	Port                string   `mapstructure:"PORT"`
	Env                 string   `mapstructure:"ENV"`
	Debug               bool     `mapstructure:"DEBUG"`
	DataDir             string   `mapstructure:"DATA_DIR"`
	DataExtensions      []string `mapstructure:"DATA_EXTENSIONS"`
	LoadWorkers         int      `mapstructure:"LOAD_WORKERS"`
	NormalizerRulesFile string   `mapstructure:"NORMALIZER_RULES_FILE"`
	DatabaseURL         string   `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32    `mapstructure:"DB_MIN_CONNS"`
	AuthSigningKey      string   `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer          string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience        string   `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins         []string `mapstructure:"CORS_ORIGINS"`
	QueryCacheSize      int64    `mapstructure:"QUERY_CACHE_SIZE"`
	ReloadSchedule      string   `mapstructure:"RELOAD_SCHEDULE"`
	ReloadTimeout       int      `mapstructure:"RELOAD_TIMEOUT_SECONDS"`
	MetricsEnabled      bool     `mapstructure:"METRICS_ENABLED"`
	WebhookURLs         []string `mapstructure:"WEBHOOK_URLS"`
	WebhookSecret       string   `mapstructure:"WEBHOOK_SECRET"`
	WebhookEvents       []string `mapstructure:"WEBHOOK_EVENTS"`

	extract.Limits `mapstructure:",squash"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DEBUG", false)
	v.SetDefault("DATA_DIR", "./results")
	v.SetDefault("DATA_EXTENSIONS", ".json")
	v.SetDefault("LOAD_WORKERS", 1)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("QUERY_CACHE_SIZE", 1024)
	v.SetDefault("RELOAD_SCHEDULE", "")
	v.SetDefault("RELOAD_TIMEOUT_SECONDS", 300)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("WEBHOOK_URLS", "")
	v.SetDefault("WEBHOOK_EVENTS", "*")
	v.SetDefault("LIMIT_PANEL_WINDOW", extract.DefaultPanelWindow)
	v.SetDefault("LIMIT_PROCEDURE_WINDOW", extract.DefaultProcedureWindow)
	v.SetDefault("LIMIT_PROCEDURE_ALT_WINDOW", extract.DefaultProcedureAltWindow)
	v.SetDefault("LIMIT_IMPRESSION", extract.DefaultImpressionLimit)
	v.SetDefault("LIMIT_NARRATIVE", extract.DefaultNarrativeLimit)
	v.SetDefault("LIMIT_FINDINGS", extract.DefaultFindingsLimit)
	v.SetDefault("LIMIT_RECOMMENDATIONS", extract.DefaultRecommendationLimit)
	v.SetDefault("LIMIT_NOTE", extract.DefaultNoteLimit)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DEBUG", "DATA_DIR", "DATA_EXTENSIONS", "LOAD_WORKERS",
		"NORMALIZER_RULES_FILE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "CORS_ORIGINS",
		"QUERY_CACHE_SIZE", "RELOAD_SCHEDULE", "RELOAD_TIMEOUT_SECONDS", "METRICS_ENABLED",
		"WEBHOOK_URLS", "WEBHOOK_SECRET", "WEBHOOK_EVENTS",
		"LIMIT_PANEL_WINDOW", "LIMIT_PROCEDURE_WINDOW", "LIMIT_PROCEDURE_ALT_WINDOW",
		"LIMIT_IMPRESSION", "LIMIT_NARRATIVE", "LIMIT_FINDINGS",
		"LIMIT_RECOMMENDATIONS", "LIMIT_NOTE",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.DataExtensions = splitList(cfg.DataExtensions, v.GetString("DATA_EXTENSIONS"))
	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.WebhookURLs = splitList(cfg.WebhookURLs, v.GetString("WEBHOOK_URLS"))
	cfg.WebhookEvents = splitList(cfg.WebhookEvents, v.GetString("WEBHOOK_EVENTS"))

	return cfg, nil
}

// splitList trims a comma-separated setting, falling back to the raw string
// when the decoder left the slice empty.
func splitList(values []string, raw string) []string {
	if len(values) == 0 && raw != "" {
		values = strings.Split(raw, ",")
	}
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	if c.LoadWorkers < 1 {
		return fmt.Errorf("LOAD_WORKERS must be at least 1, got %d", c.LoadWorkers)
	}
	limits := map[string]int{
		"LIMIT_PANEL_WINDOW":         c.PanelWindow,
		"LIMIT_PROCEDURE_WINDOW":     c.ProcedureWindow,
		"LIMIT_PROCEDURE_ALT_WINDOW": c.ProcedureAltWindow,
		"LIMIT_IMPRESSION":           c.ImpressionLimit,
		"LIMIT_NARRATIVE":            c.NarrativeLimit,
		"LIMIT_FINDINGS":             c.FindingsLimit,
		"LIMIT_RECOMMENDATIONS":      c.RecommendationLimit,
		"LIMIT_NOTE":                 c.NoteLimit,
	}
	for key, n := range limits {
		if n < 0 {
			return fmt.Errorf("%s must not be negative, got %d", key, n)
		}
	}
	if c.QueryCacheSize < 0 {
		return fmt.Errorf("QUERY_CACHE_SIZE must not be negative, got %d", c.QueryCacheSize)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

// ValidateServe checks the settings the HTTP server needs on top of
// Validate. Outside development, bearer tokens must be verifiable.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ReloadSchedule != "" {
		if err := scheduling.ValidateSpec(c.ReloadSchedule); err != nil {
			return fmt.Errorf("RELOAD_SCHEDULE: %w", err)
		}
		if c.ReloadTimeout < 1 {
			return fmt.Errorf("RELOAD_TIMEOUT_SECONDS must be at least 1, got %d", c.ReloadTimeout)
		}
	}
	for _, u := range c.WebhookURLs {
		if err := webhook.ValidateURL(u); err != nil {
			return fmt.Errorf("WEBHOOK_URLS: %w", err)
		}
	}
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY must be set when ENV=%q. "+
				"Refusing to start without authentication configuration", c.Env)
	}
	return nil
}

// RequireDatabase returns ErrNoDatabase when no database is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return ErrNoDatabase
	}
	return nil
}
