package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	CMSBaseURL     string `mapstructure:"CMS_BASE_URL"`
	CMSAppUser     string `mapstructure:"CMS_APP_USER"`
	CMSAppPassword string `mapstructure:"CMS_APP_PASSWORD"`

	PostgresURL string `mapstructure:"POSTGRES_URL"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	ServerPort  string `mapstructure:"SERVER_PORT"`

	MaxWidth       int    `mapstructure:"MAX_WIDTH"`
	QualityPhoto   int    `mapstructure:"QUALITY_PHOTO"`
	QualityGraphic int    `mapstructure:"QUALITY_GRAPHIC"`
	PreserveICC    string `mapstructure:"PRESERVE_ICC"`
	WebPEnabled    bool   `mapstructure:"WEBP_ENABLED"`

	ConcurrencyMin  int `mapstructure:"CONCURRENCY_MIN"`
	ConcurrencyBase int `mapstructure:"CONCURRENCY_BASE"`
	ConcurrencyMax  int `mapstructure:"CONCURRENCY_MAX"`
	ConcurrencyStep int `mapstructure:"CONCURRENCY_STEP"`
	ScalerWindow    int `mapstructure:"SCALER_WINDOW"`

	ScheduleStart string `mapstructure:"SCHEDULE_START"`
	ScheduleEnd   string `mapstructure:"SCHEDULE_END"`

	HTTPTimeoutSec  int `mapstructure:"HTTP_TIMEOUT"`
	ResolverMaxPage int `mapstructure:"RESOLVER_MAX_PAGES"`

	VerifyPercent    int `mapstructure:"VERIFY_PERCENT"`
	VerifyCap        int `mapstructure:"VERIFY_CAP"`
	VerifyRetries    int `mapstructure:"VERIFY_RETRIES"`
	VerifyTimeoutMS  int `mapstructure:"VERIFY_TIMEOUT_MS"`
	VerifyConcurrent int `mapstructure:"VERIFY_CONCURRENCY"`
}

// Load reads configuration from the .env file or environment variables and
// validates it. Invalid values abort startup rather than silently defaulting.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables.
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("MAX_WIDTH", 2560)
	viper.SetDefault("QUALITY_PHOTO", 75)
	viper.SetDefault("QUALITY_GRAPHIC", 85)
	viper.SetDefault("PRESERVE_ICC", "auto")
	viper.SetDefault("WEBP_ENABLED", false)
	viper.SetDefault("CONCURRENCY_MIN", 1)
	viper.SetDefault("CONCURRENCY_BASE", 3)
	viper.SetDefault("CONCURRENCY_MAX", 5)
	viper.SetDefault("CONCURRENCY_STEP", 1)
	viper.SetDefault("SCALER_WINDOW", 100)
	viper.SetDefault("HTTP_TIMEOUT", 30) // in seconds
	viper.SetDefault("RESOLVER_MAX_PAGES", 5)
	viper.SetDefault("VERIFY_PERCENT", 5)
	viper.SetDefault("VERIFY_CAP", 250)
	viper.SetDefault("VERIFY_RETRIES", 1)
	viper.SetDefault("VERIFY_TIMEOUT_MS", 5000)
	viper.SetDefault("VERIFY_CONCURRENCY", 10)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every policy knob once at process start.
func (c *Config) Validate() error {
	if c.CMSBaseURL == "" {
		return fmt.Errorf("CMS_BASE_URL is required")
	}
	if _, err := url.ParseRequestURI(c.CMSBaseURL); err != nil {
		return fmt.Errorf("CMS_BASE_URL is not a valid URL: %w", err)
	}
	if c.MaxWidth <= 0 {
		return fmt.Errorf("MAX_WIDTH must be positive, got %d", c.MaxWidth)
	}
	if c.QualityPhoto < 1 || c.QualityPhoto > 100 {
		return fmt.Errorf("QUALITY_PHOTO must be in 1..100, got %d", c.QualityPhoto)
	}
	if c.QualityGraphic < 1 || c.QualityGraphic > 100 {
		return fmt.Errorf("QUALITY_GRAPHIC must be in 1..100, got %d", c.QualityGraphic)
	}
	switch c.PreserveICC {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("PRESERVE_ICC must be one of auto, always, never; got %q", c.PreserveICC)
	}
	if c.ConcurrencyMin < 1 {
		return fmt.Errorf("CONCURRENCY_MIN must be at least 1, got %d", c.ConcurrencyMin)
	}
	if c.ConcurrencyMax < c.ConcurrencyMin {
		return fmt.Errorf("CONCURRENCY_MAX (%d) must not be below CONCURRENCY_MIN (%d)", c.ConcurrencyMax, c.ConcurrencyMin)
	}
	if c.ConcurrencyBase < c.ConcurrencyMin || c.ConcurrencyBase > c.ConcurrencyMax {
		return fmt.Errorf("CONCURRENCY_BASE (%d) must be within [%d, %d]", c.ConcurrencyBase, c.ConcurrencyMin, c.ConcurrencyMax)
	}
	if c.ConcurrencyStep < 1 {
		return fmt.Errorf("CONCURRENCY_STEP must be at least 1, got %d", c.ConcurrencyStep)
	}
	if c.ScalerWindow < 1 {
		return fmt.Errorf("SCALER_WINDOW must be at least 1, got %d", c.ScalerWindow)
	}
	if err := validateClock(c.ScheduleStart, "SCHEDULE_START"); err != nil {
		return err
	}
	if err := validateClock(c.ScheduleEnd, "SCHEDULE_END"); err != nil {
		return err
	}
	if (c.ScheduleStart == "") != (c.ScheduleEnd == "") {
		return fmt.Errorf("SCHEDULE_START and SCHEDULE_END must be set together")
	}
	if c.VerifyPercent < 0 || c.VerifyPercent > 100 {
		return fmt.Errorf("VERIFY_PERCENT must be in 0..100, got %d", c.VerifyPercent)
	}
	return nil
}

func validateClock(v, name string) error {
	if v == "" {
		return nil
	}
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("%s must be HH:MM, got %q", name, v)
	}
	var h, m int
	if _, err := fmt.Sscanf(v, "%d:%d", &h, &m); err != nil {
		return fmt.Errorf("%s must be HH:MM, got %q", name, v)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("%s out of range, got %q", name, v)
	}
	return nil
}
