// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/cafeelangel/mesalista/reservation"
)

// Config holds all runtime configuration. Every field maps 1:1 to an env var.
type Config struct {
	// Server
	Port        int      `mapstructure:"PORT"`
	Env         string   `mapstructure:"APP_ENV"` // development | production
	LogLevel    string   `mapstructure:"LOG_LEVEL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Database
	DatabasePath string `mapstructure:"DATABASE_PATH"`

	// Auth
	JWTSecret string `mapstructure:"JWT_SECRET"`

	// Redis (optional, weekly view cache)
	RedisURL         string        `mapstructure:"REDIS_URL"`
	UpcomingCacheTTL time.Duration `mapstructure:"UPCOMING_CACHE_TTL"`

	// RabbitMQ (optional, reservation events)
	AMQPURL     string `mapstructure:"AMQP_URL"`
	EventsQueue string `mapstructure:"EVENTS_QUEUE"`

	// Business
	OverpaymentPolicy  string `mapstructure:"OVERPAYMENT_POLICY"` // allow | reject
	UpcomingWindowDays int    `mapstructure:"UPCOMING_WINDOW_DAYS"`
	Timezone           string `mapstructure:"TIMEZONE"`
}

// Load reads configuration from environment variables, after loading any
// .env files given (or ./.env when none are). Missing files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set in the environment.
		_ = godotenv.Load(f)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("DATABASE_PATH", "./mesalista.db")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("UPCOMING_CACHE_TTL", "60s")
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("EVENTS_QUEUE", "reservation_events")
	v.SetDefault("OVERPAYMENT_POLICY", string(reservation.OverpaymentAllow))
	v.SetDefault("UPCOMING_WINDOW_DAYS", reservation.DefaultWindowDays)
	v.SetDefault("TIMEZONE", "Local")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if _, err := reservation.ParseOverpaymentPolicy(c.OverpaymentPolicy); err != nil {
		return fmt.Errorf("OVERPAYMENT_POLICY: %w", err)
	}
	if c.UpcomingWindowDays < 1 {
		return fmt.Errorf("UPCOMING_WINDOW_DAYS must be at least 1, got %d", c.UpcomingWindowDays)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Overpayment returns the parsed overpayment policy.
func (c *Config) Overpayment() reservation.OverpaymentPolicy {
	p, _ := reservation.ParseOverpaymentPolicy(c.OverpaymentPolicy)
	return p
}

// Location resolves TIMEZONE; "Local" or empty means the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "Local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
