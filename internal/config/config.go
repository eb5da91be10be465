// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mubarakway/internal/notify"
	"mubarakway/internal/prayer"
)

// EnvDevelopment is the APP_ENV value that relaxes the bot token requirement.
const EnvDevelopment = "development"

// Config holds the application configuration.
type Config struct {
	AppEnv           string
	TelegramBotToken string
	DatabasePath     string
	NotifiedPath     string
	LogLevel         string
	AllowedUsers     []int64

	HTTPAddr  string
	WebAppURL string

	DefaultMethod prayer.Method
	DefaultMadhab prayer.Madhab
	TickInterval  time.Duration
	ResetTimezone string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	appEnv := getenv("APP_ENV", "production")

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" && appEnv != EnvDevelopment {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	method, err := prayer.ParseMethod(getenv("DEFAULT_CALC_METHOD", string(prayer.DefaultMethod)))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_CALC_METHOD: %w", err)
	}
	madhab, err := prayer.ParseMadhab(getenv("DEFAULT_MADHAB", string(prayer.Shafi)))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_MADHAB: %w", err)
	}

	tick, err := time.ParseDuration(getenv("TICK_INTERVAL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid TICK_INTERVAL: %w", err)
	}
	if tick <= 0 {
		return nil, fmt.Errorf("TICK_INTERVAL must be positive, got %s", tick)
	}

	resetTZ := getenv("RESET_TIMEZONE", "Local")
	if _, err := time.LoadLocation(resetTZ); err != nil {
		return nil, fmt.Errorf("invalid RESET_TIMEZONE: %w", err)
	}

	return &Config{
		AppEnv:           appEnv,
		TelegramBotToken: token,
		DatabasePath:     getenv("DATABASE_PATH", "./data/mubarakway.db"),
		NotifiedPath:     getenv("NOTIFIED_PATH", notify.DefaultPath),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		AllowedUsers:     allowedUsers,
		HTTPAddr:         getenv("HTTP_ADDR", ":4000"),
		WebAppURL:        strings.TrimRight(os.Getenv("WEB_APP_URL"), "/"),
		DefaultMethod:    method,
		DefaultMadhab:    madhab,
		TickInterval:     tick,
		ResetTimezone:    resetTZ,
	}, nil
}

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// ResetLocation returns the zone whose midnight clears sent notifications.
func (c *Config) ResetLocation() *time.Location {
	loc, err := time.LoadLocation(c.ResetTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
