package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mubarakway/internal/prayer"
)

var envKeys = []string{
	"APP_ENV", "TELEGRAM_BOT_TOKEN", "DATABASE_PATH", "NOTIFIED_PATH", "LOG_LEVEL", "ALLOWED_USERS",
	"HTTP_ADDR", "WEB_APP_URL", "DEFAULT_CALC_METHOD", "DEFAULT_MADHAB", "TICK_INTERVAL", "RESET_TIMEZONE",
}

func defaults(token string) *Config {
	return &Config{
		AppEnv:           "production",
		TelegramBotToken: token,
		DatabasePath:     "./data/mubarakway.db",
		NotifiedPath:     "./data/notified-prayers.json",
		LogLevel:         "info",
		HTTPAddr:         ":4000",
		DefaultMethod:    prayer.MuslimWorldLeague,
		DefaultMadhab:    prayer.Shafi,
		TickInterval:     time.Minute,
		ResetTimezone:    "Local",
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "token only, defaults applied",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "test-token"},
			want: defaults("test-token"),
		},
		{
			name: "development without token",
			env:  map[string]string{"APP_ENV": "development"},
			want: func() *Config {
				c := defaults("")
				c.AppEnv = "development"
				return c
			}(),
		},
		{
			name: "all values set",
			env: map[string]string{
				"APP_ENV":             "staging",
				"TELEGRAM_BOT_TOKEN":  "tok",
				"DATABASE_PATH":       "/tmp/bot.db",
				"NOTIFIED_PATH":       "/tmp/notified.json",
				"LOG_LEVEL":           "debug",
				"ALLOWED_USERS":       "111,222,333",
				"HTTP_ADDR":           "127.0.0.1:8080",
				"WEB_APP_URL":         "https://app.example.com/",
				"DEFAULT_CALC_METHOD": "ummalqura",
				"DEFAULT_MADHAB":      "Hanafi",
				"TICK_INTERVAL":       "30s",
				"RESET_TIMEZONE":      "Europe/Moscow",
			},
			want: &Config{
				AppEnv:           "staging",
				TelegramBotToken: "tok",
				DatabasePath:     "/tmp/bot.db",
				NotifiedPath:     "/tmp/notified.json",
				LogLevel:         "debug",
				AllowedUsers:     []int64{111, 222, 333},
				HTTPAddr:         "127.0.0.1:8080",
				WebAppURL:        "https://app.example.com",
				DefaultMethod:    prayer.UmmAlQura,
				DefaultMadhab:    prayer.Hanafi,
				TickInterval:     30 * time.Second,
				ResetTimezone:    "Europe/Moscow",
			},
		},
		{
			name: "allowed users with spaces",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      " 10 , 20 , ",
			},
			want: func() *Config {
				c := defaults("tok")
				c.AllowedUsers = []int64{10, 20}
				return c
			}(),
		},
		{
			name: "invalid user id",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      "123,abc",
			},
			wantErr: true,
		},
		{
			name:    "unknown method",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "DEFAULT_CALC_METHOD": "Tehran"},
			wantErr: true,
		},
		{
			name:    "unknown madhab",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "DEFAULT_MADHAB": "jafari"},
			wantErr: true,
		},
		{
			name:    "bad tick interval",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "TICK_INTERVAL": "every minute"},
			wantErr: true,
		},
		{
			name:    "zero tick interval",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "TICK_INTERVAL": "0s"},
			wantErr: true,
		},
		{
			name:    "unknown reset timezone",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "RESET_TIMEZONE": "Mars/Olympus"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	if !(&Config{AppEnv: "development"}).IsDevelopment() {
		t.Error("development env should report IsDevelopment")
	}
	if (&Config{AppEnv: "production"}).IsDevelopment() {
		t.Error("production env should not report IsDevelopment")
	}
}

func TestResetLocation(t *testing.T) {
	cfg := &Config{ResetTimezone: "Asia/Dubai"}
	if diff := cmp.Diff("Asia/Dubai", cfg.ResetLocation().String()); diff != "" {
		t.Errorf("ResetLocation() mismatch (-want +got):\n%s", diff)
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			got := cfg.IsUserAllowed(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
