// Package model defines the domain types used across the application.
package model

import "time"

// Location is a user's saved position used for prayer time calculation.
type Location struct {
	Latitude  float64
	Longitude float64
	Timezone  string
	City      string
}

// User is a Telegram user of the bot and the Mini App.
type User struct {
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string

	Location *Location
	// Empty method or madhab means the server default.
	CalculationMethod    string
	Madhab               string
	NotificationsEnabled bool
	BeforeMinutes        int

	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Default prayer settings for new users.
const (
	DefaultBeforeMinutes = 10
	MaxBeforeMinutes     = 60
)

// MarkStatus is a user's answer to a prayer notification.
type MarkStatus string

// Supported mark statuses.
const (
	MarkPrayed MarkStatus = "prayed"
	MarkMissed MarkStatus = "missed"
	MarkMakeup MarkStatus = "makeup"
	MarkMosque MarkStatus = "mosque"
)

// PrayerMark records how a user answered the notification for one prayer on one day.
type PrayerMark struct {
	TelegramID int64
	PrayerKey  string
	Date       string
	Status     MarkStatus
	CreatedAt  time.Time
}
