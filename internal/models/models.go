// Package models contains the records exchanged between the data-access
// service, its storage and its clients.
package models

import (
	"time"

	"github.com/lib/pq"
)

// User is a registered Telegram user.
type User struct {
	ID         int64     `db:"id" json:"id"`
	TelegramID int64     `db:"telegram_id" json:"telegram_id"`
	Username   string    `db:"username" json:"username,omitempty"`
	FirstName  string    `db:"first_name" json:"first_name,omitempty"`
	Timezone   string    `db:"timezone" json:"timezone,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// NewUser is the registration payload.
type NewUser struct {
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
}

// Category groups a user's activities.
type Category struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Emoji     string    `db:"emoji" json:"emoji,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NewCategory is the category creation payload.
type NewCategory struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji,omitempty"`
}

// Activity is a recorded time interval. DurationMinutes is derived by the
// database and never accepted from clients.
type Activity struct {
	ID              int64          `db:"id" json:"id"`
	UserID          int64          `db:"user_id" json:"user_id"`
	CategoryID      *int64         `db:"category_id" json:"category_id"`
	Description     string         `db:"description" json:"description"`
	Tags            pq.StringArray `db:"tags" json:"tags"`
	StartTime       time.Time      `db:"start_time" json:"start_time"`
	EndTime         time.Time      `db:"end_time" json:"end_time"`
	DurationMinutes int            `db:"duration_minutes" json:"duration_minutes"`
	ClientRef       *string        `db:"client_ref" json:"client_ref,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// NewActivity is the activity creation payload. A repeated ClientRef returns
// the activity created by the first request.
type NewActivity struct {
	UserID      int64     `json:"user_id"`
	CategoryID  *int64    `json:"category_id"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	ClientRef   string    `json:"client_ref,omitempty"`
}

// Settings are per-user preferences.
type Settings struct {
	UserID                  int64     `db:"user_id" json:"user_id"`
	RemindersEnabled        bool      `db:"reminders_enabled" json:"reminders_enabled"`
	ReminderIntervalMinutes int       `db:"reminder_interval_minutes" json:"reminder_interval_minutes"`
	SummaryTime             string    `db:"summary_time" json:"summary_time"`
	UpdatedAt               time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultSettings returns the settings of a user who never changed them.
func DefaultSettings(userID int64) Settings {
	return Settings{
		UserID:                  userID,
		RemindersEnabled:        false,
		ReminderIntervalMinutes: 60,
		SummaryTime:             "21:00",
	}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
