package storage

import (
	"context"
	"errors"

	"github.com/m3rciful/timebot/internal/models"
)

// Settings returns the stored settings or the defaults when none were saved.
func (s *Store) Settings(ctx context.Context, userID int64) (models.Settings, error) {
	var st models.Settings
	err := s.db.GetContext(ctx, &st, `
		SELECT user_id, reminders_enabled, reminder_interval_minutes, summary_time, updated_at
		FROM user_settings WHERE user_id = $1`, userID)
	if err != nil {
		err = classify("settings", err)
		if errors.Is(err, ErrNotFound) {
			return models.DefaultSettings(userID), nil
		}
		return models.Settings{}, err
	}
	return st, nil
}

// SaveSettings upserts a user's settings.
func (s *Store) SaveSettings(ctx context.Context, st models.Settings) (models.Settings, error) {
	var out models.Settings
	err := s.db.GetContext(ctx, &out, `
		INSERT INTO user_settings (user_id, reminders_enabled, reminder_interval_minutes, summary_time, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE SET
			reminders_enabled = EXCLUDED.reminders_enabled,
			reminder_interval_minutes = EXCLUDED.reminder_interval_minutes,
			summary_time = EXCLUDED.summary_time,
			updated_at = now()
		RETURNING user_id, reminders_enabled, reminder_interval_minutes, summary_time, updated_at`,
		st.UserID, st.RemindersEnabled, st.ReminderIntervalMinutes, st.SummaryTime)
	return out, classify("save settings", err)
}
