package api

import (
	"net/http"
	"time"

	"github.com/m3rciful/timebot/internal/models"
)

type settingsPayload struct {
	RemindersEnabled        *bool   `json:"reminders_enabled"`
	ReminderIntervalMinutes *int    `json:"reminder_interval_minutes"`
	SummaryTime             *string `json:"summary_time"`
}

func (s *Service) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	st, err := s.repo.Settings(r.Context(), u.ID)
	if err != nil {
		s.internalError(w, r, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handlePutSettings applies a partial update over the current settings.
func (s *Service) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	var p settingsPayload
	if err := decode(w, r, &p); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_payload", err.Error())
		return
	}

	st, err := s.repo.Settings(r.Context(), u.ID)
	if err != nil {
		s.internalError(w, r, "get settings", err)
		return
	}
	if msg := applySettings(&st, p); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid_settings", msg)
		return
	}
	saved, err := s.repo.SaveSettings(r.Context(), st)
	if err != nil {
		s.internalError(w, r, "save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func applySettings(st *models.Settings, p settingsPayload) string {
	if p.RemindersEnabled != nil {
		st.RemindersEnabled = *p.RemindersEnabled
	}
	if p.ReminderIntervalMinutes != nil {
		if *p.ReminderIntervalMinutes <= 0 || *p.ReminderIntervalMinutes > 24*60 {
			return "reminder_interval_minutes must be between 1 and 1440"
		}
		st.ReminderIntervalMinutes = *p.ReminderIntervalMinutes
	}
	if p.SummaryTime != nil {
		if _, err := time.Parse("15:04", *p.SummaryTime); err != nil {
			return "summary_time must be HH:MM"
		}
		st.SummaryTime = *p.SummaryTime
	}
	return ""
}
