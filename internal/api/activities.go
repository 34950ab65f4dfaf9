package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/m3rciful/timebot/internal/models"
	"github.com/m3rciful/timebot/internal/storage"
)

const maxClientRef = 128

func (s *Service) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	var na models.NewActivity
	if err := decode(w, r, &na); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_payload", err.Error())
		return
	}
	na.Description = strings.TrimSpace(na.Description)
	switch {
	case na.UserID <= 0:
		writeError(w, http.StatusUnprocessableEntity, "invalid_payload", "user_id is required")
		return
	case na.StartTime.IsZero() || na.EndTime.IsZero():
		writeError(w, http.StatusUnprocessableEntity, "invalid_payload", "start_time and end_time are required")
		return
	case utf8.RuneCountInString(na.Description) < s.opts.MinDescriptionLength:
		writeError(w, http.StatusUnprocessableEntity, "too_short",
			"description must have at least "+strconv.Itoa(s.opts.MinDescriptionLength)+" characters")
		return
	case len(na.ClientRef) > maxClientRef:
		writeError(w, http.StatusUnprocessableEntity, "invalid_payload", "client_ref is too long")
		return
	case !na.EndTime.After(na.StartTime):
		writeError(w, http.StatusBadRequest, "end_before_start", "end_time must be after start_time")
		return
	case na.EndTime.After(s.opts.Now().Add(s.opts.ClockSkew)):
		writeError(w, http.StatusBadRequest, "future_time", "end_time is in the future")
		return
	}
	if na.Tags == nil {
		na.Tags = []string{}
	}

	ctx := r.Context()
	if _, err := s.repo.UserByID(ctx, na.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user_not_found", "user not found")
			return
		}
		s.internalError(w, r, "load user", err)
		return
	}
	if na.CategoryID != nil {
		owned, err := s.repo.CategoryOwned(ctx, na.UserID, *na.CategoryID)
		if err != nil {
			s.internalError(w, r, "category owned", err)
			return
		}
		if !owned {
			writeError(w, http.StatusNotFound, "category_not_found", "category not found")
			return
		}
	}

	a, created, err := s.repo.CreateActivity(ctx, na)
	switch {
	case errors.Is(err, storage.ErrConstraint):
		writeError(w, http.StatusBadRequest, "end_before_start", "end_time must be after start_time")
		return
	case errors.Is(err, storage.ErrReference):
		writeError(w, http.StatusNotFound, "category_not_found", "category not found")
		return
	case err != nil:
		s.internalError(w, r, "create activity", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.log.LogAttrs(ctx, slog.LevelInfo, "activity stored",
		slog.String("event", "activity.create"),
		slog.Int64("user_id", a.UserID),
		slog.Int64("activity_id", a.ID),
		slog.Bool("collapsed", !created),
	)
	writeJSON(w, status, a)
}

func (s *Service) handleListActivities(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}
	acts, err := s.repo.RecentActivities(r.Context(), u.ID, limit)
	if err != nil {
		s.internalError(w, r, "list activities", err)
		return
	}
	writeJSON(w, http.StatusOK, acts)
}

func (s *Service) handleDeleteActivity(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "activityID")
	if !ok {
		return
	}
	err := s.repo.DeleteActivity(r.Context(), u.ID, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "activity_not_found", "activity not found")
	case err != nil:
		s.internalError(w, r, "delete activity", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
