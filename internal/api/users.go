package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/m3rciful/timebot/internal/models"
	"github.com/m3rciful/timebot/internal/storage"
)

func (s *Service) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var nu models.NewUser
	if err := decode(w, r, &nu); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_payload", err.Error())
		return
	}
	if nu.TelegramID <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "invalid_payload", "telegram_id is required")
		return
	}
	if nu.Timezone != "" {
		if _, err := time.LoadLocation(nu.Timezone); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid_timezone", "unknown timezone "+strconv.Quote(nu.Timezone))
			return
		}
	}

	u, created, err := s.repo.CreateUser(r.Context(), nu, s.opts.DefaultCategories)
	if err != nil {
		s.internalError(w, r, "create user", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.log.LogAttrs(r.Context(), slog.LevelInfo, "user registered",
			slog.String("event", "user.create"),
			slog.Int64("user_id", u.ID),
			slog.Int("count", len(s.opts.DefaultCategories)),
		)
	}
	writeJSON(w, status, u)
}

func (s *Service) handleUserByTelegramID(w http.ResponseWriter, r *http.Request) {
	tgID, err := strconv.ParseInt(chi.URLParam(r, "telegramID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "telegramID must be an integer")
		return
	}
	u, err := s.repo.UserByTelegramID(r.Context(), tgID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", "user not found")
	case err != nil:
		s.internalError(w, r, "user by telegram id", err)
	default:
		writeJSON(w, http.StatusOK, u)
	}
}

// loadUser resolves the {userID} parameter, writing 404 when the user does
// not exist.
func (s *Service) loadUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	id, ok := idParam(w, r, "userID")
	if !ok {
		return models.User{}, false
	}
	u, err := s.repo.UserByID(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", "user not found")
		return models.User{}, false
	case err != nil:
		s.internalError(w, r, "load user", err)
		return models.User{}, false
	}
	return u, true
}

func (s *Service) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.log.LogAttrs(r.Context(), slog.LevelError, "request failed",
		slog.String("event", "http.error"),
		slog.String("operation", op),
		slog.String("err", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}
