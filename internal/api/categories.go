package api

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/m3rciful/timebot/internal/models"
	"github.com/m3rciful/timebot/internal/storage"
)

const maxCategoryName = 64

func (s *Service) handleListCategories(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	cats, err := s.repo.Categories(r.Context(), u.ID)
	if err != nil {
		s.internalError(w, r, "list categories", err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Service) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	var nc models.NewCategory
	if err := decode(w, r, &nc); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_payload", err.Error())
		return
	}
	nc.Name = strings.TrimSpace(nc.Name)
	nc.Emoji = strings.TrimSpace(nc.Emoji)
	if n := utf8.RuneCountInString(nc.Name); n == 0 || n > maxCategoryName {
		writeError(w, http.StatusUnprocessableEntity, "invalid_name", "name must be 1-64 characters")
		return
	}

	c, err := s.repo.CreateCategory(r.Context(), u.ID, nc)
	switch {
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, "duplicate_category", "category already exists")
	case errors.Is(err, storage.ErrReference):
		writeError(w, http.StatusNotFound, "user_not_found", "user not found")
	case err != nil:
		s.internalError(w, r, "create category", err)
	default:
		writeJSON(w, http.StatusCreated, c)
	}
}

func (s *Service) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	catID, ok := idParam(w, r, "categoryID")
	if !ok {
		return
	}
	err := s.repo.DeleteCategory(r.Context(), u.ID, catID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "category_not_found", "category not found")
	case errors.Is(err, storage.ErrLastCategory):
		writeError(w, http.StatusConflict, "last_category", "the last category cannot be deleted")
	case err != nil:
		s.internalError(w, r, "delete category", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
