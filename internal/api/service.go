// Package api serves the data-access REST API used by the bot.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/timebot/core/buildinfo"
	"github.com/m3rciful/timebot/internal/models"
)

// Repository is the persistence the handlers need.
type Repository interface {
	Ping(ctx context.Context) error

	UserByTelegramID(ctx context.Context, telegramID int64) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
	CreateUser(ctx context.Context, nu models.NewUser, seed []string) (models.User, bool, error)

	Categories(ctx context.Context, userID int64) ([]models.Category, error)
	CreateCategory(ctx context.Context, userID int64, nc models.NewCategory) (models.Category, error)
	DeleteCategory(ctx context.Context, userID, categoryID int64) error
	CategoryOwned(ctx context.Context, userID, categoryID int64) (bool, error)

	CreateActivity(ctx context.Context, na models.NewActivity) (models.Activity, bool, error)
	RecentActivities(ctx context.Context, userID int64, limit int) ([]models.Activity, error)
	DeleteActivity(ctx context.Context, userID, activityID int64) error

	Settings(ctx context.Context, userID int64) (models.Settings, error)
	SaveSettings(ctx context.Context, st models.Settings) (models.Settings, error)
}

// Options tune validation rules of the service.
type Options struct {
	DefaultCategories    []string
	MinDescriptionLength int
	// ClockSkew tolerates client clocks running slightly ahead.
	ClockSkew time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

const (
	defaultListLimit = 10
	maxListLimit     = 100
	maxBodyBytes     = 64 << 10
)

// Service owns the HTTP router.
type Service struct {
	repo   Repository
	opts   Options
	router chi.Router
	log    *slog.Logger
	ready  atomic.Bool
}

// New builds the service and its routes. It starts not ready; call SetReady
// once dependencies are up.
func New(repo Repository, opts Options) *Service {
	if opts.MinDescriptionLength <= 0 {
		opts.MinDescriptionLength = 3
	}
	if opts.ClockSkew <= 0 {
		opts.ClockSkew = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Service{repo: repo, opts: opts, router: chi.NewRouter(), log: log}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetReady toggles whether /api/v1 accepts traffic.
func (s *Service) SetReady(ready bool) { s.ready.Store(ready) }

func (s *Service) setupRoutes() {
	r := s.router
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireReady)
		r.Use(middleware.AllowContentType("application/json"))

		r.Post("/users", s.handleCreateUser)
		r.Get("/users/by-telegram/{telegramID}", s.handleUserByTelegramID)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/categories", s.handleListCategories)
			r.Post("/categories", s.handleCreateCategory)
			r.Delete("/categories/{categoryID}", s.handleDeleteCategory)

			r.Get("/activities", s.handleListActivities)
			r.Delete("/activities/{activityID}", s.handleDeleteActivity)

			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handlePutSettings)
		})

		r.Post("/activities", s.handleCreateActivity)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": buildinfo.Version,
		"commit":  buildinfo.Commit,
		"date":    buildinfo.Date,
	})
}
