package bot

import (
	"context"
	"errors"
	"strconv"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/m3rciful/timebot/internal/dataclient"
	"github.com/m3rciful/timebot/internal/dialog"
	"github.com/m3rciful/timebot/internal/models"
)

// DataAPI is the part of the data-access client the bot relies on.
type DataAPI interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (models.User, error)
	CreateUser(ctx context.Context, nu models.NewUser) (models.User, error)
	ListCategories(ctx context.Context, userID int64) ([]models.Category, error)
	CreateActivity(ctx context.Context, na models.NewActivity) (models.Activity, error)
	ListActivities(ctx context.Context, userID int64, limit int) ([]models.Activity, error)
	Health(ctx context.Context) error
}

// Backend adapts DataAPI to the dialog engine collaborators. Concurrent
// lookups of the same Telegram user share one request.
type Backend struct {
	api   DataAPI
	users singleflight.Group
}

var (
	_ dialog.Directory  = (*Backend)(nil)
	_ dialog.Categories = (*Backend)(nil)
	_ dialog.Activities = (*Backend)(nil)
)

// NewBackend wraps api.
func NewBackend(api DataAPI) *Backend {
	return &Backend{api: api}
}

// Register creates the user for a Telegram account or returns the existing one.
func (b *Backend) Register(ctx context.Context, nu models.NewUser) (models.User, error) {
	v, err, _ := b.users.Do(userFlightKey(nu.TelegramID), func() (any, error) {
		return b.api.CreateUser(ctx, nu)
	})
	if err != nil {
		return models.User{}, err
	}
	return v.(models.User), nil
}

// GetUserByTelegramID resolves a Telegram id, registering a bare account on
// first contact.
func (b *Backend) GetUserByTelegramID(ctx context.Context, telegramID int64) (models.User, error) {
	v, err, _ := b.users.Do(userFlightKey(telegramID), func() (any, error) {
		u, err := b.api.GetUserByTelegramID(ctx, telegramID)
		if errors.Is(err, dataclient.ErrNotFound) {
			return b.api.CreateUser(ctx, models.NewUser{TelegramID: telegramID})
		}
		return u, err
	})
	if err != nil {
		return models.User{}, err
	}
	return v.(models.User), nil
}

// Profile implements dialog.Directory.
func (b *Backend) Profile(ctx context.Context, key dialog.UserKey) (dialog.Profile, error) {
	u, err := b.GetUserByTelegramID(ctx, int64(key))
	if err != nil {
		return dialog.Profile{}, err
	}
	return dialog.Profile{UserID: u.ID, Timezone: u.Timezone}, nil
}

// ListCategories implements dialog.Categories.
func (b *Backend) ListCategories(ctx context.Context, userID int64) ([]dialog.Category, error) {
	cats, err := b.api.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]dialog.Category, 0, len(cats))
	for _, c := range cats {
		out = append(out, dialog.Category{ID: c.ID, Name: c.Name, Emoji: c.Emoji})
	}
	return out, nil
}

// CreateActivity implements dialog.Activities.
func (b *Backend) CreateActivity(ctx context.Context, a dialog.NewActivity) (dialog.Activity, error) {
	created, err := b.api.CreateActivity(ctx, models.NewActivity{
		UserID:      a.UserID,
		CategoryID:  a.CategoryID,
		Description: a.Description,
		Tags:        a.Tags,
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		ClientRef:   a.ClientRef,
	})
	if err != nil {
		return dialog.Activity{}, err
	}
	return dialog.Activity{ID: created.ID, DurationMinutes: created.DurationMinutes}, nil
}

// History is what /recent renders.
type History struct {
	User       models.User
	Activities []models.Activity
	Categories map[int64]dialog.Category
}

// Recent loads the latest activities of u together with the category names.
func (b *Backend) Recent(ctx context.Context, u models.User, limit int) (History, error) {
	h := History{User: u, Categories: map[int64]dialog.Category{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		acts, err := b.api.ListActivities(gctx, u.ID, limit)
		h.Activities = acts
		return err
	})
	var cats []dialog.Category
	g.Go(func() error {
		var err error
		cats, err = b.ListCategories(gctx, u.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return History{}, err
	}
	for _, c := range cats {
		h.Categories[c.ID] = c
	}
	return h, nil
}

// Health checks the data-access service.
func (b *Backend) Health(ctx context.Context) error {
	return b.api.Health(ctx)
}

func userFlightKey(telegramID int64) string {
	return "user:" + strconv.FormatInt(telegramID, 10)
}
