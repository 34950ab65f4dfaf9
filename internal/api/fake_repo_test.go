package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/timebot/internal/models"
	"github.com/m3rciful/timebot/internal/storage"
)

// memRepo is an in-memory Repository mirroring the storage semantics.
type memRepo struct {
	mu         sync.Mutex
	seq        int64
	users      map[int64]models.User
	categories map[int64]models.Category
	activities map[int64]models.Activity
	settings   map[int64]models.Settings
	pingErr    error
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:      map[int64]models.User{},
		categories: map[int64]models.Category{},
		activities: map[int64]models.Activity{},
		settings:   map[int64]models.Settings{},
	}
}

func (m *memRepo) next() int64 { m.seq++; return m.seq }

func (m *memRepo) Ping(context.Context) error { return m.pingErr }

func (m *memRepo) UserByTelegramID(_ context.Context, tgID int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TelegramID == tgID {
			return u, nil
		}
	}
	return models.User{}, storage.ErrNotFound
}

func (m *memRepo) UserByID(_ context.Context, id int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (m *memRepo) CreateUser(ctx context.Context, nu models.NewUser, seed []string) (models.User, bool, error) {
	if u, err := m.UserByTelegramID(ctx, nu.TelegramID); err == nil {
		return u, false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.User{ID: m.next(), TelegramID: nu.TelegramID, Username: nu.Username, FirstName: nu.FirstName, Timezone: nu.Timezone}
	m.users[u.ID] = u
	for _, label := range seed {
		emoji, name := storage.SplitCategoryLabel(label)
		c := models.Category{ID: m.next(), UserID: u.ID, Name: name, Emoji: emoji}
		m.categories[c.ID] = c
	}
	return u, true, nil
}

func (m *memRepo) Categories(_ context.Context, userID int64) ([]models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Category{}
	for _, c := range m.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) CreateCategory(_ context.Context, userID int64, nc models.NewCategory) (models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.UserID == userID && c.Name == nc.Name {
			return models.Category{}, fmt.Errorf("create category: %w", storage.ErrConflict)
		}
	}
	c := models.Category{ID: m.next(), UserID: userID, Name: nc.Name, Emoji: nc.Emoji}
	m.categories[c.ID] = c
	return c, nil
}

func (m *memRepo) DeleteCategory(_ context.Context, userID, categoryID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[categoryID]
	if !ok || c.UserID != userID {
		return storage.ErrNotFound
	}
	n := 0
	for _, c := range m.categories {
		if c.UserID == userID {
			n++
		}
	}
	if n == 1 {
		return storage.ErrLastCategory
	}
	delete(m.categories, categoryID)
	return nil
}

func (m *memRepo) CategoryOwned(_ context.Context, userID, categoryID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[categoryID]
	return ok && c.UserID == userID, nil
}

func (m *memRepo) CreateActivity(_ context.Context, na models.NewActivity) (models.Activity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if na.ClientRef != "" {
		for _, a := range m.activities {
			if a.UserID == na.UserID && a.ClientRef != nil && *a.ClientRef == na.ClientRef {
				return a, false, nil
			}
		}
	}
	if !na.EndTime.After(na.StartTime) {
		return models.Activity{}, false, fmt.Errorf("insert activity: %w", storage.ErrConstraint)
	}
	a := models.Activity{
		ID:              m.next(),
		UserID:          na.UserID,
		CategoryID:      na.CategoryID,
		Description:     na.Description,
		Tags:            na.Tags,
		StartTime:       na.StartTime,
		EndTime:         na.EndTime,
		DurationMinutes: int(na.EndTime.Sub(na.StartTime) / time.Minute),
	}
	if na.ClientRef != "" {
		ref := na.ClientRef
		a.ClientRef = &ref
	}
	m.activities[a.ID] = a
	return a, true, nil
}

func (m *memRepo) RecentActivities(_ context.Context, userID int64, limit int) ([]models.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Activity{}
	for _, a := range m.activities {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) DeleteActivity(_ context.Context, userID, activityID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[activityID]
	if !ok || a.UserID != userID {
		return storage.ErrNotFound
	}
	delete(m.activities, activityID)
	return nil
}

func (m *memRepo) Settings(_ context.Context, userID int64) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.settings[userID]; ok {
		return st, nil
	}
	return models.DefaultSettings(userID), nil
}

func (m *memRepo) SaveSettings(_ context.Context, st models.Settings) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[st.UserID] = st
	return st, nil
}
