package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/timebot/internal/dataclient"
	"github.com/m3rciful/timebot/internal/models"
)

// fakeAPI is an in-memory data-access service.
type fakeAPI struct {
	mu         sync.Mutex
	users      map[int64]models.User
	categories map[int64][]models.Category
	activities []models.Activity
	nextID     int64

	getCalls    atomic.Int32
	createCalls atomic.Int32
	// createErrs are returned by successive CreateActivity calls.
	createErrs []error
	listErr    error
	gate       chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		users:      map[int64]models.User{},
		categories: map[int64][]models.Category{},
	}
}

func (f *fakeAPI) seedUser(telegramID int64, tz string) models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u := models.User{ID: f.nextID, TelegramID: telegramID, Timezone: tz}
	f.users[telegramID] = u
	f.categories[u.ID] = []models.Category{
		{ID: 100 + f.nextID*10 + 1, UserID: u.ID, Name: "Работа", Emoji: "💼"},
		{ID: 100 + f.nextID*10 + 2, UserID: u.ID, Name: "Спорт", Emoji: "🏃"},
	}
	return u
}

func (f *fakeAPI) GetUserByTelegramID(ctx context.Context, telegramID int64) (models.User, error) {
	f.getCalls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return models.User{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[telegramID]
	if !ok {
		return models.User{}, &dataclient.APIError{Status: 404, Code: "not_found"}
	}
	return u, nil
}

func (f *fakeAPI) CreateUser(_ context.Context, nu models.NewUser) (models.User, error) {
	f.createCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[nu.TelegramID]; ok {
		return u, nil
	}
	f.nextID++
	u := models.User{ID: f.nextID, TelegramID: nu.TelegramID, Username: nu.Username, FirstName: nu.FirstName}
	f.users[nu.TelegramID] = u
	return u, nil
}

func (f *fakeAPI) ListCategories(_ context.Context, userID int64) ([]models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Category(nil), f.categories[userID]...), nil
}

func (f *fakeAPI) CreateActivity(_ context.Context, na models.NewActivity) (models.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return models.Activity{}, err
	}
	for _, a := range f.activities {
		if a.ClientRef != nil && *a.ClientRef == na.ClientRef {
			return a, nil
		}
	}
	f.nextID++
	ref := na.ClientRef
	a := models.Activity{
		ID:              f.nextID,
		UserID:          na.UserID,
		CategoryID:      na.CategoryID,
		Description:     na.Description,
		Tags:            na.Tags,
		StartTime:       na.StartTime,
		EndTime:         na.EndTime,
		DurationMinutes: int(na.EndTime.Sub(na.StartTime) / time.Minute),
		ClientRef:       &ref,
	}
	f.activities = append(f.activities, a)
	return a, nil
}

func (f *fakeAPI) ListActivities(_ context.Context, userID int64, limit int) ([]models.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Activity
	for i := len(f.activities) - 1; i >= 0 && len(out) < limit; i-- {
		if f.activities[i].UserID == userID {
			out = append(out, f.activities[i])
		}
	}
	return out, nil
}

func (f *fakeAPI) Health(context.Context) error { return nil }

// sent is one outgoing message captured by fakeContext.
type sent struct {
	text   string
	markup *tele.ReplyMarkup
}

// fakeContext implements the parts of tele.Context the handlers use.
type fakeContext struct {
	tele.Context

	user     *tele.User
	text     string
	callback *tele.Callback
	store    map[string]any

	mu        sync.Mutex
	sent      []sent
	responses []string
}

func newFakeContext(userID int64, text string) *fakeContext {
	return &fakeContext{
		user:  &tele.User{ID: userID, FirstName: "Ann_a"},
		text:  text,
		store: map[string]any{},
	}
}

func newCallbackContext(userID int64, unique, payload string) *fakeContext {
	c := newFakeContext(userID, "")
	c.callback = &tele.Callback{Data: "\f" + unique + "|" + payload}
	return c
}

func (c *fakeContext) Sender() *tele.User       { return c.user }
func (c *fakeContext) Chat() *tele.Chat         { return &tele.Chat{ID: c.user.ID} }
func (c *fakeContext) Update() tele.Update      { return tele.Update{ID: 1} }
func (c *fakeContext) Text() string             { return c.text }
func (c *fakeContext) Callback() *tele.Callback { return c.callback }
func (c *fakeContext) Get(key string) any       { return c.store[key] }
func (c *fakeContext) Set(key string, v any)    { c.store[key] = v }

func (c *fakeContext) Send(what any, opts ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := sent{text: fmt.Sprint(what)}
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok && so != nil {
			msg.markup = so.ReplyMarkup
		}
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeContext) Respond(resp ...*tele.CallbackResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range resp {
		if r != nil {
			c.responses = append(c.responses, r.Text)
		}
	}
	return nil
}

func (c *fakeContext) last() sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return sent{}
	}
	return c.sent[len(c.sent)-1]
}

func (c *fakeContext) all() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	parts := make([]string, len(c.sent))
	for i, s := range c.sent {
		parts[i] = s.text
	}
	return strings.Join(parts, "\n---\n")
}

// inlineData lists "unique|payload" for every inline button in m.
func inlineData(m *tele.ReplyMarkup) []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, row := range m.InlineKeyboard {
		for _, b := range row {
			out = append(out, b.Unique+"|"+b.Data)
		}
	}
	return out
}
