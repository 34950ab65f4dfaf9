package dialog

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeDirectory struct {
	profiles map[UserKey]Profile
	err      error
}

func (d *fakeDirectory) Profile(_ context.Context, key UserKey) (Profile, error) {
	if d.err != nil {
		return Profile{}, d.err
	}
	p, ok := d.profiles[key]
	if !ok {
		return Profile{}, errors.New("unknown user")
	}
	return p, nil
}

type fakeCategories struct {
	mu     sync.Mutex
	byUser map[int64][]Category
	err    error
	calls  int
	// gate, when set, blocks ListCategories until closed.
	gate chan struct{}
}

func (c *fakeCategories) ListCategories(ctx context.Context, userID int64) ([]Category, error) {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return append([]Category(nil), c.byUser[userID]...), nil
}

func (c *fakeCategories) add(userID int64, cat Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byUser[userID] = append(c.byUser[userID], cat)
}

type retryErr struct {
	retry bool
}

func (e retryErr) Error() string   { return "create failed" }
func (e retryErr) Retryable() bool { return e.retry }

type fakeActivities struct {
	mu    sync.Mutex
	calls []NewActivity
	// failures lists errors returned by successive calls before succeeding.
	failures []error
	nextID   int64
}

func (a *fakeActivities) CreateActivity(_ context.Context, req NewActivity) (Activity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, req)
	if len(a.failures) > 0 {
		err := a.failures[0]
		a.failures = a.failures[1:]
		return Activity{}, err
	}
	a.nextID++
	return Activity{ID: a.nextID, DurationMinutes: int(req.EndTime.Sub(req.StartTime) / time.Minute)}, nil
}

func (a *fakeActivities) Calls() []NewActivity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]NewActivity(nil), a.calls...)
}

type fakeNotifier struct {
	mu    sync.Mutex
	fired []Session
	ch    chan Session
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan Session, 8)}
}

func (n *fakeNotifier) DialogTimedOut(_ context.Context, s Session) {
	n.mu.Lock()
	n.fired = append(n.fired, s)
	n.mu.Unlock()
	n.ch <- s
}

func (n *fakeNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.fired)
}
