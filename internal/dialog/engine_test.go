package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	alice UserKey = 1001
	bob   UserKey = 1002
)

type EngineSuite struct {
	suite.Suite

	clock      *fakeClock
	store      *Store
	scheduler  *Scheduler
	categories *fakeCategories
	activities *fakeActivities
	notifier   *fakeNotifier
	engine     *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.clock = newFakeClock(t0)
	s.store = NewStore(StoreOptions{IdleTimeout: 15 * time.Minute, Now: s.clock.Now})
	s.scheduler = NewScheduler(s.clock.Now)
	s.categories = &fakeCategories{byUser: map[int64][]Category{
		1: {{ID: 1, Name: "Работа", Emoji: "💼"}, {ID: 2, Name: "Спорт", Emoji: "🏃"}},
		2: {{ID: 3, Name: "Чтение", Emoji: "📚"}},
	}}
	s.activities = &fakeActivities{}
	s.notifier = newFakeNotifier()
	s.engine = s.newEngine(Options{})
}

func (s *EngineSuite) TearDownTest() {
	s.engine.Close()
}

func (s *EngineSuite) newEngine(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = s.clock.Now
	}
	engine, err := NewEngine(Deps{
		Store:     s.store,
		Scheduler: s.scheduler,
		Directory: &fakeDirectory{profiles: map[UserKey]Profile{
			alice: {UserID: 1, Timezone: "Europe/Moscow"},
			bob:   {UserID: 2},
		}},
		Categories: s.categories,
		Activities: s.activities,
		Notifier:   s.notifier,
	}, opts)
	s.Require().NoError(err)
	return engine
}

func (s *EngineSuite) ctx() context.Context { return context.Background() }

// advanceTo walks alice's dialog to the given stage with valid inputs.
func (s *EngineSuite) advanceTo(stage Stage) Result {
	res, err := s.engine.Begin(s.ctx(), alice)
	s.Require().NoError(err)
	inputs := []string{"14:30", "сейчас", "Работал над отчётом #проект"}
	for _, in := range inputs {
		if res.Stage() == stage {
			return res
		}
		res, err = s.engine.Submit(s.ctx(), alice, in)
		s.Require().NoError(err)
	}
	s.Require().Equal(stage, res.Stage())
	return res
}

func (s *EngineSuite) TestEndToEnd() {
	res, err := s.engine.Begin(s.ctx(), alice)
	s.Require().NoError(err)
	s.Equal(StageAwaitingStartTime, res.Stage())
	s.Equal(PromptStartTime, res.Prompt)
	s.True(s.scheduler.Pending(alice))

	res, err = s.engine.Submit(s.ctx(), alice, "14:30")
	s.Require().NoError(err)
	s.Equal(StageAwaitingEndTime, res.Stage())
	s.Equal(PromptEndTime, res.Prompt)
	s.Equal(time.Date(2025, 1, 15, 11, 30, 0, 0, time.UTC), *res.Session.StartTime)

	res, err = s.engine.Submit(s.ctx(), alice, "сейчас")
	s.Require().NoError(err)
	s.Equal(StageAwaitingDescription, res.Stage())
	s.Equal(t0, *res.Session.EndTime)

	res, err = s.engine.Submit(s.ctx(), alice, "Работал над отчётом #проект")
	s.Require().NoError(err)
	s.Equal(StageAwaitingCategory, res.Stage())
	s.Equal("Работал над отчётом", *res.Session.Description)
	s.Equal([]string{"проект"}, res.Session.Tags)

	res, err = s.engine.Submit(s.ctx(), alice, "1")
	s.Require().NoError(err)
	s.Equal(StageCompleted, res.Stage())
	s.Equal(PromptSaved, res.Prompt)
	s.Require().NotNil(res.Activity)
	s.Equal(510, res.Activity.DurationMinutes)

	calls := s.activities.Calls()
	s.Require().Len(calls, 1)
	call := calls[0]
	s.Equal(int64(1), call.UserID)
	s.Require().NotNil(call.CategoryID)
	s.Equal(int64(1), *call.CategoryID)
	s.Equal("Работал над отчётом", call.Description)
	s.Equal([]string{"проект"}, call.Tags)
	s.Equal(time.Date(2025, 1, 15, 11, 30, 0, 0, time.UTC), call.StartTime)
	s.Equal(t0, call.EndTime)
	s.NotEmpty(call.ClientRef)

	_, err = s.store.Get(alice)
	s.ErrorIs(err, ErrNotFound, "completed sessions are removed")
	s.False(s.scheduler.Pending(alice))
	s.Equal(0, s.engine.Active())
}

func (s *EngineSuite) TestStagesAdvanceInOrder() {
	want := []Stage{StageAwaitingStartTime, StageAwaitingEndTime, StageAwaitingDescription, StageAwaitingCategory, StageCompleted}
	res, err := s.engine.Begin(s.ctx(), alice)
	s.Require().NoError(err)
	seen := []Stage{res.Stage()}
	for _, in := range []string{"60м", "30м", "Пробежка #спорт", NoCategory} {
		res, err = s.engine.Submit(s.ctx(), alice, in)
		s.Require().NoError(err)
		seen = append(seen, res.Stage())
	}
	s.Equal(want, seen)
}

func (s *EngineSuite) TestMinutesMarkerIsAgoThenDuration() {
	s.advanceTo(StageAwaitingStartTime)

	res, err := s.engine.Submit(s.ctx(), alice, "90м")
	s.Require().NoError(err)
	start := t0.Add(-90 * time.Minute)
	s.Equal(start, *res.Session.StartTime)

	res, err = s.engine.Submit(s.ctx(), alice, "45м")
	s.Require().NoError(err)
	s.Equal(start.Add(45*time.Minute), *res.Session.EndTime)
}

func (s *EngineSuite) TestHoursMarkerAtEndIsDuration() {
	s.advanceTo(StageAwaitingStartTime)
	_, err := s.engine.Submit(s.ctx(), alice, "3ч")
	s.Require().NoError(err)

	res, err := s.engine.Submit(s.ctx(), alice, "2ч")
	s.Require().NoError(err)
	s.Equal(t0.Add(-time.Hour), *res.Session.EndTime)
}

func (s *EngineSuite) TestInvalidInputLeavesSessionUntouched() {
	before := s.advanceTo(StageAwaitingStartTime)
	s.clock.Advance(5 * time.Minute)

	first, err := s.engine.Submit(s.ctx(), alice, "когда-то")
	s.Equal(CodeParseError, CodeOf(err))
	second, err := s.engine.Submit(s.ctx(), alice, "когда-то")
	s.Equal(CodeParseError, CodeOf(err))

	s.Equal(first, second)
	s.Equal(before.Session, first.Session)
	s.Equal(PromptStartTime, first.Prompt)

	stored, err := s.store.Get(alice)
	s.Require().NoError(err)
	s.Equal(t0, stored.LastTransitionAt, "invalid input does not extend the idle deadline")

	s.clock.Advance(10 * time.Minute)
	_, err = s.store.Get(alice)
	s.ErrorIs(err, ErrNotFound, "repeated invalid input cannot keep a session alive")
}

func (s *EngineSuite) TestStartTimeValidation() {
	s.advanceTo(StageAwaitingStartTime)

	_, err := s.engine.Submit(s.ctx(), alice, "23:30")
	s.Equal(CodeFutureTime, CodeOf(err))

	_, err = s.engine.Submit(s.ctx(), alice, "30ч")
	s.Equal(CodeTooOld, CodeOf(err))

	var de *Error
	s.Require().ErrorAs(err, &de)
	s.Equal(KindInput, de.Kind())
	s.Equal(StageAwaitingStartTime, de.Stage)
}

func (s *EngineSuite) TestEndBeforeStart() {
	s.advanceTo(StageAwaitingEndTime)

	res, err := s.engine.Submit(s.ctx(), alice, "14:30")
	s.Equal(CodeEndBeforeStart, CodeOf(err))
	s.Equal(StageAwaitingEndTime, res.Stage())
	s.Nil(res.Session.EndTime)

	_, err = s.engine.Submit(s.ctx(), alice, "0м")
	s.Equal(CodeEndBeforeStart, CodeOf(err))

	_, err = s.engine.Submit(s.ctx(), alice, "12:00")
	s.Equal(CodeEndBeforeStart, CodeOf(err))

	_, err = s.engine.Submit(s.ctx(), alice, "10ч")
	s.Equal(CodeFutureTime, CodeOf(err))
}

func (s *EngineSuite) TestDescriptionTooShort() {
	s.advanceTo(StageAwaitingDescription)

	_, err := s.engine.Submit(s.ctx(), alice, "ab #tag")
	s.Equal(CodeTooShort, CodeOf(err))

	res, err := s.engine.Submit(s.ctx(), alice, "abc")
	s.Require().NoError(err)
	s.Equal("abc", *res.Session.Description)
	s.Empty(res.Session.Tags)
}

func (s *EngineSuite) TestCategorySelection() {
	s.advanceTo(StageAwaitingCategory)

	_, err := s.engine.Submit(s.ctx(), alice, "3")
	s.Equal(CodeInvalidCategory, CodeOf(err), "category of another user")

	_, err = s.engine.Submit(s.ctx(), alice, "работа")
	s.Equal(CodeInvalidCategory, CodeOf(err))

	s.categories.add(1, Category{ID: 9, Name: "Новая"})
	res, err := s.engine.Submit(s.ctx(), alice, "9")
	s.Require().NoError(err, "categories created mid-dialog are visible")
	s.Equal(StageCompleted, res.Stage())
	s.Equal(int64(9), *s.activities.Calls()[0].CategoryID)
}

func (s *EngineSuite) TestNoCategory() {
	s.advanceTo(StageAwaitingCategory)
	res, err := s.engine.Submit(s.ctx(), alice, "none")
	s.Require().NoError(err)
	s.Equal(StageCompleted, res.Stage())
	s.Nil(s.activities.Calls()[0].CategoryID)
}

func (s *EngineSuite) TestCategoriesUnavailable() {
	s.advanceTo(StageAwaitingCategory)
	s.categories.err = errors.New("connection refused")

	res, err := s.engine.Submit(s.ctx(), alice, "1")
	s.Equal(CodeCategoriesUnavailable, CodeOf(err))
	s.Equal(StageAwaitingCategory, res.Stage())
	s.Empty(s.activities.Calls())

	s.categories.err = nil
	_, err = s.engine.Submit(s.ctx(), alice, "1")
	s.NoError(err)
}

func (s *EngineSuite) TestCompletionFailureKeepsSessionForRetry() {
	s.activities.failures = []error{retryErr{retry: true}}
	s.advanceTo(StageAwaitingCategory)

	res, err := s.engine.Submit(s.ctx(), alice, "2")
	s.Equal(CodeCreationFailed, CodeOf(err))
	s.Equal(StageCompleted, res.Stage())
	s.Equal(PromptRetryCompletion, res.Prompt)

	var de *Error
	s.Require().ErrorAs(err, &de)
	s.True(de.Retryable())
	s.Equal(KindDownstream, de.Kind())

	stored, err := s.store.Get(alice)
	s.Require().NoError(err, "a fully entered activity is not lost")
	s.Equal(StageCompleted, stored.Stage)

	_, err = s.engine.Submit(s.ctx(), alice, "anything")
	s.Equal(CodeCompletionPending, CodeOf(err))

	_, err = s.engine.Cancel(s.ctx(), alice)
	s.Equal(CodeCompletionPending, CodeOf(err))

	res, err = s.engine.Complete(s.ctx(), alice)
	s.Require().NoError(err)
	s.Equal(PromptSaved, res.Prompt)

	calls := s.activities.Calls()
	s.Require().Len(calls, 2)
	s.Equal(calls[0], calls[1], "the retry resends the identical payload")

	_, err = s.store.Get(alice)
	s.ErrorIs(err, ErrNotFound)
}

func (s *EngineSuite) TestCompletionRejectedIsNotRetryable() {
	s.activities.failures = []error{retryErr{retry: false}}
	s.advanceTo(StageAwaitingCategory)

	_, err := s.engine.Submit(s.ctx(), alice, "1")
	var de *Error
	s.Require().ErrorAs(err, &de)
	s.Equal(CodeCreationFailed, de.Code)
	s.False(de.Retryable())
}

func (s *EngineSuite) TestCompleteWithoutPendingCompletion() {
	s.advanceTo(StageAwaitingEndTime)
	_, err := s.engine.Complete(s.ctx(), alice)
	s.Equal(CodeNothingToComplete, CodeOf(err))
}

func (s *EngineSuite) TestBeginTwiceIsRefused() {
	s.advanceTo(StageAwaitingEndTime)
	res, err := s.engine.Begin(s.ctx(), alice)
	s.Equal(CodeAlreadyInProgress, CodeOf(err))
	s.Equal(StageAwaitingEndTime, res.Stage())
}

func (s *EngineSuite) TestAbandonAndRestart() {
	s.advanceTo(StageAwaitingDescription)

	res, err := s.engine.Cancel(s.ctx(), alice)
	s.Require().NoError(err)
	s.Equal(StageAbandoned, res.Stage())
	s.Equal(PromptCancelled, res.Prompt)
	s.False(s.scheduler.Pending(alice))

	res, err = s.engine.Begin(s.ctx(), alice)
	s.Require().NoError(err)
	s.Equal(StageAwaitingStartTime, res.Stage())
	s.Nil(res.Session.StartTime)
	s.Equal(0, s.notifier.Count())
}

func (s *EngineSuite) TestBeginAfterUnfiredTimeoutNotifiesOnce() {
	first := s.advanceTo(StageAwaitingEndTime)

	// The deadline passed on the clock but the timer has not run yet.
	s.clock.Advance(16 * time.Minute)
	s.Require().True(s.scheduler.Pending(alice))

	res, err := s.engine.Begin(s.ctx(), alice)
	s.Require().NoError(err)
	s.Equal(StageAwaitingStartTime, res.Stage())
	s.NotEqual(first.Session.ID, res.Session.ID)

	s.Require().Equal(1, s.notifier.Count())
	select {
	case sess := <-s.notifier.ch:
		s.Equal(first.Session.ID, sess.ID)
		s.Equal(StageAbandoned, sess.Stage)
	default:
		s.Fail("timeout notification not sent")
	}

	cur, err := s.engine.Session(alice)
	s.Require().NoError(err)
	s.Equal(res.Session.ID, cur.ID)
	s.True(s.scheduler.Pending(alice))
}

func (s *EngineSuite) TestNoSession() {
	_, err := s.engine.Submit(s.ctx(), bob, "14:30")
	s.Equal(CodeNotFound, CodeOf(err))
	_, err = s.engine.Cancel(s.ctx(), bob)
	s.Equal(CodeNotFound, CodeOf(err))
	_, err = s.engine.Session(bob)
	s.Equal(CodeNotFound, CodeOf(err))

	var de *Error
	s.Require().ErrorAs(err, &de)
	s.Equal(KindState, de.Kind())
}

func (s *EngineSuite) TestUnknownUser() {
	_, err := s.engine.Begin(s.ctx(), 42)
	s.Equal(CodeUserUnavailable, CodeOf(err))
	_, err = s.store.Get(42)
	s.ErrorIs(err, ErrNotFound)
}

func (s *EngineSuite) TestDefaultTimezone() {
	engine := s.newEngine(Options{DefaultTimezone: "Asia/Tokyo"})
	res, err := engine.Begin(s.ctx(), bob)
	s.Require().NoError(err)
	s.Equal("Asia/Tokyo", res.Session.Timezone)

	res, err = engine.Submit(s.ctx(), bob, "04:00")
	s.Require().NoError(err)
	s.Equal(time.Date(2025, 1, 15, 19, 0, 0, 0, time.UTC), *res.Session.StartTime)
}

func (s *EngineSuite) TestConcurrentSubmitSameUser() {
	s.advanceTo(StageAwaitingStartTime)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		codes   []Code
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.engine.Submit(s.ctx(), alice, "14:30")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
				return
			}
			codes = append(codes, CodeOf(err))
		}()
	}
	wg.Wait()

	s.Equal(1, success, "exactly one call transitions")
	s.Equal([]Code{CodeEndBeforeStart}, codes, "the loser saw the post-transition stage")

	stored, err := s.store.Get(alice)
	s.Require().NoError(err)
	s.Equal(StageAwaitingEndTime, stored.Stage)
}

func (s *EngineSuite) TestConcurrentUsersAreIsolated() {
	var wg sync.WaitGroup
	for _, key := range []UserKey{alice, bob} {
		wg.Add(1)
		go func(key UserKey) {
			defer wg.Done()
			_, err := s.engine.Begin(s.ctx(), key)
			assert.NoError(s.T(), err)
			for _, in := range []string{"60м", "30м", "Разное дело"} {
				_, err := s.engine.Submit(s.ctx(), key, in)
				assert.NoError(s.T(), err)
			}
		}(key)
	}
	wg.Wait()

	a, err := s.engine.Session(alice)
	s.Require().NoError(err)
	b, err := s.engine.Session(bob)
	s.Require().NoError(err)
	s.Equal(int64(1), a.UserID)
	s.Equal(int64(2), b.UserID)
	s.NotEqual(a.ID, b.ID)
	s.Equal(StageAwaitingCategory, a.Stage)
	s.Equal(StageAwaitingCategory, b.Stage)
}

func (s *EngineSuite) TestBusyWhileAnotherTransitionRuns() {
	engine := s.newEngine(Options{BusyWait: 20 * time.Millisecond})
	s.categories.gate = make(chan struct{})

	_, err := engine.Begin(s.ctx(), alice)
	s.Require().NoError(err)
	for _, in := range []string{"60м", "30м", "Разное дело"} {
		_, err := engine.Submit(s.ctx(), alice, in)
		s.Require().NoError(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := engine.Submit(s.ctx(), alice, "1")
		done <- err
	}()

	s.Eventually(func() bool {
		wait, cancel := context.WithTimeout(s.ctx(), time.Millisecond)
		defer cancel()
		tx, err := s.store.Acquire(wait, alice)
		if err == nil {
			tx.Release()
			return false
		}
		return errors.Is(err, ErrBusy)
	}, time.Second, 5*time.Millisecond)

	_, err = engine.Submit(s.ctx(), alice, "2")
	s.Equal(CodeBusy, CodeOf(err))

	close(s.categories.gate)
	s.Require().NoError(<-done)
	s.Len(s.activities.Calls(), 1)
}

func TestEngineTimeout(t *testing.T) {
	store := NewStore(StoreOptions{IdleTimeout: 40 * time.Millisecond})
	scheduler := NewScheduler(nil)
	notifier := newFakeNotifier()
	engine, err := NewEngine(Deps{
		Store:      store,
		Scheduler:  scheduler,
		Directory:  &fakeDirectory{profiles: map[UserKey]Profile{alice: {UserID: 1}}},
		Categories: &fakeCategories{byUser: map[int64][]Category{}},
		Activities: &fakeActivities{},
		Notifier:   notifier,
	}, Options{})
	require.NoError(t, err)
	defer engine.Close()

	started, err := engine.Begin(context.Background(), alice)
	require.NoError(t, err)

	select {
	case sess := <-notifier.ch:
		assert.Equal(t, started.Session.ID, sess.ID)
		assert.Equal(t, StageAbandoned, sess.Stage)
	case <-time.After(time.Second):
		t.Fatal("timeout notification not sent")
	}

	_, err = store.Get(alice)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, scheduler.Pending(alice))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, notifier.Count(), "notified exactly once")

	_, err = engine.Begin(context.Background(), alice)
	assert.NoError(t, err)
}

func TestEngineTransitionExtendsTimeout(t *testing.T) {
	store := NewStore(StoreOptions{IdleTimeout: 200 * time.Millisecond})
	notifier := newFakeNotifier()
	engine, err := NewEngine(Deps{
		Store:      store,
		Scheduler:  NewScheduler(nil),
		Directory:  &fakeDirectory{profiles: map[UserKey]Profile{alice: {UserID: 1}}},
		Categories: &fakeCategories{byUser: map[int64][]Category{}},
		Activities: &fakeActivities{},
		Notifier:   notifier,
	}, Options{})
	require.NoError(t, err)
	defer engine.Close()

	_, err = engine.Begin(context.Background(), alice)
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)
	_, err = engine.Submit(context.Background(), alice, "10м")
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)
	sess, err := engine.Session(alice)
	require.NoError(t, err, "the transition pushed the deadline")
	assert.Equal(t, StageAwaitingEndTime, sess.Stage)
	assert.Equal(t, 0, notifier.Count())

	select {
	case <-notifier.ch:
	case <-time.After(time.Second):
		t.Fatal("extended timer did not fire")
	}
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	_, err := NewEngine(Deps{}, Options{})
	assert.Error(t, err)
}
