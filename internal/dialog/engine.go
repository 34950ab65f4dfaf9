package dialog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m3rciful/timebot/internal/tags"
	"github.com/m3rciful/timebot/internal/timeparse"
)

// NoCategory is the category-stage input meaning "save without a category".
const NoCategory = "none"

const (
	defaultMinDescriptionLength = 3
	defaultBusyWait             = 3 * time.Second
)

// TimeParser turns user input into instants. Parse counts relative amounts
// back from now; ParseFrom counts them forward from anchor.
type TimeParser interface {
	Parse(input string, now time.Time, tz string) (timeparse.Result, error)
	ParseFrom(input string, now, anchor time.Time, tz string) (timeparse.Result, error)
}

// TagExtractor splits a description into text and tags.
type TagExtractor interface {
	Extract(raw string) tags.Result
}

// Profile is what the engine needs to know about a user up front.
type Profile struct {
	UserID   int64
	Timezone string
}

// Directory resolves the owner of a dialog to a data-access user.
type Directory interface {
	Profile(ctx context.Context, key UserKey) (Profile, error)
}

// Category is one of the user's activity categories.
type Category struct {
	ID    int64
	Name  string
	Emoji string
}

// Categories lists a user's categories.
type Categories interface {
	ListCategories(ctx context.Context, userID int64) ([]Category, error)
}

// NewActivity is the creation payload sent once per completed dialog.
// Duration is derived by the data-access service.
type NewActivity struct {
	UserID      int64
	CategoryID  *int64
	Description string
	Tags        []string
	StartTime   time.Time
	EndTime     time.Time
	// ClientRef is stable for a session so retried creations are deduplicated.
	ClientRef string
}

// Activity is the persisted result of a completed dialog.
type Activity struct {
	ID              int64
	DurationMinutes int
}

// Activities persists completed dialogs.
type Activities interface {
	CreateActivity(ctx context.Context, a NewActivity) (Activity, error)
}

// Notifier is told about dialogs abandoned by the idle timer.
type Notifier interface {
	DialogTimedOut(ctx context.Context, s Session)
}

// Prompt tells a front-end what to ask the user next.
type Prompt string

const (
	PromptStartTime       Prompt = "start_time"
	PromptEndTime         Prompt = "end_time"
	PromptDescription     Prompt = "description"
	PromptCategory        Prompt = "category"
	PromptRetryCompletion Prompt = "retry_completion"
	PromptSaved           Prompt = "saved"
	PromptCancelled       Prompt = "cancelled"
)

var stagePrompts = map[Stage]Prompt{
	StageAwaitingStartTime:   PromptStartTime,
	StageAwaitingEndTime:     PromptEndTime,
	StageAwaitingDescription: PromptDescription,
	StageAwaitingCategory:    PromptCategory,
	StageCompleted:           PromptRetryCompletion,
	StageAbandoned:           PromptCancelled,
}

// Result is the outcome of an engine call. On error it still carries the
// session as it is stored, so the front-end can repeat the current prompt.
type Result struct {
	Session  Session
	Prompt   Prompt
	Activity *Activity
}

// Stage is shorthand for r.Session.Stage.
func (r Result) Stage() Stage { return r.Session.Stage }

// Deps are the engine's collaborators. Parser and Tags default to the
// package implementations and Notifier is optional.
type Deps struct {
	Parser     TimeParser
	Tags       TagExtractor
	Store      *Store
	Scheduler  *Scheduler
	Directory  Directory
	Categories Categories
	Activities Activities
	Notifier   Notifier
}

// Options tune business rules.
type Options struct {
	MinDescriptionLength int
	DefaultTimezone      string
	// BusyWait bounds how long a call waits for a concurrent transition of
	// the same user before failing with CodeBusy.
	BusyWait time.Duration
	Now      func() time.Time
}

// Engine drives activity-recording dialogs.
type Engine struct {
	parser     TimeParser
	tags       TagExtractor
	store      *Store
	scheduler  *Scheduler
	directory  Directory
	categories Categories
	activities Activities
	notifier   Notifier

	minDescription int
	defaultTZ      string
	busyWait       time.Duration
	now            func() time.Time
}

// NewEngine wires an Engine from its collaborators.
func NewEngine(deps Deps, opts Options) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("dialog: store is required")
	case deps.Scheduler == nil:
		return nil, errors.New("dialog: scheduler is required")
	case deps.Directory == nil:
		return nil, errors.New("dialog: directory is required")
	case deps.Categories == nil:
		return nil, errors.New("dialog: categories are required")
	case deps.Activities == nil:
		return nil, errors.New("dialog: activities are required")
	}
	if deps.Parser == nil {
		deps.Parser = timeparse.Parser{}
	}
	if deps.Tags == nil {
		deps.Tags = tags.Extractor{}
	}
	if opts.MinDescriptionLength <= 0 {
		opts.MinDescriptionLength = defaultMinDescriptionLength
	}
	if opts.BusyWait <= 0 {
		opts.BusyWait = defaultBusyWait
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		parser:         deps.Parser,
		tags:           deps.Tags,
		store:          deps.Store,
		scheduler:      deps.Scheduler,
		directory:      deps.Directory,
		categories:     deps.Categories,
		activities:     deps.Activities,
		notifier:       deps.Notifier,
		minDescription: opts.MinDescriptionLength,
		defaultTZ:      opts.DefaultTimezone,
		busyWait:       opts.BusyWait,
		now:            opts.Now,
	}, nil
}

// Begin opens a new dialog for key. Nested dialogs are refused with
// CodeAlreadyInProgress.
func (e *Engine) Begin(ctx context.Context, key UserKey) (Result, error) {
	if cur, err := e.store.Get(key); err == nil {
		return e.result(cur), newError(CodeAlreadyInProgress, cur.Stage, ErrAlreadyExists)
	}

	profile, err := e.directory.Profile(ctx, key)
	if err != nil {
		return Result{}, newError(CodeUserUnavailable, StageAwaitingStartTime, err)
	}
	if profile.Timezone == "" {
		profile.Timezone = e.defaultTZ
	}

	sess, replaced, err := e.store.Create(key, Session{UserID: profile.UserID, Timezone: profile.Timezone})
	if err != nil {
		cur, _ := e.store.Get(key)
		return e.result(cur), newError(CodeAlreadyInProgress, cur.Stage, err)
	}
	// Scheduling replaces the timer of the displaced session, so its timeout
	// is reported here.
	e.scheduler.Schedule(key, e.store.Deadline(sess), e.expireFunc(key, sess.ID))
	if replaced != nil {
		e.timedOut(*replaced)
	}
	return e.result(sess), nil
}

// Submit feeds one user input to the current stage. Invalid input leaves the
// session and its idle deadline untouched. Reaching StageCompleted triggers
// the completion operation in the same call.
func (e *Engine) Submit(ctx context.Context, key UserKey, input string) (Result, error) {
	tx, err := e.acquire(ctx, key)
	if err != nil {
		return Result{}, err
	}
	defer tx.Release()

	cur := tx.Session()
	next := cur.Clone()
	now := e.now().UTC()

	var stepErr *Error
	switch cur.Stage {
	case StageAwaitingStartTime:
		stepErr = e.acceptStart(&next, input, now)
	case StageAwaitingEndTime:
		stepErr = e.acceptEnd(&next, input, now)
	case StageAwaitingDescription:
		stepErr = e.acceptDescription(&next, input)
	case StageAwaitingCategory:
		stepErr = e.acceptCategory(ctx, &next, input)
	case StageCompleted:
		return e.result(cur), newError(CodeCompletionPending, cur.Stage, nil)
	default:
		panic(fmt.Sprintf("dialog: session %d of user %d stored in stage %s", cur.ID, key, cur.Stage))
	}
	if stepErr != nil {
		return e.result(cur), stepErr
	}

	next.Stage = cur.Stage.Next()
	next.LastTransitionAt = now
	if err := tx.Commit(next); err != nil {
		return Result{}, newError(CodeNotFound, cur.Stage, err)
	}
	e.extend(key, next)

	if next.Stage == StageCompleted {
		return e.complete(ctx, tx, next)
	}
	return e.result(next), nil
}

// Complete retries the creation call for a session stuck in StageCompleted.
func (e *Engine) Complete(ctx context.Context, key UserKey) (Result, error) {
	tx, err := e.acquire(ctx, key)
	if err != nil {
		return Result{}, err
	}
	defer tx.Release()

	cur := tx.Session()
	if cur.Stage != StageCompleted {
		return e.result(cur), newError(CodeNothingToComplete, cur.Stage, nil)
	}
	return e.complete(ctx, tx, cur)
}

// Cancel abandons the dialog for key. A session waiting for its completion
// retry cannot be cancelled; it is left to Complete or the idle timer.
func (e *Engine) Cancel(ctx context.Context, key UserKey) (Result, error) {
	tx, err := e.acquire(ctx, key)
	if err != nil {
		return Result{}, err
	}
	defer tx.Release()

	cur := tx.Session()
	if cur.Stage == StageCompleted {
		return e.result(cur), newError(CodeCompletionPending, cur.Stage, nil)
	}
	e.scheduler.Cancel(key)
	tx.Delete()

	cur.Stage = StageAbandoned
	return e.result(cur), nil
}

// Session returns a snapshot of the live session for key.
func (e *Engine) Session(key UserKey) (Session, error) {
	s, err := e.store.Get(key)
	if err != nil {
		return Session{}, newError(CodeNotFound, 0, err)
	}
	return s, nil
}

// Active counts live dialogs.
func (e *Engine) Active() int { return e.store.Len() }

// Close stops all idle timers.
func (e *Engine) Close() { e.scheduler.Close() }

func (e *Engine) acquire(ctx context.Context, key UserKey) (*Txn, error) {
	wait, cancel := context.WithTimeout(ctx, e.busyWait)
	defer cancel()

	tx, err := e.store.Acquire(wait, key)
	switch {
	case err == nil:
		return tx, nil
	case errors.Is(err, ErrBusy):
		return nil, newError(CodeBusy, 0, err)
	default:
		return nil, newError(CodeNotFound, 0, err)
	}
}

func (e *Engine) acceptStart(s *Session, input string, now time.Time) *Error {
	res, err := e.parser.Parse(input, now, s.Timezone)
	if err != nil {
		return parseError(StageAwaitingStartTime, err)
	}
	t := res.Time
	s.StartTime = &t
	return nil
}

func (e *Engine) acceptEnd(s *Session, input string, now time.Time) *Error {
	if s.StartTime == nil {
		panic(fmt.Sprintf("dialog: session %d reached %s without a start time", s.ID, s.Stage))
	}
	res, err := e.parser.ParseFrom(input, now, *s.StartTime, s.Timezone)
	if err != nil {
		return parseError(StageAwaitingEndTime, err)
	}
	if !res.Time.After(*s.StartTime) {
		return newError(CodeEndBeforeStart, StageAwaitingEndTime,
			fmt.Errorf("end %s is not after start %s", res.Time.Format(time.RFC3339), s.StartTime.Format(time.RFC3339)))
	}
	t := res.Time
	s.EndTime = &t
	return nil
}

func (e *Engine) acceptDescription(s *Session, input string) *Error {
	res := e.tags.Extract(input)
	if n := utf8.RuneCountInString(res.Text); n < e.minDescription {
		return newError(CodeTooShort, StageAwaitingDescription,
			fmt.Errorf("description has %d characters, need %d", n, e.minDescription))
	}
	text := res.Text
	s.Description = &text
	s.Tags = append([]string{}, res.Tags...)
	return nil
}

func (e *Engine) acceptCategory(ctx context.Context, s *Session, input string) *Error {
	choice := strings.ToLower(strings.TrimSpace(input))
	if choice == NoCategory {
		s.CategoryID = nil
		return nil
	}
	id, err := strconv.ParseInt(choice, 10, 64)
	if err != nil {
		return newError(CodeInvalidCategory, StageAwaitingCategory, err)
	}
	cats, err := e.categories.ListCategories(ctx, s.UserID)
	if err != nil {
		return newError(CodeCategoriesUnavailable, StageAwaitingCategory, err)
	}
	for _, c := range cats {
		if c.ID == id {
			s.CategoryID = &id
			return nil
		}
	}
	return newError(CodeInvalidCategory, StageAwaitingCategory, fmt.Errorf("category %d does not belong to user %d", id, s.UserID))
}

// complete issues the single creation call. On failure the session stays
// stored in StageCompleted so the caller can retry with Complete.
func (e *Engine) complete(ctx context.Context, tx *Txn, s Session) (Result, error) {
	act, err := e.activities.CreateActivity(ctx, NewActivity{
		UserID:      s.UserID,
		CategoryID:  s.CategoryID,
		Description: *s.Description,
		Tags:        append([]string{}, s.Tags...),
		StartTime:   *s.StartTime,
		EndTime:     *s.EndTime,
		ClientRef:   clientRef(s),
	})
	if err != nil {
		de := newError(CodeCreationFailed, StageCompleted, err)
		de.retryable = isRetryable(err)
		return Result{Session: s, Prompt: PromptRetryCompletion}, de
	}

	e.scheduler.Cancel(s.UserKey)
	tx.Delete()
	return Result{Session: s, Prompt: PromptSaved, Activity: &act}, nil
}

// extend pushes the idle deadline after a successful transition.
func (e *Engine) extend(key UserKey, s Session) {
	deadline := e.store.Deadline(s)
	if !e.scheduler.Reschedule(key, deadline) {
		e.scheduler.Schedule(key, deadline, e.expireFunc(key, s.ID))
	}
}

func (e *Engine) expireFunc(key UserKey, id uint64) func() {
	return func() {
		sess, deadline, expired := e.store.Expire(key, id)
		if !expired {
			if !deadline.IsZero() {
				e.scheduler.Schedule(key, deadline, e.expireFunc(key, id))
			}
			return
		}
		e.timedOut(sess)
	}
}

// timedOut reports a session dropped after its idle deadline.
func (e *Engine) timedOut(sess Session) {
	sess.Stage = StageAbandoned
	if e.notifier != nil {
		e.notifier.DialogTimedOut(context.Background(), sess)
	}
}

func (e *Engine) result(s Session) Result {
	return Result{Session: s, Prompt: stagePrompts[s.Stage]}
}

func parseError(stage Stage, err error) *Error {
	switch timeparse.CodeOf(err) {
	case timeparse.CodeFutureTime:
		return newError(CodeFutureTime, stage, err)
	case timeparse.CodeTooOld:
		return newError(CodeTooOld, stage, err)
	default:
		return newError(CodeParseError, stage, err)
	}
}

func clientRef(s Session) string {
	return fmt.Sprintf("tg-%d-%d-%d", s.UserKey, s.ID, s.CreatedAt.UnixNano())
}
