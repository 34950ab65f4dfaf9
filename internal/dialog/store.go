package dialog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultIdleTimeout is how long a session survives without a successful transition.
const DefaultIdleTimeout = 15 * time.Minute

const defaultShards = 32

var (
	// ErrAlreadyExists is returned by Create when the user has a live session.
	ErrAlreadyExists = errors.New("dialog: session already exists")
	// ErrNotFound is returned when the user has no live session.
	ErrNotFound = errors.New("dialog: session not found")
	// ErrBusy is returned when exclusive access could not be obtained in time.
	ErrBusy = errors.New("dialog: session busy")
)

// Store keeps one session per user with lazy idle expiration.
//
// Keys are spread across shards so unrelated users never contend on the same
// mutex. Each entry additionally carries a single-slot lock that serialises
// read-modify-write cycles for that user.
type Store struct {
	idle   time.Duration
	now    func() time.Time
	shards []*shard
	seq    atomic.Uint64
}

type shard struct {
	mu      sync.Mutex
	entries map[UserKey]*entry
}

type entry struct {
	// lock is held for the whole of a transition.
	lock chan struct{}

	// session and deadline are guarded by the owning shard's mutex.
	session  Session
	deadline time.Time
}

// StoreOptions configures NewStore.
type StoreOptions struct {
	IdleTimeout time.Duration
	Shards      int
	Now         func() time.Time
}

// NewStore builds an empty Store.
func NewStore(opts StoreOptions) *Store {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Shards <= 0 {
		opts.Shards = defaultShards
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		idle:   opts.IdleTimeout,
		now:    opts.Now,
		shards: make([]*shard, opts.Shards),
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[UserKey]*entry)}
	}
	return s
}

// IdleTimeout returns the configured idle period.
func (s *Store) IdleTimeout() time.Duration { return s.idle }

// Deadline is the instant at which sess expires.
func (s *Store) Deadline(sess Session) time.Time {
	return sess.LastTransitionAt.Add(s.idle)
}

func (s *Store) shard(key UserKey) *shard {
	return s.shards[uint64(key)%uint64(len(s.shards))]
}

// live reports whether e is the current, unexpired entry for key. The shard
// mutex must be held.
func (s *Store) live(sh *shard, key UserKey, e *entry) bool {
	return sh.entries[key] == e && s.now().Before(e.deadline)
}

// Create starts a new session for key seeded with the profile fields of
// seed. An expired session for the same key is replaced and returned as
// replaced; its pending expiry will no longer find it, so the caller owns the
// timeout for it.
func (s *Store) Create(key UserKey, seed Session) (created Session, replaced *Session, err error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.entries[key]; ok {
		if s.live(sh, key, e) {
			return Session{}, nil, ErrAlreadyExists
		}
		old := e.session.Clone()
		replaced = &old
	}

	now := s.now().UTC()
	sess := Session{
		ID:               s.seq.Add(1),
		UserKey:          key,
		UserID:           seed.UserID,
		Timezone:         seed.Timezone,
		Stage:            StageAwaitingStartTime,
		CreatedAt:        now,
		LastTransitionAt: now,
	}
	sh.entries[key] = &entry{
		lock:     make(chan struct{}, 1),
		session:  sess,
		deadline: s.Deadline(sess),
	}
	return sess.Clone(), replaced, nil
}

// Get returns a snapshot of the live session for key.
func (s *Store) Get(key UserKey) (Session, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok || !s.live(sh, key, e) {
		return Session{}, ErrNotFound
	}
	return e.session.Clone(), nil
}

// Len counts live sessions.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			if s.live(sh, key, e) {
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

// Acquire takes exclusive access to the session for key. It waits while
// another caller holds the session and gives up with ErrBusy when ctx is done.
// The returned Txn must be released.
func (s *Store) Acquire(ctx context.Context, key UserKey) (*Txn, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	e, ok := sh.entries[key]
	if !ok || !s.live(sh, key, e) {
		sh.mu.Unlock()
		return nil, ErrNotFound
	}
	sh.mu.Unlock()

	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrBusy
	}

	sh.mu.Lock()
	ok = s.live(sh, key, e)
	sh.mu.Unlock()
	if !ok {
		<-e.lock
		return nil, ErrNotFound
	}
	return &Txn{store: s, sh: sh, key: key, e: e}, nil
}

// Update applies mutation to the session under exclusive access. When
// mutation fails the stored session is left untouched and returned as is.
func (s *Store) Update(ctx context.Context, key UserKey, mutation func(*Session) error) (Session, error) {
	tx, err := s.Acquire(ctx, key)
	if err != nil {
		return Session{}, err
	}
	defer tx.Release()

	cur := tx.Session()
	next := cur.Clone()
	if err := mutation(&next); err != nil {
		return cur, err
	}
	if err := tx.Commit(next); err != nil {
		return cur, err
	}
	return next.Clone(), nil
}

// Delete removes the session for key, waiting for any in-flight transition.
func (s *Store) Delete(ctx context.Context, key UserKey) error {
	tx, err := s.Acquire(ctx, key)
	if errors.Is(err, ErrNotFound) {
		s.purge(key)
		return nil
	}
	if err != nil {
		return err
	}
	defer tx.Release()
	tx.Delete()
	return nil
}

// Expire removes the session for key when it is still the session with the
// given id and its deadline has passed. It waits for in-flight transitions.
// When the session is alive its current deadline is returned instead.
func (s *Store) Expire(key UserKey, id uint64) (Session, time.Time, bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	e, ok := sh.entries[key]
	sh.mu.Unlock()
	if !ok {
		return Session{}, time.Time{}, false
	}

	e.lock <- struct{}{}
	defer func() { <-e.lock }()

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.entries[key] != e || e.session.ID != id {
		return Session{}, time.Time{}, false
	}
	if s.now().Before(e.deadline) {
		return Session{}, e.deadline, false
	}
	delete(sh.entries, key)
	return e.session.Clone(), time.Time{}, true
}

// purge drops an expired entry that nobody holds.
func (s *Store) purge(key UserKey) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.entries[key]; ok && !s.now().Before(e.deadline) {
		select {
		case e.lock <- struct{}{}:
			delete(sh.entries, key)
			<-e.lock
		default:
		}
	}
}

// Txn is exclusive access to one user's session.
type Txn struct {
	store    *Store
	sh       *shard
	key      UserKey
	e        *entry
	released bool
}

// Session returns a snapshot of the session as last committed.
func (t *Txn) Session() Session {
	t.sh.mu.Lock()
	defer t.sh.mu.Unlock()
	return t.e.session.Clone()
}

// Commit stores next and moves the expiry deadline to
// next.LastTransitionAt plus the idle timeout. It fails with ErrNotFound when
// the session expired while the transaction was open.
func (t *Txn) Commit(next Session) error {
	t.sh.mu.Lock()
	defer t.sh.mu.Unlock()
	if !t.store.live(t.sh, t.key, t.e) {
		return ErrNotFound
	}
	next.ID = t.e.session.ID
	next.UserKey = t.key
	t.e.session = next.Clone()
	t.e.deadline = t.store.Deadline(next)
	return nil
}

// Delete removes the session from the store.
func (t *Txn) Delete() {
	t.sh.mu.Lock()
	defer t.sh.mu.Unlock()
	if t.sh.entries[t.key] == t.e {
		delete(t.sh.entries, t.key)
	}
}

// Release gives up exclusive access. It is safe to call more than once.
func (t *Txn) Release() {
	if t.released {
		return
	}
	t.released = true
	<-t.e.lock
}
