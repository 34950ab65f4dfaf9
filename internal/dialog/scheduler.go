package dialog

import (
	"sync"
	"time"
)

// Scheduler keeps at most one pending idle timer per user.
//
// Every timer carries a generation number. A timer that fires after it was
// cancelled or replaced finds a different generation (or none) under the
// scheduler mutex and does nothing, so fire and cancel can never both win.
type Scheduler struct {
	mu      sync.Mutex
	now     func() time.Time
	gen     uint64
	pending map[UserKey]*timer
	closed  bool
}

type timer struct {
	gen    uint64
	t      *time.Timer
	onFire func()
}

// NewScheduler builds a Scheduler. now defaults to time.Now.
func NewScheduler(now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		now:     now,
		pending: make(map[UserKey]*timer),
	}
}

// Schedule arms a timer for key that calls onFire at deadline, replacing any
// timer already pending for key.
func (s *Scheduler) Schedule(key UserKey, deadline time.Time, onFire func()) {
	if onFire == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.armLocked(key, deadline, onFire)
}

// Reschedule moves the pending timer for key to deadline, keeping its
// callback. It reports false when nothing is pending for key.
func (s *Scheduler) Reschedule(key UserKey, deadline time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	cur, ok := s.pending[key]
	if !ok {
		return false
	}
	s.armLocked(key, deadline, cur.onFire)
	return true
}

// Cancel drops the pending timer for key, if any.
func (s *Scheduler) Cancel(key UserKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.pending[key]; ok {
		cur.t.Stop()
		delete(s.pending, key)
	}
}

// Pending reports whether a timer is armed for key.
func (s *Scheduler) Pending(key UserKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Close stops every pending timer. Later calls to Schedule are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for key, cur := range s.pending {
		cur.t.Stop()
		delete(s.pending, key)
	}
}

func (s *Scheduler) armLocked(key UserKey, deadline time.Time, onFire func()) {
	if cur, ok := s.pending[key]; ok {
		cur.t.Stop()
	}
	s.gen++
	gen := s.gen
	delay := deadline.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.pending[key] = &timer{
		gen:    gen,
		onFire: onFire,
		t:      time.AfterFunc(delay, func() { s.fire(key, gen) }),
	}
}

func (s *Scheduler) fire(key UserKey, gen uint64) {
	s.mu.Lock()
	cur, ok := s.pending[key]
	if !ok || cur.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.mu.Unlock()
	cur.onFire()
}
