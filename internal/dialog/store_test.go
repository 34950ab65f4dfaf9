package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 15, 20, 0, 0, 0, time.UTC)

func newTestStore(clock *fakeClock) *Store {
	return NewStore(StoreOptions{IdleTimeout: 15 * time.Minute, Now: clock.Now})
}

func TestStoreCreateGetDelete(t *testing.T) {
	clock := newFakeClock(t0)
	s := newTestStore(clock)

	created, _, err := s.Create(7, Session{UserID: 70, Timezone: "Europe/Moscow"})
	require.NoError(t, err)
	assert.Equal(t, UserKey(7), created.UserKey)
	assert.Equal(t, StageAwaitingStartTime, created.Stage)
	assert.Equal(t, t0, created.CreatedAt)
	assert.Equal(t, t0, created.LastTransitionAt)
	assert.NotZero(t, created.ID)

	got, err := s.Get(7)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Delete(context.Background(), 7))
	_, err = s.Get(7)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())

	assert.NoError(t, s.Delete(context.Background(), 7), "deleting a missing session is a no-op")
}

func TestStoreCreateTwiceFails(t *testing.T) {
	s := newTestStore(newFakeClock(t0))
	_, _, err := s.Create(1, Session{})
	require.NoError(t, err)
	_, _, err = s.Create(1, Session{})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestStoreLazyExpiry(t *testing.T) {
	clock := newFakeClock(t0)
	s := newTestStore(clock)
	first, _, err := s.Create(1, Session{})
	require.NoError(t, err)

	clock.Advance(15*time.Minute - time.Second)
	_, err = s.Get(1)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = s.Get(1)
	assert.ErrorIs(t, err, ErrNotFound, "expired entries read as absent")
	assert.Equal(t, 0, s.Len())

	_, err = s.Acquire(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)

	second, replaced, err := s.Create(1, Session{})
	require.NoError(t, err, "an expired session does not block a new one")
	assert.NotEqual(t, first.ID, second.ID)
	require.NotNil(t, replaced, "the displaced session is handed back")
	assert.Equal(t, first.ID, replaced.ID)

	_, _, expired := s.Expire(1, first.ID)
	assert.False(t, expired, "the old timer no longer finds the displaced session")
}

func TestStoreCreateReportsNothingReplaced(t *testing.T) {
	s := newTestStore(newFakeClock(t0))
	_, replaced, err := s.Create(1, Session{})
	require.NoError(t, err)
	assert.Nil(t, replaced)
}

func TestStoreUpdate(t *testing.T) {
	clock := newFakeClock(t0)
	s := newTestStore(clock)
	_, _, err := s.Create(1, Session{})
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	updated, err := s.Update(context.Background(), 1, func(sess *Session) error {
		start := t0
		sess.StartTime = &start
		sess.Stage = StageAwaitingEndTime
		sess.LastTransitionAt = clock.Now()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StageAwaitingEndTime, updated.Stage)

	// The deadline moved with LastTransitionAt.
	clock.Advance(10 * time.Minute)
	got, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, StageAwaitingEndTime, got.Stage)
}

func TestStoreUpdateMutationErrorKeepsSession(t *testing.T) {
	s := newTestStore(newFakeClock(t0))
	before, _, err := s.Create(1, Session{})
	require.NoError(t, err)

	boom := errors.New("boom")
	got, err := s.Update(context.Background(), 1, func(sess *Session) error {
		sess.Stage = StageAwaitingCategory
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, got)

	stored, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, before, stored)
}

func TestStoreSnapshotsAreCopies(t *testing.T) {
	s := newTestStore(newFakeClock(t0))
	_, _, err := s.Create(1, Session{})
	require.NoError(t, err)
	_, err = s.Update(context.Background(), 1, func(sess *Session) error {
		sess.Tags = []string{"a"}
		return nil
	})
	require.NoError(t, err)

	got, err := s.Get(1)
	require.NoError(t, err)
	got.Tags[0] = "mutated"

	again, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.Tags)
}

func TestStoreAcquireBusy(t *testing.T) {
	s := newTestStore(newFakeClock(t0))
	_, _, err := s.Create(1, Session{})
	require.NoError(t, err)

	tx, err := s.Acquire(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(ctx, 1)
	assert.ErrorIs(t, err, ErrBusy)

	tx.Release()
	tx.Release()

	tx2, err := s.Acquire(context.Background(), 1)
	require.NoError(t, err)
	tx2.Release()
}

func TestStoreConcurrentUpdatesAreSerialized(t *testing.T) {
	s := newTestStore(newFakeClock(t0))
	_, _, err := s.Create(1, Session{})
	require.NoError(t, err)

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Update(context.Background(), 1, func(sess *Session) error {
				sess.Tags = append(sess.Tags, "x")
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(1)
	require.NoError(t, err)
	assert.Len(t, got.Tags, n, "no read-modify-write cycle was lost")
}

func TestStoreDistinctKeysAreIndependent(t *testing.T) {
	s := newTestStore(newFakeClock(t0))
	_, _, err := s.Create(1, Session{UserID: 10})
	require.NoError(t, err)
	_, _, err = s.Create(2, Session{UserID: 20})
	require.NoError(t, err)

	tx, err := s.Acquire(context.Background(), 1)
	require.NoError(t, err)
	defer tx.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	other, err := s.Update(ctx, 2, func(sess *Session) error {
		sess.Tags = []string{"two"}
		return nil
	})
	require.NoError(t, err, "a held session does not block another user")
	assert.Equal(t, int64(20), other.UserID)
	assert.Equal(t, int64(10), tx.Session().UserID)
	assert.Nil(t, tx.Session().Tags)
}

func TestStoreExpire(t *testing.T) {
	clock := newFakeClock(t0)
	s := newTestStore(clock)
	sess, _, err := s.Create(1, Session{})
	require.NoError(t, err)

	_, deadline, ok := s.Expire(1, sess.ID)
	assert.False(t, ok, "not expired yet")
	assert.Equal(t, t0.Add(15*time.Minute), deadline)

	clock.Advance(15 * time.Minute)
	_, _, ok = s.Expire(1, sess.ID+1)
	assert.False(t, ok, "a different session id is left alone")

	got, _, ok := s.Expire(1, sess.ID)
	require.True(t, ok)
	assert.Equal(t, sess.ID, got.ID)

	_, _, ok = s.Expire(1, sess.ID)
	assert.False(t, ok, "expire happens once")
}

func TestStoreCommitAfterExpiryFails(t *testing.T) {
	clock := newFakeClock(t0)
	s := newTestStore(clock)
	_, _, err := s.Create(1, Session{})
	require.NoError(t, err)

	tx, err := s.Acquire(context.Background(), 1)
	require.NoError(t, err)
	defer tx.Release()

	clock.Advance(16 * time.Minute)
	next := tx.Session()
	next.LastTransitionAt = clock.Now()
	assert.ErrorIs(t, tx.Commit(next), ErrNotFound)
}
