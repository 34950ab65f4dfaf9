package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/timebot/core/logger"
	tghelpers "github.com/m3rciful/timebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// limiter remembers when each user was last let through. Entries older than
// the interval carry no information and are pruned on a sweep.
type limiter struct {
	interval time.Duration
	mu       sync.Mutex
	seen     map[int64]time.Time
	sweepAt  time.Time
}

func newLimiter(interval time.Duration) *limiter {
	return &limiter{interval: interval, seen: make(map[int64]time.Time)}
}

func (l *limiter) allow(userID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.After(l.sweepAt) {
		for id, ts := range l.seen {
			if now.Sub(ts) >= l.interval {
				delete(l.seen, id)
			}
		}
		l.sweepAt = now.Add(time.Minute)
	}
	if last, ok := l.seen[userID]; ok && now.Sub(last) < l.interval {
		return false
	}
	l.seen[userID] = now
	return true
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// RateLimitMiddleware returns a middleware that enforces a minimum interval
// between updates from the same user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	lim := newLimiter(opts.Interval)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := updateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if lim.allow(user.ID, time.Now()) {
				return next(c)
			}
			logger.LogEvent(tghelpers.BuildContext(c), nil, slog.LevelWarn, "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
