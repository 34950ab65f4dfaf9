package middleware

import (
	"log/slog"
	"slices"

	"github.com/m3rciful/timebot/core/logger"
	tghelpers "github.com/m3rciful/timebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// StateGetter is the minimal interface required from a state tracker.
type StateGetter interface {
	GetState(userID int64) string
}

// State returns a middleware that runs next only while the user is in one of
// the expected states. Other updates go to onMismatch when it is set and are
// dropped otherwise.
func State(mgr StateGetter, onMismatch tele.HandlerFunc, expected ...string) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			var current string
			if u := c.Sender(); u != nil {
				current = mgr.GetState(u.ID)
			}
			ctx := tghelpers.BuildContext(c)
			if slices.Contains(expected, current) {
				logger.LogEvent(ctx, nil, slog.LevelDebug, "fsm.match", slog.String("stage", current))
				return next(c)
			}
			logger.LogEvent(ctx, nil, slog.LevelDebug, "fsm.skip",
				slog.String("stage", current),
				slog.Any("expected", expected),
			)
			if onMismatch != nil {
				return onMismatch(c)
			}
			return nil
		}
	}
}
