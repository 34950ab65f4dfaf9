package helpers

import (
	"context"

	"github.com/m3rciful/timebot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const ctxKey = "logger_ctx"

// Attached reports whether a request context was already built for c.
func Attached(c tele.Context) bool {
	if c == nil {
		return false
	}
	_, ok := c.Get(ctxKey).(context.Context)
	return ok
}

// BuildContext returns the request context of c, creating it on first use.
// It carries the rid and update, user and chat ids for service logging.
func BuildContext(c tele.Context) context.Context {
	if c == nil {
		return logger.Background()
	}
	if ctx, ok := c.Get(ctxKey).(context.Context); ok {
		return ctx
	}
	ctx := updateContext(c.Update(), c.Sender(), c.Chat())
	c.Set(ctxKey, ctx)
	return ctx
}

// WithHandler records the handler name on the request context of c.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" || c == nil {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	c.Set(ctxKey, ctx)
	return ctx
}

func updateContext(upd tele.Update, user *tele.User, chat *tele.Chat) context.Context {
	var chatID, userID int64
	if chat != nil {
		chatID = chat.ID
	}
	if user != nil {
		userID = user.ID
	}
	ctx := logger.WithRID(logger.Background(), logger.BuildRID(upd.ID, chatID, userID))
	ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
	return logger.WithLogger(ctx, logger.Component("tg"))
}
