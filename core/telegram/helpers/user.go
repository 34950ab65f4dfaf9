package helpers

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v4"
)

// ErrNoSender is returned for updates without a sender, such as channel posts.
var ErrNoSender = errors.New("telegram: update has no sender")

// UserLookup resolves a Telegram user id to the project's user model.
type UserLookup[T any] interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (T, error)
}

// CurrentUser resolves the sender of c through users.
func CurrentUser[T any](ctx context.Context, users UserLookup[T], c tele.Context) (T, error) {
	var zero T
	sender := c.Sender()
	if sender == nil {
		return zero, ErrNoSender
	}
	return users.GetUserByTelegramID(ctx, sender.ID)
}
