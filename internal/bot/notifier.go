package bot

import (
	"context"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/timebot/core/logger"
	tghelpers "github.com/m3rciful/timebot/core/telegram/helpers"
	"github.com/m3rciful/timebot/internal/dialog"
)

type pushFunc func(ctx context.Context, to tele.Recipient, text string, markup *tele.ReplyMarkup) error

// Notifier tells users about dialogs dropped by the idle timer. It can be
// created before the bot and attached once the runtime starts.
type Notifier struct {
	bot   atomic.Pointer[tele.Bot]
	texts Texts
	log   *slog.Logger
	push  pushFunc
}

var _ dialog.Notifier = (*Notifier)(nil)

// NewNotifier builds a detached Notifier.
func NewNotifier(texts Texts, log *slog.Logger) *Notifier {
	if log == nil {
		log = logger.Dialog
	}
	if log == nil {
		log = slog.Default()
	}
	n := &Notifier{texts: texts, log: log}
	n.push = func(ctx context.Context, to tele.Recipient, text string, markup *tele.ReplyMarkup) error {
		return tghelpers.SendTo(ctx, n.bot.Load(), to, text, markup)
	}
	return n
}

// Attach sets the bot used for delivery.
func (n *Notifier) Attach(b *tele.Bot) { n.bot.Store(b) }

// DialogTimedOut implements dialog.Notifier. Private chats share the id of
// their user, so the user key is the chat to write to.
func (n *Notifier) DialogTimedOut(ctx context.Context, s dialog.Session) {
	err := n.push(ctx, tele.ChatID(s.UserKey), n.texts.TimedOut(), mainMenu())
	attrs := []slog.Attr{
		slog.Uint64("session_id", s.ID),
		slog.Int64("user_id", s.UserID),
		slog.String("stage", s.Stage.String()),
	}
	if err != nil {
		n.log.LogAttrs(ctx, slog.LevelWarn, "dialog.timeout",
			append(attrs,
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)...,
		)
		return
	}
	n.log.LogAttrs(ctx, slog.LevelInfo, "dialog.timeout", append(attrs, slog.String("status", "ok"))...)
}
