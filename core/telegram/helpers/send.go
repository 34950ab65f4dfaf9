package helpers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/m3rciful/timebot/core/logger"
	"github.com/m3rciful/timebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// ErrNoBot is returned by SendTo before the bot has started.
var ErrNoBot = errors.New("telegram: bot is not running")

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

// enqueue hands run to the dispatcher. A full or closed queue degrades to a
// synchronous call so replies are never dropped.
func enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	disp := globalDispatcher.Load()
	if disp == nil {
		return run()
	}
	err := disp.Enqueue(ctx, action, endpoint, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		return run()
	}
	return err
}

func markdown(markup []*tele.ReplyMarkup) *tele.SendOptions {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return opts
}

const statsKey = "reply_stats"

type replyStats struct {
	messages atomic.Int32
	keyboard atomic.Bool
	answered atomic.Bool
}

func stats(c tele.Context) *replyStats {
	if s, ok := c.Get(statsKey).(*replyStats); ok {
		return s
	}
	s := &replyStats{}
	c.Set(statsKey, s)
	return s
}

// Replies reports how many messages were queued for the current update and
// whether any of them carried a keyboard.
func Replies(c tele.Context) (int, bool) {
	s, ok := c.Get(statsKey).(*replyStats)
	if !ok {
		return 0, false
	}
	return int(s.messages.Load()), s.keyboard.Load()
}

// Answer answers the callback query of c with an optional toast. Only the
// first answer reaches Telegram; later calls are no-ops.
func Answer(c tele.Context, text string) error {
	if c.Callback() == nil || !stats(c).answered.CompareAndSwap(false, true) {
		return nil
	}
	if text == "" {
		return c.Respond()
	}
	return c.Respond(&tele.CallbackResponse{Text: text})
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	st := stats(c)
	st.messages.Add(1)
	if len(opts) > 0 && opts[0] != nil && opts[0].ReplyMarkup != nil {
		st.keyboard.Store(true)
	}
	return enqueue(BuildContext(c), "send.text", "sendMessage", func() error {
		if len(opts) > 0 && opts[0] != nil {
			return c.Send(text, opts[0])
		}
		return c.Send(text)
	})
}

// SendMD sends a Markdown message with optional reply markup.
func SendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	return SendText(c, text, markdown(markup))
}

// SendTo delivers a Markdown message outside of an update, for example from
// a timer.
func SendTo(ctx context.Context, b *tele.Bot, to tele.Recipient, text string, markup ...*tele.ReplyMarkup) error {
	if b == nil {
		return ErrNoBot
	}
	if chatID, err := strconv.ParseInt(to.Recipient(), 10, 64); err == nil {
		ctx = logger.WithChat(ctx, chatID)
	}
	opts := markdown(markup)
	return enqueue(ctx, "send.push", "sendMessage", func() error {
		_, err := b.Send(to, text, opts)
		return err
	})
}
