package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/timebot/core/telegram"
	"github.com/m3rciful/timebot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/timebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute returns the OnCallback route. It dispatches on the button's
// unique key and answers the query afterwards unless the handler did.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key, _ := callbacks.Split(c.Callback())
		name := "callback." + normalizeHandlerName(key)
		keyAttr := slog.String("cb_key", key)

		defer func() { _ = tghelpers.Answer(c, "") }()

		if h, ok := reg.GetCallback(key); ok && h != nil {
			return summarized(name, h, keyAttr)(c)
		}
		notFound := reg.CallbackNotFound()
		if notFound == nil {
			notFound = opts.NotFound
		}
		if notFound == nil {
			skipped(c, name, time.Now())
			return nil
		}
		return summarized(name, notFound, keyAttr, slog.String("reason", "not_found"))(c)
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: wrap(handler)}
}
