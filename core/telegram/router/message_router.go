package router

import (
	"time"

	tg "github.com/m3rciful/timebot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// FSM defines the minimal interface for an FSM manager.
type FSM interface {
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

func inDialog(fsm FSM, c tele.Context) bool {
	u := c.Sender()
	return fsm != nil && u != nil && fsm.InProgress(u.ID)
}

// TextRoutes builds handlers for text and document routing.
// Text typed while a dialog is active goes to the state machine first, then
// to reply-keyboard commands, then to UnknownText. Admin-only commands are
// never reachable through text aliases.
func TextRoutes(fsm FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	var (
		fsmText     = summarized("fsm", fsmHandler(fsm))
		fsmDocument = summarized("fsm_document", fsmHandler(fsm))
	)

	text := func(c tele.Context) error {
		if inDialog(fsm, c) {
			return fsmText(c)
		}
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil && !cmd.AdminOnly {
				return summarized(normalizeHandlerName(key), cmd.Handler)(c)
			}
		}
		return fallback(c, "unknown_text", opts.UnknownText)
	}

	document := func(c tele.Context) error {
		if inDialog(fsm, c) {
			return fsmDocument(c)
		}
		return fallback(c, "unexpected_document", opts.UnknownDocument)
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(text)},
		{Endpoint: tele.OnDocument, Handler: wrap(document)},
	}
}

func fsmHandler(fsm FSM) tele.HandlerFunc {
	return func(c tele.Context) error { return fsm.ManagerHandler(c) }
}

func fallback(c tele.Context, name string, h tele.HandlerFunc) error {
	if h == nil {
		skipped(c, name, time.Now())
		return nil
	}
	return summarized(name, h)(c)
}
