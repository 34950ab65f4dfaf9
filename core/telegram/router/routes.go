package router

import (
	tg "github.com/m3rciful/timebot/core/telegram"
	"github.com/m3rciful/timebot/core/telegram/ui"
)

// Routes assembles every route for reg: commands, the callback dispatcher,
// then text and documents. Unmatched updates go to the fallbacks of fb, and
// non-admins calling admin commands get fb.UnknownText.
func Routes(reg *tg.Registry, fsm FSM, fb ui.FallbackProvider, adminID int64) []tg.Route {
	routes := CommandRoutes(reg, CommandRouteOptions{
		AdminID:       adminID,
		OnAdminReject: fb.UnknownText(),
	})
	routes = append(routes, CallbackRoute(reg, CallbackOptions{NotFound: fb.UnknownCallback()}))
	return append(routes, TextRoutes(fsm, reg, TextOptions{
		UnknownText:     fb.UnknownText(),
		UnknownDocument: fb.UnknownDocument(),
	})...)
}
