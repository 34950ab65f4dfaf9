package router

import (
	"log/slog"
	"sort"

	"github.com/m3rciful/timebot/core/logger"
	tg "github.com/m3rciful/timebot/core/telegram"
	"github.com/m3rciful/timebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// wrap applies the per-route chain. It is idempotent with the global chain.
func wrap(h tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
}

// CommandRoutes returns one route per registered command, sorted by name.
// Each handler is logged under its command name.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	cmds := reg.Commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	admin := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})
	routes := make([]tg.Route, 0, len(names))
	for _, name := range names {
		def := cmds[name]
		h := summarized(normalizeHandlerName(name), def.Handler)
		if def.AdminOnly {
			h = admin(h)
		}
		routes = append(routes, tg.Route{Endpoint: name, Handler: wrap(h)})
	}

	logger.TWire.LogAttrs(logger.Background(), slog.LevelInfo, "tg.wire",
		slog.String("status", "ok"),
		slog.Int("commands", len(names)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
