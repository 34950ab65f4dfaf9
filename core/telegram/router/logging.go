package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/timebot/core/logger"
	tghelpers "github.com/m3rciful/timebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// summarized runs h under name and logs one handler.handled line for it.
func summarized(name string, h tele.HandlerFunc, extras ...slog.Attr) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		ctx := tghelpers.WithHandler(c, name)
		err := h(c)
		status := "ok"
		if err != nil {
			status = "fail"
		}
		summary(ctx, c, start, status, err, extras...)
		return err
	}
}

// skipped logs an update no handler took.
func skipped(c tele.Context, name string, start time.Time) {
	summary(tghelpers.WithHandler(c, name), c, start, "skip", nil)
}

func summary(ctx context.Context, c tele.Context, start time.Time, status string, err error, extras ...slog.Attr) {
	msgs, kb := tghelpers.Replies(c)
	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}, extras...)
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
		attrs = append(attrs,
			slog.String("code", errorCode(err)),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
	logger.LogEvent(ctx, nil, level, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(name, " ", "_")
}

// errorCode prefers an ErrorCode() method anywhere in the chain and falls
// back to the error's type name.
func errorCode(err error) string {
	var ec interface{ ErrorCode() string }
	if errors.As(err, &ec) {
		if code := strings.TrimSpace(ec.ErrorCode()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	name := strings.TrimLeft(fmt.Sprintf("%T", err), "*")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(name)
}
