package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

type contextKey string

const (
	ctxRID      contextKey = "rid"
	ctxUpdateID contextKey = "update_id"
	ctxUserID   contextKey = "user_id"
	ctxChatID   contextKey = "chat_id"
	ctxLogger   contextKey = "logger"
	ctxHandler  contextKey = "handler"
	ctxSession  contextKey = "session_id"
)

func with(ctx context.Context, key contextKey, v any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func from[T any](ctx context.Context, key contextKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	v, ok := ctx.Value(key).(T)
	if !ok {
		return zero
	}
	return v
}

// WithLogger stores log in ctx. A nil logger leaves ctx unchanged.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return with(ctx, ctxLogger, log)
}

// FromContext returns the logger stored in ctx or the process logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l := from[*slog.Logger](ctx, ctxLogger); l != nil {
		return l
	}
	return base()
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return with(ctx, ctxRID, rid)
}

// RIDFrom returns the correlation id or "".
func RIDFrom(ctx context.Context) string {
	return from[string](ctx, ctxRID)
}

// WithUpdateMeta attaches the identifiers of a Telegram update.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	ctx = with(ctx, ctxUpdateID, updateID)
	ctx = with(ctx, ctxUserID, userID)
	return with(ctx, ctxChatID, chatID)
}

// WithChat attaches a chat id outside of an update, for example to a push
// sent from a timer.
func WithChat(ctx context.Context, chatID int64) context.Context {
	return with(ctx, ctxChatID, chatID)
}

// WithHandler names the handler serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return with(ctx, ctxHandler, handler)
}

// HandlerFrom returns the handler name or "".
func HandlerFrom(ctx context.Context) string {
	return from[string](ctx, ctxHandler)
}

// WithSession tags every record logged with ctx by the dialog session id.
func WithSession(ctx context.Context, sessionID uint64) context.Context {
	if sessionID == 0 {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return with(ctx, ctxSession, sessionID)
}

// SessionFrom returns the dialog session id or 0.
func SessionFrom(ctx context.Context) uint64 {
	return from[uint64](ctx, ctxSession)
}

// UserIDFrom returns the Telegram user id or 0.
func UserIDFrom(ctx context.Context) int64 {
	return from[int64](ctx, ctxUserID)
}

// ChatIDFrom returns the chat id or 0.
func ChatIDFrom(ctx context.Context) int64 {
	return from[int64](ctx, ctxChatID)
}

// UpdateIDFrom returns the update id or 0.
func UpdateIDFrom(ctx context.Context) int {
	return from[int](ctx, ctxUpdateID)
}

// Sanitize drops control and format runes except tab and newline.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and cuts it to max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}

// BuildRID formats a correlation id as updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID rewrites each numeric segment of rid in base36 joined by dots.
// Anything else is returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
