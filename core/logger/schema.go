package logger

import "strings"

// Level names written in the "level" field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// enums lists the accepted values of enumerated fields. Unknown statuses are
// written lower-cased, unknown outcomes are dropped.
var enums = map[string]struct {
	values  []string
	keepBad bool
}{
	"status":  {values: []string{"ok", "fail", "skip", "retry", "rate_limited", "cancelled"}, keepBad: true},
	"outcome": {values: []string{"ok", "fail", "cancelled", "rate_limited", "timeout", "rejected"}},
}

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug
	case "", "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return strings.ToUpper(level)
}

// normalizeEnum returns the canonical spelling of v for key and whether the
// field should be kept.
func normalizeEnum(key, v string) (string, bool) {
	e, ok := enums[key]
	if !ok {
		return v, true
	}
	v = strings.ToLower(strings.TrimSpace(v))
	for _, allowed := range e.values {
		if v == allowed {
			return v, true
		}
	}
	return v, e.keepBad && v != ""
}

// defaultKeyOrder puts correlation keys first, then the dialog, transport
// and storage details, then errors.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"session_id", "stage", "code", "kind",
	"update_id", "user_id", "chat_id", "chat_type", "handler", "cb_key", "outcome",
	"duration_ms", "elapsed_ms", "messages", "kb",
	"account_id", "category_id", "activity_id", "duration_min", "client_ref",
	"method", "path", "http_code", "url",
	"action", "endpoint", "attempt", "attempts",
	"mode", "listen", "public_url", "db", "host", "port",
	"payload", "lang", "username",
	"err", "err_code", "error", "error_kind", "cause", "retryable",
	"dialogs_active", "send_errors",
}
