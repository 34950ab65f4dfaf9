package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emit logs one record through a fresh handler and returns the written line.
func emit(t *testing.T, format logFormat, ctx context.Context, level slog.Level, event string, attrs ...slog.Attr) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	LogEvent(ctx, slog.New(h).With("component", "dialog"), level, event, attrs...)
	require.NoError(t, aw.Flush())
	require.NoError(t, aw.Close())
	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	return line
}

func assertInOrder(t *testing.T, line string, parts ...string) {
	t.Helper()
	pos := -1
	for _, p := range parts {
		idx := strings.Index(line, p)
		require.NotEqual(t, -1, idx, "%q missing in %s", p, line)
		require.Greater(t, idx, pos, "%q out of order in %s", p, line)
		pos = idx
	}
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(Background(), "rid-123"), 42, 7, 9)
	ctx = WithSession(ctx, 5)

	line := emit(t, formatKV, ctx, slog.LevelInfo, "dialog.saved",
		slog.String("status", "ok"),
		slog.Int64("activity_id", 900),
	)
	assert.True(t, strings.HasPrefix(line, "ts="))
	assertInOrder(t, line, "level=INFO", "component=dialog", "event=dialog.saved", "status=ok", "rid=rid-123", "session_id=5", "update_id=42", "user_id=7")
	assert.Contains(t, line, "activity_id=900")
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(Background(), "rid-json"), 11, 22, 33)
	line := emit(t, formatJSON, ctx, slog.LevelError, "dialog.reject",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
		slog.String("stage", "awaiting_end_time"),
	)
	require.True(t, strings.HasPrefix(line, "{"), line)
	assertInOrder(t, line, `{"ts":`, `"level":"ERROR"`, `"component":"dialog"`, `"event":"dialog.reject"`, `"status":"fail"`, `"rid":"rid-json"`, `"stage":"awaiting_end_time"`)
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	raw := "123:456:789"
	ctx := WithRID(Background(), raw)

	kv := emit(t, formatKV, ctx, slog.LevelInfo, "rid.test", slog.String("status", "ok"))
	assert.Contains(t, kv, "rid="+CompactRID(raw))
	assert.NotContains(t, kv, "rid_full=")

	js := emit(t, formatJSON, ctx, slog.LevelInfo, "rid.test", slog.String("status", "ok"))
	assert.Contains(t, js, `"rid":"`+CompactRID(raw)+`"`)
	assert.Contains(t, js, `"rid_full":"`+raw+`"`)
	assert.Contains(t, js, `"ts_unix_nano"`)
}

func TestContextValues(t *testing.T) {
	ctx := WithSession(WithHandler(Background(), "record"), 12)
	assert.Equal(t, uint64(12), SessionFrom(ctx))
	assert.Equal(t, "record", HandlerFrom(ctx))
	assert.Zero(t, SessionFrom(WithSession(Background(), 0)))
	assert.Zero(t, UserIDFrom(nil))
	assert.NotNil(t, FromContext(context.TODO()))
}

func TestSanitizeAndCompact(t *testing.T) {
	assert.Equal(t, "a\tb\nc", Sanitize("a\tb\nc\x00​\x7f"))
	assert.Equal(t, "абв", SanitizeLimit("абвгд", 3))
	assert.Equal(t, "", SanitizeLimit("x", 0))
	assert.Equal(t, "3f.co.lx", CompactRID("123:456:789"))
	assert.Equal(t, "not-a-rid", CompactRID("not-a-rid"))
}
