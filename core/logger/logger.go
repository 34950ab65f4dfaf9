// Package logger is the structured logging layer shared by the bot, the
// data-access service and the migration tool. Records go through a slog
// handler that emits either JSON or key=value lines with a stable key order.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/timebot/core/buildinfo"
	coreconfig "github.com/m3rciful/timebot/core/config"
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	closed   bool

	logWriter *asyncWriter
	logFile   io.Closer

	levelVar     slog.LevelVar
	debugSampler = newRatioSampler(1, 50)
	traceAll     bool

	// L is the process logger once InitLogger has run.
	L *slog.Logger

	// DB logs database connection and repository events.
	DB *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
	// Dialog logs activity-recording dialog transitions and timeouts.
	Dialog *slog.Logger
	// API logs the data-access HTTP service.
	API *slog.Logger
	// Client logs calls made to the data-access service.
	Client *slog.Logger
)

// settings is the resolved form of coreconfig.LoggingConfig.
type settings struct {
	format  logFormat
	order   []string
	level   slog.Level
	num     int
	den     int
	file    string
	profile string
}

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{format: formatJSON, level: slog.LevelInfo, num: 1, den: 50, profile: "prod"}
	s.order = append([]string(nil), defaultKeyOrder...)
	if cfg == nil {
		return s
	}
	lc := cfg.Logging

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.order = order
		}
	}

	if spec := strings.TrimSpace(lc.DebugSample); spec != "" {
		switch num, den := parseRatioSpec(spec); {
		case num == 0 && den == 0:
			s.num, s.den = 0, 0
		case num > 0 && den > 0:
			s.num, s.den = num, den
		}
	}

	if dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && name != "" {
		s.file = filepath.Join(dir, name)
	}
	return s
}

// InitLogger configures the process logger. Only the first call has effect.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		s := settingsFrom(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(s.num, s.den)
		traceAll = isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))

		sinks := []io.Writer{os.Stdout}
		if s.file != "" {
			f, err := openLogFile(s.file)
			if err != nil {
				// stdout still works; report and carry on.
				fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			} else {
				logFile = f
				sinks = append(sinks, f)
			}
		}
		logWriter = newAsyncWriter(sinks, 64*1024)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   s.format,
			keyOrder: s.order,
		}))
		slog.SetDefault(L)
		wireFrom(L)

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", "app"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", s.profile),
			slog.String("log_level", s.level.String()),
		)
	})
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Component loggers write through slog.Default until InitLogger runs.
func init() {
	wireFrom(slog.Default())
}

func wireFrom(base *slog.Logger) {
	DB = base.With("component", "db")
	TG = base.With("component", "tg")
	MIG = base.With("component", "db.migrate")
	TWire = base.With("component", "tg.wire")
	Dialog = base.With("component", "dialog")
	API = base.With("component", "api")
	Client = base.With("component", "dataclient")
}

// Shutdown flushes buffered output and closes the log file.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if logWriter != nil {
		errs = append(errs, logWriter.Close())
	}
	if logFile != nil {
		errs = append(errs, logFile.Close())
	}
	return errors.Join(errs...)
}

func base() *slog.Logger {
	if L != nil {
		return L
	}
	return slog.Default()
}

// Background returns a fresh root context for log calls outside a request.
func Background() context.Context {
	return context.Background()
}

// LogEvent logs event through logg, or the logger carried by ctx when logg
// is nil.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns a logger tagged with the component name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return base()
	}
	return base().With("component", name)
}

// Event logs event for component.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug reports whether a high-volume debug record should be
// written. TRACE=1 in the environment disables sampling.
func ShouldSampleDebug() bool {
	return traceAll || debugSampler.Allow()
}
