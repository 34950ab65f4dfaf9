package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/timebot/core/logger"
	tg "github.com/m3rciful/timebot/core/telegram"
	"github.com/m3rciful/timebot/core/telegram/router"
	"github.com/m3rciful/timebot/core/telegram/state"
	"github.com/m3rciful/timebot/internal/config"
	"github.com/m3rciful/timebot/internal/dataclient"
	"github.com/m3rciful/timebot/internal/dialog"
	"github.com/m3rciful/timebot/internal/timeparse"
)

const healthTimeout = 5 * time.Second

// App owns the dialog engine and builds the Telegram runtime around it.
type App struct {
	cfg      *config.AppConfig
	backend  *Backend
	engine   *dialog.Engine
	notifier *Notifier
	handlers *Handlers
}

// NewApp wires the data client, dialog engine and handlers from cfg.
func NewApp(cfg *config.AppConfig) (*App, error) {
	client, err := dataclient.New(dataclient.Options{
		BaseURL:       cfg.DataAPI.BaseURL,
		Timeout:       cfg.DataAPI.Timeout(),
		RetryAttempts: cfg.DataAPI.RetryAttempts,
	})
	if err != nil {
		return nil, err
	}
	return newApp(cfg, client)
}

func newApp(cfg *config.AppConfig, api DataAPI) (*App, error) {
	texts := Texts{
		IdleTimeout:          cfg.Dialog.IdleTimeout(),
		MaxAge:               cfg.Dialog.MaxAge(),
		MinDescriptionLength: cfg.Dialog.MinDescriptionLength,
	}
	backend := NewBackend(api)
	notifier := NewNotifier(texts, logger.Dialog)

	engine, err := dialog.NewEngine(dialog.Deps{
		Parser:     timeparse.New(cfg.Dialog.MaxAge()),
		Store:      dialog.NewStore(dialog.StoreOptions{IdleTimeout: cfg.Dialog.IdleTimeout()}),
		Scheduler:  dialog.NewScheduler(nil),
		Directory:  backend,
		Categories: backend,
		Activities: backend,
		Notifier:   notifier,
	}, dialog.Options{
		MinDescriptionLength: cfg.Dialog.MinDescriptionLength,
		DefaultTimezone:      cfg.Dialog.DefaultTimezone,
		BusyWait:             cfg.Dialog.BusyWait(),
	})
	if err != nil {
		return nil, fmt.Errorf("bot: dialog engine: %w", err)
	}

	handlers, err := NewHandlers(Options{
		Engine:  engine,
		Backend: backend,
		Texts:   texts,
		AdminID: cfg.Telegram.AdminID,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}
	return &App{cfg: cfg, backend: backend, engine: engine, notifier: notifier, handlers: handlers}, nil
}

// TelegramRunOptions implements the core runner contract.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	machine := state.NewMachine(a.handlers)
	if err := a.handlers.Register(reg, machine); err != nil {
		return tg.RunOptions{}, fmt.Errorf("bot: register handlers: %w", err)
	}

	return tg.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    reg,
		Middlewares: tg.DefaultMiddlewares(&a.cfg.Config, a.handlers.RateLimited),
		Routes:      router.Routes(reg, machine, a.handlers, a.cfg.Telegram.AdminID),
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, rt tg.Runtime) error {
	a.notifier.Attach(rt.Bot)

	hctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := a.backend.Health(hctx); err != nil {
		// The bot still starts; handlers report the outage per request.
		logger.Client.LogAttrs(ctx, slog.LevelWarn, "health",
			slog.String("status", "fail"),
			slog.String("url", a.cfg.DataAPI.BaseURL),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return nil
	}
	logger.Client.LogAttrs(ctx, slog.LevelInfo, "health",
		slog.String("status", "ok"),
		slog.String("url", a.cfg.DataAPI.BaseURL),
	)
	return nil
}

func (a *App) onStop(ctx context.Context, rt tg.Runtime) error {
	active := a.engine.Active()
	a.engine.Close()
	a.notifier.Attach((*tele.Bot)(nil))
	attrs := []slog.Attr{slog.Int("dialogs_active", active)}
	if rt.Dispatcher != nil {
		attrs = append(attrs, slog.Uint64("send_errors", rt.Dispatcher.ErrorCount()))
	}
	logger.Dialog.LogAttrs(ctx, slog.LevelInfo, "engine.stop", attrs...)
	return nil
}
