// Package bot is the Telegram front-end of the activity-recording dialog.
// Handlers translate updates into engine calls and render the results.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/timebot/core/logger"
	tg "github.com/m3rciful/timebot/core/telegram"
	"github.com/m3rciful/timebot/core/telegram/callbacks"
	"github.com/m3rciful/timebot/core/telegram/commands"
	"github.com/m3rciful/timebot/core/telegram/format"
	tghelpers "github.com/m3rciful/timebot/core/telegram/helpers"
	"github.com/m3rciful/timebot/core/telegram/middleware"
	"github.com/m3rciful/timebot/core/telegram/state"
	"github.com/m3rciful/timebot/core/telegram/ui"
	"github.com/m3rciful/timebot/internal/dialog"
	"github.com/m3rciful/timebot/internal/models"
)

const defaultRecentLimit = 10

// Options configure Handlers.
type Options struct {
	Engine  *dialog.Engine
	Backend *Backend
	Texts   Texts

	// AdminID enables the /dialogs diagnostics command when non-zero.
	AdminID     int64
	RecentLimit int
	Now         func() time.Time
	Logger      *slog.Logger
}

// Handlers serve the bot commands, callbacks and dialog steps.
type Handlers struct {
	engine  *dialog.Engine
	backend *Backend
	texts   Texts
	adminID int64
	recent  int
	now     func() time.Time
	log     *slog.Logger

	menu map[string]tele.HandlerFunc
}

var (
	_ state.Tracker       = (*Handlers)(nil)
	_ ui.FallbackProvider = (*Handlers)(nil)
)

// NewHandlers validates opts and builds Handlers.
func NewHandlers(opts Options) (*Handlers, error) {
	if opts.Engine == nil {
		return nil, errors.New("bot: engine is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("bot: backend is required")
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = defaultRecentLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Dialog
	}
	if log == nil {
		log = slog.Default()
	}
	h := &Handlers{
		engine:  opts.Engine,
		backend: opts.Backend,
		texts:   opts.Texts,
		adminID: opts.AdminID,
		recent:  opts.RecentLimit,
		now:     opts.Now,
		log:     log,
	}
	h.menu = map[string]tele.HandlerFunc{
		BtnRecord: h.Record,
		BtnRecent: h.Recent,
		BtnCancel: h.Cancel,
	}
	return h, nil
}

// State reports the dialog stage of a user for the state machine.
func (h *Handlers) State(userID int64) state.State {
	s, err := h.engine.Session(dialog.UserKey(userID))
	if err != nil {
		return state.StateIdle
	}
	return state.State(s.Stage.String())
}

// Register wires commands and callbacks into reg and routes dialog steps
// through m.
func (h *Handlers) Register(reg *tg.Registry, m *state.Machine) error {
	reg.RegisterCommand("/start", commands.Command{Handler: h.Start, Description: "Начать работу"})
	reg.RegisterCommand("/help", commands.Command{Handler: h.Help, Description: "Как пользоваться ботом"})
	reg.RegisterCommand("/record", commands.Command{
		Handler:     h.Record,
		Description: "Записать активность",
		Aliases:     []string{BtnRecord},
	})
	reg.RegisterCommand("/recent", commands.Command{
		Handler:     h.Recent,
		Description: "Последние записи",
		Aliases:     []string{BtnRecent},
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     h.Cancel,
		Description: "Отменить текущую запись",
		Aliases:     []string{BtnCancel},
	})
	if h.adminID != 0 {
		reg.RegisterCommand("/dialogs", commands.Command{
			Handler:     h.Dialogs,
			Description: "Активные диалоги",
			AdminOnly:   true,
			Hidden:      true,
		})
	}

	onCategory := middleware.State(m, h.staleKeyboard, dialog.StageAwaitingCategory.String())(h.OnCategory)
	onRetry := middleware.State(m, h.staleKeyboard, dialog.StageCompleted.String())(h.OnRetry)
	for key, handler := range map[string]tele.HandlerFunc{
		cbCategory: onCategory,
		cbRetry:    onRetry,
		cbCancel:   h.Cancel,
	} {
		if err := reg.RegisterCallback(key, handler); err != nil {
			return err
		}
	}
	reg.SetCallbackNotFound(h.staleKeyboard)

	m.HandleDefault(h.OnText)
	return nil
}

// Start registers the user and shows the main menu.
func (h *Handlers) Start(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u := c.Sender()
	user, err := h.backend.Register(ctx, models.NewUser{
		TelegramID: u.ID,
		Username:   u.Username,
		FirstName:  u.FirstName,
	})
	if err != nil {
		h.log.LogAttrs(ctx, slog.LevelWarn, "user.register",
			slog.String("status", "fail"),
			slog.Int64("telegram_id", u.ID),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return tghelpers.SendText(c, txtServiceDown)
	}
	h.log.LogAttrs(ctx, slog.LevelDebug, "user.register",
		slog.String("status", "ok"),
		slog.Int64("user_id", user.ID),
	)
	name := u.FirstName
	if name == "" {
		name = u.Username
	}
	return tghelpers.SendMD(c, fmt.Sprintf(txtWelcome, format.MD(name)), mainMenu())
}

// Help explains the input formats.
func (h *Handlers) Help(c tele.Context) error {
	return tghelpers.SendMD(c, txtHelp, mainMenu())
}

// Record opens a dialog.
func (h *Handlers) Record(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	res, err := h.engine.Begin(ctx, senderKey(c))
	return h.reply(ctx, c, res, err)
}

// OnText feeds a free-text message to the current dialog step.
func (h *Handlers) OnText(c tele.Context) error {
	text := strings.TrimSpace(c.Text())
	if handler, ok := h.menu[text]; ok {
		return handler(c)
	}
	ctx := tghelpers.BuildContext(c)
	key := senderKey(c)
	if s, err := h.engine.Session(key); err == nil && s.Stage == dialog.StageAwaitingCategory {
		if cats, err := h.backend.ListCategories(ctx, s.UserID); err == nil {
			text = matchCategory(text, cats)
		}
	}
	res, err := h.engine.Submit(ctx, key, text)
	return h.reply(ctx, c, res, err)
}

// OnCategory handles a category button.
func (h *Handlers) OnCategory(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	res, err := h.engine.Submit(ctx, senderKey(c), callbacks.Payload(c))
	return h.reply(ctx, c, res, err)
}

// OnRetry re-runs a failed completion.
func (h *Handlers) OnRetry(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	res, err := h.engine.Complete(ctx, senderKey(c))
	return h.reply(ctx, c, res, err)
}

// Cancel abandons the current dialog.
func (h *Handlers) Cancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	res, err := h.engine.Cancel(ctx, senderKey(c))
	return h.reply(ctx, c, res, err)
}

// Recent lists the latest recorded activities.
func (h *Handlers) Recent(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.CurrentUser[models.User](ctx, h.backend, c)
	var hist History
	if err == nil {
		hist, err = h.backend.Recent(ctx, user, h.recent)
	}
	if err != nil {
		h.log.LogAttrs(ctx, slog.LevelWarn, "recent.load",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return tghelpers.SendText(c, txtServiceDown)
	}
	return tghelpers.SendMD(c, recentText(hist, h.now()), mainMenu())
}

// Dialogs reports the number of live dialogs.
func (h *Handlers) Dialogs(c tele.Context) error {
	return tghelpers.SendText(c, fmt.Sprintf(txtDialogs, h.engine.Active()))
}

// UnknownText implements ui.FallbackProvider.
func (h *Handlers) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, txtUnknown, &tele.SendOptions{ReplyMarkup: mainMenu()})
	}
}

// UnknownDocument implements ui.FallbackProvider.
func (h *Handlers) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, txtUnknownDocument)
	}
}

// UnknownCallback implements ui.FallbackProvider.
func (h *Handlers) UnknownCallback() tele.HandlerFunc { return h.staleKeyboard }

// RateLimited answers updates dropped by the rate limiter.
func (h *Handlers) RateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return tghelpers.Answer(c, txtRateLimited)
	}
	return tghelpers.SendText(c, txtRateLimited)
}

func (h *Handlers) staleKeyboard(c tele.Context) error {
	return tghelpers.Answer(c, txtStaleKeyboard)
}

// reply renders an engine result, or the error and the prompt to repeat.
func (h *Handlers) reply(ctx context.Context, c tele.Context, res dialog.Result, err error) error {
	ctx = logger.WithSession(ctx, res.Session.ID)
	if err == nil {
		h.logTransition(ctx, res)
		return h.prompt(ctx, c, res)
	}

	h.logFailure(ctx, res, err)
	msg := h.texts.Error(err)
	de, ok := asDialogError(err)
	if !ok {
		return tghelpers.SendText(c, msg)
	}
	switch {
	case de.Code == dialog.CodeCreationFailed && de.Retryable(),
		de.Code == dialog.CodeCompletionPending:
		return tghelpers.SendMD(c, msg, retryMarkup())
	case de.Code == dialog.CodeCreationFailed:
		return tghelpers.SendMD(c, msg)
	case de.Code == dialog.CodeAlreadyInProgress:
		if err := tghelpers.SendMD(c, msg); err != nil {
			return err
		}
		return h.prompt(ctx, c, res)
	case de.Code == dialog.CodeNotFound:
		return tghelpers.SendMD(c, msg, mainMenu())
	case de.Code == dialog.CodeInvalidCategory, de.Code == dialog.CodeCategoriesUnavailable:
		if err := tghelpers.SendMD(c, msg); err != nil {
			return err
		}
		return h.prompt(ctx, c, res)
	case de.Kind() == dialog.KindInput:
		return tghelpers.SendMD(c, msg, cancelMarkup())
	default:
		return tghelpers.SendMD(c, msg)
	}
}

func (h *Handlers) prompt(ctx context.Context, c tele.Context, res dialog.Result) error {
	switch res.Prompt {
	case dialog.PromptCategory:
		cats, err := h.backend.ListCategories(ctx, res.Session.UserID)
		if err != nil {
			h.log.LogAttrs(ctx, slog.LevelWarn, "categories.load",
				slog.String("status", "fail"),
				slog.Int64("user_id", res.Session.UserID),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			return tghelpers.SendMD(c, txtNoCategoryList, categoryMarkup(nil))
		}
		return tghelpers.SendMD(c, txtPromptCategory, categoryMarkup(cats))
	case dialog.PromptSaved:
		if res.Activity == nil {
			return nil
		}
		return tghelpers.SendMD(c, savedText(res.Session, *res.Activity, h.category(ctx, res.Session), h.now()), mainMenu())
	}
	text, markup := promptText(res.Prompt)
	if text == "" {
		return nil
	}
	return tghelpers.SendMD(c, text, markup)
}

// category looks up the chosen category for the confirmation message. A
// failed lookup only drops the category line.
func (h *Handlers) category(ctx context.Context, s dialog.Session) *dialog.Category {
	if s.CategoryID == nil {
		return nil
	}
	cats, err := h.backend.ListCategories(ctx, s.UserID)
	if err != nil {
		return nil
	}
	for _, c := range cats {
		if c.ID == *s.CategoryID {
			return &c
		}
	}
	return nil
}

func (h *Handlers) logTransition(ctx context.Context, res dialog.Result) {
	s := res.Session
	if res.Prompt == dialog.PromptSaved && res.Activity != nil {
		h.log.LogAttrs(ctx, slog.LevelInfo, "dialog.saved",
			slog.Int64("account_id", s.UserID),
			slog.Int64("activity_id", res.Activity.ID),
			slog.Int("duration_min", res.Activity.DurationMinutes),
		)
		return
	}
	h.log.LogAttrs(ctx, slog.LevelDebug, "dialog.transition",
		slog.String("stage", s.Stage.String()),
	)
}

func (h *Handlers) logFailure(ctx context.Context, res dialog.Result, err error) {
	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	}
	if de, ok := asDialogError(err); ok {
		if de.Kind() == dialog.KindDownstream {
			level = slog.LevelWarn
		}
		attrs = append(attrs,
			slog.String("code", string(de.Code)),
			slog.String("kind", de.Kind().String()),
			slog.String("stage", de.Stage.String()),
			slog.Bool("retryable", de.Retryable()),
		)
	}
	h.log.LogAttrs(ctx, level, "dialog.reject", attrs...)
}

func senderKey(c tele.Context) dialog.UserKey {
	return dialog.UserKey(c.Sender().ID)
}
