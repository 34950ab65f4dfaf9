package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/timebot/core/telegram/format"
	"github.com/m3rciful/timebot/core/telegram/keyboard"
	"github.com/m3rciful/timebot/internal/dialog"
	"github.com/m3rciful/timebot/internal/models"
)

const categoriesPerRow = 2

func asDialogError(err error) (*dialog.Error, bool) {
	var de *dialog.Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

func mainMenu() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{BtnRecord},
		[]string{BtnRecent, BtnCancel},
	)
}

func cancelMarkup() *tele.ReplyMarkup {
	return keyboard.Single(BtnCancel, cbCancel, "cancel")
}

func retryMarkup() *tele.ReplyMarkup {
	return keyboard.Single(btnRetry, cbRetry, "retry")
}

func categoryLabel(c dialog.Category) string {
	return strings.TrimSpace(c.Emoji + " " + c.Name)
}

// categoryMarkup lays the user's categories out two per row followed by the
// "no category" and cancel buttons.
func categoryMarkup(cats []dialog.Category) *tele.ReplyMarkup {
	btns := make([]keyboard.InlineBtn, 0, len(cats))
	for _, c := range cats {
		btns = append(btns, keyboard.InlineBtn{
			Text:   categoryLabel(c),
			Unique: cbCategory,
			Data:   strconv.FormatInt(c.ID, 10),
		})
	}
	return keyboard.Inline(keyboard.Grid(btns, categoriesPerRow, []keyboard.InlineBtn{
		{Text: btnNoCategory, Unique: cbCategory, Data: dialog.NoCategory},
		{Text: BtnCancel, Unique: cbCancel, Data: "cancel"},
	})...)
}

// matchCategory maps free text typed at the category step to a category id.
// Unknown text is passed through so the engine reports it.
func matchCategory(input string, cats []dialog.Category) string {
	in := strings.TrimSpace(input)
	if strings.EqualFold(in, btnNoCategory) {
		return dialog.NoCategory
	}
	for _, c := range cats {
		if strings.EqualFold(in, c.Name) || in == categoryLabel(c) {
			return strconv.FormatInt(c.ID, 10)
		}
	}
	return in
}

// promptText returns the question for the stage a result left the user in.
// The category prompt is built separately because it needs the category list.
func promptText(p dialog.Prompt) (string, *tele.ReplyMarkup) {
	switch p {
	case dialog.PromptStartTime:
		return txtPromptStart, cancelMarkup()
	case dialog.PromptEndTime:
		return txtPromptEnd, cancelMarkup()
	case dialog.PromptDescription:
		return txtPromptDescription, cancelMarkup()
	case dialog.PromptRetryCompletion:
		return txtPromptRetry, retryMarkup()
	case dialog.PromptCancelled:
		return txtCancelled, mainMenu()
	default:
		return "", nil
	}
}

func location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// formatSpan renders an interval in loc, adding dates only where the day is
// not obvious.
func formatSpan(start, end, now time.Time, loc *time.Location) string {
	start, end, now = start.In(loc), end.In(loc), now.In(loc)
	from := start.Format("15:04")
	if !sameDay(start, now) {
		from = start.Format("02.01 15:04")
	}
	to := end.Format("15:04")
	if !sameDay(start, end) {
		to = end.Format("02.01 15:04")
	}
	return from + "–" + to
}

func formatTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = "#" + t
	}
	return format.MD(strings.Join(out, " "))
}

func savedText(s dialog.Session, act dialog.Activity, cat *dialog.Category, now time.Time) string {
	var b strings.Builder
	b.WriteString("✅ Записано!\n\n")
	fmt.Fprintf(&b, "*%s*\n", format.MD(format.Deref(s.Description, "")))
	if s.StartTime != nil && s.EndTime != nil {
		fmt.Fprintf(&b, "🕐 %s (%s)\n",
			formatSpan(*s.StartTime, *s.EndTime, now, location(s.Timezone)),
			humanDuration(time.Duration(act.DurationMinutes)*time.Minute))
	}
	if cat != nil {
		fmt.Fprintf(&b, "📂 %s\n", format.MD(categoryLabel(*cat)))
	} else {
		fmt.Fprintf(&b, "📂 %s\n", btnNoCategory)
	}
	if tags := formatTags(s.Tags); tags != "" {
		fmt.Fprintf(&b, "🏷 %s\n", tags)
	}
	return strings.TrimRight(b.String(), "\n")
}

func recentText(h History, now time.Time) string {
	if len(h.Activities) == 0 {
		return txtRecentEmpty
	}
	loc := location(h.User.Timezone)
	lines := make([]string, 0, len(h.Activities)+1)
	lines = append(lines, txtRecentHeader)
	for _, a := range h.Activities {
		lines = append(lines, recentLine(a, h.Categories, now, loc))
	}
	return strings.Join(lines, "\n")
}

func recentLine(a models.Activity, cats map[int64]dialog.Category, now time.Time, loc *time.Location) string {
	line := fmt.Sprintf("• %s (%s) %s",
		formatSpan(a.StartTime, a.EndTime, now, loc),
		humanDuration(time.Duration(a.DurationMinutes)*time.Minute),
		format.MD(a.Description))
	if c, ok := cats[format.Deref(a.CategoryID, int64(0))]; ok {
		line += " · " + format.MD(categoryLabel(c))
	}
	if tags := formatTags(a.Tags); tags != "" {
		line += " " + tags
	}
	return line
}
