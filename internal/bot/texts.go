package bot

import (
	"fmt"
	"time"

	"github.com/m3rciful/timebot/internal/dialog"
)

// Menu button labels. They double as command aliases.
const (
	BtnRecord = "📝 Записать активность"
	BtnRecent = "📋 Последние"
	BtnCancel = "❌ Отмена"

	btnNoCategory = "Без категории"
	btnRetry      = "🔁 Повторить"
)

// Callback keys.
const (
	cbCategory = "dlg_cat"
	cbCancel   = "dlg_cancel"
	cbRetry    = "dlg_retry"
)

const (
	txtWelcome = "👋 Привет, %s!\n\nЯ помогаю вести учёт времени. Нажмите «" + BtnRecord +
		"», чтобы записать, чем вы занимались."
	txtHelp = "*Как записать активность*\n" +
		txtHelpStart + "\n" +
		txtHelpEnd + "\n" +
		"3. Опишите занятие. Теги добавляются через `#`.\n" +
		"4. Выберите категорию.\n\n" +
		"/record начать запись\n/recent последние записи\n/cancel отменить запись"
	txtHelpStart = "1. Укажите время начала: `14:30`, `14-30`, `15м` (15 минут назад), `2ч` (два часа назад) или `сейчас`."
	txtHelpEnd   = "2. Укажите время окончания: `16:00`, `сейчас` или длительность от начала: `45`, `45м` или `1ч`."

	txtPromptStart       = "🕐 Когда вы начали? Например: `14:30`, `15м`, `2ч` или `сейчас`."
	txtPromptEnd         = "🕑 Когда закончили? Например: `16:00`, `сейчас` или `90м` от начала."
	txtPromptDescription = "✏️ Чем вы занимались? Теги можно добавить через `#`, например: `Читал книгу #чтение`."
	txtPromptCategory    = "📂 Выберите категорию:"
	txtPromptRetry       = "⚠️ Запись не сохранилась, но ничего не потеряно. Нажмите «" + btnRetry + "»."
	txtCancelled         = "Запись отменена."
	txtTimedOut          = "⌛ Запись отменена: не было ответа %s."
	txtRecentEmpty       = "Записей пока нет. Начните с /record."
	txtRecentHeader      = "*Последние записи*"
	txtDialogs           = "Активных диалогов: %d"
	txtUnknown           = "Не понял. Чтобы записать активность, нажмите «" + BtnRecord + "»."
	txtUnknownDocument   = "Файлы не поддерживаются."
	txtStaleKeyboard     = "Эта кнопка уже неактуальна."
	txtRateLimited       = "Слишком часто, подождите секунду."
	txtServiceDown       = "Сервис временно недоступен, попробуйте позже."
	txtNoCategoryList    = "Не удалось загрузить ваши категории. Можно сохранить без категории или попробовать ещё раз позже."
)

var errorTexts = map[dialog.Code]string{
	dialog.CodeParseError:            "Не понял время. Попробуйте `14:30`, `15м`, `2ч` или `сейчас`.",
	dialog.CodeFutureTime:            "Это время ещё не наступило.",
	dialog.CodeTooOld:                "Это слишком давно: можно указать время не раньше чем %s назад.",
	dialog.CodeEndBeforeStart:        "Окончание должно быть позже начала.",
	dialog.CodeTooShort:              "Описание слишком короткое: нужно хотя бы %d символа.",
	dialog.CodeInvalidCategory:       "Такой категории нет, выберите из списка.",
	dialog.CodeCategoriesUnavailable: "Не удалось проверить категорию. Попробуйте ещё раз.",
	dialog.CodeAlreadyInProgress:     "У вас уже идёт запись. Продолжим с того же места.",
	dialog.CodeNotFound:              "Нет активной записи. Начните заново: /record",
	dialog.CodeBusy:                  "Предыдущее сообщение ещё обрабатывается, отправьте ещё раз через секунду.",
	dialog.CodeCompletionPending:     "Запись ещё не сохранена. Нажмите «" + btnRetry + "».",
	dialog.CodeNothingToComplete:     "Сохранять нечего.",
	dialog.CodeCreationFailed:        "Не удалось сохранить запись, но ничего не потеряно. Нажмите «" + btnRetry + "».",
	dialog.CodeUserUnavailable:       "Не удалось загрузить ваш профиль. Попробуйте позже.",
}

const txtCreationRejected = "Сервис отклонил запись. Она будет сброшена через %s, после этого начните заново: /record"

// Texts renders user-facing strings with the configured limits.
type Texts struct {
	IdleTimeout          time.Duration
	MaxAge               time.Duration
	MinDescriptionLength int
}

// Error returns the message for a failed engine call.
func (t Texts) Error(err error) string {
	de, ok := asDialogError(err)
	if !ok {
		return txtServiceDown
	}
	switch de.Code {
	case dialog.CodeTooOld:
		return fmt.Sprintf(errorTexts[de.Code], humanDuration(t.MaxAge))
	case dialog.CodeTooShort:
		return fmt.Sprintf(errorTexts[de.Code], t.MinDescriptionLength)
	case dialog.CodeCreationFailed:
		if !de.Retryable() {
			return fmt.Sprintf(txtCreationRejected, humanDuration(t.IdleTimeout))
		}
	}
	if msg, ok := errorTexts[de.Code]; ok {
		return msg
	}
	return txtServiceDown
}

// TimedOut is pushed when the idle timer abandons a dialog.
func (t Texts) TimedOut() string {
	return fmt.Sprintf(txtTimedOut, humanDuration(t.IdleTimeout))
}

// humanDuration renders whole hours and minutes in Russian.
func humanDuration(d time.Duration) string {
	mins := int(d.Round(time.Minute) / time.Minute)
	h, m := mins/60, mins%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%d ч %d мин", h, m)
	case h > 0:
		return fmt.Sprintf("%d ч", h)
	default:
		return fmt.Sprintf("%d мин", m)
	}
}
