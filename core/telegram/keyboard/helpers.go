// Package keyboard builds reply and inline markups.
package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn describes one inline button.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

// ReplyButtons builds a resized reply keyboard from rows of labels.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	keyboard := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tele.Btn, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// Inline builds an inline keyboard from rows of buttons.
func Inline(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = *markup.Data(btn.Text, btn.Unique, btn.Data).Inline()
		}
		inline = append(inline, r)
	}
	markup.InlineKeyboard = inline
	return markup
}

// Grid splits buttons into rows of at most perRow and appends the footer
// rows unchanged. perRow below one puts every button on its own row.
func Grid(buttons []InlineBtn, perRow int, footer ...[]InlineBtn) [][]InlineBtn {
	if perRow < 1 {
		perRow = 1
	}
	rows := make([][]InlineBtn, 0, (len(buttons)+perRow-1)/perRow+len(footer))
	for i := 0; i < len(buttons); i += perRow {
		rows = append(rows, buttons[i:min(i+perRow, len(buttons))])
	}
	return append(rows, footer...)
}

// Single is an inline keyboard holding exactly one button.
func Single(text, unique, data string) *tele.ReplyMarkup {
	return Inline([]InlineBtn{{Text: text, Unique: unique, Data: data}})
}
