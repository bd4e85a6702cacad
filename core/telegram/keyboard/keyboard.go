// Package keyboard builds Telegram reply and inline keyboards.
package keyboard

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/telegram/callbacks"
)

// MaxCallbackData is the Telegram limit for callback_data in bytes.
const MaxCallbackData = 64

// Reply lays labels out one per row on a one-time keyboard. No labels means no keyboard.
func Reply(labels []string) *tele.ReplyMarkup {
	if len(labels) == 0 {
		return nil
	}
	m := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	rows := make([]tele.Row, len(labels))
	for i, l := range labels {
		rows[i] = m.Row(m.Text(l))
	}
	m.Reply(rows...)
	return m
}

// Inline puts one button per row; each button sends its own label under unique.
// Labels that would not fit into callback data are left out.
func Inline(unique string, labels []string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	var rows [][]tele.InlineButton
	for _, l := range labels {
		if len(callbacks.Encode(unique, l)) > MaxCallbackData {
			continue
		}
		rows = append(rows, []tele.InlineButton{*m.Data(l, unique, l).Inline()})
	}
	if len(rows) == 0 {
		return nil
	}
	m.InlineKeyboard = rows
	return m
}
