// Package callbacks decodes Telegram inline button payloads.
//
// Buttons built by this bot carry data in telebot's "\f<unique>|<payload>"
// form. A handler bound to the button itself sees Unique set and only the
// payload in Data; the catch-all OnCallback handler sees the raw encoding.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ActionKey is the unique of buttons whose payload is replayed as user text.
const ActionKey = "act"

// Encode renders unique and payload the way telebot puts them on the wire.
func Encode(unique, payload string) string {
	if payload == "" {
		return "\f" + unique
	}
	return "\f" + unique + "|" + payload
}

// Decode splits raw callback data into unique and payload.
func Decode(data string) (unique, payload string) {
	unique, payload, _ = strings.Cut(strings.TrimPrefix(data, "\f"), "|")
	return strings.TrimSpace(unique), payload
}

// Key returns the unique of cb.
func Key(cb *tele.Callback) string {
	if cb == nil {
		return ""
	}
	if cb.Unique != "" {
		return cb.Unique
	}
	unique, _ := Decode(cb.Data)
	return unique
}

// Payload returns the data attached to the button.
func Payload(cb *tele.Callback) string {
	if cb == nil {
		return ""
	}
	if cb.Unique != "" {
		return cb.Data
	}
	_, payload := Decode(cb.Data)
	return payload
}
