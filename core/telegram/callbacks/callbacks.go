// Package callbacks decodes inline button data produced by telebot.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Split returns the button key and payload of cb.
//
// Generic OnCallback handlers receive Unique empty and the raw
// "\f<unique>|<payload>" string in Data, so both shapes are accepted.
func Split(cb *tele.Callback) (key, payload string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	key, payload, _ = strings.Cut(raw, "|")
	return strings.TrimSpace(key), payload
}

// Payload returns the payload of the callback carried by c.
func Payload(c tele.Context) string {
	_, payload := Split(c.Callback())
	return payload
}
