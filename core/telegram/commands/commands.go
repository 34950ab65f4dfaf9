// Package commands describes slash commands for the registry.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is a slash command. Aliases are exact texts, typically reply
// keyboard labels, that run the same handler. Hidden and AdminOnly commands
// stay out of the published menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}
