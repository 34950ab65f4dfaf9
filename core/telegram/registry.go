package telegram

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/timebot/core/logger"
	"github.com/m3rciful/timebot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry holds bot commands and callback handlers keyed by button unique.
// Commands are registered during wiring; callbacks may be added later.
type Registry struct {
	commands map[string]commands.Command
	aliases  map[string]string

	mu               sync.RWMutex
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
	}
}

func skip(event, name, reason string) {
	logger.TWire.LogAttrs(logger.Background(), slog.LevelWarn, event,
		slog.String("status", "skip"),
		slog.String("name", name),
		slog.String("reason", reason),
	)
}

// RegisterCommand adds a command under name, which must start with a slash.
// Invalid and duplicate registrations are logged and ignored.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) {
	switch {
	case r == nil:
		return
	case name == "" || cmd.Handler == nil || cmd.Description == "":
		skip("register.command", name, "invalid")
		return
	case !strings.HasPrefix(name, "/"):
		skip("register.command", name, "no_slash_prefix")
		return
	}
	if _, exists := r.commands[name]; exists {
		skip("register.command", name, "duplicate")
		return
	}
	r.commands[name] = cmd
	for _, alias := range cmd.Aliases {
		if _, taken := r.aliases[alias]; taken {
			skip("register.alias", alias, "duplicate")
			continue
		}
		r.aliases[alias] = name
	}
}

// ListCommands returns the commands sorted by name. visibleOnly drops hidden
// and admin-only entries, which is what the Telegram menu shows.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	list := make([]tele.Command, 0, len(r.commands))
	for name, meta := range r.commands {
		if visibleOnly && (meta.Hidden || meta.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: meta.Description})
	}
	slices.SortFunc(list, func(a, b tele.Command) int { return strings.Compare(a.Text, b.Text) })
	return list
}

// LookupCommand resolves a command name, with or without the slash, or one
// of its aliases. It returns the canonical name.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	if name, ok := r.aliases[text]; ok {
		return name, r.commands[name], true
	}
	name := text
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	if canonical, ok := r.aliases[name]; ok {
		return canonical, r.commands[canonical], true
	}
	return "", commands.Command{}, false
}

// Commands returns all registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	return r.commands
}

// RegisterCallback maps a button unique to its handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if r == nil || key == "" || handler == nil {
		skip("register.callback", key, "invalid")
		return fmt.Errorf("invalid callback registration %q", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		skip("register.callback", key, "duplicate")
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler registered for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns sorted keys (for diagnostics).
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetCallbackNotFound sets the handler for callbacks with an unknown key.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbackNotFound = h
}

// CallbackNotFound returns the handler for unknown callbacks, or nil.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}
