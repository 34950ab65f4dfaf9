package state

import (
	"log/slog"
	"sync"

	"github.com/m3rciful/timebot/core/logger"
	tghelpers "github.com/m3rciful/timebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Machine dispatches updates by the sender's current state.
type Machine struct {
	tracker Tracker

	mu       sync.RWMutex
	handlers map[State]tele.HandlerFunc
	fallback tele.HandlerFunc
}

// NewMachine builds a Machine reading states from tracker.
func NewMachine(tracker Tracker) *Machine {
	return &Machine{
		tracker:  tracker,
		handlers: make(map[State]tele.HandlerFunc),
	}
}

// Handle associates a state with its handler.
func (m *Machine) Handle(st State, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[st] = h
}

// HandleDefault sets the handler used for non-idle states without a handler
// of their own.
func (m *Machine) HandleDefault(h tele.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = h
}

// Current returns the state of userID.
func (m *Machine) Current(userID int64) State {
	if m == nil || m.tracker == nil {
		return StateIdle
	}
	st := m.tracker.State(userID)
	if st == "" {
		return StateIdle
	}
	return st
}

// GetState returns the state as a plain string for middleware.State.
func (m *Machine) GetState(userID int64) string {
	return string(m.Current(userID))
}

// InProgress reports whether the user is in any state other than idle.
func (m *Machine) InProgress(userID int64) bool {
	return m.Current(userID) != StateIdle
}

// ManagerHandler executes the handler registered for the sender's state.
func (m *Machine) ManagerHandler(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	current := m.Current(sender.ID)
	ctx := tghelpers.BuildContext(c)

	m.mu.RLock()
	handler, ok := m.handlers[current]
	if !ok && current != StateIdle {
		handler, ok = m.fallback, m.fallback != nil
	}
	m.mu.RUnlock()

	logger.Debug(ctx, "tg", "fsm.manager",
		slog.String("status", "ok"),
		slog.Int64("user_id", sender.ID),
		slog.String("state", string(current)),
		slog.Bool("handled", ok),
	)
	if !ok {
		return nil
	}
	return handler(c)
}
