package state

// State identifies a conversation step.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// Tracker reports the current step of a user. Implementations return
// StateIdle for users without a conversation.
type Tracker interface {
	State(userID int64) State
}

// TrackerFunc adapts a plain function to Tracker.
type TrackerFunc func(userID int64) State

// State implements Tracker.
func (f TrackerFunc) State(userID int64) State { return f(userID) }
