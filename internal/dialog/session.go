// Package dialog implements the activity-recording conversation: the typed
// per-user session, its expiring store, the idle-timeout scheduler and the
// engine that walks a user from start time to a persisted activity.
//
// The engine is transport agnostic. Telegram handlers, tests and any other
// front-end drive it through Begin, Submit, Complete and Cancel.
package dialog

import "time"

// UserKey identifies the owner of a dialog (the Telegram user id).
type UserKey int64

// Stage is the position of a session in the recording flow.
type Stage int

const (
	StageAwaitingStartTime Stage = iota + 1
	StageAwaitingEndTime
	StageAwaitingDescription
	StageAwaitingCategory
	StageCompleted
	StageAbandoned
)

var stageNames = map[Stage]string{
	StageAwaitingStartTime:   "awaiting_start_time",
	StageAwaitingEndTime:     "awaiting_end_time",
	StageAwaitingDescription: "awaiting_description",
	StageAwaitingCategory:    "awaiting_category",
	StageCompleted:           "completed",
	StageAbandoned:           "abandoned",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Next returns the stage that follows s in the forward order. Terminal
// stages return themselves.
func (s Stage) Next() Stage {
	switch s {
	case StageAwaitingStartTime:
		return StageAwaitingEndTime
	case StageAwaitingEndTime:
		return StageAwaitingDescription
	case StageAwaitingDescription:
		return StageAwaitingCategory
	case StageAwaitingCategory:
		return StageCompleted
	default:
		return s
	}
}

// Terminal reports whether no further input is accepted in s.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageAbandoned
}

// Session is one user's in-progress activity entry.
//
// Fields are filled strictly in stage order: StartTime once the session
// leaves StageAwaitingStartTime, EndTime after StageAwaitingEndTime and so on.
type Session struct {
	// ID distinguishes successive sessions of the same user.
	ID      uint64
	UserKey UserKey

	// UserID and Timezone come from the data-access service at Begin.
	UserID   int64
	Timezone string

	Stage       Stage
	StartTime   *time.Time
	EndTime     *time.Time
	Description *string
	Tags        []string
	// CategoryID stays nil when the user explicitly picks "no category".
	CategoryID *int64

	CreatedAt        time.Time
	LastTransitionAt time.Time
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	out := s
	if s.StartTime != nil {
		v := *s.StartTime
		out.StartTime = &v
	}
	if s.EndTime != nil {
		v := *s.EndTime
		out.EndTime = &v
	}
	if s.Description != nil {
		v := *s.Description
		out.Description = &v
	}
	if s.CategoryID != nil {
		v := *s.CategoryID
		out.CategoryID = &v
	}
	if s.Tags != nil {
		out.Tags = append([]string(nil), s.Tags...)
	}
	return out
}

// Duration is EndTime minus StartTime, or zero while either is unset.
func (s Session) Duration() time.Duration {
	if s.StartTime == nil || s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(*s.StartTime)
}
