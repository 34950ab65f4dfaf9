package dialog

import (
	"errors"
	"fmt"
)

// Code names a dialog failure. Codes are stable and safe to use as message
// keys in front-ends.
type Code string

const (
	// Input errors: the session is unchanged and the user may retry.
	CodeParseError            Code = "parse_error"
	CodeFutureTime            Code = "future_time"
	CodeTooOld                Code = "too_old"
	CodeEndBeforeStart        Code = "end_before_start"
	CodeTooShort              Code = "too_short"
	CodeInvalidCategory       Code = "invalid_category_selection"
	CodeCategoriesUnavailable Code = "categories_unavailable"

	// State errors: the caller should resynchronise its UI.
	CodeAlreadyInProgress Code = "already_in_progress"
	CodeNotFound          Code = "not_found"
	CodeBusy              Code = "busy"
	CodeCompletionPending Code = "completion_pending"
	CodeNothingToComplete Code = "nothing_to_complete"

	// Downstream errors.
	CodeCreationFailed  Code = "creation_failed"
	CodeUserUnavailable Code = "user_unavailable"
)

// Kind groups codes by how a caller should react.
type Kind int

const (
	KindInput Kind = iota + 1
	KindState
	KindDownstream
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindState:
		return "state"
	case KindDownstream:
		return "downstream"
	default:
		return "unknown"
	}
}

var codeKinds = map[Code]Kind{
	CodeParseError:            KindInput,
	CodeFutureTime:            KindInput,
	CodeTooOld:                KindInput,
	CodeEndBeforeStart:        KindInput,
	CodeTooShort:              KindInput,
	CodeInvalidCategory:       KindInput,
	CodeCategoriesUnavailable: KindInput,
	CodeAlreadyInProgress:     KindState,
	CodeNotFound:              KindState,
	CodeBusy:                  KindState,
	CodeCompletionPending:     KindState,
	CodeNothingToComplete:     KindState,
	CodeCreationFailed:        KindDownstream,
	CodeUserUnavailable:       KindDownstream,
}

// Error is returned by every engine operation that does not succeed.
type Error struct {
	Code  Code
	Stage Stage
	Err   error

	retryable bool
}

func newError(code Code, stage Stage, err error) *Error {
	return &Error{Code: code, Stage: stage, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dialog %s at %s: %v", e.Code, e.Stage, e.Err)
	}
	return fmt.Sprintf("dialog %s at %s", e.Code, e.Stage)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind classifies the error.
func (e *Error) Kind() Kind { return codeKinds[e.Code] }

// Retryable reports whether repeating the same operation may succeed. For
// CodeCreationFailed it is false when the data-access service rejected the
// payload outright.
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeCreationFailed:
		return e.retryable
	case CodeBusy, CodeCategoriesUnavailable, CodeUserUnavailable:
		return true
	default:
		return false
	}
}

// ErrorCode exposes the code for log summaries.
func (e *Error) ErrorCode() string { return string(e.Code) }

// CodeOf returns the dialog code wrapped in err, or "".
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// retryableError is implemented by collaborator errors that know whether a
// repeated call can succeed.
type retryableError interface {
	Retryable() bool
}

func isRetryable(err error) bool {
	var re retryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}
