package timeparse

import (
	"errors"
	"fmt"
)

// Code classifies a parse failure.
type Code string

const (
	CodeUnrecognizedFormat Code = "unrecognized_format"
	CodeFutureTime         Code = "future_time"
	CodeTooOld             Code = "too_old"
	CodeInvalidTimezone    Code = "invalid_timezone"
)

var (
	// ErrUnrecognizedFormat is returned when no grammar matches the input.
	ErrUnrecognizedFormat = errors.New("timeparse: unrecognized format")
	// ErrFutureTime is returned when the parsed instant lies after now.
	ErrFutureTime = errors.New("timeparse: time is in the future")
	// ErrTooOld is returned when the parsed instant is older than the allowed age.
	ErrTooOld = errors.New("timeparse: time is too far in the past")
	// ErrInvalidTimezone is returned when the user's timezone cannot be loaded.
	ErrInvalidTimezone = errors.New("timeparse: invalid timezone")
)

// Error describes why an input was rejected.
type Error struct {
	Code  Code
	Input string
	Err   error
}

func (e *Error) Error() string {
	if e.Input == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %q", e.Err, e.Input)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports whether the input was understood but failed a bound
// check, as opposed to not being understood at all.
func (e *Error) Validation() bool {
	return e.Code == CodeFutureTime || e.Code == CodeTooOld
}

// CodeOf extracts the Code from err, or "" when err is not a parse error.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
