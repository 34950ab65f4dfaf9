// Package timeparse turns the short time expressions users type into a chat
// ("14:30", "15м", "2ч", "сейчас") into absolute UTC instants.
//
// Parsing is pure: the reference instant and the user's timezone are passed in,
// nothing is read from the environment, and a Parser is safe for concurrent use.
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// DefaultMaxAge bounds how far in the past a parsed instant may lie.
const DefaultMaxAge = 24 * time.Hour

// Markers recognised after an integer. The Latin letters are accepted as
// aliases for users typing on an English layout.
const (
	MinutesMarker = "м"
	HoursMarker   = "ч"
)

// maxRelativeDigits caps relative amounts so durations never overflow.
const maxRelativeDigits = 6

// Form reports which grammar produced a Result.
type Form int

const (
	// FormAbsolute is an HH:MM clock time in the user's timezone.
	FormAbsolute Form = iota + 1
	// FormRelativeMinutes is a bare integer or an integer with the minutes marker.
	FormRelativeMinutes
	// FormRelativeHours is an integer with the hours marker.
	FormRelativeHours
	// FormNow is one of the "now" keywords.
	FormNow
)

func (f Form) String() string {
	switch f {
	case FormAbsolute:
		return "absolute"
	case FormRelativeMinutes:
		return "relative_minutes"
	case FormRelativeHours:
		return "relative_hours"
	case FormNow:
		return "now"
	default:
		return "unknown"
	}
}

// Result is a successfully parsed and validated instant.
type Result struct {
	Time time.Time
	Form Form
}

var (
	absoluteRe = regexp.MustCompile(`^(\d{1,2})[:\-](\d{2})$`)
	minutesRe  = regexp.MustCompile(`^(\d{1,` + strconv.Itoa(maxRelativeDigits) + `})\s*(?:` + MinutesMarker + `|m)?$`)
	hoursRe    = regexp.MustCompile(`^(\d{1,` + strconv.Itoa(maxRelativeDigits) + `})\s*(?:` + HoursMarker + `|h)$`)
)

var nowKeywords = map[string]struct{}{
	"сейчас": {},
	"щас":    {},
	"now":    {},
}

// Parser parses time expressions. The zero value uses DefaultMaxAge.
type Parser struct {
	MaxAge time.Duration
}

// New returns a Parser that rejects instants older than maxAge.
func New(maxAge time.Duration) Parser {
	return Parser{MaxAge: maxAge}
}

// Parse interprets input relative to now. Relative amounts count backwards
// from now ("15м" is fifteen minutes ago).
func (p Parser) Parse(input string, now time.Time, tz string) (Result, error) {
	return p.parse(input, now, nil, tz)
}

// ParseFrom interprets input the same way as Parse except that relative
// amounts are durations counted forward from anchor ("15м" is anchor plus
// fifteen minutes). Absolute and "now" forms ignore the anchor.
func (p Parser) ParseFrom(input string, now, anchor time.Time, tz string) (Result, error) {
	return p.parse(input, now, &anchor, tz)
}

// Parse is a convenience wrapper around the zero Parser.
func Parse(input string, now time.Time, tz string) (Result, error) {
	return Parser{}.Parse(input, now, tz)
}

func (p Parser) parse(input string, now time.Time, anchor *time.Time, tz string) (Result, error) {
	now = now.UTC()
	s := strings.ToLower(strings.TrimSpace(input))

	res, err := match(s, now, anchor, tz)
	if err != nil {
		if pe, ok := err.(*Error); ok {
			pe.Input = input
		}
		return Result{}, err
	}
	if err := p.validate(res.Time, now); err != nil {
		err.Input = input
		return Result{}, err
	}
	return res, nil
}

func match(s string, now time.Time, anchor *time.Time, tz string) (Result, error) {
	if m := absoluteRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if h <= 23 && mm <= 59 {
			loc, err := location(tz)
			if err != nil {
				return Result{}, err
			}
			local := now.In(loc)
			at := time.Date(local.Year(), local.Month(), local.Day(), h, mm, 0, 0, loc)
			return Result{Time: at.UTC(), Form: FormAbsolute}, nil
		}
	}

	if m := minutesRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Result{Time: shift(now, anchor, time.Duration(n)*time.Minute), Form: FormRelativeMinutes}, nil
	}

	if m := hoursRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Result{Time: shift(now, anchor, time.Duration(n)*time.Hour), Form: FormRelativeHours}, nil
	}

	if _, ok := nowKeywords[s]; ok {
		return Result{Time: now, Form: FormNow}, nil
	}

	return Result{}, &Error{Code: CodeUnrecognizedFormat, Err: ErrUnrecognizedFormat}
}

func shift(now time.Time, anchor *time.Time, d time.Duration) time.Time {
	if anchor == nil {
		return now.Add(-d)
	}
	return anchor.UTC().Add(d)
}

func (p Parser) validate(t, now time.Time) *Error {
	if t.After(now) {
		return &Error{Code: CodeFutureTime, Err: ErrFutureTime}
	}
	maxAge := p.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if now.Sub(t) > maxAge {
		return &Error{Code: CodeTooOld, Err: ErrTooOld}
	}
	return nil
}

func location(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, &Error{Code: CodeInvalidTimezone, Err: ErrInvalidTimezone}
	}
	return loc, nil
}
