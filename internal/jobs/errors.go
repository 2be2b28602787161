package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/keagan/cutforge/internal/audio"
	"github.com/keagan/cutforge/internal/autoedit"
	"github.com/keagan/cutforge/internal/ffmpeg"
	"github.com/keagan/cutforge/internal/timeline"
)

// Class groups failures by how the runner should treat them.
type Class string

const (
	ClassValidation    Class = "validation"
	ClassProbeFailed   Class = "probe_failed"
	ClassExternalTool  Class = "external_tool_failed"
	ClassTimeout       Class = "timeout_exceeded"
	ClassUnrecoverable Class = "unrecoverable_input"
)

// Transient reports whether a retry could plausibly succeed.
func (c Class) Transient() bool {
	return c == ClassProbeFailed || c == ClassExternalTool
}

// Error attaches a Class to an underlying failure.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a ClassValidation error.
func Validation(format string, args ...any) error {
	return &Error{Class: ClassValidation, Err: fmt.Errorf(format, args...)}
}

// Unrecoverable builds a ClassUnrecoverable error.
func Unrecoverable(format string, args ...any) error {
	return &Error{Class: ClassUnrecoverable, Err: fmt.Errorf(format, args...)}
}

// Classify maps an error onto the taxonomy. Already classified errors keep
// their class; anything unknown is treated as an external tool failure.
func Classify(err error) Class {
	var je *Error
	var exit *ffmpeg.ExitError
	switch {
	case errors.As(err, &je):
		return je.Class
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, ffmpeg.ErrProbeFailed):
		return ClassProbeFailed
	case errors.Is(err, timeline.ErrInvalidTimeline),
		errors.Is(err, autoedit.ErrInputNotFound),
		errors.Is(err, ErrJobNotFound),
		errors.Is(err, ErrAssetNotFound),
		errors.Is(err, ErrProjectNotFound):
		return ClassValidation
	case errors.Is(err, audio.ErrNoAudio),
		errors.Is(err, autoedit.ErrNothingToKeep):
		return ClassUnrecoverable
	case errors.As(err, &exit):
		return ClassExternalTool
	default:
		return ClassExternalTool
	}
}

// wrap classifies err unless it already carries a class.
func wrap(err error) *Error {
	var je *Error
	if errors.As(err, &je) {
		return je
	}
	return &Error{Class: Classify(err), Err: err}
}

// truncate caps msg at limit characters. Invalid UTF-8 from tool output is
// replaced so the result is always storable text.
func truncate(msg string, limit int) string {
	msg = strings.ToValidUTF8(msg, "\uFFFD")
	if limit <= 0 || utf8.RuneCountInString(msg) <= limit {
		return msg
	}
	n := 0
	for i := range msg {
		if n == limit {
			return msg[:i]
		}
		n++
	}
	return msg
}
