// Package rejection defines the machine-checkable reasons a submission can be
// refused, and the structured error that carries them.
package rejection

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the stable identifier surfaced for a rejection.
type Code string

// Rejection codes.
const (
	CodeMissingField        Code = "MissingField"
	CodeInvalidPlayerCount  Code = "InvalidPlayerCount"
	CodeReplayTooOld        Code = "ReplayTooOld"
	CodeMissingStartTime    Code = "MissingStartTime"
	CodeInvalidDateFormat   Code = "InvalidDateFormat"
	CodePlayerMismatch      Code = "PlayerMismatch"
	CodeNoSeriesWinner      Code = "NoSeriesWinner"
	CodeDuplicateReplay     Code = "DuplicateReplay"
	CodeAlreadySubmitted    Code = "AlreadySubmitted"
	CodeInvalidSeriesLength Code = "InvalidSeriesLength"
	CodeInvalidReplayURL    Code = "InvalidReplayURL"
	CodeMalformedSubmission Code = "MalformedSubmission"
	CodeTransient           Code = "Transient"
)

// Sentinel kinds, one per code. *Error unwraps to the matching sentinel.
var (
	ErrMissingField        = errors.New("missing field")
	ErrInvalidPlayerCount  = errors.New("invalid player count")
	ErrReplayTooOld        = errors.New("replay too old")
	ErrMissingStartTime    = errors.New("missing start time")
	ErrInvalidDateFormat   = errors.New("invalid date format")
	ErrPlayerMismatch      = errors.New("player mismatch")
	ErrNoSeriesWinner      = errors.New("no series winner")
	ErrDuplicateReplay     = errors.New("duplicate replay")
	ErrAlreadySubmitted    = errors.New("already submitted")
	ErrInvalidSeriesLength = errors.New("invalid series length")
	ErrInvalidReplayURL    = errors.New("invalid replay url")
	ErrMalformedSubmission = errors.New("malformed submission")
	ErrTransient           = errors.New("transient failure")
)

var sentinels = map[Code]error{
	CodeMissingField:        ErrMissingField,
	CodeInvalidPlayerCount:  ErrInvalidPlayerCount,
	CodeReplayTooOld:        ErrReplayTooOld,
	CodeMissingStartTime:    ErrMissingStartTime,
	CodeInvalidDateFormat:   ErrInvalidDateFormat,
	CodePlayerMismatch:      ErrPlayerMismatch,
	CodeNoSeriesWinner:      ErrNoSeriesWinner,
	CodeDuplicateReplay:     ErrDuplicateReplay,
	CodeAlreadySubmitted:    ErrAlreadySubmitted,
	CodeInvalidSeriesLength: ErrInvalidSeriesLength,
	CodeInvalidReplayURL:    ErrInvalidReplayURL,
	CodeMalformedSubmission: ErrMalformedSubmission,
	CodeTransient:           ErrTransient,
}

// Error is a single structured rejection.
type Error struct {
	Code         Code   `json:"code"`
	SubmissionID string `json:"submission_id,omitempty"`
	ReplayID     string `json:"replay_id,omitempty"`
	Reason       string `json:"reason"`
	// Cause is the underlying failure, if any. Not persisted.
	Cause error `json:"-"`
}

// New builds a rejection for the given replay. replayID may be empty when the
// failure concerns the submission as a whole.
func New(code Code, replayID, format string, args ...any) *Error {
	return &Error{Code: code, ReplayID: replayID, Reason: fmt.Sprintf(format, args...)}
}

// Transient wraps an external-call failure. The submission stays eligible
// for a later run.
func Transient(replayID string, cause error) *Error {
	reason := "external call failed"
	if cause != nil {
		reason = cause.Error()
	}
	return &Error{Code: CodeTransient, ReplayID: replayID, Reason: reason, Cause: cause}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.SubmissionID != "" {
		b.WriteString(" submission=")
		b.WriteString(e.SubmissionID)
	}
	if e.ReplayID != "" {
		b.WriteString(" replay=")
		b.WriteString(e.ReplayID)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// Unwrap exposes both the code sentinel and the cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := sentinels[e.Code]; ok {
		errs = append(errs, s)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// For returns a copy attributed to the submission.
func (e *Error) For(submissionID string) *Error {
	c := *e
	c.SubmissionID = submissionID
	return &c
}

// As extracts the structured rejection from err.
func As(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// CodeOf reports the code carried by err, or "" when err is not a rejection.
func CodeOf(err error) Code {
	if re, ok := As(err); ok {
		return re.Code
	}
	return ""
}

// IsTerminal reports whether err is a rejection that must never be retried.
func IsTerminal(err error) bool {
	re, ok := As(err)
	return ok && re.Code != CodeTransient
}

// IsTransient reports whether err leaves the submission eligible for retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
