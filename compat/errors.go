package compat

import (
	"errors"
	"strings"
)

// Code names a compatibility failure. The set is fixed; callers map codes to
// user-facing guidance.
type Code string

const (
	CodeInvalidHostname         Code = "invalid_hostname"
	CodeFetchFailed             Code = "check_fetch_failed"
	CodeTokenMismatch           Code = "setup_token_mismatch"
	CodeGoogleAPIConnectionFail Code = "google_api_connection_fail"
	CodeAMPCDNRestricted        Code = "amp_cdn_restricted"
	CodeWPPreV5                 Code = "wp_pre_v5"
	CodeSKServiceConnectionFail Code = "sk_service_connection_fail"
)

// Codes lists every Code in a stable order.
var Codes = []Code{
	CodeInvalidHostname,
	CodeFetchFailed,
	CodeTokenMismatch,
	CodeGoogleAPIConnectionFail,
	CodeAMPCDNRestricted,
	CodeWPPreV5,
	CodeSKServiceConnectionFail,
}

// Sentinels for errors.Is. Any *Error with the same Code matches.
var (
	ErrInvalidHostname         = &Error{Code: CodeInvalidHostname}
	ErrFetchFailed             = &Error{Code: CodeFetchFailed}
	ErrTokenMismatch           = &Error{Code: CodeTokenMismatch}
	ErrGoogleAPIConnectionFail = &Error{Code: CodeGoogleAPIConnectionFail}
	ErrAMPCDNRestricted        = &Error{Code: CodeAMPCDNRestricted}
	ErrWPPreV5                 = &Error{Code: CodeWPPreV5}
	ErrSKServiceConnectionFail = &Error{Code: CodeSKServiceConnectionFail}
)

// Error is a failed compatibility check.
type Error struct {
	Code   Code
	Reason string // human readable detail, may be empty
	Err    error  // underlying cause, may be nil
}

func newError(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the Code carried by err, if any.
func CodeOf(err error) (Code, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return "", false
}
