// Package runnererr defines the machine-readable failure codes a page audit
// run can end with. Audits, the trace engine and the collector all surface
// failures through these so that reports, assertions and the server can
// distinguish "the page never painted" from "Chrome crashed" without string
// matching.
package runnererr

import (
	"errors"
	"fmt"
)

// Code classifies a run failure.
type Code string

const (
	NoNavStart              Code = "NO_NAVSTART"
	NoFCP                   Code = "NO_FCP"
	NoLCP                   Code = "NO_LCP"
	NoTTI                   Code = "NO_TTI"
	NoDocumentRequest       Code = "NO_DOCUMENT_REQUEST"
	PageHung                Code = "PAGE_HUNG"
	ErroredDocumentRequest  Code = "ERRORED_DOCUMENT_REQUEST"
	InsecureDocumentRequest Code = "INSECURE_DOCUMENT_REQUEST"
	TargetCrashed           Code = "TARGET_CRASHED"
	TracingAlreadyStarted   Code = "TRACING_ALREADY_STARTED"
)

// Error is a run failure with a stable code. The message is for humans; the
// code is the contract.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New builds an Error for code with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error for code that records err as its cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches errors by code, so sentinel-style comparisons like
// errors.Is(err, &Error{Code: NoFCP}) work across wrapping.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// CodeOf extracts the failure code from anywhere in err's chain.
func CodeOf(err error) (Code, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}

// HasCode reports whether err carries code anywhere in its chain.
func HasCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
