// Package result defines the uniform outcome of a dispatch and the error
// taxonomy that maps onto it.
package result

import (
	"errors"
	"net/http"
)

// Status codes carried by Result.
const (
	CodeOK           = http.StatusOK
	CodeBadRequest   = http.StatusBadRequest
	CodeUnauthorized = http.StatusUnauthorized
	CodeNotFound     = http.StatusNotFound
	CodeUnexpected   = http.StatusInternalServerError
)

// Kind names a failure class.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindBadRequest   Kind = "BAD_REQUEST"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindUnexpected   Kind = "UNEXPECTED_ERROR"
	KindFiltered     Kind = "FILTERED"
)

// Stable messages that callers assert on.
const (
	MsgUnauthorized      = "unauthorized"
	MsgProviderNotSet    = "Unable to authorize, authorization provider not set"
	MsgNotFound          = "action not found"
	MsgUnexpected        = "unexpected error"
	MsgInvalidRequest    = "invalid request"
	MsgRequestTimedOut   = "request timed out"
	MsgRateLimitExceeded = "rate limit exceeded"
)

// Result is the only thing that leaves the dispatcher.
type Result struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Value   any    `json:"value"`
	Tag     string `json:"tag,omitempty"`
}

// Ok returns a successful result.
func Ok(tag string, v any, message string) *Result {
	return &Result{Success: true, Code: CodeOK, Message: message, Value: v, Tag: tag}
}

// Failure returns a failed result with the given code.
func Failure(tag string, code int, message string) *Result {
	return &Result{Success: false, Code: code, Message: message, Tag: tag}
}

// Error is a structured failure produced by one dispatch stage.
type Error struct {
	Code    int    `json:"code"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NotFound reports an unknown action or a protocol mismatch.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Kind: KindNotFound, Message: message}
}

// BadRequest reports a conversion or validation failure.
func BadRequest(message string) *Error {
	return &Error{Code: CodeBadRequest, Kind: KindBadRequest, Message: message}
}

// Unauthorized reports a missing or insufficient role.
func Unauthorized(message string) *Error {
	return &Error{Code: CodeUnauthorized, Kind: KindUnauthorized, Message: message}
}

// Unexpected reports a handler failure.
func Unexpected(message string) *Error {
	return &Error{Code: CodeUnexpected, Kind: KindUnexpected, Message: message}
}

// Filtered reports a before-hook rejection. It is reported as a bad request.
func Filtered(message string) *Error {
	return &Error{Code: CodeBadRequest, Kind: KindFiltered, Message: message}
}

// WithDetails attaches details and returns the error.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// ToResult converts the error into a failed result.
func (e *Error) ToResult(tag string) *Result {
	return &Result{Success: false, Code: e.Code, Message: e.Message, Value: e.Details, Tag: tag}
}

// FromError maps any error onto a Result. Errors that are not *Error are
// reported as unexpected, keeping their message.
func FromError(tag string, err error) *Result {
	var e *Error
	if errors.As(err, &e) {
		return e.ToResult(tag)
	}
	return Unexpected(err.Error()).ToResult(tag)
}

// KindOf returns the failure class of err, or KindUnexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// StatusText returns the short name of a result code.
func StatusText(code int) string {
	switch code {
	case CodeOK:
		return "ok"
	case CodeBadRequest:
		return "bad_request"
	case CodeUnauthorized:
		return "unauthorized"
	case CodeNotFound:
		return "not_found"
	case CodeUnexpected:
		return "unexpected_error"
	}
	return http.StatusText(code)
}
