package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures so handlers can map them to HTTP statuses.
type ErrorKind int

const (
	// KindInternal is any unexpected failure; surfaces as 500.
	KindInternal ErrorKind = iota
	// KindNotFound means no cached or fetchable data for a requested tag.
	KindNotFound
	// KindMissingParameter means a required tag/season was empty.
	KindMissingParameter
	// KindUpstreamError is a non-200 from the external API; the upstream
	// status is passed through.
	KindUpstreamError
	// KindUpstreamUnreachable is a network failure reaching the API.
	KindUpstreamUnreachable
	// KindUpstreamDataCorrupt is malformed JSON from upstream or the cache.
	KindUpstreamDataCorrupt
)

// Error is the taxonomy type carried across service boundaries.
type Error struct {
	Kind    ErrorKind
	Status  int // explicit HTTP status; 0 means derive from Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error to the status a handler should write.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindMissingParameter:
		return http.StatusBadRequest
	case KindUpstreamUnreachable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func MissingParameter(name string) *Error {
	return &Error{Kind: KindMissingParameter, Message: fmt.Sprintf("missing required parameter: %s", name)}
}

func UpstreamDataCorrupt(msg string, err error) *Error {
	return &Error{Kind: KindUpstreamDataCorrupt, Message: msg, Err: err}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// AsError returns the taxonomy error wrapped in err, or a KindInternal
// wrapper when err is of any other type.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: "An internal server error occurred.", Err: err}
}
