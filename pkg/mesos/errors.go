package mesos

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds for HTTP status failures returned by the master.
var (
	// ErrBadRequest indicates the master could not process a malformed request (400).
	ErrBadRequest = errors.New("bad request")

	// ErrAuthentication indicates the credentials were rejected (401).
	ErrAuthentication = errors.New("authentication failed")

	// ErrAuthorization indicates a valid request the master refuses to act on (403).
	ErrAuthorization = errors.New("authorization failed")

	// ErrUnprocessable indicates a well-formed request with semantic errors (422).
	ErrUnprocessable = errors.New("unprocessable entity")

	// ErrInternalServerError indicates an unexpected master-side condition (500).
	ErrInternalServerError = errors.New("internal server error")

	// ErrServiceUnavailable indicates the master is overloaded or down (503).
	ErrServiceUnavailable = errors.New("service unavailable")
)

// statusKinds is the fixed status -> kind table.
var statusKinds = map[int]error{
	http.StatusBadRequest:          ErrBadRequest,
	http.StatusUnauthorized:        ErrAuthentication,
	http.StatusForbidden:           ErrAuthorization,
	http.StatusUnprocessableEntity: ErrUnprocessable,
	http.StatusInternalServerError: ErrInternalServerError,
	http.StatusServiceUnavailable:  ErrServiceUnavailable,
}

// kindStatus is the reverse of statusKinds.
var kindStatus = func() map[error]int {
	m := make(map[error]int, len(statusKinds))
	for code, kind := range statusKinds {
		m[kind] = code
	}
	return m
}()

// Error is the base failure for every call made through this package.
type Error struct {
	// Message describes what failed.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPError wraps a non-2xx response from the master.
type HTTPError struct {
	// URL is the request URL.
	URL string

	// StatusCode is the status code the master actually returned.
	StatusCode int

	// Body is the response body text.
	Body string

	kind error
}

// newHTTPError binds resp to kind. A nil kind produces the generic failure.
func newHTTPError(kind error, resp *Response) *HTTPError {
	return &HTTPError{
		URL:        resp.URL,
		StatusCode: resp.StatusCode,
		Body:       resp.Text(),
		kind:       kind,
	}
}

// StatusError looks up the kind for resp's status in the fixed table.
// Unmapped statuses yield a generic HTTPError carrying the real code.
func StatusError(resp *Response) *HTTPError {
	return newHTTPError(statusKinds[resp.StatusCode], resp)
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("The url '%s' returned HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// Status returns the bound status code of the error kind, or the actual
// response status for the generic case.
func (e *HTTPError) Status() int {
	if code, ok := kindStatus[e.kind]; ok {
		return code
	}
	return e.StatusCode
}

// Kind returns the sentinel kind, or nil for an unmapped status.
func (e *HTTPError) Kind() error {
	return e.kind
}

// Unwrap returns the sentinel kind for errors.Is support.
func (e *HTTPError) Unwrap() error {
	return e.kind
}

// IsBadRequest reports whether err is a 400 failure.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

// IsAuthentication reports whether err is a 401 failure.
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsAuthorization reports whether err is a 403 failure.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrAuthorization)
}

// IsUnprocessable reports whether err is a 422 failure.
func IsUnprocessable(err error) bool {
	return errors.Is(err, ErrUnprocessable)
}

// IsInternalServerError reports whether err is a 500 failure.
func IsInternalServerError(err error) bool {
	return errors.Is(err, ErrInternalServerError)
}

// IsServiceUnavailable reports whether err is a 503 failure.
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// IsRetryable reports whether a failed request is worth another attempt:
// transport failures and the 500/503 kinds. Every other status failure is
// permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return IsInternalServerError(httpErr) || IsServiceUnavailable(httpErr)
	}
	var base *Error
	if errors.As(err, &base) {
		return isTransient(base.Err)
	}
	return false
}
