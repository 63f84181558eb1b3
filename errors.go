package chatstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Error categories. Every error returned by this module matches at most one
// of them with errors.Is.
var (
	ErrConfiguration = errors.New("chatstream: configuration error")
	ErrTransport     = errors.New("chatstream: transport error")
)

// Sentinel errors.
var (
	ErrMissingAPIKey   = fmt.Errorf("%w: API key is required", ErrConfiguration)
	ErrUnknownProvider = fmt.Errorf("%w: unknown provider", ErrConfiguration)

	ErrProviderUnavailable = fmt.Errorf("%w: provider unavailable", ErrTransport)
	ErrRateLimited         = fmt.Errorf("%w: rate limited by provider", ErrTransport)
	ErrAuthFailed          = fmt.Errorf("%w: authentication failed", ErrTransport)
	ErrInvalidRequest      = fmt.Errorf("%w: invalid request", ErrTransport)
	ErrNoResponseBody      = fmt.Errorf("%w: no response body", ErrTransport)

	ErrMalformedStream = errors.New("chatstream: too many consecutive malformed stream lines")
)

// HTTPError is returned when a vendor answers with a non-2xx status.
type HTTPError struct {
	Provider   string
	StatusCode int
	Status     string // status text without the code, e.g. "Too Many Requests"
	Body       string // truncated response body, empty when unreadable
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("chatstream: %s API error: %d %s", e.Provider, e.StatusCode, e.Status)
	if e.Body != "" {
		msg += " - " + e.Body
	}
	return msg
}

// Unwrap exposes the status classification, so errors.Is works with both
// ErrTransport and the specific sentinel.
func (e *HTTPError) Unwrap() []error {
	return []error{ErrTransport, e.class()}
}

func (e *HTTPError) class() error {
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthFailed
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return ErrInvalidRequest
	default:
		return ErrProviderUnavailable
	}
}

// IsFatal returns true if repeating the request cannot succeed.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrAuthFailed) ||
		errors.Is(err, ErrInvalidRequest)
}

// IsRetryable returns true if the caller may retry the request.
// This package never retries on its own.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrNoResponseBody)
}
