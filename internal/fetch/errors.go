package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrPermanent marks a response that must not be retried (4xx other than 429).
	ErrPermanent = errors.New("permanent http error")
	// ErrDecode is returned when a JSON body cannot be decoded.
	ErrDecode = errors.New("decode response body")
	// ErrExhausted is returned once every retry attempt failed.
	ErrExhausted = errors.New("retries exhausted")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
}

// Is lets errors.Is(err, ErrPermanent) match non-retryable statuses.
func (e *StatusError) Is(target error) bool {
	return target == ErrPermanent && !retryableStatus(e.Code)
}

// retryableStatus reports whether a status code is worth another attempt.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
