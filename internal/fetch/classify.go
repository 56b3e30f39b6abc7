// Package fetch performs the raw HTTP work of talking to upstream data
// providers: error classification, bounded retries with exponential backoff,
// and endpoint-variant fallback for providers that expose several URL shapes.
package fetch

import "net/http"

// ErrorClass is the small taxonomy provider failures are mapped into.
// Classification drives retry behavior: rate limits back off and retry the
// same endpoint, auth and bad-request failures abort the provider outright,
// server errors move on to the next endpoint variant.
type ErrorClass string

const (
	ClassRateLimit  ErrorClass = "RATE_LIMIT"
	ClassAuth       ErrorClass = "AUTH"
	ClassBadRequest ErrorClass = "BAD_REQUEST"
	ClassServer     ErrorClass = "SERVER"
	ClassUnknown    ErrorClass = "UNKNOWN"
)

// Classify maps an HTTP status code (and, for future refinement, the response
// body) to an error class. Pure function, no I/O.
//
// 409 is treated as a rate limit alongside 429: the primary statistics API
// answers 409 when a key exceeds its request quota.
func Classify(status int, body string) ErrorClass {
	_ = body // body-based refinement not needed for current providers

	switch {
	case status == http.StatusConflict || status == http.StatusTooManyRequests:
		return ClassRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassAuth
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		return ClassBadRequest
	case status >= 500:
		return ClassServer
	default:
		return ClassUnknown
	}
}

// Retryable reports whether the class may succeed on a later attempt against
// the same endpoint.
func (c ErrorClass) Retryable() bool {
	return c == ClassRateLimit
}

// Fatal reports whether the class invalidates the whole provider for this
// resolution (no retry, no other endpoint variants).
func (c ErrorClass) Fatal() bool {
	return c == ClassAuth || c == ClassBadRequest
}
