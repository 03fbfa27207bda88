package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// API client errors
	ErrInvalidDomain     = errors.New("invalid domain name")
	ErrUnavailable       = errors.New("api client is not properly configured")
	ErrTransport         = errors.New("api request failed")
	ErrUnexpectedStatus  = errors.New("unexpected response status")
	ErrMalformedResponse = errors.New("malformed api response")

	// Sync errors
	ErrSiteDomainUnknown = errors.New("site domain could not be determined")
	ErrSyncDisabled      = errors.New("sync is not enabled")

	// Settings errors
	ErrInvalidSetting    = errors.New("invalid setting value")
	ErrSettingOverridden = errors.New("setting is defined by a deployment override")
	ErrUnknownSetting    = errors.New("unknown setting")

	// Admin surface errors
	ErrInvalidNonce = errors.New("nonce verification failed")

	// Inventory errors
	ErrSiteRootMissing = errors.New("site root directory not found")
)

// StatusError records a response code that did not match what the
// request expected.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.Code)
}

// Unwrap lets callers match StatusError against ErrUnexpectedStatus.
func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}
