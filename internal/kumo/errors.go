package kumo

import "fmt"

// AuthError is fatal to the calling operation: no credentials, a
// rejected login, a rejected refresh, or an expired refresh token with
// no way to re-login. It is never retried beyond the one documented
// refresh attempt.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError carries a non-auth HTTP failure (status >= 400) with the
// body verbatim for diagnostics.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}
