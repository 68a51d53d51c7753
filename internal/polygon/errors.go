package polygon

import (
	"errors"
	"fmt"
)

// ErrNoExpirations means the reference endpoint returned no expirations for
// the underlying, so an effective 0DTE expiration cannot be resolved.
var ErrNoExpirations = errors.New("no expirations returned for underlying")

// AuthError is a 401/403 from the provider: credential missing, invalid, or
// the plan lacks entitlement for the endpoint. The raw provider body is kept
// so the user sees the original message.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("polygon auth error (%d): %s", e.StatusCode, e.Body)
}

// RequestError is any other non-2xx response.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("polygon request failed (%d): %s", e.StatusCode, e.Body)
}
