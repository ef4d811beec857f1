// ABOUTME: Error taxonomy for gateway calls: unreachable, HTTP-level, session-invalid.
// ABOUTME: Classification helpers used by the session owner's reopen-and-retry path.

package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnreachable indicates a transport-level failure talking to the gateway.
// No automatic retry is performed; the caller sees this directly.
var ErrUnreachable = errors.New("sql gateway unreachable")

// Error is a non-2xx response from the gateway, carrying the HTTP status and
// the gateway-reported message.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Message)
}

// StatementError indicates an operation reached ERROR status on the gateway
// side. Message carries the gateway-reported failure, never swallowed.
type StatementError struct {
	Statement string
	Message   string
}

func (e *StatementError) Error() string {
	if e.Message == "" {
		return "statement failed on gateway"
	}
	return "statement failed on gateway: " + e.Message
}

// IsSessionInvalid reports whether err looks like the gateway rejecting a
// session handle (expired or unknown). The gateway has no dedicated error
// code for this, so classification is by status plus message contents.
func IsSessionInvalid(err error) bool {
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		return false
	}
	if gwErr.StatusCode != 404 && gwErr.StatusCode != 500 {
		return false
	}
	msg := strings.ToLower(gwErr.Message)
	if !strings.Contains(msg, "session") {
		return false
	}
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "expired")
}
