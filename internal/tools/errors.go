// ABOUTME: Error classification for tool results.
// ABOUTME: Domain failures become structured in-band errors, never protocol errors.

package tools

import (
	"errors"

	"github.com/datalane/flink-sql-mcp/internal/gateway"
	"github.com/datalane/flink-sql-mcp/internal/jobs"
)

// Error types reported in tool error payloads. Stable strings; callers
// branch on them.
const (
	ErrTypeInvalidInput       = "invalid_input"
	ErrTypeStatementError     = "statement_error"
	ErrTypeGatewayUnreachable = "gateway_unreachable"
	ErrTypeGatewayError       = "gateway_error"
	ErrTypeJobNotTracked      = "job_not_tracked"
	ErrTypeJobConflict        = "job_conflict"
	ErrTypeNoJobID            = "no_job_id"
	ErrTypeInternal           = "internal_error"
)

// InputError rejects malformed or out-of-range tool arguments before any
// gateway traffic happens.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

// classify maps a handler error to its stable error type string.
func classify(err error) string {
	var inputErr *InputError
	var stmtErr *gateway.StatementError
	var gwErr *gateway.Error

	switch {
	case errors.As(err, &inputErr):
		return ErrTypeInvalidInput
	case errors.As(err, &stmtErr):
		return ErrTypeStatementError
	case errors.Is(err, gateway.ErrUnreachable):
		return ErrTypeGatewayUnreachable
	case errors.Is(err, jobs.ErrJobNotTracked):
		return ErrTypeJobNotTracked
	case errors.Is(err, jobs.ErrJobAlreadyTracked):
		return ErrTypeJobConflict
	case errors.Is(err, jobs.ErrNoJobID):
		return ErrTypeNoJobID
	case errors.As(err, &gwErr):
		return ErrTypeGatewayError
	default:
		return ErrTypeInternal
	}
}
