// ABOUTME: Owns the single process-wide gateway session: lazy open, reopen on expiry.
// ABOUTME: The session handle never leaves this package's callers inside internal/.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/datalane/flink-sql-mcp/internal/clock"
	"github.com/datalane/flink-sql-mcp/internal/gateway"
)

const (
	// configStatementTimeout bounds ApplyConfiguration's status polling.
	// Config statements are expected to be fast; this is fixed, not
	// caller-configurable, and distinct from query timeouts.
	configStatementTimeout = 10 * time.Second

	// configPollInterval is the delay between status polls.
	configPollInterval = 250 * time.Millisecond
)

// Owner holds the one gateway session this process ever has. It opens the
// session lazily on first use and transparently reopens it once when the
// gateway reports the handle invalid. Session-scoped configuration (SET, USE,
// catalogs) is lost on a forced reopen; that loss is logged, not hidden.
type Owner struct {
	client     *gateway.Client
	properties map[string]string
	logger     *slog.Logger

	mu     sync.Mutex
	handle string

	// Injected for deterministic timeout tests.
	clock clock.Clock
}

// NewOwner creates a session owner. The properties are applied when the
// session is opened (and re-applied on reopen, since they are part of the
// open request rather than session-scoped DDL).
func NewOwner(client *gateway.Client, properties map[string]string, logger *slog.Logger) *Owner {
	return &Owner{
		client:     client,
		properties: properties,
		logger:     logger,
		clock:      clock.System(),
	}
}

// Ensure returns the current session handle, opening a session on first call.
// Subsequent calls return the cached handle without a network round trip.
func (o *Owner) Ensure(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.handle != "" {
		return o.handle, nil
	}
	return o.openLocked(ctx)
}

// openLocked opens a fresh session. Caller must hold o.mu.
func (o *Owner) openLocked(ctx context.Context) (string, error) {
	handle, err := o.client.OpenSession(ctx, o.properties)
	if err != nil {
		return "", fmt.Errorf("opening gateway session: %w", err)
	}
	o.handle = handle
	o.logger.Info("gateway session opened")
	return handle, nil
}

// reopen discards the stale handle and opens a new session, unless another
// caller already did so. Only one opener is ever in flight; concurrent
// callers block on the mutex and observe the fresh handle.
func (o *Owner) reopen(ctx context.Context, stale string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.handle != "" && o.handle != stale {
		return o.handle, nil
	}
	o.handle = ""
	o.logger.Warn("reopening gateway session; session-scoped configuration is lost")
	return o.openLocked(ctx)
}

// Do runs fn with the current session handle. If fn fails because the
// gateway rejected the handle, the session is reopened once and fn retried.
// A second session-invalid failure surfaces as gateway unreachability: the
// gateway is answering but unusable, and no further retries are attempted.
func (o *Owner) Do(ctx context.Context, fn func(handle string) error) error {
	handle, err := o.Ensure(ctx)
	if err != nil {
		return err
	}

	err = fn(handle)
	if err == nil || !gateway.IsSessionInvalid(err) {
		return err
	}

	o.logger.Warn("gateway rejected session handle", "error", err)
	handle, rerr := o.reopen(ctx, handle)
	if rerr != nil {
		return fmt.Errorf("%w: reopen after invalid session failed: %v", gateway.ErrUnreachable, rerr)
	}

	err = fn(handle)
	if err != nil && gateway.IsSessionInvalid(err) {
		return fmt.Errorf("%w: session invalid again after reopen: %v", gateway.ErrUnreachable, err)
	}
	return err
}

// Config returns the session's current configuration view. The handle itself
// is never part of the result.
func (o *Owner) Config(ctx context.Context) (map[string]string, error) {
	var cfg map[string]string
	err := o.Do(ctx, func(handle string) error {
		var err error
		cfg, err = o.client.GetSessionConfig(ctx, handle)
		return err
	})
	return cfg, err
}

// ApplyConfiguration executes a session-scoped statement (SET/RESET/USE/
// CREATE/LOAD-class DDL) and waits for it to reach a terminal state. On ERROR
// the gateway-reported message is surfaced as a *gateway.StatementError.
func (o *Owner) ApplyConfiguration(ctx context.Context, statement string) error {
	return o.Do(ctx, func(handle string) error {
		op, err := o.client.ExecuteStatement(ctx, handle, statement, nil)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := o.client.CloseOperation(ctx, handle, op); cerr != nil {
				o.logger.Warn("closing config operation failed", "error", cerr)
			}
		}()

		status, err := o.awaitTerminal(ctx, handle, op)
		if err != nil {
			return err
		}

		switch status {
		case gateway.StatusFinished:
			return nil
		case gateway.StatusError:
			return o.statementError(ctx, handle, op, statement)
		default:
			return &gateway.StatementError{
				Statement: statement,
				Message:   fmt.Sprintf("configuration statement ended in status %s", status),
			}
		}
	})
}

// awaitTerminal polls the operation status until it leaves PENDING/RUNNING or
// the internal config timeout elapses. Hitting the timeout returns the last
// observed status rather than an error; the caller decides what that means.
func (o *Owner) awaitTerminal(ctx context.Context, handle, op string) (string, error) {
	deadline := o.clock.Now().Add(configStatementTimeout)
	for {
		status, err := o.client.GetOperationStatus(ctx, handle, op)
		if err != nil {
			return "", err
		}
		if gateway.IsTerminal(status) || !o.clock.Now().Before(deadline) {
			return status, nil
		}
		if err := o.clock.Sleep(ctx, configPollInterval); err != nil {
			return status, err
		}
	}
}

// statementError recovers the gateway's failure message for an errored
// operation. Fetching the result of an ERROR operation makes the gateway
// report the root cause.
func (o *Owner) statementError(ctx context.Context, handle, op, statement string) error {
	_, err := o.client.FetchResultPage(ctx, handle, op, 0)
	if gwErr, ok := asGatewayError(err); ok {
		return &gateway.StatementError{Statement: statement, Message: gwErr.Message}
	}
	return &gateway.StatementError{Statement: statement, Message: "operation reached ERROR status"}
}

// Close releases the gateway session. Best-effort: failures are logged, the
// process is exiting anyway.
func (o *Owner) Close(ctx context.Context) {
	o.mu.Lock()
	handle := o.handle
	o.handle = ""
	o.mu.Unlock()

	if handle == "" {
		return
	}
	if err := o.client.CloseSession(ctx, handle); err != nil {
		o.logger.Warn("closing gateway session failed", "error", err)
		return
	}
	o.logger.Info("gateway session closed")
}

func asGatewayError(err error) (*gateway.Error, bool) {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return gwErr, true
	}
	return nil, false
}
