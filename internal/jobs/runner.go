// ABOUTME: Query execution policies: bounded collect-and-stop and streaming start.
// ABOUTME: Owns the polling/deadline logic that keeps tool calls time-bounded.

package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/datalane/flink-sql-mcp/internal/clock"
	"github.com/datalane/flink-sql-mcp/internal/gateway"
	"github.com/datalane/flink-sql-mcp/internal/session"
)

// ErrNoJobID indicates a streaming start's first result page carried no job
// identifier. This is unexpected gateway behavior, not a user error.
var ErrNoJobID = errors.New("no job id in first result page")

const (
	// pollInterval is the fixed delay between operation status polls and
	// between NOT_READY result re-fetches.
	pollInterval = 250 * time.Millisecond

	// streamSubmitTimeout bounds the wait for a streaming submission to
	// reach a terminal state before the first page is read. Internal and
	// fixed; streaming INSERT submissions normally finish in seconds.
	streamSubmitTimeout = 60 * time.Second
)

// CollectResult is the outcome of a collect-and-stop run.
type CollectResult struct {
	Columns []gateway.Column
	Rows    []gateway.Row
	// Exhausted is true when the result set ended before the row or time
	// budget ran out.
	Exhausted bool
	// JobID is the cluster job spawned by the statement, if any.
	JobID string
	// StopRequested is true when a STOP JOB was issued for JobID. Failure
	// to stop is reported in the log, not here: the rows were already won.
	StopRequested bool
	// LastStatus is the last operation status observed before fetching.
	LastStatus string
}

// Runner executes statements through the session owner, applying one of two
// policies: bounded collect-and-stop, or fire-and-track streaming start.
type Runner struct {
	client  *gateway.Client
	session *session.Owner
	tracker *Tracker
	logger  *slog.Logger
	clock   clock.Clock
}

// NewRunner creates a query runner.
func NewRunner(client *gateway.Client, owner *session.Owner, tracker *Tracker, logger *slog.Logger) *Runner {
	return &Runner{
		client:  client,
		session: owner,
		tracker: tracker,
		logger:  logger,
		clock:   clock.System(),
	}
}

// CollectAndStop runs a statement and collects up to maxRows rows within
// maxSeconds. Whichever budget is exhausted first ends collection; if a
// cluster job was spawned, a stop is requested for it, and the operation is
// always closed before returning. The call returns within maxSeconds plus
// one polling interval even if the operation never reaches a terminal state.
func (r *Runner) CollectAndStop(ctx context.Context, query string, maxRows int, maxSeconds float64) (*CollectResult, error) {
	if maxRows < 0 {
		return nil, fmt.Errorf("maxRows must be >= 0, got %d", maxRows)
	}
	if maxSeconds <= 0 {
		return nil, fmt.Errorf("maxSeconds must be > 0, got %v", maxSeconds)
	}

	var result *CollectResult
	err := r.session.Do(ctx, func(handle string) error {
		var err error
		result, err = r.collect(ctx, handle, query, maxRows, maxSeconds)
		return err
	})
	return result, err
}

func (r *Runner) collect(ctx context.Context, handle, query string, maxRows int, maxSeconds float64) (*CollectResult, error) {
	deadline := r.clock.Now().Add(time.Duration(maxSeconds * float64(time.Second)))

	op, err := r.client.ExecuteStatement(ctx, handle, query, nil)
	if err != nil {
		return nil, err
	}
	// Scoped cleanup on every exit path. The operation's results are dead
	// once this call returns.
	defer func() {
		if cerr := r.client.CloseOperation(ctx, handle, op); cerr != nil {
			r.logger.Warn("closing operation failed", "operation_error", cerr)
		}
	}()

	status, err := r.awaitSettled(ctx, handle, op, deadline)
	if err != nil {
		return nil, err
	}
	switch status {
	case gateway.StatusError:
		return nil, r.statementFailure(ctx, handle, op, query)
	case gateway.StatusCanceled, gateway.StatusClosed:
		return nil, &gateway.StatementError{Statement: query, Message: "operation ended in status " + status}
	}
	// FINISHED, or still running at the deadline: fetch whatever is
	// available. A RUNNING streaming statement may have buffered rows.

	// At least one fetch happens even when the deadline already passed while
	// waiting on the status: a RUNNING streaming statement may have buffered
	// rows, and one page read does not breach the time bound.
	result := &CollectResult{LastStatus: status}
	var token int64
	for {
		page, err := r.client.FetchResultPage(ctx, handle, op, token)
		if err != nil {
			return nil, err
		}
		if page.JobID != "" && result.JobID == "" {
			result.JobID = page.JobID
		}
		if len(page.Columns) > 0 && result.Columns == nil {
			result.Columns = page.Columns
		}

		if page.ResultType == gateway.ResultTypeNotReady {
			if !r.clock.Now().Before(deadline) {
				break
			}
			if err := r.clock.Sleep(ctx, pollInterval); err != nil {
				return nil, err
			}
			continue
		}

		for _, row := range page.Rows {
			if len(result.Rows) >= maxRows {
				break
			}
			result.Rows = append(result.Rows, row)
		}
		token = page.NextToken
		if page.IsEnd {
			result.Exhausted = true
			break
		}
		if len(result.Rows) >= maxRows || !r.clock.Now().Before(deadline) {
			break
		}
	}

	if result.JobID != "" {
		// Best-effort stop; the rows are already collected, so a failure
		// here must not fail the call. The stop operation's completion is
		// deliberately not awaited to keep the time bound.
		if _, err := r.client.StopJob(ctx, handle, result.JobID); err != nil {
			r.logger.Warn("stop job request failed", "job_id", result.JobID, "error", err)
		} else {
			result.StopRequested = true
		}
	}

	if result.Rows == nil {
		result.Rows = []gateway.Row{}
	}
	return result, nil
}

// StreamStart executes a streaming statement, waits for the submission to
// settle, reads the first result page to learn the cluster job ID, and
// tracks the job. The operation is deliberately left open: the job is still
// running and later fetches by job ID need the handle.
func (r *Runner) StreamStart(ctx context.Context, query string) (string, error) {
	var jobID string
	err := r.session.Do(ctx, func(handle string) error {
		var err error
		jobID, err = r.streamStart(ctx, handle, query)
		return err
	})
	return jobID, err
}

func (r *Runner) streamStart(ctx context.Context, handle, query string) (string, error) {
	deadline := r.clock.Now().Add(streamSubmitTimeout)

	op, err := r.client.ExecuteStatement(ctx, handle, query, nil)
	if err != nil {
		return "", err
	}

	tracked := false
	defer func() {
		if tracked {
			return
		}
		// The job never made it into the tracker, so nothing can address
		// this operation again.
		if cerr := r.client.CloseOperation(ctx, handle, op); cerr != nil {
			r.logger.Warn("closing operation failed", "operation_error", cerr)
		}
	}()

	status, err := r.awaitSettled(ctx, handle, op, deadline)
	if err != nil {
		return "", err
	}
	switch status {
	case gateway.StatusError:
		return "", r.statementFailure(ctx, handle, op, query)
	case gateway.StatusCanceled, gateway.StatusClosed:
		return "", &gateway.StatementError{Statement: query, Message: "operation ended in status " + status}
	}

	page, err := r.firstPage(ctx, handle, op, deadline)
	if err != nil {
		return "", err
	}
	if page.JobID == "" {
		return "", fmt.Errorf("%w (status %s)", ErrNoJobID, status)
	}

	if err := r.tracker.Track(page.JobID, op); err != nil {
		return "", err
	}
	tracked = true
	return page.JobID, nil
}

// firstPage fetches the page at token 0, re-fetching while the gateway
// reports NOT_READY, until the deadline.
func (r *Runner) firstPage(ctx context.Context, handle, op string, deadline time.Time) (*gateway.ResultPage, error) {
	for {
		page, err := r.client.FetchResultPage(ctx, handle, op, 0)
		if err != nil {
			return nil, err
		}
		if page.ResultType != gateway.ResultTypeNotReady || !r.clock.Now().Before(deadline) {
			return page, nil
		}
		if err := r.clock.Sleep(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

// awaitSettled polls the operation status until it leaves PENDING/RUNNING or
// the deadline passes, returning the last observed status either way.
func (r *Runner) awaitSettled(ctx context.Context, handle, op string, deadline time.Time) (string, error) {
	for {
		status, err := r.client.GetOperationStatus(ctx, handle, op)
		if err != nil {
			return "", err
		}
		if gateway.IsTerminal(status) || !r.clock.Now().Before(deadline) {
			return status, nil
		}
		if err := r.clock.Sleep(ctx, pollInterval); err != nil {
			return status, err
		}
	}
}

// statementFailure surfaces the gateway's message for an errored operation.
func (r *Runner) statementFailure(ctx context.Context, handle, op, query string) error {
	_, err := r.client.FetchResultPage(ctx, handle, op, 0)
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return &gateway.StatementError{Statement: query, Message: gwErr.Message}
	}
	return &gateway.StatementError{Statement: query, Message: "operation reached ERROR status"}
}
