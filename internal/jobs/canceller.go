// ABOUTME: Fetch-by-job-ID and job cancellation against tracked streaming jobs.
// ABOUTME: Cancellation drives STOP JOB to a verified terminal state, bounded in time.

package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/datalane/flink-sql-mcp/internal/clock"
	"github.com/datalane/flink-sql-mcp/internal/gateway"
	"github.com/datalane/flink-sql-mcp/internal/session"
)

// cancelTimeout bounds the wait for a stopped job's operation to leave
// RUNNING. Internal and fixed; cancellation must not hang on an unresponsive
// gateway.
const cancelTimeout = 30 * time.Second

// FetchResult is one page of a tracked job's result stream.
type FetchResult struct {
	JobID     string
	Columns   []gateway.Column
	Rows      []gateway.Row
	NextToken int64
	IsEnd     bool
}

// CancelResult reports the outcome of a cancellation.
type CancelResult struct {
	JobID string
	// Status is the last operation status observed while waiting.
	Status string
	// Gone is true when the operation was seen leaving RUNNING before the
	// internal timeout.
	Gone bool
	// RawStatus carries the status string as reported by the gateway, for
	// diagnostics.
	RawStatus string
}

// Canceller serves the two operations addressed by job ID alone: fetching a
// result page of a tracked job, and cancelling one.
type Canceller struct {
	client  *gateway.Client
	session *session.Owner
	tracker *Tracker
	logger  *slog.Logger
	clock   clock.Clock
}

// NewCanceller creates a canceller over the shared tracker and session.
func NewCanceller(client *gateway.Client, owner *session.Owner, tracker *Tracker, logger *slog.Logger) *Canceller {
	return &Canceller{
		client:  client,
		session: owner,
		tracker: tracker,
		logger:  logger,
		clock:   clock.System(),
	}
}

// FetchByJobID fetches one result page of a tracked job. When token is nil
// the job's cursor is used (token 0 right after stream start); an explicit
// token fetches that page and still advances the cursor if it moved forward.
// Observing the end of the stream does not untrack the job: stopping fetching
// and cancelling are separate caller decisions.
func (c *Canceller) FetchByJobID(ctx context.Context, jobID string, token *int64) (*FetchResult, error) {
	op, cursor, err := c.tracker.Cursor(jobID)
	if err != nil {
		return nil, err
	}
	fetchToken := cursor
	if token != nil {
		fetchToken = *token
	}

	var page *gateway.ResultPage
	err = c.session.Do(ctx, func(handle string) error {
		var err error
		page, err = c.client.FetchResultPage(ctx, handle, op, fetchToken)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.tracker.Advance(jobID, page.NextToken)

	rows := page.Rows
	if rows == nil {
		rows = []gateway.Row{}
	}
	return &FetchResult{
		JobID:     jobID,
		Columns:   page.Columns,
		Rows:      rows,
		NextToken: page.NextToken,
		IsEnd:     page.IsEnd,
	}, nil
}

// Cancel stops a tracked job and waits for its operation to leave RUNNING,
// bounded by a fixed internal timeout. The job is untracked once the wait
// ends, confirmed or not: tracker state must not accumulate when the gateway
// is unresponsive. Timing out is not an error; the result reports what was
// observed.
func (c *Canceller) Cancel(ctx context.Context, jobID string) (*CancelResult, error) {
	op, err := c.tracker.Lookup(jobID)
	if err != nil {
		return nil, err
	}

	result := &CancelResult{JobID: jobID}
	err = c.session.Do(ctx, func(handle string) error {
		stopOp, err := c.client.StopJob(ctx, handle, jobID)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := c.client.CloseOperation(ctx, handle, stopOp); cerr != nil {
				c.logger.Warn("closing stop operation failed", "operation_error", cerr)
			}
		}()

		result.Status, result.Gone = c.awaitStopped(ctx, handle, op)
		result.RawStatus = result.Status
		return nil
	})
	if err != nil {
		// The stop was never issued; keep the entry so the caller can try
		// again.
		return nil, err
	}

	c.tracker.Untrack(jobID)

	if cerr := c.closeTrackedOperation(ctx, op); cerr != nil {
		c.logger.Warn("closing cancelled job operation failed", "job_id", jobID, "operation_error", cerr)
	}
	return result, nil
}

// awaitStopped polls the tracked operation until its status is no longer
// RUNNING or the cancel timeout passes. Status poll errors end the wait; the
// job may already be gone along with its operation.
func (c *Canceller) awaitStopped(ctx context.Context, handle, op string) (status string, gone bool) {
	deadline := c.clock.Now().Add(cancelTimeout)
	for {
		st, err := c.client.GetOperationStatus(ctx, handle, op)
		if err != nil {
			c.logger.Warn("status poll after stop failed", "operation_error", err)
			return status, false
		}
		status = st
		if st != gateway.StatusRunning {
			return status, true
		}
		if !c.clock.Now().Before(deadline) {
			return status, false
		}
		if err := c.clock.Sleep(ctx, pollInterval); err != nil {
			return status, false
		}
	}
}

func (c *Canceller) closeTrackedOperation(ctx context.Context, op string) error {
	return c.session.Do(ctx, func(handle string) error {
		return c.client.CloseOperation(ctx, handle, op)
	})
}
