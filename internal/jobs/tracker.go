// ABOUTME: Thread-safe registry mapping cluster job IDs to gateway operation handles.
// ABOUTME: The indirection keeps operation handles invisible at the tool boundary.

package jobs

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrJobAlreadyTracked indicates a job ID collision. Job IDs are issued by
// the cluster and must be unique across the tracked set; a collision is a
// gateway anomaly and is reported, never silently overwritten.
var ErrJobAlreadyTracked = errors.New("job already tracked")

// ErrJobNotTracked indicates the caller referenced a job ID this process is
// not tracking.
var ErrJobNotTracked = errors.New("job not tracked")

// trackedJob pairs the gateway operation handle with the result cursor for
// the next fetch.
type trackedJob struct {
	operationHandle string
	nextToken       int64
}

// Tracker is the process-wide map of running streaming jobs. It holds no
// timers and performs no I/O; all methods are safe for concurrent use, and a
// Track racing an Untrack on the same ID resolves under one mutex.
type Tracker struct {
	mu     sync.Mutex
	jobs   map[string]*trackedJob
	logger *slog.Logger
}

// NewTracker creates an empty Tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		jobs:   make(map[string]*trackedJob),
		logger: logger,
	}
}

// Track registers a job. The cursor starts at token 0, so the first fetch by
// job ID reads the stream from the beginning.
func (t *Tracker) Track(jobID, operationHandle string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.jobs[jobID]; exists {
		t.logger.Error("job id collision", "job_id", jobID)
		return ErrJobAlreadyTracked
	}
	t.jobs[jobID] = &trackedJob{operationHandle: operationHandle}
	t.logger.Info("tracking job", "job_id", jobID, "tracked_jobs", len(t.jobs))
	return nil
}

// Lookup returns the operation handle for a tracked job.
func (t *Tracker) Lookup(jobID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return "", ErrJobNotTracked
	}
	return job.operationHandle, nil
}

// Cursor returns the operation handle and the next fetch token for a tracked
// job.
func (t *Tracker) Cursor(jobID string) (string, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return "", 0, ErrJobNotTracked
	}
	return job.operationHandle, job.nextToken, nil
}

// Advance moves the job's cursor forward to next. The cursor never moves
// backwards; concurrent fetches keep the furthest position.
func (t *Tracker) Advance(jobID string, next int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if job, ok := t.jobs[jobID]; ok && next > job.nextToken {
		job.nextToken = next
	}
}

// Untrack removes a job. No-op if the ID is not tracked.
func (t *Tracker) Untrack(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[jobID]; ok {
		delete(t.jobs, jobID)
		t.logger.Info("untracked job", "job_id", jobID, "tracked_jobs", len(t.jobs))
	}
}

// Count returns the number of tracked jobs.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}
