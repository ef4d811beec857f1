// Package jobs holds the job lifecycle core: tracking, execution policies,
// fetching, and cancellation.
//
// # Job Identity
//
// The gateway addresses a statement's execution by an operation handle, but
// callers name long-running work by the cluster job ID that a streaming
// submission reveals on its first result page. The Tracker bridges the two:
// it maps each job ID to the operation handle that produced it, together
// with the continuation cursor for the next fetch. Operation handles never
// cross the tool boundary in either direction.
//
// # Execution Policies
//
// The Runner starts every statement the same way (ensure session, execute)
// and then applies one of two policies:
//
//   - CollectAndStop bounds collection by both a row budget and a wall-clock
//     budget, stops any cluster job the statement spawned, and always closes
//     the operation before returning.
//   - StreamStart reads exactly enough to learn the job ID, registers the
//     job with the Tracker, and leaves the operation open for later fetches.
//
// # Cancellation
//
// The Canceller issues STOP JOB, polls the tracked operation until it leaves
// RUNNING or a fixed internal timeout passes, and untracks the job either
// way. All polling goes through an injected clock so tests can exercise
// deadline behavior without real sleeps.
package jobs
