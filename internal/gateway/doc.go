// Package gateway is the typed HTTP client for the Flink SQL Gateway REST v3 API.
//
// # Overview
//
// The client exposes one method per gateway endpoint: session open/close,
// session configuration, statement execution, operation status, paginated
// result fetching, and operation close. Stopping a cluster job is expressed
// as a STOP JOB statement dispatched through the statement path, since the
// gateway has no dedicated REST verb for it.
//
// # Error Handling
//
// Three failure shapes come out of this package:
//
//   - ErrUnreachable wraps transport-level failures (connection refused, DNS,
//     timeouts). Calls are never retried here.
//   - *Error carries the HTTP status code and the gateway-reported message
//     for any non-2xx response.
//   - IsSessionInvalid classifies *Error values that look like a rejected or
//     expired session handle, which the session owner uses to decide when to
//     transparently reopen.
//
// # Statelessness
//
// The client holds no state beyond the base URL and the underlying HTTP
// client. Session and operation handles are passed in by callers; the session
// owner is the only component that stores handles.
package gateway
