// Package tools defines the tool surface exposed over MCP and the server
// that dispatches calls to it.
//
// # Tool Surface
//
// The pack holds seven tools: cluster info, session configuration (read and
// write), bounded query collection, streaming start, fetch by job ID, and
// job cancellation. Every tool is stateless at the boundary: inputs carry
// user-meaningful names (queries, job IDs, budgets), never gateway session
// or operation handles.
//
// # Error Reporting
//
// Handler failures are classified into stable error type strings and
// returned as in-band error results with a JSON payload, so a caller always
// gets something it can parse and branch on. Only an unknown tool name is a
// protocol-level error.
package tools
