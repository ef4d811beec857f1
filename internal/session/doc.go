// Package session owns the single gateway session for the process lifetime.
//
// # Overview
//
// The Owner is the only component that ever stores a session handle. It opens
// the session lazily on the first call that needs gateway access and keeps it
// for the rest of the process; callers go through Do, Config and
// ApplyConfiguration and never see the handle at the tool boundary.
//
// # Reopen Semantics
//
// The gateway may expire a session at any time. When a call fails with a
// session-invalid error, Do reopens the session exactly once and retries the
// call. The open/reopen transition is serialized behind a mutex: concurrent
// callers either wait for the in-flight open or observe the fresh handle, and
// duplicate opens never happen. A forced reopen loses session-scoped
// configuration (SET values, USE context, registered catalogs); the Owner
// logs that loss rather than replaying any DDL.
//
// # Configuration Statements
//
// ApplyConfiguration executes a session-scoped statement and polls the
// operation until terminal, bounded by a fixed internal timeout. Config
// statements are expected to complete quickly, so the bound is short and not
// caller-configurable.
package session
