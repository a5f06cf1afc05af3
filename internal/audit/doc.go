// Package audit implements the append-only security event log.
//
// Events are dual-written: always to the local cache (a bounded ring that is
// the floor guarantee), and best-effort to the remote security_audit_logs
// table through an asynchronous dispatcher. A remote failure never blocks or
// reverses the local write.
//
// # What this package must NOT do
//
//   - Mutate or delete events once appended.
//   - Surface remote failures to callers; they are logged and counted only.
package audit
