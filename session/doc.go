// Package session manages bearer session lifecycles: issue, validate,
// refresh, invalidate.
//
// # Model
//
// One named session per user: sessions are keyed by user ID and a new login
// overwrites the previous grant rather than appending to it. This is a
// deliberate simplification; multi-device support would key sessions by
// (user, device) and track a list per user.
//
// # Lifecycle
//
// absent → active → (refreshed)* → expired/invalidated. A session is valid
// iff now is before its expiry. Validation purges expired sessions, and a
// session accessed within the refresh window of its expiry is extended
// asynchronously without blocking the validation result.
package session
