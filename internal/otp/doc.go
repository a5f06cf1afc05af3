// Package otp implements the RFC 6238 TOTP primitive and single-use backup
// code generation used by the two-factor manager.
//
// # Drift tolerance
//
// Verification accepts the code for time steps T-skew through T+skew. With the
// default 30-second period and skew of 1 this is a 90-second acceptance
// window, which means a code can be replayed within an adjacent window. That
// is accepted TOTP practice; callers needing stricter guarantees persist the
// last-used counter and reject counters at or below it.
package otp
