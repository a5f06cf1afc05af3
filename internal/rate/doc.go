// Package rate implements the sliding-window failed-attempt limiter guarding
// the login path.
//
// # Window semantics
//
// Each identifier owns an ordered list of failure timestamps. Entries older
// than the window are pruned on read; reaching the attempt budget inside the
// window blocks further attempts until the oldest entry ages out. A
// successful authentication clears the window entirely.
//
// # Guarantee split
//
// The remote login_attempts table is preferred when reachable because it is
// shared across devices. The cache window is the fallback and is per-device
// only, which is a weaker guarantee.
//
// # What this package must NOT do
//
//   - Escalate lockouts. The block duration is the fixed window; repeated
//     offenses do not increase backoff.
//   - Decide which operations are rate limited (the engine does).
package rate
