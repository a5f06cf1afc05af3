// Package credstore owns credential records: create, verify, update, and
// reset, with the profile records that registration creates alongside them.
//
// # Read/write policy
//
// Writes are cache-first (the composite credential list is authoritative for
// immediate use) with a best-effort remote mirror; a remote failure is logged
// and never fatal. Reads try the cache for latency, then the remote store,
// backfilling the cache on a hit. The sync orchestrator heals any divergence
// additively.
//
// # What this package must NOT do
//
//   - Treat "no such credential" as an error. Not-found is a normal negative
//     result.
//   - Hold plaintext passwords beyond the duration of a call.
package credstore
