// Package storage defines the two persistence substrates every component in the
// engine writes through: a fast local cache (Redis or in-memory) and an
// authoritative remote store (Postgres).
//
// # Write policy
//
// Cache writes are authoritative for immediate use. Remote writes are
// best-effort: any remote failure maps to [ErrRemoteUnavailable] and callers
// degrade to the cache path. Nothing above this package should ever learn
// whether a read was served from cache or remote.
//
// # What this package must NOT do
//
//   - Hold business logic. Tables and keys are addressed by the owning
//     components; this package only moves bytes and rows.
//   - Surface driver errors verbatim. Remote failures are wrapped so callers
//     can treat them uniformly as transient.
package storage
