// Package password implements salted password hashing and verification with
// Argon2id.
//
// A single fast hash pass is inadequate against offline brute force, so this
// package uses a slow, memory-hard KDF with a per-record salt and a tunable
// work factor. Hasher.NeedsRehash lets callers upgrade records hashed under
// older, weaker parameters during verification.
//
// # Output format
//
// Digests are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The salt is additionally surfaced to callers as a hex string so credential
// records can persist it in their own column. [Hasher.NeedsRehash] reports
// whether a stored digest was produced with weaker parameters than the current
// configuration, enabling re-hash on the next successful verification.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive digests.
//   - Log plaintext passwords or digest parameters.
//   - Import any other credcore package.
package password
