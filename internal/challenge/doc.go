// Package challenge issues and redeems short-lived email verification codes
// for registration and password reset. A challenge is a cache-only record: it
// never reaches the remote store, and the payload it carries holds password
// digests, not plaintext.
package challenge
