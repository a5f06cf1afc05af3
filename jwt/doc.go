// Package jwt mints and verifies short-lived cross-subdomain auth assertions.
// An assertion proves "this user holds a valid session on the issuing host"
// without ever shipping the opaque session token itself: only a digest of the
// token is embedded, so a sibling subdomain can bind the assertion to a
// session it later learns about, but a leaked assertion cannot be replayed as
// a session.
package jwt
