// Package twofactor layers an opt-in TOTP second factor on top of credential
// login. Enrollment is two-phase: Setup hands the caller a draft secret and
// backup codes for QR display, and nothing is persisted until Enable sees a
// correct code against that secret. Backup codes are stored hashed and are
// single-use.
package twofactor
