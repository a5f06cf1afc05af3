// Package credcore is an embeddable credential and session security engine.
//
// It owns password hashing (argon2id), login rate limiting, opaque session
// tokens, opt-in TOTP two-factor authentication, email-code registration and
// password reset, and an append-only security audit log. All state is written
// cache-first: the local cache (Redis or in-memory) is authoritative for
// immediate use, the remote durable store (Postgres) is mirrored best-effort
// and reconciled additively by a background sync orchestrator, so every
// operation keeps working while the remote is unreachable.
//
// Construct an Engine through the Builder:
//
//	engine, err := credcore.New().
//		WithRedis(client).
//		WithPostgres(pool).
//		WithMailer(mailer).
//		Build()
package credcore
