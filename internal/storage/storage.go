package storage

import (
	"context"
	"errors"
)

// Table names of the remote durable store touched by the engine.
const (
	TableProfiles      = "user_profiles"
	TableCredentials   = "user_credentials"
	TableSessions      = "user_sessions"
	TableAuditLogs     = "security_audit_logs"
	TableLoginAttempts = "login_attempts"
)

var (
	// ErrRemoteUnavailable wraps every remote-store failure. Callers treat it
	// as "remote unreachable" and fall back to the cache, never as a
	// business-logic rejection.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrCacheUnavailable is returned when the local cache itself fails.
	// Unlike remote failures there is no further fallback.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrUnknownTable is returned for table names outside the engine schema.
	ErrUnknownTable = errors.New("unknown table")
)

// Row is one remote-store record as a column→value map.
type Row map[string]any

// Filter selects rows by column equality. An empty filter matches everything.
type Filter map[string]any

// Cache is the local durable key-value store. It has no expiry semantics of
// its own; callers encode TTLs inside values.
type Cache interface {
	// Get returns the stored value and whether the key exists. A missing key
	// is (nil, false, nil), not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Remote is the hosted relational store, the system of record when reachable.
// Every method may fail with [ErrRemoteUnavailable].
type Remote interface {
	// Ping is a low-latency reachability probe run before sync cycles.
	Ping(ctx context.Context) error
	Query(ctx context.Context, table string, filter Filter) ([]Row, error)
	Count(ctx context.Context, table string, filter Filter) (int, error)
	Insert(ctx context.Context, table string, row Row) error
	Update(ctx context.Context, table string, filter Filter, patch Row) error
	Delete(ctx context.Context, table string, filter Filter) error
}

// Unavailable is a Remote whose every call reports [ErrRemoteUnavailable].
// The engine substitutes it when no remote store is configured, so all
// components exercise their cache-only degradation path.
type Unavailable struct{}

func (Unavailable) Ping(context.Context) error { return ErrRemoteUnavailable }

func (Unavailable) Query(context.Context, string, Filter) ([]Row, error) {
	return nil, ErrRemoteUnavailable
}

func (Unavailable) Count(context.Context, string, Filter) (int, error) {
	return 0, ErrRemoteUnavailable
}

func (Unavailable) Insert(context.Context, string, Row) error { return ErrRemoteUnavailable }

func (Unavailable) Update(context.Context, string, Filter, Row) error {
	return ErrRemoteUnavailable
}

func (Unavailable) Delete(context.Context, string, Filter) error { return ErrRemoteUnavailable }
