// Package metrics provides lock-free counters for engine observability.
//
// Counters live in cache-line-padded uint64 slots incremented atomically, so
// the write path is allocation-free. Export lives in metrics/export/ and
// reads Snapshot values; this package performs no I/O and imports no sibling
// package.
package metrics

import "sync/atomic"

// ID names one engine counter.
type ID uint16

const (
	LoginSuccess ID = iota
	LoginFailure
	LoginRateLimited
	TwoFactorSuccess
	TwoFactorFailure
	BackupCodeUsed
	SessionCreated
	SessionRefreshed
	SessionInvalidated
	RegistrationBegun
	RegistrationConfirmed
	PasswordChanged
	PasswordResetRequested
	PasswordResetConfirmed
	SyncCycles
	SyncPushedRecords
	SyncFailures
	idCount
)

// Name returns the stable exposition name for an ID.
func (id ID) Name() string {
	if int(id) < len(names) {
		return names[id]
	}
	return "unknown"
}

var names = [idCount]string{
	LoginSuccess:           "login_success",
	LoginFailure:           "login_failure",
	LoginRateLimited:       "login_rate_limited",
	TwoFactorSuccess:       "twofactor_success",
	TwoFactorFailure:       "twofactor_failure",
	BackupCodeUsed:         "backup_code_used",
	SessionCreated:         "session_created",
	SessionRefreshed:       "session_refreshed",
	SessionInvalidated:     "session_invalidated",
	RegistrationBegun:      "registration_begun",
	RegistrationConfirmed:  "registration_confirmed",
	PasswordChanged:        "password_changed",
	PasswordResetRequested: "password_reset_requested",
	PasswordResetConfirmed: "password_reset_confirmed",
	SyncCycles:             "sync_cycles",
	SyncPushedRecords:      "sync_pushed_records",
	SyncFailures:           "sync_failures",
}

// IDs returns every counter ID in exposition order.
func IDs() []ID {
	out := make([]ID, idCount)
	for i := range out {
		out[i] = ID(i)
	}
	return out
}

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the counter set shared by engine components. A nil *Metrics is
// a valid no-op sink.
type Metrics struct {
	counters [idCount]paddedCounter
}

func New() *Metrics { return &Metrics{} }

func (m *Metrics) Inc(id ID) {
	if m == nil || id >= idCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Add(id ID, n uint64) {
	if m == nil || id >= idCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

func (m *Metrics) Value(id ID) uint64 {
	if m == nil || id >= idCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot returns a point-in-time copy of every counter.
func (m *Metrics) Snapshot() map[ID]uint64 {
	s := make(map[ID]uint64, idCount)
	if m == nil {
		return s
	}
	for id := ID(0); id < idCount; id++ {
		s[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
