// Package syncer reconciles the local cache into the remote durable store.
// Reconciliation is additive: cache-only records are pushed, remote records
// are never overwritten or deleted. Cycles run on login, on a fixed interval,
// and on debounced focus triggers; an in-flight guard collapses overlapping
// triggers into one cycle.
package syncer
