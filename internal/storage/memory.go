package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryCache is a process-local [Cache]. It backs unit tests and the
// no-Redis fallback configuration.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string][]byte)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	c.data[key] = v
	return nil
}

func (c *MemoryCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// MemoryRemote is an in-memory [Remote] used by tests. Down simulates an
// unreachable backend; while set, every call fails with
// [ErrRemoteUnavailable].
type MemoryRemote struct {
	mu     sync.Mutex
	tables map[string][]Row

	Down bool

	// Inserts counts successful Insert calls, for idempotency assertions.
	Inserts int
}

// NewMemoryRemote returns an empty in-memory remote store.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{tables: make(map[string][]Row)}
}

func (r *MemoryRemote) Ping(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Down {
		return ErrRemoteUnavailable
	}
	return nil
}

func (r *MemoryRemote) Query(_ context.Context, table string, filter Filter) ([]Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Down {
		return nil, ErrRemoteUnavailable
	}
	var out []Row
	for _, row := range r.tables[table] {
		if matches(row, filter) {
			out = append(out, cloneRow(row))
		}
	}
	return out, nil
}

func (r *MemoryRemote) Count(ctx context.Context, table string, filter Filter) (int, error) {
	rows, err := r.Query(ctx, table, filter)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *MemoryRemote) Insert(_ context.Context, table string, row Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Down {
		return ErrRemoteUnavailable
	}
	r.tables[table] = append(r.tables[table], cloneRow(row))
	r.Inserts++
	return nil
}

func (r *MemoryRemote) Update(_ context.Context, table string, filter Filter, patch Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Down {
		return ErrRemoteUnavailable
	}
	for _, row := range r.tables[table] {
		if matches(row, filter) {
			for k, v := range patch {
				row[k] = v
			}
		}
	}
	return nil
}

func (r *MemoryRemote) Delete(_ context.Context, table string, filter Filter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Down {
		return ErrRemoteUnavailable
	}
	kept := r.tables[table][:0]
	for _, row := range r.tables[table] {
		if !matches(row, filter) {
			kept = append(kept, row)
		}
	}
	r.tables[table] = kept
	return nil
}

// Rows returns a copy of a table's contents for test assertions.
func (r *MemoryRemote) Rows(table string) []Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Row, 0, len(r.tables[table]))
	for _, row := range r.tables[table] {
		out = append(out, cloneRow(row))
	}
	return out
}

func matches(row Row, filter Filter) bool {
	for k, want := range filter {
		got, ok := row[k]
		if !ok {
			return false
		}
		gs, gok := got.(string)
		ws, wok := want.(string)
		if gok && wok {
			if !strings.EqualFold(gs, ws) {
				return false
			}
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}

func cloneRow(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// FilterKeys returns filter column names in deterministic order. Shared by
// SQL builders so generated statements are stable.
func FilterKeys(filter Filter) []string {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
