package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/axiohq/credcore/internal/storage"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newTestStore(t *testing.T) (*Store, *storage.MemoryRemote, *fakeClock, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := storage.NewRedisCache(rdb, "cc")

	remote := storage.NewMemoryRemote()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}

	st := NewStore(cache, remote, Config{
		Duration:      7 * 24 * time.Hour,
		RefreshWindow: 24 * time.Hour,
	}, nil, clock.now)
	st.SetAsync(func(fn func()) { fn() })

	return st, remote, clock, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestCreateAndValidate(t *testing.T) {
	st, remote, _, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	s, err := st.Create(ctx, "u1", -1)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if s.Token == "" || len(s.Token) < 40 {
		t.Fatalf("expected a high-entropy token, got %q", s.Token)
	}
	if got := s.ExpiresAt.Sub(s.CreatedAt); got != 7*24*time.Hour {
		t.Fatalf("expected default 7-day duration, got %v", got)
	}

	ok, err := st.Validate(ctx, "u1")
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if !ok {
		t.Fatal("expected fresh session to validate")
	}

	rows := remote.Rows(storage.TableSessions)
	if len(rows) != 1 || rows[0]["user_id"] != "u1" {
		t.Fatalf("expected mirrored remote session, got %v", rows)
	}
}

func TestZeroDurationSessionIsExpiredAndPurged(t *testing.T) {
	st, _, _, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	if _, err := st.Create(ctx, "u1", 0); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	ok, err := st.Validate(ctx, "u1")
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if ok {
		t.Fatal("expected zero-duration session to be invalid")
	}

	s, err := st.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if s != nil {
		t.Fatal("expected expired session to be purged on validation")
	}
}

func TestNewLoginOverwritesSession(t *testing.T) {
	st, remote, _, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	first, err := st.Create(ctx, "u1", -1)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	second, err := st.Create(ctx, "u1", -1)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if first.Token == second.Token {
		t.Fatal("expected a fresh token on re-login")
	}

	s, err := st.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if s.Token != second.Token {
		t.Fatal("expected the newer session to win")
	}
	if rows := remote.Rows(storage.TableSessions); len(rows) != 1 {
		t.Fatalf("expected a single remote session row, got %d", len(rows))
	}
}

func TestValidateRefreshesNearExpiry(t *testing.T) {
	st, _, clock, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	if _, err := st.Create(ctx, "u1", 7*24*time.Hour); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	// Move to 12 hours before expiry, inside the 1-day refresh window.
	clock.t = clock.t.Add(7*24*time.Hour - 12*time.Hour)

	ok, err := st.Validate(ctx, "u1")
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if !ok {
		t.Fatal("expected near-expiry session to still validate")
	}

	s, err := st.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got := s.ExpiresAt.Sub(clock.now()); got != 7*24*time.Hour {
		t.Fatalf("expected expiry extended by the original duration, got %v", got)
	}
}

func TestInvalidate(t *testing.T) {
	st, remote, _, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	if _, err := st.Create(ctx, "u1", -1); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := st.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate error: %v", err)
	}

	ok, err := st.Validate(ctx, "u1")
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if ok {
		t.Fatal("expected invalidated session to fail validation")
	}
	if rows := remote.Rows(storage.TableSessions); len(rows) != 0 {
		t.Fatalf("expected remote revocation, got %d rows", len(rows))
	}
}

func TestRefreshWithoutSessionCreates(t *testing.T) {
	st, _, _, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	s, err := st.Refresh(ctx, "u1")
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if s == nil || s.Token == "" {
		t.Fatal("expected Refresh to create a session when absent")
	}
}

func TestRemoteOutageDoesNotBlockSessionOps(t *testing.T) {
	st, remote, _, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	remote.Down = true
	if _, err := st.Create(ctx, "u1", -1); err != nil {
		t.Fatalf("Create should tolerate remote outage: %v", err)
	}
	ok, err := st.Validate(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("Validate should be served from cache: ok=%v err=%v", ok, err)
	}
	if err := st.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate should tolerate remote outage: %v", err)
	}
}
