package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/axiohq/credcore/internal/credstore"
	"github.com/axiohq/credcore/internal/metrics"
	"github.com/axiohq/credcore/internal/storage"
	"github.com/axiohq/credcore/password"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// insertFailRemote fails Insert while Fail is set but stays pingable, unlike
// MemoryRemote.Down which takes the whole backend offline.
type insertFailRemote struct {
	*storage.MemoryRemote
	Fail bool
}

func (r *insertFailRemote) Insert(ctx context.Context, table string, row storage.Row) error {
	if r.Fail {
		return storage.ErrRemoteUnavailable
	}
	return r.MemoryRemote.Insert(ctx, table, row)
}

func newTestSyncer(t *testing.T, remote storage.Remote) (*Syncer, *credstore.Store, *metrics.Metrics, *fakeClock) {
	t.Helper()
	hasher, err := password.NewHasher(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	creds := credstore.New(storage.NewMemoryCache(), remote, hasher, password.DefaultPolicy(), nil, clock.Now)
	m := metrics.New()
	s := New(creds, remote, Config{RetryDelay: time.Millisecond, RetryAttempts: 2}, nil, m, clock.Now)
	s.SetAsync(func(fn func()) { fn() })
	return s, creds, m, clock
}

func seedOffline(t *testing.T, creds *credstore.Store, remote *storage.MemoryRemote, usernames ...string) {
	t.Helper()
	ctx := context.Background()
	remote.Down = true
	for _, u := range usernames {
		if _, err := creds.Create(ctx, u, u+"@x.com", "abc123xy", 0); err != nil {
			t.Fatalf("Create %q error: %v", u, err)
		}
	}
	remote.Down = false
}

func TestSyncPushesCacheOnlyRecords(t *testing.T) {
	remote := storage.NewMemoryRemote()
	s, creds, m, _ := newTestSyncer(t, remote)
	ctx := context.Background()
	seedOffline(t, creds, remote, "alice", "bob")

	pending, err := s.PendingSync(ctx)
	if err != nil || pending != 2 {
		t.Fatalf("PendingSync = %d err=%v, want 2", pending, err)
	}

	if err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync error: %v", err)
	}
	if rows := remote.Rows(storage.TableCredentials); len(rows) != 2 {
		t.Fatalf("expected 2 remote credentials, got %d", len(rows))
	}
	if pending, _ := s.PendingSync(ctx); pending != 0 {
		t.Fatalf("expected no pending after sync, got %d", pending)
	}

	// Second cycle is idempotent: the remote is never re-inserted.
	before := remote.Inserts
	if err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync error: %v", err)
	}
	if remote.Inserts != before {
		t.Fatalf("expected no new inserts, got %d", remote.Inserts-before)
	}
	if got := m.Value(metrics.SyncPushedRecords); got != 2 {
		t.Fatalf("SyncPushedRecords = %d, want 2", got)
	}
}

func TestSyncAbortsSilentlyWhenRemoteDown(t *testing.T) {
	remote := storage.NewMemoryRemote()
	s, creds, m, _ := newTestSyncer(t, remote)
	seedOffline(t, creds, remote, "alice")

	remote.Down = true
	if err := s.Sync(context.Background()); err != nil {
		t.Fatalf("expected silent abort, got %v", err)
	}
	if got := m.Value(metrics.SyncCycles); got != 0 {
		t.Fatalf("aborted ping must not count as a cycle, got %d", got)
	}
}

func TestSyncSkipsEmailCollisions(t *testing.T) {
	remote := storage.NewMemoryRemote()
	s, creds, _, _ := newTestSyncer(t, remote)
	ctx := context.Background()
	seedOffline(t, creds, remote, "alice")

	// Someone else holds alice's email remotely under a different name.
	err := remote.Insert(ctx, storage.TableCredentials, storage.Row{
		"username": "zed", "email": "alice@x.com",
	})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	if err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync error: %v", err)
	}
	for _, row := range remote.Rows(storage.TableCredentials) {
		if row["username"] == "alice" {
			t.Fatal("collision record must not be pushed")
		}
	}
}

func TestSyncRetriesThenCoolsDown(t *testing.T) {
	remote := &insertFailRemote{MemoryRemote: storage.NewMemoryRemote()}
	s, creds, m, clock := newTestSyncer(t, remote)
	ctx := context.Background()

	remote.Down = true
	if _, err := creds.Create(ctx, "alice", "alice@x.com", "abc123xy", 0); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	remote.Down = false
	remote.Fail = true

	if err := s.Sync(ctx); err == nil {
		t.Fatal("expected push failure after retries")
	}
	if got := m.Value(metrics.SyncFailures); got != 1 {
		t.Fatalf("SyncFailures = %d, want 1", got)
	}

	// In cooldown: even with a healthy remote nothing runs yet.
	remote.Fail = false
	if err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync error: %v", err)
	}
	if len(remote.Rows(storage.TableCredentials)) != 0 {
		t.Fatal("expected no push during cooldown")
	}

	clock.Advance(DefaultConfig().Interval + time.Second)
	if err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync error: %v", err)
	}
	if len(remote.Rows(storage.TableCredentials)) != 1 {
		t.Fatal("expected push after cooldown elapsed")
	}
}

func TestFocusDebounce(t *testing.T) {
	remote := storage.NewMemoryRemote()
	s, creds, m, clock := newTestSyncer(t, remote)
	seedOffline(t, creds, remote, "alice")

	s.TriggerFocus()
	s.TriggerFocus() // inside the debounce window, dropped
	if got := m.Value(metrics.SyncCycles); got != 1 {
		t.Fatalf("SyncCycles = %d, want 1", got)
	}

	clock.Advance(61 * time.Second)
	s.TriggerFocus()
	if got := m.Value(metrics.SyncCycles); got != 2 {
		t.Fatalf("SyncCycles = %d, want 2", got)
	}
}

func TestTriggerLoginRunsImmediately(t *testing.T) {
	remote := storage.NewMemoryRemote()
	s, creds, _, _ := newTestSyncer(t, remote)
	seedOffline(t, creds, remote, "alice")

	s.TriggerLogin()
	if rows := remote.Rows(storage.TableCredentials); len(rows) != 1 {
		t.Fatalf("expected login trigger to push, got %d rows", len(rows))
	}
}

func TestStopFlushes(t *testing.T) {
	remote := storage.NewMemoryRemote()
	s, creds, _, _ := newTestSyncer(t, remote)
	seedOffline(t, creds, remote, "alice")

	s.Start()
	s.Stop(context.Background())
	if rows := remote.Rows(storage.TableCredentials); len(rows) != 1 {
		t.Fatalf("expected stop flush to push, got %d rows", len(rows))
	}
	// Stop is idempotent.
	s.Stop(context.Background())
}
