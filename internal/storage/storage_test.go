package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, "cc"), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()

	if _, found, err := cache.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("missing key: found=%v err=%v", found, err)
	}
	if err := cache.Set(ctx, "session:u1", []byte(`{"token":"x"}`)); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, found, err := cache.Get(ctx, "session:u1")
	if err != nil || !found || !bytes.Equal(got, []byte(`{"token":"x"}`)) {
		t.Fatalf("Get = %q found=%v err=%v", got, found, err)
	}
	// Keys carry the engine prefix so instances can share a server.
	if !mr.Exists("cc:session:u1") {
		t.Fatal("expected prefixed key in redis")
	}

	if err := cache.Remove(ctx, "session:u1"); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, found, _ := cache.Get(ctx, "session:u1"); found {
		t.Fatal("expected key removed")
	}
}

func TestRedisCacheReportsOutage(t *testing.T) {
	cache, mr := newRedisCache(t)
	mr.Close()

	if _, _, err := cache.Get(context.Background(), "k"); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
	if err := cache.Set(context.Background(), "k", []byte("v")); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
}

func TestMemoryRemoteFiltering(t *testing.T) {
	r := NewMemoryRemote()
	ctx := context.Background()

	rows := []Row{
		{"username": "alice", "email": "alice@x.com", "axi_number": int64(1)},
		{"username": "bob", "email": "bob@x.com", "axi_number": int64(2)},
	}
	for _, row := range rows {
		if err := r.Insert(ctx, TableCredentials, row); err != nil {
			t.Fatalf("Insert error: %v", err)
		}
	}

	// String matching is case-insensitive, like the SQL collation it fakes.
	got, err := r.Query(ctx, TableCredentials, Filter{"username": "ALICE"})
	if err != nil || len(got) != 1 || got[0]["email"] != "alice@x.com" {
		t.Fatalf("Query = %v err=%v", got, err)
	}
	n, err := r.Count(ctx, TableCredentials, nil)
	if err != nil || n != 2 {
		t.Fatalf("Count = %d err=%v", n, err)
	}

	if err := r.Update(ctx, TableCredentials, Filter{"username": "bob"}, Row{"axi_number": int64(9)}); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	got, _ = r.Query(ctx, TableCredentials, Filter{"username": "bob"})
	if got[0]["axi_number"] != int64(9) {
		t.Fatalf("expected patched row, got %v", got[0])
	}

	if err := r.Delete(ctx, TableCredentials, Filter{"username": "alice"}); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if n, _ := r.Count(ctx, TableCredentials, nil); n != 1 {
		t.Fatalf("expected 1 row after delete, got %d", n)
	}
}

func TestMemoryRemoteDown(t *testing.T) {
	r := NewMemoryRemote()
	r.Down = true
	ctx := context.Background()

	if err := r.Ping(ctx); !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if _, err := r.Query(ctx, TableCredentials, nil); !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if err := r.Insert(ctx, TableCredentials, Row{}); !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
}

func TestUnavailableRemote(t *testing.T) {
	var r Remote = Unavailable{}
	ctx := context.Background()
	if err := r.Ping(ctx); !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if _, err := r.Count(ctx, TableSessions, nil); !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
}
