package weatherproof

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T, retention time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "weather:", retention), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	ctx := context.Background()

	created := time.Now().UTC().Truncate(time.Second)
	entry := &Entry{
		Key:       "oslo",
		Payload:   []byte("forecast"),
		CreatedAt: created,
		ExpiresAt: created.Add(time.Hour),
	}

	if err := store.Set(ctx, "oslo", entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := store.Get(ctx, "oslo")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected entry to exist")
	}

	if got.Key != "oslo" {
		t.Errorf("Expected key 'oslo', got %q", got.Key)
	}
	if string(got.Payload) != "forecast" {
		t.Errorf("Expected payload 'forecast', got %q", got.Payload)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("Expected CreatedAt=%v, got %v", created, got.CreatedAt)
	}
	if !got.ExpiresAt.Equal(created.Add(time.Hour)) {
		t.Errorf("Expected ExpiresAt=%v, got %v", created.Add(time.Hour), got.ExpiresAt)
	}
}

func TestRedisStoreMissingKey(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)

	got, ok, err := store.Get(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("Expected no entry for unknown key")
	}
	if got != nil {
		t.Errorf("Expected nil entry, got %+v", got)
	}
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	ctx := context.Background()

	now := time.Now()
	entry := &Entry{Payload: []byte("x"), CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := store.Set(ctx, "oslo", entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := store.Delete(ctx, "oslo"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, ok, _ := store.Get(ctx, "oslo"); ok {
		t.Error("Expected entry to be gone after Delete")
	}
}

func TestRedisStoreUsesKeyPrefix(t *testing.T) {
	store, mr := newTestRedisStore(t, 0)
	ctx := context.Background()

	now := time.Now()
	entry := &Entry{Payload: []byte("x"), CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := store.Set(ctx, "oslo", entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if !mr.Exists("weather:oslo") {
		t.Error("Expected entry stored under 'weather:oslo'")
	}
	if mr.Exists("oslo") {
		t.Error("Expected no entry under the bare key")
	}
}

func TestRedisStoreRetainsExpiredEntries(t *testing.T) {
	store, mr := newTestRedisStore(t, 0)
	ctx := context.Background()

	// The entry expired an hour ago; it must stay readable as a stale
	// fallback for the retention window.
	now := time.Now()
	entry := &Entry{
		Payload:   []byte("yesterday's forecast"),
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	if err := store.Set(ctx, "oslo", entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := store.Get(ctx, "oslo")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected expired entry to be retained")
	}
	if string(got.Payload) != "yesterday's forecast" {
		t.Errorf("Expected stale payload, got %q", got.Payload)
	}

	// Once the retention window passes, Redis reclaims the key.
	mr.FastForward(DefaultStaleRetention + time.Minute)

	if _, ok, _ := store.Get(ctx, "oslo"); ok {
		t.Error("Expected entry to be reclaimed after the retention window")
	}
}

func TestRedisStoreDefaultRetention(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "weather:", 0)
	if store.retention != DefaultStaleRetention {
		t.Errorf("Expected retention=%v, got %v", DefaultStaleRetention, store.retention)
	}

	custom := NewRedisStore(client, "weather:", time.Hour)
	if custom.retention != time.Hour {
		t.Errorf("Expected retention=1h, got %v", custom.retention)
	}
}

func TestRedisStoreCorruptEntry(t *testing.T) {
	store, mr := newTestRedisStore(t, 0)

	if err := mr.Set("weather:oslo", "not json"); err != nil {
		t.Fatalf("seeding miniredis failed: %v", err)
	}

	_, _, err := store.Get(context.Background(), "oslo")
	if err == nil {
		t.Error("Expected error for corrupt entry")
	}
}

func TestClientSharesRedisStoreAcrossRestarts(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, "forecast")
	}))
	defer server.Close()

	store, _ := newTestRedisStore(t, 0)
	clock := newFakeClock()
	ctx := context.Background()

	first := New(urlBuilder(server.URL), WithClock(clock), WithStore(store))
	if _, err := first.GetData(ctx, "oslo"); err != nil {
		t.Fatalf("GetData() returned error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("Expected 1 upstream hit, got %d", hits)
	}

	// A new client over the same store serves the cached payload without
	// touching the provider.
	second := New(urlBuilder(server.URL), WithClock(clock), WithStore(store))
	result, err := second.GetData(ctx, "oslo")
	if err != nil {
		t.Fatalf("GetData() returned error: %v", err)
	}
	if hits != 1 {
		t.Errorf("Expected cached read, got %d upstream hits", hits)
	}
	if string(result.Payload) != "forecast" {
		t.Errorf("Expected cached payload, got %q", result.Payload)
	}
	if result.Stale || result.Degraded {
		t.Error("Expected a fresh cache hit")
	}
}
