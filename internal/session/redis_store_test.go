package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "test-token-hash", "user-123", time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	userID, err := store.LookupRefreshSession(ctx, "test-token-hash")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if userID != "user-123" {
		t.Errorf("expected user-123, got %s", userID)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "expired-token", "user-456", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	s.FastForward(2 * time.Second)

	if _, err := store.LookupRefreshSession(ctx, "expired-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "token-1", "user-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save token-1: %v", err)
	}
	if err := store.SaveRefreshSession(ctx, "token-2", "user-2", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save token-2: %v", err)
	}
	if err := store.RevokeRefreshSession(ctx, "token-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "token-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected revoked token-1 to be gone, got %v", err)
	}
	userID, err := store.LookupRefreshSession(ctx, "token-2")
	if err != nil || userID != "user-2" {
		t.Fatalf("expected token-2 to survive, got %q %v", userID, err)
	}
	if err := store.RevokeRefreshSession(ctx, "never-existed"); err != nil {
		t.Fatalf("revoking an unknown token should not fail: %v", err)
	}
}

func TestAuthStateIsSingleUse(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	want := AuthState{Verifier: "v-123", Next: "/spaces"}
	if err := store.SaveAuthState(ctx, "state-1", want, 10*time.Minute); err != nil {
		t.Fatalf("SaveAuthState: %v", err)
	}
	if ttl := s.TTL("authstate:state-1"); ttl != 10*time.Minute {
		t.Fatalf("expected 10m ttl, got %v", ttl)
	}

	got, err := store.TakeAuthState(ctx, "state-1")
	if err != nil {
		t.Fatalf("TakeAuthState: %v", err)
	}
	if got.Verifier != want.Verifier || got.Next != want.Next {
		t.Fatalf("unexpected state %+v", got)
	}
	if _, err := store.TakeAuthState(ctx, "state-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected second take to fail, got %v", err)
	}
}

func TestMemoryStateStoreExpires(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.SaveAuthState(ctx, "a", AuthState{Verifier: "va"}, time.Minute); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := store.SaveAuthState(ctx, "b", AuthState{Verifier: "vb"}, time.Minute); err != nil {
		t.Fatalf("save b: %v", err)
	}
	got, err := store.TakeAuthState(ctx, "a")
	if err != nil || got.Verifier != "va" {
		t.Fatalf("take a: %+v %v", got, err)
	}
	if _, err := store.TakeAuthState(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a to be consumed, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.TakeAuthState(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected b to expire, got %v", err)
	}
}
