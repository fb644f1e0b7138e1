package redisindex

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, func() {
		client.Close()
		mr.Close()
	}
}

func TestAddAndCountReady(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	idx := New(client, "")

	now := time.Now()
	ctx := context.Background()
	if err := idx.Add(ctx, 1, now.Add(-time.Minute)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Add(ctx, 2, now.Add(time.Hour)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	count, err := idx.CountReady(ctx, now)
	if err != nil {
		t.Fatalf("CountReady: %v", err)
	}
	if count != 1 {
		t.Errorf("CountReady = %d, want 1 (only the past-due job)", count)
	}
}

func TestRemove(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	idx := New(client, "")
	ctx := context.Background()

	now := time.Now()
	if err := idx.Add(ctx, 7, now.Add(-time.Minute)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Remove(ctx, 7); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	count, err := idx.CountReady(ctx, now)
	if err != nil {
		t.Fatalf("CountReady: %v", err)
	}
	if count != 0 {
		t.Errorf("CountReady after Remove = %d, want 0", count)
	}
}
