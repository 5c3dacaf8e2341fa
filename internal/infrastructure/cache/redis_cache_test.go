package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return NewRedisCache(client), server
}

func TestRedisCacheSetGetDelete(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "room_app:!r:x", "app.example", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, found, err := cache.Get(ctx, "room_app:!r:x")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found || value != "app.example" {
		t.Fatalf("Get() = %q, found=%v", value, found)
	}

	if err := cache.Delete(ctx, "room_app:!r:x"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, _ := cache.Get(ctx, "room_app:!r:x"); found {
		t.Fatal("Get() expected found=false after delete")
	}
}

func TestRedisCacheHonorsTTL(t *testing.T) {
	cache, server := setupRedisCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "cursor:app.example", "v1", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	server.FastForward(2 * time.Minute)

	if _, found, _ := cache.Get(ctx, "cursor:app.example"); found {
		t.Fatal("entry survived past ttl")
	}
}

func TestRedisCacheMissIsNotError(t *testing.T) {
	cache, _ := setupRedisCache(t)

	_, found, err := cache.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Fatal("Get() expected found=false")
	}
}
