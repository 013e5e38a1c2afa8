package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/env"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache initializes the connection to the Redis cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to Redis cache: %v", err)
	} else {
		log.Printf("Successfully connected to Redis cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Set stores a value in the cache with the given key and expiration time
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// Delete removes a value from the cache by key
func Delete(key string) error {
	return GetClient().Del(ctx, key).Err()
}

// AcquireLock grabs a short-lived exclusive lock via SET NX. It returns true
// when this caller owns the lock until TTL or Delete, and false when another
// holder is active. A cache outage fails open so bookings are never blocked
// on Redis; the database slot check remains authoritative.
func AcquireLock(key string, ttl time.Duration) bool {
	ok, err := GetClient().SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		log.Printf("Warning: cache lock %s unavailable, proceeding without: %v", key, err)
		return true
	}
	return ok
}

// ReleaseLock frees a lock taken with AcquireLock before its TTL runs out.
func ReleaseLock(key string) {
	if err := Delete(key); err != nil && err != redis.Nil {
		log.Printf("Warning: releasing cache lock %s failed: %v", key, err)
	}
}

// SlotLockKey names the per-company, per-slot booking lock.
func SlotLockKey(companyID, slotKey string) string {
	return fmt.Sprintf("booking:lock:%s:%s", companyID, slotKey)
}
