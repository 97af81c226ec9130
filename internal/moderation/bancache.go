package moderation

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// banCachePrefix is the Redis key prefix for cached active bans.
	banCachePrefix = "ban:acct:"

	// banCacheTTL bounds staleness if a release ever fails to clear the
	// cache; the source of truth stays in PostgreSQL.
	banCacheTTL = 10 * time.Minute
)

// BanCache keeps active bans in Redis so the per-post ban check usually
// avoids a database round trip. Only positive entries are cached; a miss
// falls through to the store. All reads fail open on Redis errors.
type BanCache struct {
	client *redis.Client
}

// NewBanCache creates a ban cache using the provided Redis client.
func NewBanCache(client *redis.Client) *BanCache {
	return &BanCache{client: client}
}

// Set records an active ban for the account.
func (c *BanCache) Set(ctx context.Context, accountID int64, reason string) {
	key := banCachePrefix + strconv.FormatInt(accountID, 10)
	if err := c.client.Set(ctx, key, reason, banCacheTTL).Err(); err != nil {
		log.Printf("moderation: ban cache set %s: %v", key, err)
	}
}

// Clear removes the account's cached ban after a release.
func (c *BanCache) Clear(ctx context.Context, accountID int64) {
	key := banCachePrefix + strconv.FormatInt(accountID, 10)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		log.Printf("moderation: ban cache clear %s: %v", key, err)
	}
}

// Get returns (banned, hit). hit is false on a cache miss or Redis error.
func (c *BanCache) Get(ctx context.Context, accountID int64) (bool, bool) {
	key := banCachePrefix + strconv.FormatInt(accountID, 10)
	_, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, false
	}
	if err != nil {
		log.Printf("moderation: ban cache get %s: %v (failing open)", key, err)
		return false, false
	}
	return true, true
}

// Checker answers the posting-time ban check, consulting the cache before
// the store. It implements the chat package's BanChecker.
type Checker struct {
	store *BanStore
	cache *BanCache // may be nil
}

// NewChecker creates a Checker. cache may be nil.
func NewChecker(store *BanStore, cache *BanCache) *Checker {
	return &Checker{store: store, cache: cache}
}

// IsBanned reports whether the account has an active ban.
func (c *Checker) IsBanned(ctx context.Context, accountID int64) (bool, error) {
	if c.cache != nil {
		if banned, hit := c.cache.Get(ctx, accountID); hit {
			return banned, nil
		}
	}

	banned, err := c.store.IsBanned(ctx, accountID)
	if err != nil {
		return false, err
	}
	if banned && c.cache != nil {
		c.cache.Set(ctx, accountID, "")
	}
	return banned, nil
}
