package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	principalKeyPrefix  = "authcore:principal:"
	generationKeyPrefix = "authcore:principal-gen:"
)

// generationTTL outlives any in-flight load by a wide margin.
const generationTTL = 24 * time.Hour

// setIfCurrent writes the principal only while the account generation
// still equals the one observed before loading.
var setIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if gen == false then gen = '0' end
if gen ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// DefaultCacheTTL bounds how long a cached principal may be served.
const DefaultCacheTTL = 5 * time.Minute

// RedisPrincipalCache stores resolved principals as JSON in Redis.
type RedisPrincipalCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisPrincipalCache constructs the cache. A non-positive ttl uses
// DefaultCacheTTL.
func NewRedisPrincipalCache(client redis.UniversalClient, ttl time.Duration) *RedisPrincipalCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisPrincipalCache{client: client, ttl: ttl}
}

var _ PrincipalCache = (*RedisPrincipalCache)(nil)

// PrincipalKey returns the cache key for an account.
func PrincipalKey(accountID string) string {
	return principalKeyPrefix + accountID
}

// GenerationKey returns the key holding an account's invalidation counter.
func GenerationKey(accountID string) string {
	return generationKeyPrefix + accountID
}

// Generation returns the invalidation counter of accountID; zero when the
// account was never invalidated.
func (c *RedisPrincipalCache) Generation(ctx context.Context, accountID string) (int64, error) {
	gen, err := c.client.Get(ctx, GenerationKey(accountID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rbac: cache generation: %w", err)
	}
	return gen, nil
}

// Get returns the cached principal, if present.
func (c *RedisPrincipalCache) Get(ctx context.Context, accountID string) (Principal, bool, error) {
	raw, err := c.client.Get(ctx, PrincipalKey(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Principal{}, false, nil
	}
	if err != nil {
		return Principal{}, false, fmt.Errorf("rbac: cache get: %w", err)
	}
	var p Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		return Principal{}, false, fmt.Errorf("rbac: cache decode: %w", err)
	}
	return p, true, nil
}

// Set stores p under its account key unless the account was invalidated
// after generation was read. A skipped write is not an error.
func (c *RedisPrincipalCache) Set(ctx context.Context, p Principal, generation int64) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("rbac: cache encode: %w", err)
	}
	keys := []string{PrincipalKey(p.AccountID), GenerationKey(p.AccountID)}
	err = setIfCurrent.Run(ctx, c.client, keys, strconv.FormatInt(generation, 10), raw, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("rbac: cache set: %w", err)
	}
	return nil
}

// InvalidateAccounts deletes the cached principals of accountIDs and bumps
// their generations so loads already in flight cannot write them back.
func (c *RedisPrincipalCache) InvalidateAccounts(ctx context.Context, accountIDs ...string) error {
	if len(accountIDs) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range accountIDs {
			pipe.Incr(ctx, GenerationKey(id))
			pipe.Expire(ctx, GenerationKey(id), generationTTL)
			pipe.Del(ctx, PrincipalKey(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rbac: cache invalidate: %w", err)
	}
	return nil
}
