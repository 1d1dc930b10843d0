// Package nonces shares nonce allocation for one account between submitter processes.
package nonces

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"availsdk/internal/domain"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

// nextScript returns the next free nonce, never going below the chain nonce in ARGV[1].
// The stored value is the nonce the following caller receives.
var nextScript = redis.NewScript(`
local stored = tonumber(redis.call("GET", KEYS[1]))
local chain = tonumber(ARGV[1])
local nonce = chain
if stored ~= nil and stored > chain then
	nonce = stored
end
redis.call("SET", KEYS[1], nonce + 1, "PX", ARGV[2])
return nonce
`)

type Config struct {
	Addr    string
	Network string
	TTL     time.Duration
}

// RedisAllocator implements application.NonceAllocator.
type RedisAllocator struct {
	client  redis.UniversalClient
	network string
	ttl     time.Duration
}

func NewRedisAllocator(cfg Config) (*RedisAllocator, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newAllocator(client, cfg.Network, cfg.TTL), nil
}

func newAllocator(client redis.UniversalClient, network string, ttl time.Duration) *RedisAllocator {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if network == "" {
		network = "default"
	}
	return &RedisAllocator{client: client, network: network, ttl: ttl}
}

func (a *RedisAllocator) Close() error {
	return a.client.Close()
}

func (a *RedisAllocator) Next(ctx context.Context, account domain.AccountID, chainNonce uint32) (uint32, error) {
	nonce, err := nextScript.Run(ctx, a.client, []string{a.key(account)}, chainNonce, a.ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("allocate nonce for %s: %w", account.SS58(), err)
	}
	return uint32(nonce), nil
}

func (a *RedisAllocator) Reset(ctx context.Context, account domain.AccountID) error {
	return a.client.Del(ctx, a.key(account)).Err()
}

func (a *RedisAllocator) key(account domain.AccountID) string {
	return "availsdk:nonce:" + a.network + ":" + account.SS58()
}
