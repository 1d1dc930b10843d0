package nonces

import (
	"context"
	"os"
	"sync"
	"testing"

	"availsdk/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisAllocatorRequiresAddr(t *testing.T) {
	_, err := NewRedisAllocator(Config{})
	assert.Error(t, err)
}

func TestAllocatorKey(t *testing.T) {
	allocator := newAllocator(nil, "", 0)
	account := domain.AccountID{1}
	assert.Equal(t, "availsdk:nonce:default:"+account.SS58(), allocator.key(account))
	assert.Equal(t, defaultTTL, allocator.ttl)
}

// Runs against a live redis when NONCES_TEST_REDIS_ADDR is set.
func TestRedisAllocatorSequence(t *testing.T) {
	addr := os.Getenv("NONCES_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("NONCES_TEST_REDIS_ADDR not set")
	}
	allocator, err := NewRedisAllocator(Config{Addr: addr, Network: "test"})
	require.NoError(t, err)
	defer allocator.Close()

	ctx := context.Background()
	account := domain.AccountID{0xfe}
	require.NoError(t, allocator.Reset(ctx, account))

	var (
		mu   sync.Mutex
		seen = map[uint32]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nonce, err := allocator.Next(ctx, account, 5)
			assert.NoError(t, err)
			mu.Lock()
			seen[nonce] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	for n := uint32(5); n < 25; n++ {
		assert.True(t, seen[n], "nonce %d not allocated", n)
	}

	// A chain nonce ahead of the stored value wins.
	nonce, err := allocator.Next(ctx, account, 40)
	require.NoError(t, err)
	assert.Equal(t, uint32(40), nonce)

	require.NoError(t, allocator.Reset(ctx, account))
	nonce, err = allocator.Next(ctx, account, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), nonce)
}
