package substrate

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"
	"testing"

	"availsdk/internal/domain"

	gethrpc "github.com/centrifuge/go-substrate-rpc-client/v4/gethrpc"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stateService serves the state_* calls the client reads storage with.
type stateService struct {
	mu      sync.Mutex
	values  map[string]string
	storage []string
}

func (s *stateService) GetStorage(key string, at *string) *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage = append(s.storage, key)
	value, ok := s.values[key]
	if !ok {
		return nil
	}
	return &value
}

func (s *stateService) GetKeysPaged(prefix string, count int, start string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := []string{}
	for key := range s.values {
		if strings.HasPrefix(key, prefix) && key > start {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if len(keys) > count {
		keys = keys[:count]
	}
	return keys
}

func (s *stateService) QueryStorageAt(keys []string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	changes := [][2]*string{}
	for _, key := range keys {
		value, ok := s.values[key]
		if !ok {
			changes = append(changes, [2]*string{&key, nil})
			continue
		}
		changes = append(changes, [2]*string{&key, &value})
	}
	return []map[string]any{{"block": domain.Hash{0x01}.Hex(), "changes": changes}}
}

func (s *stateService) requestedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.storage...)
}

// chainService serves chain_getBlock from a fixed set of blocks.
type chainService struct {
	blocks map[string]map[string]any
}

func (s *chainService) GetBlock(hash string) map[string]any {
	return s.blocks[hash]
}

func newTestClient(t *testing.T, state *stateService, chain *chainService) *Client {
	t.Helper()
	server := gethrpc.NewServer()
	require.NoError(t, server.RegisterName("state", state))
	if chain != nil {
		require.NoError(t, server.RegisterName("chain", chain))
	}
	rpcClient := gethrpc.DialInProc(server)
	t.Cleanup(func() {
		rpcClient.Close()
		server.Stop()
	})
	return &Client{rpc: rpcClient, endpoint: "inproc", registry: testRegistry(t)}
}

func appKeyStorageKey(t *testing.T, name string) string {
	t.Helper()
	encodedName, err := codec.Encode([]byte(name))
	require.NoError(t, err)
	key := append(storagePrefix("DataAvailability", "AppKeys"), blake2Concat(encodedName)...)
	return codec.HexEncodeToString(key)
}

func appKeyValue(t *testing.T, owner domain.AccountID, id uint64) string {
	t.Helper()
	encodedID, err := codec.Encode(types.NewUCompactFromUInt(id))
	require.NoError(t, err)
	return codec.HexEncodeToString(append(owner[:], encodedID...))
}

func TestDecodeAppKey(t *testing.T) {
	prefixLen := len(storagePrefix("DataAvailability", "AppKeys"))

	tests := []struct {
		name    string
		key     string
		value   string
		want    domain.AppKey
		wantErr string
	}{
		{
			name:  "small id",
			key:   appKeyStorageKey(t, "my-app"),
			value: appKeyValue(t, alice, 7),
			want:  domain.AppKey{Key: []byte("my-app"), Owner: alice, ID: 7},
		},
		{
			name:  "multi byte compact id",
			key:   appKeyStorageKey(t, "Avail"),
			value: appKeyValue(t, bob, 70000),
			want:  domain.AppKey{Key: []byte("Avail"), Owner: bob, ID: 70000},
		},
		{
			name:    "key shorter than hasher output",
			key:     codec.HexEncodeToString(storagePrefix("DataAvailability", "AppKeys")),
			value:   appKeyValue(t, alice, 1),
			wantErr: "too short",
		},
		{
			name:    "bad key hex",
			key:     "0xzz",
			value:   appKeyValue(t, alice, 1),
			wantErr: "invalid",
		},
		{
			name:    "owner truncated",
			key:     appKeyStorageKey(t, "my-app"),
			value:   codec.HexEncodeToString(alice[:10]),
			wantErr: "decode app key owner",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeAppKey(prefixLen, tt.key, tt.value)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAppKeysIteratesStorageMap(t *testing.T) {
	state := &stateService{values: map[string]string{
		appKeyStorageKey(t, "Avail"):  appKeyValue(t, alice, 0),
		appKeyStorageKey(t, "my-app"): appKeyValue(t, bob, 1),
		// An entry of another map must not leak into the listing.
		codec.HexEncodeToString(storagePrefix("DataAvailability", "NextAppId")): "0x08",
	}}
	client := newTestClient(t, state, nil)

	keys, err := client.AppKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)

	byName := map[string]domain.AppKey{}
	for _, key := range keys {
		byName[string(key.Key)] = key
	}
	assert.Equal(t, domain.AppKey{Key: []byte("Avail"), Owner: alice, ID: 0}, byName["Avail"])
	assert.Equal(t, domain.AppKey{Key: []byte("my-app"), Owner: bob, ID: 1}, byName["my-app"])
}

func TestAccountInfoReadsSystemAccount(t *testing.T) {
	var stored types.AccountInfo
	stored.Nonce = 5
	stored.Providers = 1
	stored.Data.Free = types.NewU128(*big.NewInt(1_000_000))
	stored.Data.Reserved = types.NewU128(*big.NewInt(20))
	stored.Data.MiscFrozen = types.NewU128(*big.NewInt(3))
	encoded, err := codec.EncodeToHex(stored)
	require.NoError(t, err)

	key := append(storagePrefix("System", "Account"), blake2Concat(alice[:])...)
	keyHex := codec.HexEncodeToString(key)
	state := &stateService{values: map[string]string{keyHex: encoded}}
	client := newTestClient(t, state, nil)

	info, err := client.AccountInfo(context.Background(), alice, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), info.Nonce)
	assert.Equal(t, uint32(1), info.Providers)
	assert.Equal(t, "1000000", info.Free.String())
	assert.Equal(t, "20", info.Reserved.String())
	assert.Equal(t, "3", info.Frozen.String())

	// System.Account is a Blake2_128Concat map: 32 prefix bytes, 16 hash bytes, then the account.
	require.Equal(t, []string{keyHex}, state.requestedKeys())
	assert.Len(t, key, 32+16+32)
	assert.Equal(t, alice[:], key[48:])

	missing, err := client.AccountInfo(context.Background(), bob, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), missing.Nonce)
	assert.Equal(t, "0", missing.Free.String())
}

func TestBlockByHashDecodesExtrinsics(t *testing.T) {
	registry := testRegistry(t)
	call, err := registry.encodeCall(domain.NewCall("DataAvailability", "submit_data", types.NewBytes([]byte("block data"))))
	require.NoError(t, err)
	encoded, err := encodeSigned(alice, make([]byte, 64), signingContext{era: MortalEra(32, 40), nonce: 2, appID: 5}, call)
	require.NoError(t, err)

	hash := domain.Hash{0x42}
	parent := domain.Hash{0x41}
	chain := &chainService{blocks: map[string]map[string]any{
		hash.Hex(): {
			"block": map[string]any{
				"header":     map[string]any{"parentHash": parent.Hex(), "number": "0x2a"},
				"extrinsics": []string{codec.HexEncodeToString(encoded)},
			},
		},
	}}
	client := newTestClient(t, &stateService{}, chain)

	block, err := client.BlockByHash(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, hash, block.Hash)
	assert.Equal(t, parent, block.ParentHash)
	assert.Equal(t, uint32(42), block.Number)
	require.Len(t, block.Extrinsics, 1)

	extrinsic := block.Extrinsics[0]
	assert.Equal(t, uint32(0), extrinsic.Index)
	assert.Equal(t, "DataAvailability", extrinsic.Pallet)
	assert.Equal(t, "submit_data", extrinsic.Method)
	assert.Equal(t, uint32(5), extrinsic.AppID)
	assert.Equal(t, extrinsicHash(encoded), extrinsic.Hash)

	_, err = client.BlockByHash(context.Background(), domain.Hash{0x99})
	assert.ErrorContains(t, err, "not found")
}

func TestDecodeBlockRejectsBadExtrinsicHex(t *testing.T) {
	client := &Client{registry: testRegistry(t)}
	raw := &rpcBlock{}
	raw.Block.Header = rpcHeader{ParentHash: domain.Hash{0x01}.Hex(), Number: "0x01"}
	raw.Block.Extrinsics = []string{"0xnothex"}

	_, err := client.decodeBlock(domain.Hash{0x02}, raw)
	assert.ErrorContains(t, err, "extrinsic 0")
}
