package substrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"availsdk/internal/domain"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/centrifuge/go-substrate-rpc-client/v4/xxhash"
	"golang.org/x/crypto/blake2b"
)

const appKeysPageSize = 500

type rpcHeader struct {
	ParentHash string `json:"parentHash"`
	Number     string `json:"number"`
}

type rpcBlock struct {
	Block struct {
		Header     rpcHeader `json:"header"`
		Extrinsics []string  `json:"extrinsics"`
	} `json:"block"`
}

func (c *Client) FinalizedHead(ctx context.Context) (domain.Hash, error) {
	var raw string
	if err := c.call(ctx, &raw, "chain_getFinalizedHead"); err != nil {
		return domain.Hash{}, err
	}
	return domain.ParseHash(raw)
}

func (c *Client) FinalizedNumber(ctx context.Context) (uint64, error) {
	head, err := c.FinalizedHead(ctx)
	if err != nil {
		return 0, err
	}
	header, err := c.header(ctx, &head)
	if err != nil {
		return 0, err
	}
	return parseBlockNumber(header.Number)
}

// BestNumber is the number of the current best block.
func (c *Client) BestNumber(ctx context.Context) (uint64, error) {
	header, err := c.header(ctx, nil)
	if err != nil {
		return 0, err
	}
	return parseBlockNumber(header.Number)
}

func (c *Client) header(ctx context.Context, at *domain.Hash) (rpcHeader, error) {
	var header rpcHeader
	args := []any{}
	if at != nil {
		args = append(args, at.Hex())
	}
	if err := c.call(ctx, &header, "chain_getHeader", args...); err != nil {
		return rpcHeader{}, err
	}
	return header, nil
}

// BlockHashAt returns the canonical hash at number; ok is false when the node has
// no block at that height yet.
func (c *Client) BlockHashAt(ctx context.Context, number uint64) (domain.Hash, bool, error) {
	var raw *string
	if err := c.call(ctx, &raw, "chain_getBlockHash", number); err != nil {
		return domain.Hash{}, false, err
	}
	if raw == nil {
		return domain.Hash{}, false, nil
	}
	hash, err := domain.ParseHash(*raw)
	if err != nil {
		return domain.Hash{}, false, err
	}
	return hash, true, nil
}

func (c *Client) BlockByHash(ctx context.Context, hash domain.Hash) (domain.Block, error) {
	var raw *rpcBlock
	if err := c.call(ctx, &raw, "chain_getBlock", hash.Hex()); err != nil {
		return domain.Block{}, err
	}
	if raw == nil {
		return domain.Block{}, fmt.Errorf("block %s not found", hash)
	}
	return c.decodeBlock(hash, raw)
}

func (c *Client) BlockByNumber(ctx context.Context, number uint64) (domain.Block, error) {
	hash, ok, err := c.BlockHashAt(ctx, number)
	if err != nil {
		return domain.Block{}, err
	}
	if !ok {
		return domain.Block{}, fmt.Errorf("block %d not found", number)
	}
	return c.BlockByHash(ctx, hash)
}

func (c *Client) decodeBlock(hash domain.Hash, raw *rpcBlock) (domain.Block, error) {
	number, err := parseBlockNumber(raw.Block.Header.Number)
	if err != nil {
		return domain.Block{}, err
	}
	parent, err := domain.ParseHash(raw.Block.Header.ParentHash)
	if err != nil {
		return domain.Block{}, fmt.Errorf("parent hash: %w", err)
	}
	block := domain.Block{Hash: hash, Number: uint32(number), ParentHash: parent}
	registry := c.runtime()
	for i, encodedHex := range raw.Block.Extrinsics {
		encoded, err := codec.HexDecodeString(encodedHex)
		if err != nil {
			return domain.Block{}, fmt.Errorf("extrinsic %d: %w", i, err)
		}
		extrinsic, err := registry.decodeExtrinsic(uint32(i), encoded)
		if err != nil {
			return domain.Block{}, err
		}
		block.Extrinsics = append(block.Extrinsics, extrinsic)
	}
	return block, nil
}

// Events returns every event of the block at blockHash.
func (c *Client) Events(ctx context.Context, blockHash domain.Hash) ([]domain.EventRecord, error) {
	raw, ok, err := c.storage(ctx, storagePrefix("System", "Events"), &blockHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return c.runtime().decodeEvents(raw)
}

// EncodeCall SCALE encodes call against the loaded runtime metadata.
func (c *Client) EncodeCall(call domain.Call) ([]byte, error) {
	return c.runtime().encodeCall(call)
}

func (c *Client) ResolveDispatchError(dispatchErr domain.DispatchError) domain.DispatchError {
	return c.runtime().resolveDispatchError(dispatchErr)
}

// AccountInfo reads System.Account at the given block, or at the best block when at is nil.
func (c *Client) AccountInfo(ctx context.Context, account domain.AccountID, at *domain.Hash) (domain.AccountInfo, error) {
	key := append(storagePrefix("System", "Account"), blake2Concat(account[:])...)
	raw, ok, err := c.storage(ctx, key, at)
	if err != nil {
		return domain.AccountInfo{}, err
	}
	if !ok {
		return domain.AccountInfo{Free: new(big.Int), Reserved: new(big.Int), Frozen: new(big.Int)}, nil
	}
	var info types.AccountInfo
	if err := codec.Decode(raw, &info); err != nil {
		return domain.AccountInfo{}, fmt.Errorf("decode account %s: %w", account.SS58(), err)
	}
	return domain.AccountInfo{
		Nonce:       uint32(info.Nonce),
		Consumers:   uint32(info.Consumers),
		Providers:   uint32(info.Providers),
		Sufficients: uint32(info.Sufficients),
		Free:        info.Data.Free.Int,
		Reserved:    info.Data.Reserved.Int,
		Frozen:      info.Data.MiscFrozen.Int,
	}, nil
}

// AccountNonce resolves the next nonce for account according to mode.
func (c *Client) AccountNonce(ctx context.Context, account domain.AccountID, mode domain.NonceMode) (uint32, error) {
	switch mode {
	case domain.NonceBestBlock:
		info, err := c.AccountInfo(ctx, account, nil)
		return info.Nonce, err
	case domain.NonceFinalizedBlock:
		head, err := c.FinalizedHead(ctx)
		if err != nil {
			return 0, err
		}
		info, err := c.AccountInfo(ctx, account, &head)
		return info.Nonce, err
	default:
		return c.AccountNextIndex(ctx, account.SS58())
	}
}

func (c *Client) AccountNextIndex(ctx context.Context, address string) (uint32, error) {
	var nonce uint32
	if err := c.call(ctx, &nonce, "system_accountNextIndex", address); err != nil {
		return 0, err
	}
	return nonce, nil
}

// AppKeys iterates the DataAvailability.AppKeys map at the best block.
func (c *Client) AppKeys(ctx context.Context) ([]domain.AppKey, error) {
	prefix := storagePrefix("DataAvailability", "AppKeys")
	prefixHex := codec.HexEncodeToString(prefix)
	var keys []domain.AppKey
	start := prefixHex
	for {
		var page []string
		if err := c.call(ctx, &page, "state_getKeysPaged", prefixHex, appKeysPageSize, start); err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return keys, nil
		}
		var sets []struct {
			Block   string       `json:"block"`
			Changes [][2]*string `json:"changes"`
		}
		if err := c.call(ctx, &sets, "state_queryStorageAt", page); err != nil {
			return nil, err
		}
		for _, set := range sets {
			for _, change := range set.Changes {
				if change[0] == nil || change[1] == nil {
					continue
				}
				key, err := decodeAppKey(len(prefix), *change[0], *change[1])
				if err != nil {
					return nil, err
				}
				keys = append(keys, key)
			}
		}
		if len(page) < appKeysPageSize {
			return keys, nil
		}
		start = page[len(page)-1]
	}
}

func decodeAppKey(prefixLen int, keyHex, valueHex string) (domain.AppKey, error) {
	rawKey, err := codec.HexDecodeString(keyHex)
	if err != nil {
		return domain.AppKey{}, err
	}
	// blake2_128_concat: 16 hash bytes, then the SCALE encoded key.
	offset := prefixLen + 16
	if len(rawKey) < offset {
		return domain.AppKey{}, fmt.Errorf("app key storage key %s is too short", keyHex)
	}
	name, err := domain.DecodeCompactBytes(rawKey[offset:])
	if err != nil {
		return domain.AppKey{}, fmt.Errorf("decode app key name: %w", err)
	}
	rawValue, err := codec.HexDecodeString(valueHex)
	if err != nil {
		return domain.AppKey{}, err
	}
	decoder := scale.NewDecoder(bytes.NewReader(rawValue))
	var owner types.AccountID
	if err := decoder.Decode(&owner); err != nil {
		return domain.AppKey{}, fmt.Errorf("decode app key owner: %w", err)
	}
	id, err := decoder.DecodeUintCompact()
	if err != nil {
		return domain.AppKey{}, fmt.Errorf("decode app id: %w", err)
	}
	return domain.AppKey{Key: name, Owner: domain.AccountID(owner), ID: uint32(id.Uint64())}, nil
}

func (c *Client) storage(ctx context.Context, key []byte, at *domain.Hash) ([]byte, bool, error) {
	args := []any{codec.HexEncodeToString(key)}
	if at != nil {
		args = append(args, at.Hex())
	}
	var raw *string
	if err := c.call(ctx, &raw, "state_getStorage", args...); err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	decoded, err := codec.HexDecodeString(*raw)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

func storagePrefix(pallet, item string) []byte {
	out := xxhash.New128([]byte(pallet)).Sum(nil)
	return append(out, xxhash.New128([]byte(item)).Sum(nil)...)
}

func blake2Concat(data []byte) []byte {
	hasher, _ := blake2b.New(16, nil)
	hasher.Write(data)
	return append(hasher.Sum(nil), data...)
}

func parseBlockNumber(raw string) (uint64, error) {
	trimmed := strings.TrimPrefix(raw, "0x")
	if trimmed == "" {
		return 0, errors.New("empty block number")
	}
	return strconv.ParseUint(trimmed, 16, 64)
}
