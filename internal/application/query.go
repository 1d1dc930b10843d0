package application

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"availsdk/internal/domain"
)

type SubmissionQueryFilter struct {
	Network   string
	AppID     *uint32
	Signer    string
	TxHash    string
	FromBlock *uint64
	ToBlock   *uint64
	Limit     int
}

type TxResultQueryFilter struct {
	Network string
	Signer  string
	TxHash  string
	Call    string
	Success *bool
	Limit   int
}

// ChainReader reads runtime storage.
type ChainReader interface {
	AccountInfo(ctx context.Context, account domain.AccountID, at *domain.Hash) (domain.AccountInfo, error)
	FinalizedHead(ctx context.Context) (domain.Hash, error)
	AppKeys(ctx context.Context) ([]domain.AppKey, error)
}

// NodeReader asks the node about its own view, including the transaction pool.
type NodeReader interface {
	AccountNextIndex(ctx context.Context, address string) (uint32, error)
}

// Query serves read-only account and application key lookups.
type Query struct {
	chain ChainReader
	node  NodeReader
}

func NewQuery(chain ChainReader, node NodeReader) (*Query, error) {
	if chain == nil || node == nil {
		return nil, errors.New("query dependencies must not be nil")
	}
	return &Query{chain: chain, node: node}, nil
}

// NonceFromState reads the nonce stored at the best block. Transactions still in the
// pool are not counted.
func (q *Query) NonceFromState(ctx context.Context, account domain.AccountID) (uint32, error) {
	info, err := q.chain.AccountInfo(ctx, account, nil)
	if err != nil {
		return 0, fmt.Errorf("read account %s: %w", account.SS58(), err)
	}
	return info.Nonce, nil
}

func (q *Query) NonceFromFinalized(ctx context.Context, account domain.AccountID) (uint32, error) {
	head, err := q.chain.FinalizedHead(ctx)
	if err != nil {
		return 0, fmt.Errorf("finalized head: %w", err)
	}
	info, err := q.chain.AccountInfo(ctx, account, &head)
	if err != nil {
		return 0, fmt.Errorf("read account %s at %s: %w", account.SS58(), head, err)
	}
	return info.Nonce, nil
}

// NonceFromNode returns the next nonce the node would accept, counting its pool.
// Prefer it when sending several transactions in quick succession.
func (q *Query) NonceFromNode(ctx context.Context, account domain.AccountID) (uint32, error) {
	nonce, err := q.node.AccountNextIndex(ctx, account.SS58())
	if err != nil {
		return 0, fmt.Errorf("account next index %s: %w", account.SS58(), err)
	}
	return nonce, nil
}

func (q *Query) Nonce(ctx context.Context, account domain.AccountID, mode domain.NonceMode) (uint32, error) {
	switch mode {
	case domain.NonceBestBlock:
		return q.NonceFromState(ctx, account)
	case domain.NonceFinalizedBlock:
		return q.NonceFromFinalized(ctx, account)
	default:
		return q.NonceFromNode(ctx, account)
	}
}

func (q *Query) Balance(ctx context.Context, account domain.AccountID) (domain.AccountInfo, error) {
	info, err := q.chain.AccountInfo(ctx, account, nil)
	if err != nil {
		return domain.AccountInfo{}, fmt.Errorf("read account %s: %w", account.SS58(), err)
	}
	return info, nil
}

// AppKeys returns the sorted ids of the application keys owned by owner.
func (q *Query) AppKeys(ctx context.Context, owner domain.AccountID) ([]uint32, error) {
	keys, err := q.AppKeyEntries(ctx, &owner)
	if err != nil {
		return nil, err
	}
	return appKeyIDs(keys), nil
}

// AppKeyIDs returns every registered application id, sorted.
func (q *Query) AppKeyIDs(ctx context.Context) ([]uint32, error) {
	keys, err := q.AppKeyEntries(ctx, nil)
	if err != nil {
		return nil, err
	}
	return appKeyIDs(keys), nil
}

// AppKeyEntries lists application keys ordered by id, optionally only those of owner.
func (q *Query) AppKeyEntries(ctx context.Context, owner *domain.AccountID) ([]domain.AppKey, error) {
	keys, err := q.chain.AppKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("read app keys: %w", err)
	}
	out := make([]domain.AppKey, 0, len(keys))
	for _, key := range keys {
		if owner != nil && key.Owner != *owner {
			continue
		}
		out = append(out, key)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func appKeyIDs(keys []domain.AppKey) []uint32 {
	ids := make([]uint32, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key.ID)
	}
	return ids
}
