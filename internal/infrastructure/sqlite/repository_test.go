package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"availsdk/internal/application"
	"availsdk/internal/domain"
	"availsdk/internal/streaming"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func submission(block uint64, index uint32, appID uint32) domain.SubmissionRecord {
	return domain.SubmissionRecord{
		Network:     "local",
		BlockNumber: block,
		BlockHash:   fmt.Sprintf("0x%02x", block),
		TxHash:      "0xtx",
		TxIndex:     index,
		Signer:      "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY",
		AppID:       appID,
		Data:        "0x4d792044617461",
		DataSize:    7,
		ObservedAt:  time.UnixMilli(1700000000000).UTC(),
	}
}

func TestNewRepositoryRequiresPath(t *testing.T) {
	_, err := NewRepository("")
	assert.Error(t, err)
}

func TestSubmissionsAreIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	subs := []domain.SubmissionRecord{submission(1, 1, 1), submission(2, 1, 2), submission(2, 2, 1)}
	require.NoError(t, repo.StoreSubmissions(ctx, subs))
	require.NoError(t, repo.StoreSubmissions(ctx, subs[:1]))

	all, err := repo.QuerySubmissions(ctx, application.SubmissionQueryFilter{Network: "local"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, subs[0], all[0])

	appID := uint32(1)
	from := uint64(2)
	filtered, err := repo.QuerySubmissions(ctx, application.SubmissionQueryFilter{AppID: &appID, FromBlock: &from})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, uint32(2), filtered[0].TxIndex)
}

func TestDeleteSubmissionsFrom(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.StoreSubmissions(ctx, []domain.SubmissionRecord{submission(1, 1, 1), submission(2, 1, 1)}))
	require.NoError(t, repo.DeleteSubmissionsFrom(ctx, "local", 2))

	remaining, err := repo.QuerySubmissions(ctx, application.SubmissionQueryFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, uint64(1), remaining[0].BlockNumber)
}

func TestBlocksUpsertAndDelete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.StoreBlocks(ctx, []domain.BlockRecord{
		{Network: "local", BlockNumber: 1, BlockHash: "0x01"},
		{Network: "local", BlockNumber: 2, BlockHash: "0x02"},
	}))
	require.NoError(t, repo.StoreBlocks(ctx, []domain.BlockRecord{{Network: "local", BlockNumber: 2, BlockHash: "0x22"}}))

	hash, ok, err := repo.GetBlockHash(ctx, "local", 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0x22", hash)

	require.NoError(t, repo.DeleteBlocksFrom(ctx, "local", 2))
	_, ok, err = repo.GetBlockHash(ctx, "local", 2)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = repo.GetBlockHash(ctx, "other", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTxResultsKeepLatestOutcome(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	pending := domain.TxResultRecord{Network: "local", TxHash: "0xaa", Call: "DataAvailability.submit_data", Signer: "alice", Status: "in_block", Success: true}
	require.NoError(t, repo.StoreTxResults(ctx, []domain.TxResultRecord{pending}))
	final := pending
	final.Status = "finalized"
	final.Success = false
	final.Reason = "Balances.InsufficientBalance"
	require.NoError(t, repo.StoreTxResults(ctx, []domain.TxResultRecord{final}))

	failed := false
	results, err := repo.QueryTxResults(ctx, application.TxResultQueryFilter{Success: &failed})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "finalized", results[0].Status)
	assert.Equal(t, "Balances.InsufficientBalance", results[0].Reason)
}

func TestLastProcessedBlock(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, ok, err := repo.LastProcessedBlock(ctx, "local")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetLastProcessedBlock(ctx, "local", 10))
	require.NoError(t, repo.SetLastProcessedBlock(ctx, "local", 12))
	last, ok, err := repo.LastProcessedBlock(ctx, "local")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(12), last)

	require.NoError(t, repo.ClearLastProcessedBlock(ctx, "local"))
	_, ok, err = repo.LastProcessedBlock(ctx, "local")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyMessageReorgThroughRepository(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.StoreSubmissions(ctx, []domain.SubmissionRecord{submission(1, 1, 1), submission(3, 1, 1)}))
	require.NoError(t, repo.SetLastProcessedBlock(ctx, "local", 3))

	err := application.ApplyMessage(ctx, repo, streaming.Message{Type: streaming.MessageTypeReorg, Network: "local", FromBlock: 2})
	require.NoError(t, err)

	remaining, err := repo.QuerySubmissions(ctx, application.SubmissionQueryFilter{Network: "local"})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	last, ok, err := repo.LastProcessedBlock(ctx, "local")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), last)
}
