package application

import (
	"context"
	"testing"

	"availsdk/internal/domain"
	"availsdk/internal/streaming"

	"github.com/segmentio/kafka-go"
)

type mockRepo struct {
	blocks      []domain.BlockRecord
	submissions []domain.SubmissionRecord
	results     []domain.TxResultRecord
	lastBlock   map[string]uint64
	deletedFrom map[string]uint64
	cleared     []string
}

func (m *mockRepo) StoreBlocks(ctx context.Context, blocks []domain.BlockRecord) error {
	m.blocks = append(m.blocks, blocks...)
	return nil
}
func (m *mockRepo) StoreSubmissions(ctx context.Context, submissions []domain.SubmissionRecord) error {
	m.submissions = append(m.submissions, submissions...)
	return nil
}
func (m *mockRepo) StoreTxResults(ctx context.Context, results []domain.TxResultRecord) error {
	m.results = append(m.results, results...)
	return nil
}
func (m *mockRepo) SetLastProcessedBlock(ctx context.Context, network string, block uint64) error {
	if m.lastBlock == nil {
		m.lastBlock = make(map[string]uint64)
	}
	m.lastBlock[network] = block
	return nil
}
func (m *mockRepo) DeleteBlocksFrom(ctx context.Context, network string, fromBlock uint64) error {
	if m.deletedFrom == nil {
		m.deletedFrom = make(map[string]uint64)
	}
	m.deletedFrom[network] = fromBlock
	return nil
}
func (m *mockRepo) DeleteSubmissionsFrom(ctx context.Context, network string, fromBlock uint64) error {
	return nil
}
func (m *mockRepo) ClearLastProcessedBlock(ctx context.Context, network string) error {
	m.cleared = append(m.cleared, network)
	return nil
}

type mockCommitter struct {
	committed []kafka.Message
}

func (m *mockCommitter) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.committed = append(m.committed, msgs...)
	return nil
}

func TestBatch_AddAndFlush(t *testing.T) {
	batch := NewBatch()
	repo := &mockRepo{}
	committer := &mockCommitter{}
	ctx := context.Background()

	batch.Add(streaming.Message{
		Type:        streaming.MessageTypeSubmission,
		Network:     "turing",
		BlockNumber: 100,
		TxHash:      "0x1",
		AppID:       1,
		Data:        "0x4d792044617461",
	}, kafka.Message{Offset: 1})

	batch.Add(streaming.Message{
		Type:        streaming.MessageTypeBlock,
		Network:     "turing",
		BlockNumber: 101,
		BlockHash:   "0xBlock",
	}, kafka.Message{Offset: 2})

	batch.Add(streaming.Message{
		Type:    streaming.MessageTypeTxResult,
		Network: "turing",
		TxHash:  "0x2",
		Call:    "Balances.transfer_keep_alive",
		Reason:  "transaction dropped",
	}, kafka.Message{Offset: 3})

	if batch.Len() != 3 {
		t.Errorf("expected batch len 3, got %d", batch.Len())
	}

	if err := batch.Flush(ctx, repo, committer); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if len(repo.submissions) != 1 || repo.submissions[0].AppID != 1 {
		t.Errorf("unexpected submissions %+v", repo.submissions)
	}
	if len(repo.blocks) != 1 {
		t.Errorf("expected 1 block, got %d", len(repo.blocks))
	}
	if len(repo.results) != 1 || repo.results[0].Reason != "transaction dropped" {
		t.Errorf("unexpected tx results %+v", repo.results)
	}
	if repo.lastBlock["turing"] != 101 {
		t.Errorf("expected last processed block 101, got %d", repo.lastBlock["turing"])
	}

	if len(committer.committed) != 3 {
		t.Errorf("expected 3 committed messages, got %d", len(committer.committed))
	}

	if batch.Len() != 0 {
		t.Errorf("expected batch len 0 after reset, got %d", batch.Len())
	}
}

func TestBatch_RefusesReorg(t *testing.T) {
	batch := NewBatch()
	if batch.Add(streaming.Message{Type: streaming.MessageTypeReorg, Network: "turing", FromBlock: 5}, kafka.Message{Offset: 1}) {
		t.Fatalf("expected reorg to be refused")
	}
	if batch.Len() != 0 {
		t.Errorf("expected empty batch, got %d", batch.Len())
	}
}

func TestBatch_FlushEmpty(t *testing.T) {
	batch := NewBatch()
	committer := &mockCommitter{}
	if err := batch.Flush(context.Background(), &mockRepo{}, committer); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if len(committer.committed) != 0 {
		t.Errorf("expected no commits")
	}
}
