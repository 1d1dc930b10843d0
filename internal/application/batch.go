package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"availsdk/internal/domain"
	"availsdk/internal/streaming"

	"github.com/segmentio/kafka-go"
)

// Batch accumulates consumed messages so they can be written and committed together.
type Batch struct {
	blocks      []domain.BlockRecord
	submissions []domain.SubmissionRecord
	results     []domain.TxResultRecord
	messages    []kafka.Message
	maxBlockNum map[string]uint64
	minOffset   map[int]int64
	maxOffset   map[int]int64
}

func NewBatch() *Batch {
	return &Batch{
		maxBlockNum: make(map[string]uint64),
		minOffset:   make(map[int]int64),
		maxOffset:   make(map[int]int64),
	}
}

// Add queues msg and reports whether it was accepted. Reorg messages are refused:
// the caller flushes the batch, then applies the reorg with ApplyMessage.
func (b *Batch) Add(msg streaming.Message, kafkaMsg kafka.Message) bool {
	switch msg.Type {
	case streaming.MessageTypeBlock:
		b.blocks = append(b.blocks, MapToBlockRecord(msg))
		if msg.BlockNumber > b.maxBlockNum[msg.Network] {
			b.maxBlockNum[msg.Network] = msg.BlockNumber
		}
	case streaming.MessageTypeSubmission:
		b.submissions = append(b.submissions, MapToSubmission(msg))
	case streaming.MessageTypeTxResult:
		b.results = append(b.results, MapToTxResult(msg))
	case streaming.MessageTypeReorg:
		return false
	}

	b.messages = append(b.messages, kafkaMsg)

	partition := kafkaMsg.Partition
	offset := kafkaMsg.Offset
	if min, ok := b.minOffset[partition]; !ok || offset < min {
		b.minOffset[partition] = offset
	}
	if max, ok := b.maxOffset[partition]; !ok || offset > max {
		b.maxOffset[partition] = offset
	}
	return true
}

func (b *Batch) Len() int {
	return len(b.messages)
}

type Committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

func (b *Batch) Flush(ctx context.Context, repo LedgerRepository, committer Committer) error {
	if b.Len() == 0 {
		return nil
	}

	start := time.Now()

	if len(b.blocks) > 0 {
		if err := repo.StoreBlocks(ctx, b.blocks); err != nil {
			return fmt.Errorf("failed to store blocks: %w", err)
		}
	}
	if len(b.submissions) > 0 {
		if err := repo.StoreSubmissions(ctx, b.submissions); err != nil {
			return fmt.Errorf("failed to store submissions: %w", err)
		}
	}
	if len(b.results) > 0 {
		if err := repo.StoreTxResults(ctx, b.results); err != nil {
			return fmt.Errorf("failed to store tx results: %w", err)
		}
	}

	for network, blockNum := range b.maxBlockNum {
		if err := repo.SetLastProcessedBlock(ctx, network, blockNum); err != nil {
			return fmt.Errorf("failed to update state for network %s: %w", network, err)
		}
	}

	if err := committer.CommitMessages(ctx, b.messages...); err != nil {
		return fmt.Errorf("failed to commit kafka messages: %w", err)
	}

	slog.Info("flushed batch",
		"count", b.Len(),
		"blocks", len(b.blocks),
		"submissions", len(b.submissions),
		"tx_results", len(b.results),
		"duration", time.Since(start),
	)

	b.Reset()
	return nil
}

func (b *Batch) Reset() {
	b.blocks = b.blocks[:0]
	b.submissions = b.submissions[:0]
	b.results = b.results[:0]
	b.messages = b.messages[:0]
	clear(b.maxBlockNum)
	clear(b.minOffset)
	clear(b.maxOffset)
}
