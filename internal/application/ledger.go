package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"availsdk/internal/domain"
	"availsdk/internal/streaming"
)

// LedgerRepository persists watched blocks, data submissions and transaction results.
type LedgerRepository interface {
	StoreBlocks(ctx context.Context, blocks []domain.BlockRecord) error
	StoreSubmissions(ctx context.Context, submissions []domain.SubmissionRecord) error
	StoreTxResults(ctx context.Context, results []domain.TxResultRecord) error
	DeleteBlocksFrom(ctx context.Context, network string, fromBlock uint64) error
	DeleteSubmissionsFrom(ctx context.Context, network string, fromBlock uint64) error
	ClearLastProcessedBlock(ctx context.Context, network string) error
	SetLastProcessedBlock(ctx context.Context, network string, block uint64) error
}

// LedgerQueryRepository serves the read side of the ledger.
type LedgerQueryRepository interface {
	QuerySubmissions(ctx context.Context, filter SubmissionQueryFilter) ([]domain.SubmissionRecord, error)
	QueryTxResults(ctx context.Context, filter TxResultQueryFilter) ([]domain.TxResultRecord, error)
	LastProcessedBlock(ctx context.Context, network string) (uint64, bool, error)
}

func ApplyMessage(ctx context.Context, repo LedgerRepository, msg streaming.Message) error {
	slog.Debug("consume message",
		"id", msg.ID,
		"type", msg.Type,
		"network", msg.Network,
		"block_number", msg.BlockNumber,
		"tx_hash", msg.TxHash,
	)

	if repo == nil {
		return errors.New("ledger repository is required")
	}

	switch msg.Type {
	case streaming.MessageTypeBlock:
		if err := repo.StoreBlocks(ctx, []domain.BlockRecord{MapToBlockRecord(msg)}); err != nil {
			return err
		}
		return repo.SetLastProcessedBlock(ctx, msg.Network, msg.BlockNumber)
	case streaming.MessageTypeSubmission:
		return repo.StoreSubmissions(ctx, []domain.SubmissionRecord{MapToSubmission(msg)})
	case streaming.MessageTypeTxResult:
		return repo.StoreTxResults(ctx, []domain.TxResultRecord{MapToTxResult(msg)})
	case streaming.MessageTypeReorg:
		return applyReorg(ctx, repo, msg.Network, msg.FromBlock)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func applyReorg(ctx context.Context, repo LedgerRepository, network string, from uint64) error {
	if err := repo.DeleteSubmissionsFrom(ctx, network, from); err != nil {
		return err
	}
	if err := repo.DeleteBlocksFrom(ctx, network, from); err != nil {
		return err
	}
	if from == 0 {
		return repo.ClearLastProcessedBlock(ctx, network)
	}
	return repo.SetLastProcessedBlock(ctx, network, from-1)
}

func MapToBlockRecord(msg streaming.Message) domain.BlockRecord {
	return domain.BlockRecord{
		Network:        msg.Network,
		BlockNumber:    msg.BlockNumber,
		BlockHash:      msg.BlockHash,
		ParentHash:     msg.ParentHash,
		ExtrinsicCount: msg.ExtrinsicCount,
	}
}

func MapToSubmission(msg streaming.Message) domain.SubmissionRecord {
	return domain.SubmissionRecord{
		Network:     msg.Network,
		BlockNumber: msg.BlockNumber,
		BlockHash:   msg.BlockHash,
		TxHash:      msg.TxHash,
		TxIndex:     msg.TxIndex,
		Signer:      msg.Signer,
		AppID:       msg.AppID,
		Data:        msg.Data,
		DataSize:    msg.DataSize,
		ObservedAt:  msg.ObservedAt,
	}
}

func MapToTxResult(msg streaming.Message) domain.TxResultRecord {
	return domain.TxResultRecord{
		Network:     msg.Network,
		TxHash:      msg.TxHash,
		BlockHash:   msg.BlockHash,
		BlockNumber: msg.BlockNumber,
		TxIndex:     msg.TxIndex,
		Call:        msg.Call,
		Signer:      msg.Signer,
		Status:      msg.Status,
		Success:     msg.Success,
		Reason:      msg.Reason,
		SubmittedAt: msg.ObservedAt,
	}
}
