package application

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"availsdk/internal/domain"
)

// BlockSource serves finalized blocks.
type BlockSource interface {
	FinalizedNumber(ctx context.Context) (uint64, error)
	BlockHashAt(ctx context.Context, number uint64) (domain.Hash, bool, error)
	BlockByHash(ctx context.Context, hash domain.Hash) (domain.Block, error)
}

type BlockRepository interface {
	StoreBlocks(ctx context.Context, blocks []domain.BlockRecord) error
	GetBlockHash(ctx context.Context, network string, blockNumber uint64) (string, bool, error)
	DeleteBlocksFrom(ctx context.Context, network string, fromBlock uint64) error
}

type StateRepository interface {
	LastProcessedBlock(ctx context.Context, network string) (uint64, bool, error)
	SetLastProcessedBlock(ctx context.Context, network string, block uint64) error
	ClearLastProcessedBlock(ctx context.Context, network string) error
}

type StreamWriter interface {
	PublishSubmissions(ctx context.Context, submissions []domain.SubmissionRecord) error
	PublishBlocks(ctx context.Context, blocks []domain.BlockRecord) error
	PublishReorg(ctx context.Context, network string, fromBlock uint64, reason string) error
}

type WatcherObserver interface {
	OnLatestBlock(block uint64)
	OnBatchProcessed(fromBlock, toBlock uint64, submissionCount int)
}

type WatcherConfig struct {
	Network      string
	StartBlock   uint64
	PollInterval time.Duration
	BatchSize    uint64
	// AppIDs restricts the published submissions; empty publishes all of them.
	AppIDs []uint32
}

// Watcher follows finalized blocks and publishes the data submissions they contain.
type Watcher struct {
	source   BlockSource
	writer   StreamWriter
	blocks   BlockRepository
	state    StateRepository
	observer WatcherObserver
	cfg      WatcherConfig
	now      func() time.Time
}

var ErrBlockUnavailable = errors.New("block unavailable")

func NewWatcher(source BlockSource, writer StreamWriter, blocks BlockRepository, state StateRepository, observer WatcherObserver, cfg WatcherConfig) (*Watcher, error) {
	if source == nil || writer == nil || blocks == nil || state == nil {
		return nil, errors.New("watcher dependencies must not be nil")
	}
	if strings.TrimSpace(cfg.Network) == "" {
		return nil, errors.New("watcher network is required")
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 20
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Watcher{source: source, writer: writer, blocks: blocks, state: state, observer: observer, cfg: cfg, now: time.Now}, nil
}

func (w *Watcher) Run(ctx context.Context) error {
	for {
		progressed, err := w.Step(ctx)
		if err != nil {
			if !errors.Is(err, ErrBlockUnavailable) {
				return err
			}
			progressed = false
		}
		if progressed {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// Step processes at most one batch. It reports whether any block was processed.
func (w *Watcher) Step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := w.reconcileReorg(ctx); err != nil {
		return false, err
	}

	current := w.cfg.StartBlock
	if last, ok, err := w.state.LastProcessedBlock(ctx, w.cfg.Network); err != nil {
		return false, err
	} else if ok {
		current = last + 1
	}

	latest, err := w.source.FinalizedNumber(ctx)
	if err != nil {
		return false, err
	}
	if w.observer != nil {
		w.observer.OnLatestBlock(latest)
	}
	if current > latest {
		return false, nil
	}

	toBlock := current + w.cfg.BatchSize - 1
	if toBlock > latest {
		toBlock = latest
	}

	records := make([]domain.BlockRecord, 0, int(toBlock-current)+1)
	var submissions []domain.SubmissionRecord
	for number := current; number <= toBlock; number++ {
		hash, ok, err := w.source.BlockHashAt(ctx, number)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, ErrBlockUnavailable
		}
		block, err := w.source.BlockByHash(ctx, hash)
		if err != nil {
			return false, err
		}
		records = append(records, domain.BlockRecord{
			Network:        w.cfg.Network,
			BlockNumber:    number,
			BlockHash:      block.Hash.Hex(),
			ParentHash:     block.ParentHash.Hex(),
			ExtrinsicCount: len(block.Extrinsics),
		})
		observedAt := w.now().UTC()
		for _, submission := range block.DataSubmissions() {
			if len(w.cfg.AppIDs) > 0 && !slices.Contains(w.cfg.AppIDs, submission.AppID) {
				continue
			}
			record := domain.SubmissionFromBlock(w.cfg.Network, block, submission)
			record.ObservedAt = observedAt
			submissions = append(submissions, record)
		}
	}

	if err := w.writer.PublishBlocks(ctx, records); err != nil {
		return false, err
	}
	if err := w.writer.PublishSubmissions(ctx, submissions); err != nil {
		return false, err
	}
	if err := w.blocks.StoreBlocks(ctx, records); err != nil {
		return false, err
	}
	if err := w.state.SetLastProcessedBlock(ctx, w.cfg.Network, toBlock); err != nil {
		return false, err
	}
	if w.observer != nil {
		w.observer.OnBatchProcessed(current, toBlock, len(submissions))
	}
	slog.Info("watched blocks",
		"network", w.cfg.Network,
		"from_block", current,
		"to_block", toBlock,
		"submissions", len(submissions),
	)
	return true, nil
}

// reconcileReorg rewinds progress to the newest stored block that is still canonical,
// never below the configured start block.
func (w *Watcher) reconcileReorg(ctx context.Context) error {
	network := w.cfg.Network
	last, ok, err := w.state.LastProcessedBlock(ctx, network)
	if err != nil || !ok {
		return err
	}
	canonical, stored, err := w.isCanonical(ctx, last)
	if err != nil || !stored || canonical {
		return err
	}

	var rewind *uint64
	for block := last; block > w.cfg.StartBlock; {
		block--
		canonical, stored, err := w.isCanonical(ctx, block)
		if err != nil {
			return err
		}
		if stored && canonical {
			rewind = &block
			break
		}
	}

	from := w.cfg.StartBlock
	if rewind != nil {
		from = *rewind + 1
	}
	slog.Warn("reorg detected", "network", network, "last_block", last, "from_block", from)
	if err := w.blocks.DeleteBlocksFrom(ctx, network, from); err != nil {
		return err
	}
	if err := w.writer.PublishReorg(ctx, network, from, "reorg"); err != nil {
		return err
	}
	if rewind == nil {
		return w.state.ClearLastProcessedBlock(ctx, network)
	}
	return w.state.SetLastProcessedBlock(ctx, network, *rewind)
}

// isCanonical compares the stored hash for block with the chain. stored is false
// when no hash was recorded for block.
func (w *Watcher) isCanonical(ctx context.Context, block uint64) (canonical, stored bool, err error) {
	hash, ok, err := w.blocks.GetBlockHash(ctx, w.cfg.Network, block)
	if err != nil || !ok {
		return false, false, err
	}
	current, ok, err := w.source.BlockHashAt(ctx, block)
	if err != nil {
		return false, true, err
	}
	if !ok {
		return false, true, ErrBlockUnavailable
	}
	return strings.EqualFold(current.Hex(), hash), true, nil
}
