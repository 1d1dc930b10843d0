package application

import (
	"context"
	"testing"
	"time"

	"availsdk/internal/domain"
)

type fakeChainSource struct {
	finalized uint64
	hashes    map[uint64]domain.Hash
	blocks    map[domain.Hash]domain.Block
}

func newFakeChainSource(finalized uint64) *fakeChainSource {
	source := &fakeChainSource{
		finalized: finalized,
		hashes:    make(map[uint64]domain.Hash),
		blocks:    make(map[domain.Hash]domain.Block),
	}
	for n := uint64(0); n <= finalized; n++ {
		source.setBlock(n, byte(n), nil)
	}
	return source
}

func (s *fakeChainSource) setBlock(number uint64, tag byte, extrinsics []domain.Extrinsic) {
	hash := domain.Hash{tag, byte(number)}
	s.hashes[number] = hash
	s.blocks[hash] = domain.Block{
		Hash:       hash,
		Number:     uint32(number),
		ParentHash: domain.Hash{0xff, byte(number)},
		Extrinsics: extrinsics,
	}
}

func (s *fakeChainSource) FinalizedNumber(ctx context.Context) (uint64, error) {
	return s.finalized, nil
}

func (s *fakeChainSource) BlockHashAt(ctx context.Context, number uint64) (domain.Hash, bool, error) {
	hash, ok := s.hashes[number]
	return hash, ok, nil
}

func (s *fakeChainSource) BlockByHash(ctx context.Context, hash domain.Hash) (domain.Block, error) {
	return s.blocks[hash], nil
}

type memoryWatchStore struct {
	hashes  map[uint64]string
	last    *uint64
	deleted []uint64
	lookups []uint64
}

func newMemoryWatchStore() *memoryWatchStore {
	return &memoryWatchStore{hashes: make(map[uint64]string)}
}

func (m *memoryWatchStore) StoreBlocks(ctx context.Context, blocks []domain.BlockRecord) error {
	for _, block := range blocks {
		m.hashes[block.BlockNumber] = block.BlockHash
	}
	return nil
}

func (m *memoryWatchStore) GetBlockHash(ctx context.Context, network string, blockNumber uint64) (string, bool, error) {
	m.lookups = append(m.lookups, blockNumber)
	hash, ok := m.hashes[blockNumber]
	return hash, ok, nil
}

func (m *memoryWatchStore) DeleteBlocksFrom(ctx context.Context, network string, fromBlock uint64) error {
	m.deleted = append(m.deleted, fromBlock)
	for number := range m.hashes {
		if number >= fromBlock {
			delete(m.hashes, number)
		}
	}
	return nil
}

func (m *memoryWatchStore) LastProcessedBlock(ctx context.Context, network string) (uint64, bool, error) {
	if m.last == nil {
		return 0, false, nil
	}
	return *m.last, true, nil
}

func (m *memoryWatchStore) SetLastProcessedBlock(ctx context.Context, network string, block uint64) error {
	m.last = &block
	return nil
}

func (m *memoryWatchStore) ClearLastProcessedBlock(ctx context.Context, network string) error {
	m.last = nil
	return nil
}

type recordingWriter struct {
	blocks      []domain.BlockRecord
	submissions []domain.SubmissionRecord
	reorgs      []uint64
}

func (w *recordingWriter) PublishSubmissions(ctx context.Context, submissions []domain.SubmissionRecord) error {
	w.submissions = append(w.submissions, submissions...)
	return nil
}

func (w *recordingWriter) PublishBlocks(ctx context.Context, blocks []domain.BlockRecord) error {
	w.blocks = append(w.blocks, blocks...)
	return nil
}

func (w *recordingWriter) PublishReorg(ctx context.Context, network string, fromBlock uint64, reason string) error {
	w.reorgs = append(w.reorgs, fromBlock)
	return nil
}

func newTestWatcher(t *testing.T, source *fakeChainSource, store *memoryWatchStore, writer *recordingWriter, cfg WatcherConfig) *Watcher {
	t.Helper()
	cfg.Network = "turing"
	watcher, err := NewWatcher(source, writer, store, store, nil, cfg)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	watcher.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return watcher
}

func TestWatcherStepPublishesFilteredSubmissions(t *testing.T) {
	source := newFakeChainSource(3)
	other := dataExtrinsic("other")
	other.Index = 2
	other.AppID = 7
	other.Hash = domain.Hash{0xcc}
	source.setBlock(2, 2, []domain.Extrinsic{dataExtrinsic("hello"), other})
	store := newMemoryWatchStore()
	writer := &recordingWriter{}
	watcher := newTestWatcher(t, source, store, writer, WatcherConfig{StartBlock: 1, BatchSize: 10, AppIDs: []uint32{1}})

	progressed, err := watcher.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !progressed {
		t.Fatalf("expected progress")
	}
	if len(writer.blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(writer.blocks))
	}
	if len(writer.submissions) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(writer.submissions))
	}
	got := writer.submissions[0]
	if got.BlockNumber != 2 || got.AppID != 1 || got.Data != "0x68656c6c6f" {
		t.Errorf("unexpected submission: %+v", got)
	}
	if got.ObservedAt.IsZero() {
		t.Errorf("expected observed time")
	}
	if store.last == nil || *store.last != 3 {
		t.Errorf("expected last processed block 3, got %v", store.last)
	}

	progressed, err = watcher.Step(context.Background())
	if err != nil {
		t.Fatalf("second step: %v", err)
	}
	if progressed {
		t.Errorf("expected no progress at the finalized head")
	}
}

func TestWatcherStepRespectsBatchSize(t *testing.T) {
	source := newFakeChainSource(10)
	store := newMemoryWatchStore()
	writer := &recordingWriter{}
	watcher := newTestWatcher(t, source, store, writer, WatcherConfig{StartBlock: 5, BatchSize: 2})

	if _, err := watcher.Step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(writer.blocks) != 2 || writer.blocks[0].BlockNumber != 5 || writer.blocks[1].BlockNumber != 6 {
		t.Errorf("unexpected blocks: %+v", writer.blocks)
	}
}

func TestWatcherRewindsOnReorg(t *testing.T) {
	source := newFakeChainSource(5)
	store := newMemoryWatchStore()
	writer := &recordingWriter{}
	watcher := newTestWatcher(t, source, store, writer, WatcherConfig{StartBlock: 1, BatchSize: 10})

	if _, err := watcher.Step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}

	source.setBlock(4, 0xee, nil)
	source.setBlock(5, 0xee, nil)

	if _, err := watcher.Step(context.Background()); err != nil {
		t.Fatalf("reorg step: %v", err)
	}
	if len(writer.reorgs) != 1 || writer.reorgs[0] != 4 {
		t.Fatalf("expected reorg from block 4, got %v", writer.reorgs)
	}
	if len(store.deleted) != 1 || store.deleted[0] != 4 {
		t.Errorf("expected blocks deleted from 4, got %v", store.deleted)
	}
	if store.hashes[5] != source.hashes[5].Hex() {
		t.Errorf("expected block 5 re-stored with the new hash")
	}
	if store.last == nil || *store.last != 5 {
		t.Errorf("expected last processed block 5, got %v", store.last)
	}
}

func TestWatcherReorgStopsAtStartBlock(t *testing.T) {
	const start = 1_000_000
	source := &fakeChainSource{
		finalized: start + 3,
		hashes:    make(map[uint64]domain.Hash),
		blocks:    make(map[domain.Hash]domain.Block),
	}
	for n := uint64(start); n <= start+3; n++ {
		source.setBlock(n, 1, nil)
	}
	store := newMemoryWatchStore()
	writer := &recordingWriter{}
	watcher := newTestWatcher(t, source, store, writer, WatcherConfig{StartBlock: start, BatchSize: 10})

	if _, err := watcher.Step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}

	// Every watched block changes, so no stored block stays canonical.
	for n := uint64(start); n <= start+3; n++ {
		source.setBlock(n, 0xee, nil)
	}
	store.lookups = nil

	if _, err := watcher.Step(context.Background()); err != nil {
		t.Fatalf("reorg step: %v", err)
	}
	if len(store.lookups) != 4 {
		t.Fatalf("expected 4 stored hash lookups, got %d", len(store.lookups))
	}
	for _, n := range store.lookups {
		if n < start {
			t.Errorf("looked up block %d below the start block", n)
		}
	}
	if len(writer.reorgs) != 1 || writer.reorgs[0] != start {
		t.Errorf("expected reorg from the start block, got %v", writer.reorgs)
	}
	if len(store.deleted) != 1 || store.deleted[0] != start {
		t.Errorf("expected blocks deleted from the start block, got %v", store.deleted)
	}
	if store.hashes[start] != source.hashes[start].Hex() {
		t.Errorf("expected the start block re-stored with the new hash")
	}
	if store.last == nil || *store.last != start+3 {
		t.Errorf("expected last processed block %d, got %v", start+3, store.last)
	}
}

func TestNewWatcherValidates(t *testing.T) {
	store := newMemoryWatchStore()
	if _, err := NewWatcher(nil, &recordingWriter{}, store, store, nil, WatcherConfig{Network: "turing"}); err == nil {
		t.Errorf("expected error for nil source")
	}
	if _, err := NewWatcher(newFakeChainSource(0), &recordingWriter{}, store, store, nil, WatcherConfig{}); err == nil {
		t.Errorf("expected error for empty network")
	}
}
