package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"availsdk/internal/domain"
	"availsdk/internal/streaming"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishSubmissions(t *testing.T) {
	writer := &recordingWriter{}
	producer := newProducer(writer, "")

	err := producer.PublishSubmissions(context.Background(), []domain.SubmissionRecord{{
		Network:     "turing",
		BlockNumber: 10,
		BlockHash:   "0x01",
		TxHash:      "0xaa",
		TxIndex:     1,
		AppID:       3,
		Data:        "0x4d792044617461",
		DataSize:    7,
	}})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "avail-turing", msg.Topic)
	assert.Equal(t, "0xaa", string(msg.Key))
	decoded, err := streaming.Decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, streaming.MessageTypeSubmission, decoded.Type)
	assert.Equal(t, uint32(3), decoded.AppID)
	assert.Equal(t, "0x4d792044617461", decoded.Data)
	assert.Len(t, decoded.TraceID, 32)
	assert.NotEmpty(t, decoded.ID)
}

func TestPublishRejectsMissingNetwork(t *testing.T) {
	writer := &recordingWriter{}
	producer := newProducer(writer, "test")
	err := producer.PublishBlocks(context.Background(), []domain.BlockRecord{{BlockNumber: 1}})
	assert.Error(t, err)
	assert.Empty(t, writer.messages)
}

func TestPublishPropagatesWriteError(t *testing.T) {
	writer := &recordingWriter{err: errors.New("broker down")}
	producer := newProducer(writer, "test")
	err := producer.PublishTxResults(context.Background(), []domain.TxResultRecord{{Network: "local", TxHash: "0x01", Call: "Balances.transfer_keep_alive"}})
	assert.EqualError(t, err, "broker down")
}

func TestPublishReorg(t *testing.T) {
	writer := &recordingWriter{}
	producer := newProducer(writer, "test")
	require.NoError(t, producer.PublishReorg(context.Background(), "local", 42, "hash mismatch"))
	require.Len(t, writer.messages, 1)
	decoded, err := streaming.Decode(writer.messages[0].Value)
	require.NoError(t, err)
	assert.Equal(t, streaming.MessageTypeReorg, decoded.Type)
	assert.Equal(t, uint64(42), decoded.FromBlock)
	assert.Equal(t, "test-local", writer.messages[0].Topic)
}

func TestNewReaderValidation(t *testing.T) {
	_, err := NewReader(ConsumerConfig{GroupID: "g", Network: "local"})
	assert.Error(t, err)
	_, err = NewReader(ConsumerConfig{Brokers: []string{"b"}, Network: "local"})
	assert.Error(t, err)
	_, err = NewReader(ConsumerConfig{Brokers: []string{"b"}, GroupID: "g"})
	assert.Error(t, err)
}

// queueReader serves queued messages, then blocks until the fetch context ends.
type queueReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *queueReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *queueReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type memoryLedger struct {
	mu          sync.Mutex
	blocks      []domain.BlockRecord
	submissions []domain.SubmissionRecord
	last        map[string]uint64
	deletedFrom []uint64
}

func (m *memoryLedger) StoreBlocks(_ context.Context, blocks []domain.BlockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, blocks...)
	return nil
}

func (m *memoryLedger) StoreSubmissions(_ context.Context, subs []domain.SubmissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = append(m.submissions, subs...)
	return nil
}

func (m *memoryLedger) StoreTxResults(context.Context, []domain.TxResultRecord) error { return nil }

func (m *memoryLedger) DeleteBlocksFrom(_ context.Context, _ string, from uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedFrom = append(m.deletedFrom, from)
	return nil
}

func (m *memoryLedger) DeleteSubmissionsFrom(context.Context, string, uint64) error { return nil }

func (m *memoryLedger) ClearLastProcessedBlock(_ context.Context, network string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.last, network)
	return nil
}

func (m *memoryLedger) SetLastProcessedBlock(_ context.Context, network string, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		m.last = make(map[string]uint64)
	}
	m.last[network] = block
	return nil
}

func encoded(t *testing.T, offset int64, msg streaming.Message) kafka.Message {
	t.Helper()
	payload, err := streaming.Encode(msg)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: payload}
}

func TestConsumerFlushesAndAppliesReorg(t *testing.T) {
	reader := &queueReader{queue: []kafka.Message{
		encoded(t, 0, streaming.Message{Type: streaming.MessageTypeBlock, Network: "local", BlockNumber: 5, BlockHash: "0x05"}),
		encoded(t, 1, streaming.Message{Type: streaming.MessageTypeSubmission, Network: "local", BlockNumber: 5, TxHash: "0xaa"}),
		{Offset: 2, Value: []byte("not json")},
		encoded(t, 3, streaming.Message{Type: streaming.MessageTypeReorg, Network: "local", FromBlock: 5}),
	}}
	ledger := &memoryLedger{}
	consumer, err := NewConsumer(reader, ledger, nil, ConsumerConfig{Network: "local", FlushInterval: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.committedCount() == 4 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	assert.Len(t, ledger.blocks, 1)
	assert.Len(t, ledger.submissions, 1)
	assert.Equal(t, []uint64{5}, ledger.deletedFrom)
	assert.Equal(t, uint64(4), ledger.last["local"])
}

func TestNewConsumerValidation(t *testing.T) {
	_, err := NewConsumer(nil, &memoryLedger{}, nil, ConsumerConfig{})
	assert.Error(t, err)
	_, err = NewConsumer(&queueReader{}, nil, nil, ConsumerConfig{})
	assert.Error(t, err)
}
