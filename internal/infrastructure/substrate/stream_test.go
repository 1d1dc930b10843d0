package substrate

import (
	"errors"
	"sync"
	"testing"
	"time"

	"availsdk/internal/domain"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscription struct {
	errs chan error

	mu           sync.Mutex
	unsubscribed int
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errs: make(chan error, 1)}
}

func (s *fakeSubscription) Err() <-chan error {
	return s.errs
}

func (s *fakeSubscription) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed++
}

func (s *fakeSubscription) unsubscribeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribed
}

func startStream(sub subscription) (*statusStream, chan types.ExtrinsicStatus) {
	raw := make(chan types.ExtrinsicStatus)
	stream := &statusStream{
		hash:    domain.Hash{0x11},
		sub:     sub,
		updates: make(chan domain.TxStatus),
		done:    make(chan struct{}),
	}
	go stream.run(raw)
	return stream, raw
}

func nextStatus(t *testing.T, stream *statusStream) (domain.TxStatus, bool) {
	t.Helper()
	select {
	case status, ok := <-stream.Updates():
		return status, ok
	case <-time.After(2 * time.Second):
		t.Fatal("no status update")
		return domain.TxStatus{}, false
	}
}

func TestStatusStreamForwardsUpdates(t *testing.T) {
	sub := newFakeSubscription()
	stream, raw := startStream(sub)
	defer stream.Close()
	assert.Equal(t, domain.Hash{0x11}, stream.TxHash())

	block := types.NewHash([]byte{0xab})
	go func() {
		raw <- types.ExtrinsicStatus{IsReady: true}
		raw <- types.ExtrinsicStatus{IsInBlock: true, AsInBlock: block}
		raw <- types.ExtrinsicStatus{IsFinalized: true, AsFinalized: block}
	}()

	want := []domain.TxStatus{
		{Kind: domain.StatusReady},
		{Kind: domain.StatusInBlock, BlockHash: domain.Hash(block)},
		{Kind: domain.StatusFinalized, BlockHash: domain.Hash(block)},
	}
	for _, expected := range want {
		status, ok := nextStatus(t, stream)
		require.True(t, ok)
		assert.Equal(t, expected, status)
	}
}

func TestStatusStreamEndsOnSubscriptionError(t *testing.T) {
	sub := newFakeSubscription()
	stream, _ := startStream(sub)
	defer stream.Close()

	sub.errs <- errors.New("connection reset")

	status, ok := nextStatus(t, stream)
	require.True(t, ok)
	assert.Equal(t, domain.StatusError, status.Kind)
	assert.EqualError(t, status.Err, "connection reset")

	_, ok = nextStatus(t, stream)
	assert.False(t, ok, "updates must close after the subscription fails")
}

func TestStatusStreamEndsWhenSubscriptionCloses(t *testing.T) {
	sub := newFakeSubscription()
	stream, _ := startStream(sub)
	defer stream.Close()

	close(sub.errs)

	_, ok := nextStatus(t, stream)
	assert.False(t, ok)
}

func TestStatusStreamCloseUnsubscribesOnce(t *testing.T) {
	sub := newFakeSubscription()
	stream, raw := startStream(sub)

	stream.Close()
	stream.Close()

	_, ok := nextStatus(t, stream)
	assert.False(t, ok)
	assert.Equal(t, 1, sub.unsubscribeCount())

	// A late node update must not block or reach the closed stream.
	select {
	case raw <- types.ExtrinsicStatus{IsReady: true}:
		t.Fatal("run loop still reading after Close")
	case <-time.After(50 * time.Millisecond):
	}
}
