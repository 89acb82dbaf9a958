package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanewatch/lanewatch/go/internal/timeboost"
)

// stubSource hands the registered callbacks back to the test so events and
// failures can be injected directly.
type stubSource struct {
	mu           sync.Mutex
	onEvent      func(timeboost.TimeboostedTx)
	onError      func(error)
	sub          *stubSubscription
	subscribeErr error
	subscribes   int
}

func (s *stubSource) SubscribeTimeboosted(ctx context.Context, onEvent func(timeboost.TimeboostedTx), onError func(error)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribes++
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	s.onEvent = onEvent
	s.onError = onError
	s.sub = &stubSubscription{}
	return s.sub, nil
}

func (s *stubSource) deliver(tx timeboost.TimeboostedTx) {
	s.mu.Lock()
	onEvent := s.onEvent
	s.mu.Unlock()
	onEvent(tx)
}

func (s *stubSource) fail(err error) {
	s.mu.Lock()
	onError := s.onError
	s.mu.Unlock()
	onError(err)
}

type stubSubscription struct {
	mu       sync.Mutex
	releases int
}

func (s *stubSubscription) Release(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	return nil
}

func (s *stubSubscription) released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

func txAt(block uint64) timeboost.TimeboostedTx {
	return timeboost.TimeboostedTx{
		Hash:        common.BigToHash(common.Big1),
		BlockNumber: block,
		TxIndex:     0,
		From:        common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Controller:  common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
}

func TestFeedBufferTruncatesOldestFirst(t *testing.T) {
	fc := clockwork.NewFakeClock()
	src := &stubSource{}
	f := NewFeedBuffer(fc, "testnet", nil, nil)
	require.NoError(t, f.Start(context.Background(), src))

	for block := uint64(1); block <= 25; block++ {
		src.deliver(txAt(block))
	}

	snap := f.Snapshot()
	require.Len(t, snap.Items, 20)
	assert.Equal(t, uint64(25), snap.TotalReceived)
	assert.Equal(t, uint64(25), snap.Items[0].BlockNumber)
	assert.Equal(t, uint64(6), snap.Items[19].BlockNumber)
	assert.True(t, snap.Streaming)
}

func TestFeedBufferOrdersByArrivalNotChainPosition(t *testing.T) {
	fc := clockwork.NewFakeClock()
	src := &stubSource{}
	f := NewFeedBuffer(fc, "testnet", nil, nil)
	require.NoError(t, f.Start(context.Background(), src))

	src.deliver(txAt(5))
	src.deliver(txAt(3))
	src.deliver(txAt(9))

	snap := f.Snapshot()
	require.Len(t, snap.Items, 3)
	assert.Equal(t, uint64(9), snap.Items[0].BlockNumber)
	assert.Equal(t, uint64(3), snap.Items[1].BlockNumber)
	assert.Equal(t, uint64(5), snap.Items[2].BlockNumber)
}

func TestFeedFreshnessWindow(t *testing.T) {
	fc := clockwork.NewFakeClock()
	src := &stubSource{}
	f := NewFeedBuffer(fc, "testnet", nil, nil)
	require.NoError(t, f.Start(context.Background(), src))

	src.deliver(txAt(1))

	assert.True(t, f.Snapshot().Items[0].Fresh)

	fc.Advance(2999 * time.Millisecond)
	assert.True(t, f.Snapshot().Items[0].Fresh)

	// Exactly 3000ms old is no longer fresh.
	fc.Advance(time.Millisecond)
	assert.False(t, f.Snapshot().Items[0].Fresh)
}

func TestFeedStartWhileStreaming(t *testing.T) {
	fc := clockwork.NewFakeClock()
	src := &stubSource{}
	f := NewFeedBuffer(fc, "testnet", nil, nil)
	require.NoError(t, f.Start(context.Background(), src))

	err := f.Start(context.Background(), src)
	assert.ErrorIs(t, err, ErrAlreadyStreaming)
	assert.Equal(t, 1, src.subscribes)
}

func TestFeedStopReleasesSubscription(t *testing.T) {
	fc := clockwork.NewFakeClock()
	src := &stubSource{}
	f := NewFeedBuffer(fc, "testnet", nil, nil)
	require.NoError(t, f.Start(context.Background(), src))

	require.NoError(t, f.Stop(context.Background()))
	assert.Equal(t, 1, src.sub.released())

	// Stopping again is a no-op.
	require.NoError(t, f.Stop(context.Background()))
	assert.Equal(t, 1, src.sub.released())
}

func TestFeedStopOnIdleBuffer(t *testing.T) {
	fc := clockwork.NewFakeClock()
	f := NewFeedBuffer(fc, "testnet", nil, nil)
	require.NoError(t, f.Stop(context.Background()))
}

func TestFeedStartClearsPreviousRun(t *testing.T) {
	fc := clockwork.NewFakeClock()
	src := &stubSource{}
	f := NewFeedBuffer(fc, "testnet", nil, nil)
	require.NoError(t, f.Start(context.Background(), src))
	src.deliver(txAt(1))
	src.deliver(txAt(2))
	require.NoError(t, f.Stop(context.Background()))

	require.NoError(t, f.Start(context.Background(), src))

	snap := f.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Equal(t, uint64(0), snap.TotalReceived)
}

func TestFeedIgnoresStaleCallbacks(t *testing.T) {
	fc := clockwork.NewFakeClock()
	src := &stubSource{}
	f := NewFeedBuffer(fc, "testnet", nil, nil)
	require.NoError(t, f.Start(context.Background(), src))

	src.mu.Lock()
	staleEvent := src.onEvent
	src.mu.Unlock()

	require.NoError(t, f.Stop(context.Background()))
	require.NoError(t, f.Start(context.Background(), src))

	// A delivery racing the stop must not land in the fresh buffer.
	staleEvent(txAt(99))

	snap := f.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Equal(t, uint64(0), snap.TotalReceived)
}

func TestFeedStreamErrorPreservesBuffer(t *testing.T) {
	fc := clockwork.NewFakeClock()
	src := &stubSource{}
	var gotErr error
	f := NewFeedBuffer(fc, "testnet", nil, func(err error) { gotErr = err })
	require.NoError(t, f.Start(context.Background(), src))
	src.deliver(txAt(1))
	src.deliver(txAt(2))

	streamErr := errors.New("connection reset")
	src.fail(streamErr)

	snap := f.Snapshot()
	assert.False(t, snap.Streaming)
	assert.Equal(t, "connection reset", snap.LastError)
	assert.Len(t, snap.Items, 2)
	assert.Equal(t, uint64(2), snap.TotalReceived)
	assert.Equal(t, streamErr, gotErr)

	streaming, lastErr := f.Streaming()
	assert.False(t, streaming)
	assert.Equal(t, streamErr, lastErr)
}

func TestFeedSubscribeFailure(t *testing.T) {
	fc := clockwork.NewFakeClock()
	src := &stubSource{subscribeErr: errors.New("dial refused")}
	f := NewFeedBuffer(fc, "testnet", nil, nil)

	err := f.Start(context.Background(), src)
	require.Error(t, err)

	streaming, lastErr := f.Streaming()
	assert.False(t, streaming)
	assert.Error(t, lastErr)

	// A later start must succeed once the source recovers.
	src.subscribeErr = nil
	require.NoError(t, f.Start(context.Background(), src))
}

func TestFeedEntryHookFires(t *testing.T) {
	fc := clockwork.NewFakeClock()
	src := &stubSource{}
	var entries []FeedEntry
	f := NewFeedBuffer(fc, "testnet", func(e FeedEntry) { entries = append(entries, e) }, nil)
	require.NoError(t, f.Start(context.Background(), src))

	src.deliver(txAt(7))

	require.Len(t, entries, 1)
	assert.Equal(t, uint64(7), entries[0].Tx.BlockNumber)
	assert.Equal(t, fc.Now(), entries[0].ReceivedAt)
}
