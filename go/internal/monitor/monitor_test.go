package monitor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanewatch/lanewatch/go/internal/timeboost"
)

type fakeAuctionClient struct {
	stubSource

	statusMu  sync.Mutex
	status    timeboost.AuctionStatus
	statusErr error
	econ      timeboost.Economics
}

func (c *fakeAuctionClient) AuctionStatus(ctx context.Context) (timeboost.AuctionStatus, error) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if c.statusErr != nil {
		return timeboost.AuctionStatus{}, c.statusErr
	}
	return c.status, nil
}

func (c *fakeAuctionClient) Economics(ctx context.Context) (timeboost.Economics, error) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.econ, nil
}

func (c *fakeAuctionClient) setStatus(status timeboost.AuctionStatus) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.status = status
	c.statusErr = nil
}

func (c *fakeAuctionClient) setStatusErr(err error) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.statusErr = err
}

type captureSink struct {
	mu     sync.Mutex
	events []*timeboost.Event
}

func (s *captureSink) Publish(evt *timeboost.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *captureSink) byType(typ timeboost.EventType) []*timeboost.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*timeboost.Event
	for _, evt := range s.events {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

func biddingStatus() timeboost.AuctionStatus {
	return timeboost.AuctionStatus{
		Round:                  7,
		Phase:                  timeboost.PhaseBidding,
		TimeUntilAuctionCloses: 42,
		TimeUntilRoundStarts:   57,
		Controller:             common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}
}

func TestRefreshAppliesStatusAndEconomics(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeAuctionClient{
		status: biddingStatus(),
		econ: timeboost.Economics{
			BiddingToken:       common.HexToAddress("0x4444444444444444444444444444444444444444"),
			ReservePrice:       big.NewInt(1_000_000_000),
			MinReservePrice:    big.NewInt(500_000_000),
			Beneficiary:        common.HexToAddress("0x5555555555555555555555555555555555555555"),
			BeneficiaryBalance: big.NewInt(123_456_789),
		},
	}
	m := New("arbitrum-one", client, fc, nil)

	require.NoError(t, m.refresh(context.Background()))

	snap := m.Snapshot()
	assert.Equal(t, "arbitrum-one", snap.Network)
	assert.Equal(t, timeboost.PhaseBidding, snap.Phase)
	assert.Equal(t, uint64(7), snap.Round)
	assert.Equal(t, "0x3333333333333333333333333333333333333333", snap.Controller)
	require.NotNil(t, snap.AuctionCloseSec)
	assert.Equal(t, 42, *snap.AuctionCloseSec)
	require.NotNil(t, snap.RoundStartSec)
	assert.Equal(t, 57, *snap.RoundStartSec)
	require.NotNil(t, snap.Economics)
	assert.Equal(t, "1000000000", snap.Economics.ReservePrice)
	assert.Equal(t, "500000000", snap.Economics.MinReservePrice)
	assert.Equal(t, "123456789", snap.Economics.BeneficiaryBalance)
	require.NotNil(t, snap.LastPollAt)
	assert.Equal(t, fc.Now(), *snap.LastPollAt)
	assert.Empty(t, snap.LastPollError)
}

func TestPhaseChangeResetsCountdowns(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeAuctionClient{status: biddingStatus()}
	m := New("arbitrum-one", client, fc, nil)
	require.NoError(t, m.refresh(context.Background()))

	client.setStatus(timeboost.AuctionStatus{
		Round:                8,
		Phase:                timeboost.PhaseActive,
		TimeUntilRoundStarts: 12,
	})
	require.NoError(t, m.refresh(context.Background()))

	snap := m.Snapshot()
	assert.Equal(t, timeboost.PhaseActive, snap.Phase)
	assert.Nil(t, snap.AuctionCloseSec, "auction close countdown must clear outside bidding/closing")
	require.NotNil(t, snap.RoundStartSec)
	assert.Equal(t, 12, *snap.RoundStartSec)
}

func TestCountdownSurvivesPollFailure(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeAuctionClient{status: biddingStatus()}
	m := New("arbitrum-one", client, fc, nil)
	require.NoError(t, m.refresh(context.Background()))

	client.setStatusErr(errors.New("node unreachable"))
	err := m.refresh(context.Background())
	require.Error(t, err)
	m.pollFailed(err)

	snap := m.Snapshot()
	require.NotNil(t, snap.AuctionCloseSec)
	assert.Equal(t, 42, *snap.AuctionCloseSec)
	assert.Contains(t, snap.LastPollError, "node unreachable")

	// Local ticking continues on the last known value.
	m.auctionClose.Tick()
	snap = m.Snapshot()
	require.NotNil(t, snap.AuctionCloseSec)
	assert.Equal(t, 41, *snap.AuctionCloseSec)
}

func TestResolvingPhaseOnlyShowsRoundStart(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeAuctionClient{status: timeboost.AuctionStatus{
		Round:                  3,
		Phase:                  timeboost.PhaseResolving,
		TimeUntilAuctionCloses: 5,
		TimeUntilRoundStarts:   30,
	}}
	m := New("arbitrum-one", client, fc, nil)

	require.NoError(t, m.refresh(context.Background()))

	snap := m.Snapshot()
	assert.Nil(t, snap.AuctionCloseSec)
	require.NotNil(t, snap.RoundStartSec)
	assert.Equal(t, 30, *snap.RoundStartSec)
}

func TestSwitchTargetReleasesOldSubscriptionAndResets(t *testing.T) {
	fc := clockwork.NewFakeClock()
	ctx := context.Background()
	client1 := &fakeAuctionClient{status: biddingStatus()}
	client2 := &fakeAuctionClient{}
	m := New("arbitrum-one", client1, fc, nil)

	require.NoError(t, m.feed.Start(ctx, m.source()))
	client1.deliver(txAt(1))
	client1.deliver(txAt(2))
	require.NoError(t, m.refresh(ctx))

	require.NoError(t, m.SwitchTarget(ctx, client2))

	assert.Equal(t, 1, client1.sub.released())
	assert.Equal(t, 1, client2.subscribes)

	snap := m.Snapshot()
	assert.Equal(t, timeboost.PhaseUnknown, snap.Phase)
	assert.Equal(t, uint64(0), snap.Round)
	assert.Nil(t, snap.AuctionCloseSec)
	assert.Nil(t, snap.RoundStartSec)
	assert.Empty(t, snap.Feed.Items)
	assert.Equal(t, uint64(0), snap.Feed.TotalReceived)
	assert.Nil(t, snap.Economics)

	// Deliveries from the replaced client must not reach the buffer.
	client1.deliver(txAt(3))
	assert.Equal(t, uint64(0), m.Snapshot().Feed.TotalReceived)
}

func TestRefreshEmitsEvents(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sink := &captureSink{}
	client := &fakeAuctionClient{status: biddingStatus()}
	m := New("arbitrum-one", client, fc, sink)

	require.NoError(t, m.refresh(context.Background()))

	changed := sink.byType(timeboost.EventTypePhaseChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "arbitrum-one", changed[0].Network)

	// One tick per countdown sample applied.
	ticks := sink.byType(timeboost.EventTypeTimerTick)
	assert.Len(t, ticks, 2)
}
