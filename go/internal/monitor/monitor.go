package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/lanewatch/lanewatch/go/internal/timeboost"
)

// AuctionClient is the external RPC collaborator the monitor polls and
// streams from. Implemented by the auctionrpc client.
type AuctionClient interface {
	AuctionStatus(ctx context.Context) (timeboost.AuctionStatus, error)
	Economics(ctx context.Context) (timeboost.Economics, error)
	TimeboostedSource
}

// EconomicsView is the display form of the auction economics panel.
// Amounts are decimal strings so browser clients never lose precision.
type EconomicsView struct {
	BiddingToken       string `json:"bidding_token"`
	ReservePrice       string `json:"reserve_price"`
	MinReservePrice    string `json:"min_reserve_price"`
	Beneficiary        string `json:"beneficiary"`
	BeneficiaryBalance string `json:"beneficiary_balance"`
}

// DashboardState is the full panel state for one network, served to
// browsers on connect and via the REST state endpoint.
type DashboardState struct {
	Network         string          `json:"network"`
	Phase           timeboost.Phase `json:"phase"`
	Round           uint64          `json:"round"`
	Controller      string          `json:"controller"`
	AuctionCloseSec *int            `json:"auction_close_sec,omitempty"`
	RoundStartSec   *int            `json:"round_start_sec,omitempty"`
	Economics       *EconomicsView  `json:"economics,omitempty"`
	Feed            FeedSnapshot    `json:"feed"`
	LastPollAt      *time.Time      `json:"last_poll_at,omitempty"`
	LastPollError   string          `json:"last_poll_error,omitempty"`
}

// Monitor owns the dashboard state for a single network: the two phase
// countdowns, the timeboosted-transaction feed, and the controller and
// economics panels. All state is refreshed by one poll loop and one push
// subscription; teardown always cancels both before the state is replaced.
type Monitor struct {
	network string
	clock   clockwork.Clock
	sink    timeboost.Sink

	auctionClose *CountdownReconciler
	roundStart   *CountdownReconciler
	feed         *FeedBuffer
	poller       *Poller

	mu          sync.Mutex
	client      AuctionClient
	phase       timeboost.Phase
	round       uint64
	controller  common.Address
	economics   *timeboost.Economics
	lastPollAt  time.Time
	lastPollErr error
}

// New creates a monitor for the given network backed by client. sink may
// be nil when no event fan-out is wanted (tests).
func New(network string, client AuctionClient, clock clockwork.Clock, sink timeboost.Sink) *Monitor {
	m := &Monitor{
		network: network,
		clock:   clock,
		sink:    sink,
		client:  client,
		phase:   timeboost.PhaseUnknown,
	}
	m.auctionClose = NewCountdownReconciler(clock, func(remaining int, active bool) {
		m.emitTick(timeboost.CountdownAuctionClose, remaining, active)
	})
	m.roundStart = NewCountdownReconciler(clock, func(remaining int, active bool) {
		m.emitTick(timeboost.CountdownRoundStart, remaining, active)
	})
	m.feed = NewFeedBuffer(clock, network, m.emitFeedEntry, m.emitStreamError)
	m.poller = NewPoller(clock, pollInterval, m.refresh, m.pollFailed)
	return m
}

// Run starts the push subscription and the poll loop and blocks until ctx
// is cancelled, then tears both down. A subscription that cannot be opened
// is reported on the feed state but does not prevent polling.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.feed.Start(ctx, m.source()); err != nil {
		log.Warn().Err(err).Str("network", m.network).Msg("timeboosted feed unavailable")
	}

	err := m.poller.Run(ctx)

	// Teardown must not inherit the cancelled ctx or release would never
	// complete.
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if stopErr := m.feed.Stop(releaseCtx); stopErr != nil {
		log.Error().Err(stopErr).Str("network", m.network).Msg("feed teardown failed")
	}
	m.auctionClose.Reset()
	m.roundStart.Reset()
	return err
}

// SwitchTarget repoints the monitor at a different RPC client. The old
// subscription is fully released before the buffer, counters and countdowns
// are reset, so an orphaned subscription can never push into fresh state.
func (m *Monitor) SwitchTarget(ctx context.Context, client AuctionClient) error {
	if err := m.feed.Stop(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.client = client
	m.phase = timeboost.PhaseUnknown
	m.round = 0
	m.controller = common.Address{}
	m.economics = nil
	m.lastPollAt = time.Time{}
	m.lastPollErr = nil
	m.mu.Unlock()

	m.auctionClose.Reset()
	m.roundStart.Reset()

	return m.feed.Start(ctx, m.source())
}

// Snapshot assembles the current dashboard state. Feed freshness flags are
// recomputed against the clock on every call.
func (m *Monitor) Snapshot() DashboardState {
	m.mu.Lock()
	state := DashboardState{
		Network:    m.network,
		Phase:      m.phase,
		Round:      m.round,
		Controller: m.controller.Hex(),
	}
	if m.economics != nil {
		state.Economics = &EconomicsView{
			BiddingToken:       m.economics.BiddingToken.Hex(),
			ReservePrice:       m.economics.ReservePrice.String(),
			MinReservePrice:    m.economics.MinReservePrice.String(),
			Beneficiary:        m.economics.Beneficiary.Hex(),
			BeneficiaryBalance: m.economics.BeneficiaryBalance.String(),
		}
	}
	if !m.lastPollAt.IsZero() {
		at := m.lastPollAt
		state.LastPollAt = &at
	}
	if m.lastPollErr != nil {
		state.LastPollError = m.lastPollErr.Error()
	}
	m.mu.Unlock()

	if v, ok := m.auctionClose.Value(); ok {
		state.AuctionCloseSec = &v
	}
	if v, ok := m.roundStart.Value(); ok {
		state.RoundStartSec = &v
	}
	state.Feed = m.feed.Snapshot()
	return state
}

// Network returns the network this monitor serves.
func (m *Monitor) Network() string {
	return m.network
}

// refresh is one poll: fetch authoritative status and economics and apply
// them to the display state.
func (m *Monitor) refresh(ctx context.Context) error {
	client := m.currentClient()

	status, err := client.AuctionStatus(ctx)
	if err != nil {
		return fmt.Errorf("auction status: %w", err)
	}
	m.applyStatus(status)

	econ, err := client.Economics(ctx)
	if err != nil {
		return fmt.Errorf("auction economics: %w", err)
	}
	m.applyEconomics(econ)
	return nil
}

// applyStatus routes one authoritative status reading into the countdown
// reconcilers and the controller panel. A phase change clears both
// countdowns before the new samples are applied.
func (m *Monitor) applyStatus(status timeboost.AuctionStatus) {
	m.mu.Lock()
	prev := m.phase
	phaseChanged := status.Phase != prev
	m.phase = status.Phase
	m.round = status.Round
	m.controller = status.Controller
	m.lastPollAt = m.clock.Now()
	m.lastPollErr = nil
	m.mu.Unlock()

	if phaseChanged {
		m.auctionClose.Reset()
		m.roundStart.Reset()
		m.emit(timeboost.EventTypePhaseChanged, timeboost.PhaseChangedPayload{
			PreviousPhase: prev,
			Phase:         status.Phase,
			Round:         status.Round,
		})
		log.Info().
			Str("network", m.network).
			Str("previous_phase", string(prev)).
			Str("phase", string(status.Phase)).
			Uint64("round", status.Round).
			Msg("auction phase changed")
	}

	// The auction-close countdown only exists while bidding is open or
	// closing; the round-start countdown runs across the whole cycle.
	switch status.Phase {
	case timeboost.PhaseBidding, timeboost.PhaseClosing:
		m.auctionClose.OnSample(int(status.TimeUntilAuctionCloses))
	default:
		m.auctionClose.Reset()
	}
	m.roundStart.OnSample(int(status.TimeUntilRoundStarts))
}

func (m *Monitor) applyEconomics(econ timeboost.Economics) {
	m.mu.Lock()
	m.economics = &econ
	m.mu.Unlock()
}

// pollFailed records a poll failure as a passive indicator. Countdowns
// keep ticking on the last known values.
func (m *Monitor) pollFailed(err error) {
	m.mu.Lock()
	m.lastPollErr = err
	m.mu.Unlock()
	log.Warn().Err(err).Str("network", m.network).Msg("auction poll failed")
}

func (m *Monitor) currentClient() AuctionClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

func (m *Monitor) source() TimeboostedSource {
	return m.currentClient()
}

func (m *Monitor) emitTick(kind timeboost.CountdownKind, remaining int, active bool) {
	m.emit(timeboost.EventTypeTimerTick, timeboost.TimerTickPayload{
		Countdown:    kind,
		RemainingSec: remaining,
		Active:       active,
	})
}

func (m *Monitor) emitFeedEntry(entry FeedEntry) {
	m.emit(timeboost.EventTypeTimeboostedTx, timeboost.TimeboostedTxPayload{
		Hash:        entry.Tx.Hash,
		BlockNumber: entry.Tx.BlockNumber,
		TxIndex:     entry.Tx.TxIndex,
		From:        entry.Tx.From,
		Controller:  entry.Tx.Controller,
		ReceivedAt:  entry.ReceivedAt,
	})
}

func (m *Monitor) emitStreamError(err error) {
	m.emit(timeboost.EventTypeStreamError, timeboost.StreamErrorPayload{Message: err.Error()})
}

func (m *Monitor) emit(typ timeboost.EventType, payload any) {
	if m.sink == nil {
		return
	}
	evt, err := timeboost.NewEvent(m.network, typ, payload)
	if err != nil {
		log.Error().Err(err).Str("network", m.network).Msg("failed to build event")
		return
	}
	m.sink.Publish(evt)
}
