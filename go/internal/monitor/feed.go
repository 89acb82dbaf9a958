package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/lanewatch/lanewatch/go/internal/timeboost"
)

const (
	// feedCapacity bounds how many timeboosted transactions are retained
	// for display, newest first.
	feedCapacity = 20

	// freshFor is how long a feed entry is highlighted as new.
	freshFor = 3 * time.Second
)

// ErrAlreadyStreaming is returned by Start when a subscription is already
// active. Callers must Stop before starting again.
var ErrAlreadyStreaming = errors.New("feed: subscription already active")

// TimeboostedSource opens a push subscription of timeboosted transactions.
// It is implemented by the auction RPC client.
type TimeboostedSource interface {
	SubscribeTimeboosted(ctx context.Context, onEvent func(timeboost.TimeboostedTx), onError func(error)) (Subscription, error)
}

// Subscription is a releasable handle to an open push subscription.
// Release tears the subscription down and returns only once delivery has
// fully stopped, so the handle is safe to discard afterwards.
type Subscription interface {
	Release(ctx context.Context) error
}

// FeedEntry is one buffered timeboosted transaction stamped with its
// arrival time.
type FeedEntry struct {
	Tx         timeboost.TimeboostedTx
	ReceivedAt time.Time
}

// FeedItem is the display form of a FeedEntry. Fresh is derived from the
// clock at snapshot time, never stored.
type FeedItem struct {
	Hash        string    `json:"hash"`
	BlockNumber uint64    `json:"block_number"`
	TxIndex     uint      `json:"tx_index"`
	From        string    `json:"from"`
	Controller  string    `json:"controller"`
	ReceivedAt  time.Time `json:"received_at"`
	Fresh       bool      `json:"fresh"`
}

// FeedSnapshot is the feed panel state handed to the presentation layer.
type FeedSnapshot struct {
	Items         []FeedItem `json:"items"`
	TotalReceived uint64     `json:"total_received"`
	Streaming     bool       `json:"streaming"`
	LastError     string     `json:"last_error,omitempty"`
}

// FeedBuffer maintains a bounded, freshest-first view of the timeboosted
// transaction stream. Events beyond capacity are dropped oldest-first and
// never re-requested; a separate total-received counter keeps growing
// regardless of truncation.
type FeedBuffer struct {
	clock   clockwork.Clock
	network string
	onEntry func(FeedEntry)
	onError func(error)

	mu        sync.Mutex
	entries   []FeedEntry // newest first
	total     uint64
	streaming bool
	sub       Subscription
	lastErr   error
	gen       uint64 // bumped on every start/stop; guards stale callbacks
}

// NewFeedBuffer creates an idle feed buffer. onEntry and onError, if
// non-nil, are invoked for accepted events and subscription failures; both
// run outside the buffer's lock.
func NewFeedBuffer(clock clockwork.Clock, network string, onEntry func(FeedEntry), onError func(error)) *FeedBuffer {
	return &FeedBuffer{
		clock:   clock,
		network: network,
		onEntry: onEntry,
		onError: onError,
	}
}

// Start clears the buffer and counters and opens a subscription on src.
// It fails with ErrAlreadyStreaming if a subscription is already active.
func (f *FeedBuffer) Start(ctx context.Context, src TimeboostedSource) error {
	f.mu.Lock()
	if f.streaming {
		f.mu.Unlock()
		return ErrAlreadyStreaming
	}
	f.entries = nil
	f.total = 0
	f.lastErr = nil
	f.streaming = true
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	sub, err := src.SubscribeTimeboosted(ctx,
		func(tx timeboost.TimeboostedTx) { f.ingest(gen, tx) },
		func(err error) { f.streamFailed(gen, err) },
	)
	if err != nil {
		f.mu.Lock()
		if f.gen == gen {
			f.streaming = false
			f.lastErr = err
		}
		f.mu.Unlock()
		return fmt.Errorf("subscribe timeboosted transactions: %w", err)
	}

	f.mu.Lock()
	f.sub = sub
	f.mu.Unlock()

	log.Info().Str("network", f.network).Msg("timeboosted feed streaming")
	return nil
}

// Stop releases the subscription and marks the feed inactive. The buffer
// contents are preserved. Stopping an idle feed is a no-op.
func (f *FeedBuffer) Stop(ctx context.Context) error {
	f.mu.Lock()
	if !f.streaming && f.sub == nil {
		f.mu.Unlock()
		return nil
	}
	f.streaming = false
	sub := f.sub
	f.sub = nil
	f.gen++ // orphan any in-flight callbacks
	f.mu.Unlock()

	if sub != nil {
		if err := sub.Release(ctx); err != nil {
			return fmt.Errorf("release timeboosted subscription: %w", err)
		}
	}
	log.Info().Str("network", f.network).Msg("timeboosted feed stopped")
	return nil
}

// Snapshot returns the current feed state. Freshness is recomputed against
// the clock on every call.
func (f *FeedBuffer) Snapshot() FeedSnapshot {
	now := f.clock.Now()

	f.mu.Lock()
	snap := FeedSnapshot{
		Items:         make([]FeedItem, 0, len(f.entries)),
		TotalReceived: f.total,
		Streaming:     f.streaming,
	}
	if f.lastErr != nil {
		snap.LastError = f.lastErr.Error()
	}
	for _, e := range f.entries {
		snap.Items = append(snap.Items, FeedItem{
			Hash:        e.Tx.Hash.Hex(),
			BlockNumber: e.Tx.BlockNumber,
			TxIndex:     e.Tx.TxIndex,
			From:        e.Tx.From.Hex(),
			Controller:  e.Tx.Controller.Hex(),
			ReceivedAt:  e.ReceivedAt,
			Fresh:       now.Sub(e.ReceivedAt) < freshFor,
		})
	}
	f.mu.Unlock()

	return snap
}

// Streaming reports whether a subscription is currently active, and the
// last subscription error if any.
func (f *FeedBuffer) Streaming() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaming, f.lastErr
}

// ingest stamps, prepends and truncates. Events delivered by a superseded
// subscription are dropped so they cannot land in a reset buffer.
func (f *FeedBuffer) ingest(gen uint64, tx timeboost.TimeboostedTx) {
	f.mu.Lock()
	if gen != f.gen || !f.streaming {
		f.mu.Unlock()
		return
	}
	entry := FeedEntry{Tx: tx, ReceivedAt: f.clock.Now()}
	f.entries = append(f.entries, FeedEntry{})
	copy(f.entries[1:], f.entries)
	f.entries[0] = entry
	if len(f.entries) > feedCapacity {
		f.entries = f.entries[:feedCapacity]
	}
	f.total++
	hook := f.onEntry
	f.mu.Unlock()

	if hook != nil {
		hook(entry)
	}
}

// streamFailed records a subscription error and marks streaming stopped.
// Buffered entries are kept so the last-seen events remain inspectable.
func (f *FeedBuffer) streamFailed(gen uint64, err error) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.streaming = false
	f.sub = nil
	f.lastErr = err
	hook := f.onError
	f.mu.Unlock()

	log.Error().Err(err).Str("network", f.network).Msg("timeboosted subscription failed")
	if hook != nil {
		hook(err)
	}
}
