package timeboost

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventType identifies the kind of dashboard event carried by an Event.
type EventType string

const (
	EventTypePhaseChanged  EventType = "PhaseChanged"
	EventTypeTimerTick     EventType = "TimerTick"
	EventTypeTimeboostedTx EventType = "TimeboostedTx"
	EventTypeStateUpdate   EventType = "StateUpdate"
	EventTypeStreamError   EventType = "StreamError"
)

// Event is the envelope pushed to dashboard clients and relayed to NATS.
type Event struct {
	ID        string          `json:"id"`
	Network   string          `json:"network"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent wraps a payload into an envelope for the given network.
func NewEvent(network string, typ EventType, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		Network:   network,
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}

// Sink receives dashboard events. The gateway fan-out and the NATS relay
// both implement it; publishing must not block the caller.
type Sink interface {
	Publish(evt *Event)
}

// PhaseChangedPayload announces a transition between auction phases.
type PhaseChangedPayload struct {
	PreviousPhase Phase  `json:"previous_phase"`
	Phase         Phase  `json:"phase"`
	Round         uint64 `json:"round"`
}

// CountdownKind names which of the two dashboard countdowns a TimerTick
// belongs to.
type CountdownKind string

const (
	CountdownAuctionClose CountdownKind = "auction_close"
	CountdownRoundStart   CountdownKind = "round_start"
)

// TimerTickPayload carries one step of a locally ticking countdown.
// Active false means the countdown reached zero and is no longer shown.
type TimerTickPayload struct {
	Countdown    CountdownKind `json:"countdown"`
	RemainingSec int           `json:"remaining_sec"`
	Active       bool          `json:"active"`
}

// TimeboostedTxPayload carries one live-feed entry.
type TimeboostedTxPayload struct {
	Hash        common.Hash    `json:"hash"`
	BlockNumber uint64         `json:"block_number"`
	TxIndex     uint           `json:"tx_index"`
	From        common.Address `json:"from"`
	Controller  common.Address `json:"controller"`
	ReceivedAt  time.Time      `json:"received_at"`
}

// StreamErrorPayload reports a failed timeboosted-transaction subscription.
type StreamErrorPayload struct {
	Message string `json:"message"`
}
