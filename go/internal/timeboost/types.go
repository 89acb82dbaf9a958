package timeboost

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Phase is a stage of the express-lane auction cycle.
type Phase string

const (
	PhaseBidding   Phase = "bidding"
	PhaseClosing   Phase = "closing"
	PhaseResolving Phase = "resolving"
	PhaseActive    Phase = "active"
	PhaseUnknown   Phase = "unknown"
)

// ParsePhase maps a phase string reported by the node to a Phase.
// Anything unrecognized collapses to PhaseUnknown.
func ParsePhase(s string) Phase {
	switch Phase(s) {
	case PhaseBidding, PhaseClosing, PhaseResolving, PhaseActive:
		return Phase(s)
	default:
		return PhaseUnknown
	}
}

// AuctionStatus is one authoritative reading of the auction cycle, as
// returned by a single status poll.
type AuctionStatus struct {
	Round                  uint64         `json:"round"`
	Phase                  Phase          `json:"phase"`
	TimeUntilAuctionCloses int64          `json:"time_until_auction_closes_sec"`
	TimeUntilRoundStarts   int64          `json:"time_until_round_starts_sec"`
	Controller             common.Address `json:"express_lane_controller"`
}

// Economics describes the bidding-token economics of the auction contract.
type Economics struct {
	BiddingToken       common.Address `json:"bidding_token"`
	ReservePrice       *big.Int       `json:"reserve_price"`
	MinReservePrice    *big.Int       `json:"min_reserve_price"`
	Beneficiary        common.Address `json:"beneficiary"`
	BeneficiaryBalance *big.Int       `json:"beneficiary_balance"`
}

// TimeboostedTx is one transaction that was sequenced with express-lane
// priority, as delivered by the node's push subscription.
type TimeboostedTx struct {
	Hash        common.Hash    `json:"hash"`
	BlockNumber uint64         `json:"block_number"`
	TxIndex     uint           `json:"tx_index"`
	From        common.Address `json:"from"`
	Controller  common.Address `json:"controller"`
}

// Key is the unique identity of a timeboosted transaction. The same hash
// can in principle appear at different block positions after a reorg, so
// the block position is part of the identity.
func (tx TimeboostedTx) Key() string {
	return fmt.Sprintf("%s:%d:%d", tx.Hash.Hex(), tx.BlockNumber, tx.TxIndex)
}
